package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/goliatone/go-report-cache/strategy"
)

const cacheControlNoStore = "no-store"

// CacheInfo tells clients how the response may be cached.
type CacheInfo struct {
	// Duration is the TTL in seconds.
	Duration       int    `json:"duration"`
	DateRange      string `json:"dateRange"`
	HasCustomDates bool   `json:"hasCustomDates"`
	Volatility     string `json:"volatility"`
}

func cacheInfo(plan strategy.Plan) *CacheInfo {
	return &CacheInfo{
		Duration:       plan.Seconds(),
		DateRange:      plan.Range,
		HasCustomDates: plan.Custom,
		Volatility:     string(plan.Volatility),
	}
}

type envelope struct {
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data"`
	Count     *int            `json:"count,omitempty"`
	Timestamp string          `json:"timestamp"`
	Cached    bool            `json:"cached"`
	CacheInfo *CacheInfo      `json:"cacheInfo,omitempty"`
	Message   string          `json:"message,omitempty"`
}

type errorEnvelope struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	Message   string `json:"message"`
	Code      string `json:"code,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

// reply is one successful response before it is written.
type reply struct {
	data         any
	count        *int
	cached       bool
	info         *CacheInfo
	message      string
	cacheControl string
}

// respond writes rep. The ETag covers the data only, never the timestamp;
// a matching If-None-Match gets 304 and no body.
func (s *Server) respond(w http.ResponseWriter, r *http.Request, rep reply) {
	data, err := json.Marshal(rep.data)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	etag := `"` + strconv.FormatUint(xxhash.Sum64(data), 16) + `"`
	h := w.Header()
	h.Set("ETag", etag)
	if rep.cacheControl != "" {
		h.Set("Cache-Control", rep.cacheControl)
	}
	if match := r.Header.Get("If-None-Match"); match != "" && match == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	writeJSON(w, http.StatusOK, envelope{
		Success:   true,
		Data:      data,
		Count:     rep.count,
		Timestamp: s.now().UTC().Format(time.RFC3339),
		Cached:    rep.cached,
		CacheInfo: rep.info,
		Message:   rep.message,
	})
}

func writeError(w http.ResponseWriter, r *http.Request, status int, env errorEnvelope) {
	env.Success = false
	env.RequestID = RequestIDFromContext(r.Context())
	w.Header().Set("Cache-Control", cacheControlNoStore)
	writeJSON(w, status, env)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
