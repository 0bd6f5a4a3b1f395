package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/goliatone/go-report-cache/daterange"
	"github.com/goliatone/go-report-cache/filters"
	"github.com/goliatone/go-report-cache/hierarchy"
	"github.com/goliatone/go-report-cache/querycache"
	"github.com/goliatone/go-report-cache/reports"
	"github.com/goliatone/go-report-cache/schema"
	"github.com/goliatone/go-report-cache/strategy"
)

const (
	headerAdminToken = "X-Admin-Token"

	endpointReports = "reports"
	endpointFilters = "filters"
)

// scope is everything a data request is bounded by.
type scope struct {
	rng   daterange.Descriptor
	allow hierarchy.AllowList
	plan  strategy.Plan
}

// scopeFor reads the date range and the actor. Range errors are reported
// before authorization errors.
func (s *Server) scopeFor(r *http.Request, endpoint, dataset string) (scope, error) {
	q := r.URL.Query()
	rng, err := s.strategist.ParseRange(q.Get("range"), q.Get("startDate"), q.Get("endDate"))
	if err != nil {
		return scope{}, err
	}
	allow, err := s.resolver.AllowList(r.Context(), q.Get("actorCode"))
	if err != nil {
		return scope{}, err
	}
	return scope{rng: rng, allow: allow, plan: s.strategist.Plan(endpoint, dataset, rng)}, nil
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "report")
	def, ok := s.reports.Reports().Get(name)
	if !ok {
		s.fail(w, r, fmt.Errorf("%w: %q", reports.ErrUnknownReport, name))
		return
	}
	ds, ok := s.datasets.Dataset(def.Dataset)
	if !ok {
		s.fail(w, r, fmt.Errorf("%w: %q", schema.ErrUnknownDataset, def.Dataset))
		return
	}

	q := r.URL.Query()
	limit, err := parseLimit(q.Get("limit"), def.DefaultLimit, s.cfg.MaxLimit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	sc, err := s.scopeFor(r, endpointReports, def.Dataset)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	selections := filters.Selections(ds, q.Get)

	key, err := s.executor.Key(querycache.KeyParams{
		Endpoint: endpointReports,
		Dataset:  def.Dataset,
		Filters:  selections,
		Start:    sc.rng.Start,
		End:      sc.rng.End,
		Scope:    sc.allow.Scope(),
		Extra:    map[string]string{"report": def.Name, "limit": strconv.Itoa(limit)},
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}

	ctx := querycache.WithTags(r.Context(), "report:"+def.Name)
	res, err := querycache.Execute(ctx, s.executor,
		querycache.Request{Key: key, TTL: sc.plan.TTL, Tags: sc.plan.Tags},
		func(ctx context.Context) (reports.Result, error) {
			return s.reports.Run(ctx, reports.Request{
				Report:     def.Name,
				Range:      sc.rng,
				Selections: selections,
				Allow:      sc.allow,
				Limit:      limit,
			})
		})
	if errors.Is(err, schema.ErrSchemaUnavailable) {
		empty := reports.Result{Report: def.Name, Dataset: def.Dataset, Rows: []map[string]any{}}
		s.unavailable(w, r, empty, def.Dataset)
		return
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}

	count := len(res.Value.Rows)
	s.respond(w, r, reply{
		data:         res.Value,
		count:        &count,
		cached:       res.Cached,
		info:         cacheInfo(sc.plan),
		cacheControl: sc.plan.CacheControl(),
	})
}

func (s *Server) handleFilters(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "dataset")
	ds, ok := s.datasets.Dataset(name)
	if !ok {
		s.fail(w, r, fmt.Errorf("%w: %q", schema.ErrUnknownDataset, name))
		return
	}

	sc, err := s.scopeFor(r, endpointFilters, ds.Name)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	selections := filters.Selections(ds, r.URL.Query().Get)

	key, err := s.executor.Key(querycache.KeyParams{
		Endpoint: endpointFilters,
		Dataset:  ds.Name,
		Filters:  selections,
		Start:    sc.rng.Start,
		End:      sc.rng.End,
		Scope:    sc.allow.Scope(),
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}

	res, err := querycache.Execute(r.Context(), s.executor,
		querycache.Request{Key: key, TTL: sc.plan.TTL, Tags: sc.plan.Tags},
		func(ctx context.Context) (filters.Result, error) {
			return s.engine.Compute(ctx, filters.Request{
				Dataset:    ds.Name,
				Range:      sc.rng,
				Selections: selections,
				Allow:      sc.allow,
			})
		})
	if errors.Is(err, schema.ErrSchemaUnavailable) {
		s.unavailable(w, r, emptyFilters(ds), ds.Name)
		return
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}

	s.respond(w, r, reply{
		data:         res.Value,
		cached:       res.Cached,
		info:         cacheInfo(sc.plan),
		cacheControl: sc.plan.CacheControl(),
	})
}

func emptyFilters(ds schema.Dataset) filters.Result {
	out := filters.Result{
		Dataset:    ds.Name,
		Dimensions: make([]string, len(ds.Dimensions)),
		Options:    make(map[string][]filters.Option, len(ds.Dimensions)),
	}
	for i, dim := range ds.Dimensions {
		out.Dimensions[i] = dim.Key
		out.Options[dim.Key] = []filters.Option{}
	}
	return out
}

// unavailable answers 200 with empty data when none of the dataset's tables
// exist. The answer is never cached.
func (s *Server) unavailable(w http.ResponseWriter, r *http.Request, data any, dataset string) {
	s.logger.Warn("dataset unavailable", "dataset", dataset, "path", r.URL.Path)
	count := 0
	s.respond(w, r, reply{
		data:         data,
		count:        &count,
		message:      fmt.Sprintf("data source for %q is not available", dataset),
		cacheControl: cacheControlNoStore,
	})
}

type schemaView struct {
	Dataset    string            `json:"dataset"`
	Available  bool              `json:"available"`
	Table      string            `json:"table,omitempty"`
	Candidates []string          `json:"candidates"`
	Columns    map[string]string `json:"columns,omitempty"`
	Missing    []string          `json:"missing,omitempty"`
	Dimensions []string          `json:"dimensions"`
}

func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "dataset")
	ds, ok := s.datasets.Dataset(name)
	if !ok {
		s.fail(w, r, fmt.Errorf("%w: %q", schema.ErrUnknownDataset, name))
		return
	}

	view := schemaView{Dataset: ds.Name, Candidates: ds.Tables, Dimensions: make([]string, 0, len(ds.Dimensions))}
	for _, dim := range ds.Dimensions {
		view.Dimensions = append(view.Dimensions, dim.Key)
	}

	res, err := s.datasets.Resolve(r.Context(), name)
	switch {
	case errors.Is(err, schema.ErrSchemaUnavailable):
		s.respond(w, r, reply{
			data:         view,
			message:      fmt.Sprintf("none of the tables for %q exist", ds.Name),
			cacheControl: cacheControlNoStore,
		})
		return
	case err != nil:
		s.fail(w, r, err)
		return
	}

	view.Available = true
	view.Table = res.Table
	view.Columns = res.Columns()
	view.Missing = res.Missing()
	s.respond(w, r, reply{data: view, cacheControl: cacheControlNoStore})
}

type reportView struct {
	Name         string `json:"name"`
	Dataset      string `json:"dataset"`
	Description  string `json:"description,omitempty"`
	DefaultLimit int    `json:"defaultLimit"`
}

func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	defs := s.reports.Reports().List()
	out := make([]reportView, 0, len(defs))
	for _, def := range defs {
		out = append(out, reportView{
			Name:         def.Name,
			Dataset:      def.Dataset,
			Description:  def.Description,
			DefaultLimit: def.DefaultLimit,
		})
	}
	count := len(out)
	s.respond(w, r, reply{data: out, count: &count, cacheControl: cacheControlNoStore})
}

func (s *Server) handleListDatasets(w http.ResponseWriter, r *http.Request) {
	datasets := s.datasets.Datasets()
	names := make([]string, 0, len(datasets))
	for _, ds := range datasets {
		names = append(names, ds.Name)
	}
	count := len(names)
	s.respond(w, r, reply{data: names, count: &count, cacheControl: cacheControlNoStore})
}

type invalidation struct {
	Tags    []string `json:"tags"`
	Evicted int      `json:"evicted"`
}

// handleInvalidate evicts every entry filed under the given tags. Dataset
// tags also drop the memoized schema resolution so the next request probes
// the catalog again. Actor tags drop that actor's resolved allow list.
func (s *Server) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	var tags []string
	for _, tag := range r.URL.Query()["tag"] {
		if tag = strings.TrimSpace(tag); tag != "" {
			tags = append(tags, tag)
		}
	}
	if len(tags) == 0 {
		s.fail(w, r, errTagRequired)
		return
	}

	evicted, err := s.executor.InvalidateTag(r.Context(), tags...)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	for _, tag := range tags {
		if name, ok := strings.CutPrefix(tag, "dataset:"); ok {
			for _, ds := range s.datasets.Datasets() {
				if strings.EqualFold(ds.Name, name) {
					s.datasets.Invalidate(ds.Name)
				}
			}
		}
		if actor, ok := strings.CutPrefix(tag, "actor:"); ok {
			s.resolver.Invalidate(actor)
		}
	}

	s.logger.Info("cache invalidated", "tags", tags, "evicted", evicted,
		"request_id", RequestIDFromContext(r.Context()))
	s.respond(w, r, reply{data: invalidation{Tags: tags, Evicted: evicted}, cacheControl: cacheControlNoStore})
}

// requireAdmin checks the admin token when one is configured. The token is
// accepted as a bearer token or in X-Admin-Token.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.AdminToken == "" {
			next.ServeHTTP(w, r)
			return
		}
		token := r.Header.Get(headerAdminToken)
		if bearer, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
			token = strings.TrimSpace(bearer)
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.AdminToken)) != 1 {
			s.fail(w, r, errAdminToken)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{"status": "ok"}
	if s.health != nil {
		if err := s.health(r.Context()); err != nil {
			s.logger.Warn("health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	w.Header().Set("Cache-Control", cacheControlNoStore)
	writeJSON(w, http.StatusOK, status)
}

// parseLimit returns def (capped at ceiling) when raw is empty.
func parseLimit(raw string, def, ceiling int) (int, error) {
	if raw == "" {
		return min(def, ceiling), nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a number", errInvalidLimit, raw)
	}
	if err := validation.Validate(n, validation.Min(1), validation.Max(ceiling)); err != nil {
		return 0, fmt.Errorf("%w: %v", errInvalidLimit, err)
	}
	return n, nil
}
