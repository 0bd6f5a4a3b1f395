package querycache

import (
	"errors"
	"strings"
	"time"
)

// KeyParams carries everything that changes a query's result. Scope is the
// allow-list scope of the requester and is mandatory: two actors with
// different visibility must never share an entry.
type KeyParams struct {
	Endpoint string
	Dataset  string
	Filters  map[string]string
	Start    time.Time
	End      time.Time
	Scope    string
	Extra    map[string]string
}

// Key builds the cache key for p.
func (e *Executor) Key(p KeyParams) (string, error) {
	var missing []string
	if strings.TrimSpace(p.Endpoint) == "" {
		missing = append(missing, "endpoint")
	}
	if strings.TrimSpace(p.Dataset) == "" {
		missing = append(missing, "dataset")
	}
	if p.Scope == "" {
		missing = append(missing, "scope")
	}
	if p.Start.IsZero() || p.End.IsZero() {
		missing = append(missing, "date range")
	}
	if len(missing) > 0 {
		return "", errors.New("cache key is missing " + strings.Join(missing, ", "))
	}

	filters := p.Filters
	if filters == nil {
		filters = map[string]string{}
	}
	extra := p.Extra
	if extra == nil {
		extra = map[string]string{}
	}

	return e.serializer.SerializeKey(
		toSnake(p.Endpoint),
		strings.ToLower(p.Dataset),
		p.Start.Format(time.DateOnly),
		p.End.Format(time.DateOnly),
		filters,
		p.Scope,
		extra,
	), nil
}
