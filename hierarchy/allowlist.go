package hierarchy

import (
	"net/url"
	"sort"
	"strings"

	"github.com/goliatone/go-report-cache/sqlbuild"
)

// AllowList is the set of actor codes whose rows a requester may see, or
// the unrestricted sentinel. The zero value allows nothing.
type AllowList struct {
	unrestricted bool
	codes        []string
}

// Unrestricted is the allow list of administrators.
var Unrestricted = AllowList{unrestricted: true}

// Restricted builds a sorted, deduplicated allow list. Blank codes are
// dropped.
func Restricted(codes ...string) AllowList {
	seen := make(map[string]struct{}, len(codes))
	out := make([]string, 0, len(codes))
	for _, code := range codes {
		code = strings.TrimSpace(code)
		if code == "" {
			continue
		}
		if _, ok := seen[code]; ok {
			continue
		}
		seen[code] = struct{}{}
		out = append(out, code)
	}
	sort.Strings(out)
	return AllowList{codes: out}
}

// IsUnrestricted reports whether the list is the admin sentinel.
func (a AllowList) IsUnrestricted() bool { return a.unrestricted }

// Codes returns a copy of the allowed codes. It is nil when unrestricted.
func (a AllowList) Codes() []string {
	if a.unrestricted {
		return nil
	}
	return append([]string(nil), a.codes...)
}

// Len returns the number of codes, or -1 when unrestricted.
func (a AllowList) Len() int {
	if a.unrestricted {
		return -1
	}
	return len(a.codes)
}

// Contains reports whether code may be seen.
func (a AllowList) Contains(code string) bool {
	if a.unrestricted {
		return true
	}
	i := sort.SearchStrings(a.codes, code)
	return i < len(a.codes) && a.codes[i] == code
}

// Scope is a stable representation used in cache keys. Two lists with the
// same members always share a scope. Codes are escaped, so lists with
// different members never do.
func (a AllowList) Scope() string {
	if a.unrestricted {
		return "*"
	}
	escaped := make([]string, len(a.codes))
	for i, code := range a.codes {
		escaped[i] = url.QueryEscape(code)
	}
	return "codes:" + strings.Join(escaped, ",")
}

// Apply restricts expr to the allow list. Unrestricted lists add nothing.
func Apply(b *sqlbuild.Builder, expr string, a AllowList) {
	if a.unrestricted {
		return
	}
	b.In(expr, a.codes)
}
