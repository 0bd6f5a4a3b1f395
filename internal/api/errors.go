package api

import (
	"context"
	"errors"
	"net/http"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-report-cache/daterange"
	"github.com/goliatone/go-report-cache/hierarchy"
	"github.com/goliatone/go-report-cache/reports"
	"github.com/goliatone/go-report-cache/schema"
)

var (
	errInvalidLimit = errors.New("invalid limit")
	errTagRequired  = errors.New("at least one tag parameter is required")
	errAdminToken   = errors.New("missing or invalid admin token")
)

var errorMappers = []goerrors.ErrorMapper{mapRequestErrors, mapAccessErrors, mapLookupErrors}

// toHTTPError classifies err into a categorized error carrying the HTTP
// status in Code. Anything unrecognized becomes a 500.
func toHTTPError(err error) *goerrors.Error {
	return goerrors.MapToError(err, errorMappers)
}

func mapRequestErrors(err error) *goerrors.Error {
	switch {
	case errors.Is(err, daterange.ErrRangeRequired),
		errors.Is(err, daterange.ErrUnknownBucket),
		errors.Is(err, daterange.ErrInvalidDate),
		errors.Is(err, daterange.ErrInvalidRange),
		errors.Is(err, errInvalidLimit),
		errors.Is(err, errTagRequired):
		return categorized(err, goerrors.CategoryBadInput, http.StatusBadRequest, "invalid request")
	case errors.Is(err, context.DeadlineExceeded):
		return categorized(err, goerrors.CategoryExternal, http.StatusGatewayTimeout, "query timed out")
	}
	return nil
}

func mapAccessErrors(err error) *goerrors.Error {
	switch {
	case errors.Is(err, hierarchy.ErrActorRequired), errors.Is(err, errAdminToken):
		return categorized(err, goerrors.CategoryAuth, http.StatusUnauthorized, "authentication required")
	case errors.Is(err, hierarchy.ErrDirectoryUnavailable), errors.Is(err, hierarchy.ErrHierarchyLimit):
		return categorized(err, goerrors.CategoryAuthz, http.StatusForbidden, "authorization could not be resolved")
	}
	return nil
}

func mapLookupErrors(err error) *goerrors.Error {
	switch {
	case errors.Is(err, reports.ErrUnknownReport):
		return categorized(err, goerrors.CategoryNotFound, http.StatusNotFound, "report not found")
	case errors.Is(err, schema.ErrUnknownDataset):
		return categorized(err, goerrors.CategoryNotFound, http.StatusNotFound, "dataset not found")
	}
	return nil
}

func categorized(err error, category goerrors.Category, status int, message string) *goerrors.Error {
	return goerrors.Wrap(err, category, message).
		WithCode(status).
		WithTextCode(goerrors.HTTPStatusToTextCode(status))
}

// fail writes the error envelope for err. Causes of 5xx responses are only
// shown outside production.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	herr := toHTTPError(err)
	status := herr.Code
	if status == 0 {
		status = http.StatusInternalServerError
	}

	detail := herr.Message
	if herr.Source != nil {
		detail = herr.Source.Error()
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			"path", r.URL.Path,
			"category", herr.Category,
			"request_id", RequestIDFromContext(r.Context()),
			"error", err,
		)
		if s.cfg.Production {
			detail = "an unexpected error occurred"
		}
	}

	writeError(w, r, status, errorEnvelope{
		Error:   herr.Message,
		Message: detail,
		Code:    herr.TextCode,
	})
}
