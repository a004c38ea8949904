package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/surebet/internal/arbitrage"
	"github.com/alanyoungcy/surebet/internal/domain"
)

// maxLimit caps the limit query parameter.
const maxLimit = 1000

// writeJSON marshals v as JSON and writes it to the response with the given
// HTTP status code. If marshaling fails, it falls back to a plain-text 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// errorBody is the JSON error payload. Violations is only set for
// validation failures.
type errorBody struct {
	Error      string                `json:"error"`
	Violations []arbitrage.Violation `json:"violations,omitempty"`
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// writeServiceError maps domain errors onto HTTP statuses. Unclassified
// errors are logged and reported as a generic 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var verr *arbitrage.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "validation failed", Violations: verr.Violations})
	case errors.Is(err, domain.ErrInvalidStatus), errors.Is(err, domain.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrSiblingWon):
		writeError(w, http.StatusConflict, "the other leg of this pair has already won")
	case errors.Is(err, domain.ErrStatusConflict):
		writeError(w, http.StatusConflict, "bet status changed concurrently, reload and retry")
	case errors.Is(err, domain.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
	case errors.Is(err, domain.ErrExtractionFailed):
		logger.ErrorContext(r.Context(), "extraction failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to process image")
	default:
		logger.ErrorContext(r.Context(), "request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// decodeJSON reads a size-limited JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// parseListOpts extracts pagination and time-window parameters. Without a
// limit every row is returned.
func parseListOpts(r *http.Request) (domain.ListOpts, error) {
	q := r.URL.Query()
	var opts domain.ListOpts

	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return opts, fmt.Errorf("invalid limit %q", v)
		}
		opts.Limit = min(n, maxLimit)
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return opts, fmt.Errorf("invalid offset %q", v)
		}
		opts.Offset = n
	}
	for _, p := range []struct {
		name string
		dst  **time.Time
	}{{"since", &opts.Since}, {"until", &opts.Until}} {
		v := q.Get(p.name)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return opts, fmt.Errorf("invalid %s %q, want RFC3339", p.name, v)
		}
		*p.dst = &t
	}
	return opts, nil
}

// parseBetFilter reads the listing filters on top of parseListOpts.
func parseBetFilter(r *http.Request) (domain.BetFilter, error) {
	opts, err := parseListOpts(r)
	if err != nil {
		return domain.BetFilter{}, err
	}
	q := r.URL.Query()
	f := domain.BetFilter{
		Search:   strings.TrimSpace(q.Get("search")),
		ListOpts: opts,
	}
	if v := q.Get("status"); v != "" && v != "all" {
		st, err := domain.ParseBetStatus(v)
		if err != nil {
			return domain.BetFilter{}, fmt.Errorf("invalid status %q", v)
		}
		f.Status = st
	}
	switch s := domain.BetSort(q.Get("sort")); s {
	case "", domain.BetSortCreated:
		f.Sort = domain.BetSortCreated
	case domain.BetSortDate, domain.BetSortStake, domain.BetSortOdds:
		f.Sort = s
	default:
		return domain.BetFilter{}, fmt.Errorf("invalid sort %q", s)
	}
	return f, nil
}
