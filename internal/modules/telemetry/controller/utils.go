package controller

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"pooltemp/internal/frame"
)

const (
	defaultLimit = 100
	maxLimit     = 1000
)

func parseReadingsQuery(r *http.Request) (from time.Time, to time.Time, limit int, err error) {
	q := r.URL.Query()

	if s := q.Get("from"); s != "" {
		from, err = time.Parse(time.RFC3339, s)
		if err != nil {
			return time.Time{}, time.Time{}, 0, errors.New("invalid 'from' (expected RFC3339)")
		}
	}
	if s := q.Get("to"); s != "" {
		to, err = time.Parse(time.RFC3339, s)
		if err != nil {
			return time.Time{}, time.Time{}, 0, errors.New("invalid 'to' (expected RFC3339)")
		}
	}
	if !from.IsZero() && !to.IsZero() && from.After(to) {
		return time.Time{}, time.Time{}, 0, errors.New("'from' must be <= 'to'")
	}

	limit, err = parseLimitQuery(r)
	if err != nil {
		return time.Time{}, time.Time{}, 0, err
	}
	return from, to, limit, nil
}

func parseLimitQuery(r *http.Request) (limit int, err error) {
	limit = defaultLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, convErr := strconv.Atoi(s)
		if convErr != nil {
			return 0, errors.New("invalid 'limit' (expected integer)")
		}
		if n <= 0 {
			return 0, errors.New("'limit' must be > 0")
		}
		if n > maxLimit {
			return 0, errors.New("'limit' must be <= 1000")
		}
		limit = n
	}
	return limit, nil
}

// parseSensorPath accepts either id form and returns the canonical one
// stored in the history.
func parseSensorPath(r *http.Request) (string, error) {
	raw := r.PathValue("id")
	if raw == "" {
		return "", errors.New("missing sensor id")
	}
	id, err := frame.ParseSensorID(raw)
	if err != nil {
		return "", errors.New("invalid sensor id (expected colon-separated bytes or 16 hex digits)")
	}
	return id.String(), nil
}
