package httpx

import (
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// DateLayout is the wire format of calendar dates.
const DateLayout = "2006-01-02"

// ParseDate parses a YYYY-MM-DD value as a UTC date.
func ParseDate(raw string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, raw, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid date %q", ErrBadRequest, raw)
	}
	return t, nil
}

// DateQuery parses an optional date query parameter.
func DateQuery(r *http.Request, name string) (*time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	t, err := ParseDate(raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// DateQueryOr parses a date query parameter, falling back to def.
func DateQueryOr(r *http.Request, name string, def time.Time) (time.Time, error) {
	t, err := DateQuery(r, name)
	if err != nil || t == nil {
		return def, err
	}
	return *t, nil
}

// IntQuery parses an optional integer query parameter.
func IntQuery(r *http.Request, name string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil {
		return def
	}
	return v
}
