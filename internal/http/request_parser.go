// Package http provides the REST server and its handlers.
//
// This file implements helpers for decoding request bodies and parsing the
// month, date and index parameters shared by several endpoints.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"kakeibo/internal/core"
)

// maxBodyBytes bounds every JSON request body.
const maxBodyBytes = 1 << 20

var errEmptyBody = errors.New("request body is empty")

// decodeJSON reads one JSON value from the request body into dst. Unknown
// fields are rejected.
func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return core.NewValidationError("", errEmptyBody)
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return core.NewValidationError("", errEmptyBody)
		}
		return core.NewValidationError("", fmt.Errorf("malformed body: %w", err))
	}
	return nil
}

// ParseMonthParam reads ?month=YYYY-MM, defaulting to the month of now.
func ParseMonthParam(query url.Values, now time.Time) (core.YearMonth, error) {
	v := strings.TrimSpace(query.Get("month"))
	if v == "" {
		return core.CurrentYearMonth(now), nil
	}
	ym, err := core.ParseYearMonth(v)
	if err != nil {
		return core.YearMonth{}, core.NewValidationError("month", err)
	}
	return ym, nil
}

// ParseOptionalMonth reads ?month=YYYY-MM; an absent parameter is the zero
// month, which list endpoints treat as "all".
func ParseOptionalMonth(query url.Values) (core.YearMonth, error) {
	v := strings.TrimSpace(query.Get("month"))
	if v == "" {
		return core.YearMonth{}, nil
	}
	ym, err := core.ParseYearMonth(v)
	if err != nil {
		return core.YearMonth{}, core.NewValidationError("month", err)
	}
	return ym, nil
}

// ParseDateParam reads a date parameter, defaulting to today.
func ParseDateParam(query url.Values, key string, now time.Time) (core.Date, error) {
	v := strings.TrimSpace(query.Get(key))
	if v == "" {
		return core.NormalizeDate(now), nil
	}
	d, err := core.ParseDate(v)
	if err != nil {
		return core.Date{}, core.NewValidationError(key, err)
	}
	return d, nil
}

// sanitizeInput removes control characters except tab and newlines and trims
// whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

// sanitizePtr applies sanitizeInput through an optional field.
func sanitizePtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := sanitizeInput(*s)
	return &v
}
