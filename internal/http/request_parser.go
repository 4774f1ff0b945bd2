// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for parsing and validating HTTP request data:
// JSON bodies, dates, month selectors and transaction list filters.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"carteira/internal/core"
	"carteira/internal/repository"
)

const maxBodyBytes = 1 << 20

const dateLayout = "2006-01-02"

// MonthParams holds parsed year/month values from request parameters.
type MonthParams struct {
	Year  int
	Month int
}

// ParseMonthParams extracts year and month from query parameters, using
// the given time as the default. Unparseable values are ignored.
func ParseMonthParams(query url.Values, now time.Time) MonthParams {
	params := MonthParams{
		Year:  now.Year(),
		Month: int(now.Month()),
	}

	if v := strings.TrimSpace(query.Get("year")); v != "" {
		if y, err := strconv.Atoi(v); err == nil {
			params.Year = y
		}
	}
	if v := strings.TrimSpace(query.Get("month")); v != "" {
		if m, err := strconv.Atoi(v); err == nil {
			params.Month = m
		}
	}

	return params
}

// Validate rejects months outside 1-12.
func (p MonthParams) Validate() error {
	if p.Month < 1 || p.Month > 12 {
		return &core.ValidationError{Field: "month", Err: core.ErrInvalidDate}
	}
	return nil
}

// errBadBody marks a body that is not valid JSON for the target type.
var errBadBody = errors.New("invalid request body")

// DecodeJSON reads a single JSON object into dst. Unknown fields are
// rejected. Field level validation errors from custom decoders are returned
// unchanged so they map to 422.
func DecodeJSON(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, core.ErrValidation) {
			return err
		}
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty body", errBadBody)
		}
		return fmt.Errorf("%w: %v", errBadBody, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: trailing data after JSON object", errBadBody)
	}
	return nil
}

// decodeError writes the response for a DecodeJSON failure.
func decodeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, errBadBody) {
		BadRequestError(err.Error()).Write(w)
		return
	}
	DomainError(r, err).Write(w)
}

// Date is a calendar date in JSON. It accepts YYYY-MM-DD as well as RFC 3339
// timestamps, keeping only the date part.
type Date struct {
	time.Time
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "" || s == "null" {
		*d = Date{}
		return nil
	}
	t, err := parseDate(s)
	if err != nil {
		return &core.ValidationError{Field: "date", Err: core.ErrInvalidDate}
	}
	d.Time = t
	return nil
}

func (d *Date) ptr() *time.Time {
	if d == nil || d.IsZero() {
		return nil
	}
	t := d.Time
	return &t
}

// parseDate parses YYYY-MM-DD or an RFC 3339 timestamp into a UTC date.
func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return core.DateOnly(t), nil
}

// parseDateParam reads an optional date query parameter.
func parseDateParam(query url.Values, key string) (*time.Time, error) {
	v := strings.TrimSpace(query.Get(key))
	if v == "" {
		return nil, nil
	}
	t, err := parseDate(v)
	if err != nil {
		return nil, &core.ValidationError{Field: key, Err: core.ErrInvalidDate}
	}
	return &t, nil
}

// parseBoolParam reads an optional boolean query parameter.
func parseBoolParam(query url.Values, key string) (*bool, error) {
	v := strings.TrimSpace(query.Get(key))
	if v == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return nil, &core.ValidationError{Field: key, Err: fmt.Errorf("must be true or false")}
	}
	return &b, nil
}

// endOfDay moves a date to its last instant so range filters include the
// whole day.
func endOfDay(t time.Time) time.Time {
	return core.DateOnly(t).AddDate(0, 0, 1).Add(-time.Nanosecond)
}

// ParseTransactionFilters maps the transaction list query string to
// repository filters.
func ParseTransactionFilters(query url.Values) (repository.TransactionFilters, error) {
	f := repository.TransactionFilters{
		WalletID:   sanitizeInput(query.Get("walletId")),
		CategoryID: sanitizeInput(query.Get("categoryId")),
		GroupID:    sanitizeInput(query.Get("groupId")),
	}

	if v := strings.TrimSpace(query.Get("type")); v != "" {
		t, err := core.ParseTransactionType(v)
		if err != nil {
			return f, err
		}
		f.Type = t
	}

	var err error
	if f.IsExecuted, err = parseBoolParam(query, "isExecuted"); err != nil {
		return f, err
	}
	if f.IsRecurring, err = parseBoolParam(query, "isRecurring"); err != nil {
		return f, err
	}
	if f.DateFrom, err = parseDateParam(query, "dateFrom"); err != nil {
		return f, err
	}
	if f.DateTo, err = parseDateParam(query, "dateTo"); err != nil {
		return f, err
	}
	if f.DateFrom != nil && f.DateTo != nil && f.DateTo.Before(*f.DateFrom) {
		return f, &core.ValidationError{Field: "dateTo", Err: fmt.Errorf("must not be before dateFrom")}
	}
	return f, nil
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
