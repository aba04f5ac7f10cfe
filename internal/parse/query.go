// Package parse turns raw query-string values into typed call filters.
package parse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"machine-alert-backend/internal/apperr"
	"machine-alert-backend/internal/model"
)

var dayRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// ParseDay normalizes a day filter to YYYY-MM-DD. A full RFC 3339 timestamp
// is accepted too and mapped to its calendar day in loc.
func ParseDay(raw string, loc *time.Location) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", nil
	}
	if loc == nil {
		loc = time.UTC
	}
	if dayRe.MatchString(s) {
		if _, err := time.ParseInLocation(time.DateOnly, s, loc); err != nil {
			return "", apperr.NewInvalidInput("date", fmt.Sprintf("%q is not a calendar day", raw))
		}
		return s, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.In(loc).Format(time.DateOnly), nil
	}
	return "", apperr.NewInvalidInput("date", fmt.Sprintf("%q is not in YYYY-MM-DD format", raw))
}

var statusAliases = map[string]model.CallStatus{
	"pendiente": model.StatusPending,
	"pending":   model.StatusPending,
	"realizada": model.StatusCompleted,
	"completed": model.StatusCompleted,
	"expirada":  model.StatusExpired,
	"expired":   model.StatusExpired,
}

// ParseStatus accepts the Spanish status names and their English
// equivalents, case-insensitively. Empty means no filter.
func ParseStatus(raw string) (model.CallStatus, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return "", nil
	}
	if st, ok := statusAliases[s]; ok {
		return st, nil
	}
	return "", apperr.NewInvalidInput("status", fmt.Sprintf("unknown status %q", raw))
}

// ParseCallType is case-insensitive; empty means normal.
func ParseCallType(raw string) (model.CallType, error) {
	s := model.CallType(strings.ToLower(strings.TrimSpace(raw)))
	if s == "" {
		return model.CallTypeNormal, nil
	}
	if !s.Valid() {
		return "", apperr.NewInvalidInput("callType", fmt.Sprintf("unknown call type %q", raw))
	}
	return s, nil
}

// ParsePagination reads page and limit. Missing values come back as 0 and are
// defaulted by the query service; present values must be positive integers.
func ParsePagination(pageRaw, limitRaw string) (page, limit int, err error) {
	if page, err = positiveInt("page", pageRaw); err != nil {
		return 0, 0, err
	}
	if limit, err = positiveInt("limit", limitRaw); err != nil {
		return 0, 0, err
	}
	return page, limit, nil
}

func positiveInt(field, raw string) (int, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, apperr.NewInvalidInput(field, fmt.Sprintf("must be a positive integer, got %q", raw))
	}
	return n, nil
}
