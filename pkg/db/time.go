package db

import (
	"database/sql"
	"strings"
	"time"
)

// TimeLayout is the stored timestamp form. UTC, lexicographically ordered.
const TimeLayout = "2006-01-02 15:04:05"

const DateLayout = "2006-01-02"

func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

func FormatDate(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// ParseTime accepts the stored layout plus the RFC3339 and date-only forms
// found in rows written by older builds.
func ParseTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	var lastErr error
	for _, layout := range []string{TimeLayout, time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02 15:04:05.999999", DateLayout} {
		t, err := time.Parse(layout, raw)
		if err == nil {
			return t.UTC(), nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

// ParseNullTime maps NULL or empty to nil.
func ParseNullTime(raw sql.NullString) (*time.Time, error) {
	if !raw.Valid || strings.TrimSpace(raw.String) == "" {
		return nil, nil
	}
	t, err := ParseTime(raw.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
