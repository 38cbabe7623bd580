package database

import (
	"database/sql"
	"fmt"
	"time"
)

// TimeLayout is fixed width so text timestamps sort chronologically.
const TimeLayout = "2006-01-02T15:04:05.000000000Z"

var fallbackLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05",
}

// ScanTime returns a scanner that accepts driver time values as well as
// timestamps stored as text.
func ScanTime(dst *time.Time) sql.Scanner {
	return timeScanner{dst: dst}
}

// ScanNullTime is ScanTime for nullable columns; NULL leaves *dst nil.
func ScanNullTime(dst **time.Time) sql.Scanner {
	return nullTimeScanner{dst: dst}
}

type timeScanner struct{ dst *time.Time }

func (s timeScanner) Scan(src any) error {
	if src == nil {
		return fmt.Errorf("scan time: unexpected NULL")
	}
	t, err := parseTime(src)
	if err != nil {
		return err
	}
	*s.dst = t
	return nil
}

type nullTimeScanner struct{ dst **time.Time }

func (s nullTimeScanner) Scan(src any) error {
	if src == nil {
		*s.dst = nil
		return nil
	}
	t, err := parseTime(src)
	if err != nil {
		return err
	}
	*s.dst = &t
	return nil
}

func parseTime(src any) (time.Time, error) {
	switch v := src.(type) {
	case time.Time:
		return v.UTC(), nil
	case string:
		return parseTimeText(v)
	case []byte:
		return parseTimeText(string(v))
	default:
		return time.Time{}, fmt.Errorf("scan time: unsupported type %T", src)
	}
}

func parseTimeText(s string) (time.Time, error) {
	if t, err := time.Parse(TimeLayout, s); err == nil {
		return t, nil
	}
	for _, layout := range fallbackLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("scan time: cannot parse %q", s)
}
