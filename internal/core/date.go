package core

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const (
	dayLayout   = "2006-01-02"
	monthLayout = "2006-01"
)

// Date is a civil calendar day, stored as UTC midnight.
type Date struct {
	time.Time
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// NormalizeDate is the one place a timestamp becomes a calendar day. The day
// is read from the wall clock in t's own location, so 23:00 in Tokyo stays on
// the same day instead of drifting through UTC.
func NormalizeDate(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, int(m), d)
}

// ParseDate accepts "YYYY-MM-DD" or any RFC3339 timestamp. For timestamps the
// written calendar day is kept as is; the offset is never applied first.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if len(s) < len(dayLayout) {
		return Date{}, ErrInvalidDate
	}
	if len(s) > len(dayLayout) {
		if _, err := time.Parse(time.RFC3339Nano, s); err != nil {
			return Date{}, ErrInvalidDate
		}
	}
	t, err := time.Parse(dayLayout, s[:len(dayLayout)])
	if err != nil {
		return Date{}, ErrInvalidDate
	}
	return NormalizeDate(t), nil
}

// DayKey returns the canonical "YYYY-MM-DD" bucket for a timestamp.
func DayKey(t time.Time) string {
	return NormalizeDate(t).Key()
}

// Key returns the date as "YYYY-MM-DD".
func (d Date) Key() string {
	return d.Time.Format(dayLayout)
}

func (d Date) String() string { return d.Key() }

// SameDay compares two dates through their canonical keys.
func (d Date) SameDay(other Date) bool {
	return d.Key() == other.Key()
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

func (d Date) Day() int { return d.Time.Day() }

func (d Date) Month() int { return int(d.Time.Month()) }

func (d Date) Year() int { return d.Time.Year() }

// YearMonth returns the month the date falls in.
func (d Date) YearMonth() YearMonth {
	return YearMonth{Year: d.Year(), Month: time.Month(d.Month())}
}

func (d Date) AddDays(n int) Date {
	return NormalizeDate(d.Time.AddDate(0, 0, n))
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte(`""`), nil
	}
	return json.Marshal(d.Key())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return ErrInvalidDate
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// YearMonth identifies a calendar month.
type YearMonth struct {
	Year  int
	Month time.Month
}

func ParseYearMonth(s string) (YearMonth, error) {
	t, err := time.Parse(monthLayout, strings.TrimSpace(s))
	if err != nil {
		return YearMonth{}, ErrInvalidMonth
	}
	return YearMonth{Year: t.Year(), Month: t.Month()}, nil
}

// CurrentYearMonth returns the month of now in the local time zone.
func CurrentYearMonth(now time.Time) YearMonth {
	return NormalizeDate(now).YearMonth()
}

func (ym YearMonth) String() string {
	return fmt.Sprintf("%04d-%02d", ym.Year, int(ym.Month))
}

func (ym YearMonth) IsZero() bool { return ym.Year == 0 && ym.Month == 0 }

func (ym YearMonth) Validate() error {
	if ym.Year < 1 || ym.Year > 9999 || ym.Month < time.January || ym.Month > time.December {
		return ErrInvalidMonth
	}
	return nil
}

// Contains reports whether d falls inside the month.
func (ym YearMonth) Contains(d Date) bool {
	return d.YearMonth() == ym
}

func (ym YearMonth) First() Date {
	return NewDate(ym.Year, int(ym.Month), 1)
}

// Days returns the number of days in the month.
func (ym YearMonth) Days() int {
	return ym.Next().First().AddDays(-1).Day()
}

func (ym YearMonth) Next() YearMonth {
	return NormalizeDate(ym.First().Time.AddDate(0, 1, 0)).YearMonth()
}

func (ym YearMonth) Prev() YearMonth {
	return NormalizeDate(ym.First().Time.AddDate(0, -1, 0)).YearMonth()
}

func (ym YearMonth) MarshalJSON() ([]byte, error) {
	if ym.IsZero() {
		return []byte(`""`), nil
	}
	return json.Marshal(ym.String())
}

func (ym *YearMonth) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return ErrInvalidMonth
	}
	if s == "" {
		*ym = YearMonth{}
		return nil
	}
	parsed, err := ParseYearMonth(s)
	if err != nil {
		return err
	}
	*ym = parsed
	return nil
}
