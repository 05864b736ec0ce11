package expr

import (
	"fmt"
	"time"
)

// Period is a calendar unit (second to year) or a fixed duration.
type Period struct {
	Unit     string
	Duration time.Duration
}

var calendarUnits = map[string]bool{
	"second": true, "minute": true, "hour": true, "day": true,
	"week": true, "month": true, "year": true,
}

// ParsePeriod reads a calendar unit name or a Go duration such as "15m".
func ParsePeriod(s string) (Period, error) {
	if calendarUnits[s] {
		return Period{Unit: s}, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return Period{}, fmt.Errorf("invalid period %q", s)
	}
	if d <= 0 {
		return Period{}, fmt.Errorf("period must be positive, got %q", s)
	}
	return Period{Duration: d}, nil
}

// MustPeriod is ParsePeriod for constant periods.
func MustPeriod(s string) Period {
	p, err := ParsePeriod(s)
	if err != nil {
		panic(err)
	}
	return p
}

func (p Period) String() string {
	if p.Unit != "" {
		return p.Unit
	}
	return p.Duration.String()
}

// Floor rounds t down to the start of its period in loc.
func (p Period) Floor(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	y, m, d := t.Date()
	switch p.Unit {
	case "second":
		return t.Truncate(time.Second)
	case "minute":
		return time.Date(y, m, d, t.Hour(), t.Minute(), 0, 0, loc)
	case "hour":
		return time.Date(y, m, d, t.Hour(), 0, 0, 0, loc)
	case "day":
		return time.Date(y, m, d, 0, 0, 0, 0, loc)
	case "week":
		offset := (int(t.Weekday()) + 6) % 7 // weeks start on Monday
		return time.Date(y, m, d-offset, 0, 0, 0, 0, loc)
	case "month":
		return time.Date(y, m, 1, 0, 0, 0, 0, loc)
	case "year":
		return time.Date(y, time.January, 1, 0, 0, 0, 0, loc)
	}
	if p.Duration > 24*time.Hour {
		return t.Truncate(p.Duration)
	}
	midnight := time.Date(y, m, d, 0, 0, 0, 0, loc)
	since := t.Sub(midnight)
	return midnight.Add(since - since%p.Duration)
}

// Shift moves t forward by one period.
func (p Period) Shift(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	switch p.Unit {
	case "second":
		return t.Add(time.Second)
	case "minute":
		return t.Add(time.Minute)
	case "hour":
		return t.Add(time.Hour)
	case "day":
		return t.AddDate(0, 0, 1)
	case "week":
		return t.AddDate(0, 0, 7)
	case "month":
		return t.AddDate(0, 1, 0)
	case "year":
		return t.AddDate(1, 0, 0)
	}
	return t.Add(p.Duration)
}
