// Package season evaluates the calendar/clock predicates that gate seasonal
// video selection. A Conditions value is a product of optional predicates;
// all present predicates must match for the conditions to hold.
package season

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// IntSet is an integer membership set that unmarshals from either a scalar
// or an array. A nil set is "unconstrained" and matches everything.
type IntSet []int

// UnmarshalJSON accepts `5` or `[0, 6]`.
func (s *IntSet) UnmarshalJSON(data []byte) error {
	var single int
	if err := json.Unmarshal(data, &single); err == nil {
		*s = IntSet{single}
		return nil
	}
	var many []int
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("expected integer or integer array: %w", err)
	}
	*s = IntSet(many)
	return nil
}

// MarshalJSON emits a scalar for single-element sets to round-trip the
// common case unchanged.
func (s IntSet) MarshalJSON() ([]byte, error) {
	if len(s) == 1 {
		return json.Marshal(s[0])
	}
	return json.Marshal([]int(s))
}

// Contains reports membership. An empty set matches any value.
func (s IntSet) Contains(v int) bool {
	if len(s) == 0 {
		return true
	}
	for _, n := range s {
		if n == v {
			return true
		}
	}
	return false
}

// MinuteParity values.
const (
	ParityEven = "even"
	ParityOdd  = "odd"
)

// Conditions is a conjunction of optional time predicates. Zero-value fields
// are unconstrained. Evaluation never panics; malformed values fail the match.
type Conditions struct {
	// DayOfWeek uses 0=Sunday .. 6=Saturday.
	DayOfWeek IntSet `mapstructure:"day_of_week" json:"dayOfWeek,omitempty"`
	Hour      IntSet `mapstructure:"hour" json:"hour,omitempty"`
	Minute    IntSet `mapstructure:"minute" json:"minute,omitempty"`
	// DayOfMonth is 1-based.
	DayOfMonth IntSet `mapstructure:"day_of_month" json:"dayOfMonth,omitempty"`
	// Month uses 1=January .. 12=December.
	Month IntSet `mapstructure:"month" json:"month,omitempty"`
	Year  IntSet `mapstructure:"year" json:"year,omitempty"`

	// HourRange is [start, end) on a 24h clock. When start > end the range
	// wraps midnight: match iff hour >= start || hour < end.
	HourRange []int `mapstructure:"hour_range" json:"hourRange,omitempty"`

	// MinuteParity is "even" or "odd".
	MinuteParity string `mapstructure:"minute_parity" json:"minuteParity,omitempty"`

	// DateRange is two ISO dates [from, to], inclusive of both endpoints.
	DateRange []string `mapstructure:"date_range" json:"dateRange,omitempty"`
}

// IsZero reports whether no predicate is set.
func (c Conditions) IsZero() bool {
	return len(c.DayOfWeek) == 0 && len(c.Hour) == 0 && len(c.Minute) == 0 &&
		len(c.DayOfMonth) == 0 && len(c.Month) == 0 && len(c.Year) == 0 &&
		len(c.HourRange) == 0 && c.MinuteParity == "" && len(c.DateRange) == 0
}

// Matches evaluates every present predicate against t. Predicates are ANDed;
// malformed predicate values make the whole evaluation false.
func (c Conditions) Matches(t time.Time) bool {
	if !c.DayOfWeek.Contains(int(t.Weekday())) {
		return false
	}
	if !c.Hour.Contains(t.Hour()) {
		return false
	}
	if !c.Minute.Contains(t.Minute()) {
		return false
	}
	if !c.DayOfMonth.Contains(t.Day()) {
		return false
	}
	if !c.Month.Contains(int(t.Month())) {
		return false
	}
	if !c.Year.Contains(t.Year()) {
		return false
	}
	if len(c.HourRange) > 0 && !matchHourRange(c.HourRange, t.Hour()) {
		return false
	}
	if c.MinuteParity != "" && !matchParity(c.MinuteParity, t.Minute()) {
		return false
	}
	if len(c.DateRange) > 0 && !matchDateRange(c.DateRange, t) {
		return false
	}
	return true
}

func matchHourRange(r []int, hour int) bool {
	if len(r) != 2 {
		return false
	}
	start, end := r[0], r[1]
	if start < 0 || start > 23 || end < 0 || end > 24 {
		return false
	}
	if start > end {
		// Overnight window, e.g. [22,6] covers 22:00-05:59.
		return hour >= start || hour < end
	}
	return hour >= start && hour < end
}

func matchParity(parity string, minute int) bool {
	switch strings.ToLower(parity) {
	case ParityEven:
		return minute%2 == 0
	case ParityOdd:
		return minute%2 == 1
	default:
		return false
	}
}

func matchDateRange(r []string, t time.Time) bool {
	if len(r) != 2 {
		return false
	}
	from, err := time.ParseInLocation("2006-01-02", r[0], t.Location())
	if err != nil {
		return false
	}
	to, err := time.ParseInLocation("2006-01-02", r[1], t.Location())
	if err != nil {
		return false
	}
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return !day.Before(from) && !day.After(to)
}
