// Package multifactor implements multi-factor synthesis and cross-sectional
// analytics: per-security input factor series are combined into one composite
// factor per security, aligned onto a shared reference calendar, indexed into
// per-date cross-sections, and scored with IC / ICIR quality diagnostics.
//
// All time series use math.NaN() as the missing-value marker. A missing value
// is never zero and is never filled; downstream consumers must treat NaN as
// "no observation on this date".
package multifactor

import (
	"math"
	"sort"
)

// Series is a date-indexed value series. Dates are "YYYY-MM-DD" strings in
// strictly ascending order; Values is positionally aligned to Dates.
//
// A raw (input) series carries only its native observation dates. An aligned
// series produced by the engine shares the reference calendar as its Dates and
// carries NaN at calendar positions the security never observed.
type Series struct {
	Dates  []string  `json:"dates"`
	Values []float64 `json:"values"`
}

// Len returns the number of points in the series.
func (s Series) Len() int {
	return len(s.Dates)
}

// At returns the value at the given date and whether the date exists in the
// series. A date that exists but holds NaN is reported as present - missing
// values are a property of the value, not of the index.
func (s Series) At(date string) (float64, bool) {
	i := sort.SearchStrings(s.Dates, date)
	if i < len(s.Dates) && s.Dates[i] == date {
		return s.Values[i], true
	}
	return math.NaN(), false
}

// CrossItem is one (security, factor value) entry of a dated cross-section.
type CrossItem struct {
	ISIN  string  `json:"isin"`
	Value float64 `json:"value"`
}

// InputFactor is one raw input factor: a name plus one native series per
// security, keyed by ISIN. Securities absent from the map simply have no
// observations for this factor.
type InputFactor struct {
	Name   string            `json:"name"`
	Series map[string]Series `json:"series"`
}

// Query bounds the date range used to derive the reference calendar and to
// fetch price history. Both bounds are inclusive "YYYY-MM-DD" strings; an
// empty bound means unbounded on that side.
type Query struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Contains reports whether the date falls inside the query range.
func (q Query) Contains(date string) bool {
	if q.Start != "" && date < q.Start {
		return false
	}
	if q.End != "" && date > q.End {
		return false
	}
	return true
}
