package multifactor

import (
	"math"
	"sort"
)

// buildCalendar derives the reference calendar from the reference security's
// native dates, restricted to the query range. The result is strictly
// increasing with duplicates removed.
func buildCalendar(refDates []string, q Query) []string {
	seen := make(map[string]bool, len(refDates))
	calendar := make([]string, 0, len(refDates))
	for _, d := range refDates {
		if !q.Contains(d) || seen[d] {
			continue
		}
		seen[d] = true
		calendar = append(calendar, d)
	}
	sort.Strings(calendar)
	return calendar
}

// alignToCalendar re-expresses a native series onto calendar positions.
// Calendar dates the series never observed yield NaN. A series with no
// overlap at all produces an entirely-NaN slot; that is a degenerate result,
// not an error.
func alignToCalendar(calendar []string, s Series) []float64 {
	out := make([]float64, len(calendar))

	idx := make(map[string]int, len(s.Dates))
	for i, d := range s.Dates {
		idx[d] = i
	}

	for i, d := range calendar {
		if j, ok := idx[d]; ok {
			out[i] = s.Values[j]
		} else {
			out[i] = math.NaN()
		}
	}

	return out
}

// alignInputs aligns every input factor for every security onto the calendar.
// The result is indexed [factor][security][date]; the security axis preserves
// universe order.
func alignInputs(calendar []string, securities []string, inputs []InputFactor) [][][]float64 {
	aligned := make([][][]float64, len(inputs))
	for f, input := range inputs {
		table := make([][]float64, len(securities))
		for s, isin := range securities {
			table[s] = alignToCalendar(calendar, input.Series[isin])
		}
		aligned[f] = table
	}
	return aligned
}
