package multifactor

import (
	"math"
	"sort"
)

// crossIndex holds the derived lookup structures built once after the factor
// table exists: security -> table position, date -> calendar position, and a
// descending-sorted cross-section per calendar date. All three are read-only
// after construction.
type crossIndex struct {
	secIndex  map[string]int
	dateIndex map[string]int
	cross     [][]CrossItem
}

// buildIndex constructs the position maps and per-date cross-sections from
// the combined factor table. factors is indexed [security][date] and matches
// universe order. Securities with NaN at a date are excluded from that date's
// cross-section; a date where every security is NaN yields an empty section.
func buildIndex(calendar []string, securities []string, factors [][]float64) *crossIndex {
	ix := &crossIndex{
		secIndex:  make(map[string]int, len(securities)),
		dateIndex: make(map[string]int, len(calendar)),
		cross:     make([][]CrossItem, len(calendar)),
	}

	for i, isin := range securities {
		ix.secIndex[isin] = i
	}
	for i, d := range calendar {
		ix.dateIndex[d] = i
	}

	for t := range calendar {
		section := make([]CrossItem, 0, len(securities))
		for s, isin := range securities {
			v := factors[s][t]
			if math.IsNaN(v) {
				continue
			}
			section = append(section, CrossItem{ISIN: isin, Value: v})
		}
		// Descending by value; ties keep universe order (stable sort over a
		// slice already in universe order).
		sort.SliceStable(section, func(i, j int) bool {
			return section[i].Value > section[j].Value
		})
		ix.cross[t] = section
	}

	return ix
}
