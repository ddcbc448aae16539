package dates

import "time"

// monthsByAlias maps lowercased month names and their common abbreviations
// to month numbers.
var monthsByAlias = map[string]time.Month{}

func init() {
	names := [][]string{
		{"january", "jan"},
		{"february", "feb"},
		{"march", "mar"},
		{"april", "apr"},
		{"may"},
		{"june", "jun"},
		{"july", "jul"},
		{"august", "aug"},
		{"september", "sept", "sep"},
		{"october", "oct"},
		{"november", "nov"},
		{"december", "dec"},
	}
	for m, aliases := range names {
		for _, alias := range aliases {
			monthsByAlias[alias] = time.Month(m + 1)
		}
	}
}
