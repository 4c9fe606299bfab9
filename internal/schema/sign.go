package schema

import "strings"

// Outflow markers for debit/credit type columns.
var debitMarkers = map[string]bool{
	"debit": true, "dr": true, "purchase": true, "sale": true, "withdrawal": true,
}

// IsDebitMarker reports whether a type-column value marks an outflow row.
func IsDebitMarker(v string) bool {
	return debitMarkers[strings.ToLower(strings.TrimSpace(v))]
}

// inferSignFromValues applies the value-distribution heuristic: statements
// are mostly spending, so the majority sign shows how spending is encoded.
func inferSignFromValues(sample [][]string, amountIdx int) SignConvention {
	if amountIdx < 0 {
		return SpendingIsNegative
	}
	pos, neg := 0, 0
	for _, row := range sample {
		if amountIdx >= len(row) {
			continue
		}
		d, ok := ParseAmount(row[amountIdx])
		if !ok || d.IsZero() {
			continue
		}
		if d.IsPositive() {
			pos++
		} else {
			neg++
		}
	}
	if pos > neg {
		return SpendingIsPositive
	}
	return SpendingIsNegative
}
