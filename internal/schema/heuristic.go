package schema

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Header-name synonyms per canonical field, all pre-normalized.
var fieldSynonyms = map[Field][]string{
	FieldDate:        {"date", "transaction date", "trans date", "posted date", "posting date", "value date", "booking date"},
	FieldDescription: {"description", "details", "narrative", "memo", "payee", "merchant", "name", "transaction details"},
	FieldAmount:      {"amount", "value", "transaction amount", "debit amount", "credit amount", "sum"},
	FieldCategory:    {"category", "transaction category", "classification"},
}

// Columns that mark each row as debit or credit rather than carrying a value.
var typeSynonyms = []string{"type", "transaction type", "debit credit", "dr cr", "cr dr", "credit debit"}

// Date layouts accepted across common bank exports.
var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"1/2/2006",
	"01-02-2006",
	"02 Jan 2006",
	"Jan 2, 2006",
	"2006-01-02T15:04:05",
	"01/02/2006 15:04:05",
}

// ParseDate tries the accepted layouts in order.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ParseAmount parses a monetary value, tolerating currency symbols, group
// separators and accounting-style parentheses for negatives.
func ParseAmount(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, false
	}
	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}
	s = strings.NewReplacer("$", "", "£", "", "€", "", ",", "", " ", "").Replace(s)
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	if negative {
		d = d.Neg()
	}
	return d, true
}

func normalizeHeader(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// headerScore rates how well a column name matches a canonical field.
func headerScore(f Field, column string) float64 {
	norm := normalizeHeader(column)
	if norm == "" {
		return 0
	}
	for _, syn := range fieldSynonyms[f] {
		if norm == syn {
			return 0.9
		}
	}
	for _, syn := range fieldSynonyms[f] {
		if strings.Contains(norm, syn) || strings.Contains(syn, norm) {
			return 0.7
		}
	}
	return 0
}

// columnValues extracts non-empty sample values for one column index.
func columnValues(sample [][]string, idx int) []string {
	var out []string
	for _, row := range sample {
		if idx < len(row) && strings.TrimSpace(row[idx]) != "" {
			out = append(out, row[idx])
		}
	}
	return out
}

func dateFraction(values []string) float64 {
	if len(values) == 0 {
		return 0
	}
	n := 0
	for _, v := range values {
		if _, ok := ParseDate(v); ok {
			n++
		}
	}
	return float64(n) / float64(len(values))
}

func numericFraction(values []string) float64 {
	if len(values) == 0 {
		return 0
	}
	n := 0
	for _, v := range values {
		if _, ok := ParseDate(v); ok {
			continue // dates are not amounts
		}
		if _, ok := ParseAmount(v); ok {
			n++
		}
	}
	return float64(n) / float64(len(values))
}

func avgTextLen(values []string) float64 {
	if len(values) == 0 {
		return 0
	}
	total := 0
	for _, v := range values {
		total += len(strings.TrimSpace(v))
	}
	return float64(total) / float64(len(values))
}

// freeTextScore rates a column as the description candidate: non-date,
// non-numeric text, longer is better.
func freeTextScore(values []string) float64 {
	if len(values) == 0 {
		return 0
	}
	if dateFraction(values) > 0.5 || numericFraction(values) > 0.5 {
		return 0
	}
	l := avgTextLen(values)
	switch {
	case l >= 12:
		return 0.8
	case l >= 6:
		return 0.6
	default:
		return 0.3
	}
}

// detectTypeColumn finds a debit/credit marker column, if any.
func detectTypeColumn(header []string, sample [][]string) string {
	for i, col := range header {
		norm := normalizeHeader(col)
		matched := false
		for _, syn := range typeSynonyms {
			if norm == syn {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}
		if isDebitCreditColumn(columnValues(sample, i)) {
			return col
		}
	}
	return ""
}

var debitCreditMarkers = map[string]bool{
	"debit": true, "credit": true, "dr": true, "cr": true,
	"purchase": true, "payment": true, "sale": true, "refund": true,
	"withdrawal": true, "deposit": true,
}

func isDebitCreditColumn(values []string) bool {
	if len(values) == 0 {
		return false
	}
	n := 0
	for _, v := range values {
		if debitCreditMarkers[strings.ToLower(strings.TrimSpace(v))] {
			n++
		}
	}
	return float64(n)/float64(len(values)) > 0.8
}

// inferHeuristic produces a mapping from header names and sample-data
// sniffing alone. Confidence below the threshold on any required field is
// the signal to escalate to the LLM stage.
func inferHeuristic(header []string, sample [][]string) *Mapping {
	m := &Mapping{
		Columns:    make(map[Field]string),
		Confidence: make(map[Field]float64),
	}
	m.TypeColumn = detectTypeColumn(header, sample)

	used := make(map[string]bool)
	if m.TypeColumn != "" {
		used[m.TypeColumn] = true
	}

	// Amount and date have strong data signals; claim them first so the
	// description stage never steals a numeric or date column.
	for _, f := range []Field{FieldAmount, FieldDate, FieldDescription, FieldCategory} {
		bestCol, bestScore := "", 0.0
		for i, col := range header {
			if used[col] {
				continue
			}
			score := headerScore(f, col)
			values := columnValues(sample, i)
			switch f {
			case FieldDate:
				if frac := dateFraction(values); frac > 0.8 {
					score = max(score, 0.5+0.4*frac)
				} else if frac < 0.5 {
					score = min(score, 0.4) // header said date, data disagrees
				}
			case FieldAmount:
				if frac := numericFraction(values); frac > 0.8 {
					score = max(score, 0.5+0.4*frac)
				} else if frac < 0.5 {
					score = min(score, 0.4)
				}
			case FieldDescription:
				score = max(score, freeTextScore(values))
			case FieldCategory:
				// Header name is the only reliable signal.
			}
			if score > bestScore {
				bestCol, bestScore = col, score
			}
		}
		if bestCol != "" && bestScore > 0.4 {
			m.Columns[f] = bestCol
			m.Confidence[f] = bestScore
			used[bestCol] = true
		}
	}
	return m
}
