package enrich

import (
	"strings"
	"unicode"
)

// Tokens that carry no merchant identity: processor prefixes, reference
// markers, debit/credit noise.
var noiseTokens = map[string]bool{
	"pos": true, "tst": true, "sq": true, "sp": true, "pp": true,
	"ref": true, "txn": true, "trans": true, "payment": true,
	"debit": true, "credit": true, "card": true, "purchase": true,
	"recurring": true, "pending": true, "ach": true, "web": true,
}

// Normalize reduces a raw statement description to a lookup query: strips
// transaction codes, reference numbers and trailing digit runs, collapses
// whitespace, uppercases.
func Normalize(raw string) string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '&' || r == '\'' {
			return r
		}
		return ' '
	}, raw)

	var kept []string
	for _, tok := range strings.Fields(cleaned) {
		lower := strings.ToLower(tok)
		if noiseTokens[lower] {
			continue
		}
		if mostlyDigits(tok) {
			continue
		}
		kept = append(kept, strings.ToUpper(tok))
	}
	return strings.Join(kept, " ")
}

// mostlyDigits reports reference numbers, card suffixes, store numbers.
func mostlyDigits(tok string) bool {
	digits := 0
	for _, r := range tok {
		if unicode.IsDigit(r) {
			digits++
		}
	}
	return digits*2 > len(tok)
}
