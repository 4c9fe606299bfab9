package schema

import (
	"testing"
	"time"
)

func TestParseDate(t *testing.T) {
	tests := []struct {
		input string
		want  string
		ok    bool
	}{
		{"2025-01-02", "2025-01-02", true},
		{"01/02/2025", "2025-01-02", true},
		{"1/2/2025", "2025-01-02", true},
		{"02 Jan 2025", "2025-01-02", true},
		{"Jan 2, 2025", "2025-01-02", true},
		{"2025-01-02T14:30:00", "2025-01-02", true},
		{"  2025-01-02  ", "2025-01-02", true},
		{"", "", false},
		{"not a date", "", false},
		{"42.50", "", false},
	}

	for _, tt := range tests {
		got, ok := ParseDate(tt.input)
		if ok != tt.ok {
			t.Errorf("ParseDate(%q) ok = %v, want %v", tt.input, ok, tt.ok)
			continue
		}
		if ok && got.Format(time.DateOnly) != tt.want {
			t.Errorf("ParseDate(%q) = %s, want %s", tt.input, got.Format(time.DateOnly), tt.want)
		}
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		input string
		want  string
		ok    bool
	}{
		{"42.50", "42.5", true},
		{"-42.50", "-42.5", true},
		{"$1,234.56", "1234.56", true},
		{"£99.99", "99.99", true},
		{"€10", "10", true},
		{"(25.00)", "-25", true},
		{" 3.14 ", "3.14", true},
		{"", "", false},
		{"abc", "", false},
		{"12.34.56", "", false},
	}

	for _, tt := range tests {
		got, ok := ParseAmount(tt.input)
		if ok != tt.ok {
			t.Errorf("ParseAmount(%q) ok = %v, want %v", tt.input, ok, tt.ok)
			continue
		}
		if ok && got.String() != tt.want {
			t.Errorf("ParseAmount(%q) = %s, want %s", tt.input, got.String(), tt.want)
		}
	}
}

func TestNormalizeHeader(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Transaction Date", "transaction date"},
		{"  AMOUNT  ", "amount"},
		{"Debit/Credit", "debit credit"},
		{"posted_date", "posted date"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := normalizeHeader(tt.input); got != tt.want {
			t.Errorf("normalizeHeader(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestInferSignFromValues(t *testing.T) {
	tests := []struct {
		name   string
		sample [][]string
		want   SignConvention
	}{
		{
			name:   "mostly negative means spending encoded negative",
			sample: [][]string{{"-4.50"}, {"-23.99"}, {"2500.00"}},
			want:   SpendingIsNegative,
		},
		{
			name:   "mostly positive means spending encoded positive",
			sample: [][]string{{"4.50"}, {"23.99"}, {"-2500.00"}},
			want:   SpendingIsPositive,
		},
		{
			name:   "empty sample defaults to canonical",
			sample: nil,
			want:   SpendingIsNegative,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := inferSignFromValues(tt.sample, 0); got != tt.want {
				t.Errorf("inferSignFromValues = %q, want %q", got, tt.want)
			}
		})
	}
}
