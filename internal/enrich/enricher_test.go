package enrich

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/moneyrag/internal/domain"
)

// mockLookup counts calls per query so cache behavior is observable.
type mockLookup struct {
	mu      sync.Mutex
	calls   map[string]int
	results map[string]string
	err     error
}

func newMockLookup(results map[string]string) *mockLookup {
	return &mockLookup{calls: make(map[string]int), results: results}
}

func (m *mockLookup) Search(ctx context.Context, query string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[query]++
	if m.err != nil {
		return "", m.err
	}
	r, ok := m.results[query]
	if !ok {
		return "", errors.New("no results")
	}
	return r, nil
}

func (m *mockLookup) totalCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		n += c
	}
	return n
}

func tx(desc string) *domain.Transaction {
	return &domain.Transaction{
		RawDescription:   desc,
		Amount:           decimal.NewFromInt(-10),
		EnrichmentStatus: domain.EnrichmentPending,
	}
}

func TestEnrichBatch_SharesLookupAcrossDuplicates(t *testing.T) {
	lookup := newMockLookup(map[string]string{
		"STARBUCKS": "Starbucks",
	})
	e := New(lookup, 3, time.Second)

	// Three rows, same merchant after normalization: one lookup.
	txs := []*domain.Transaction{
		tx("STARBUCKS #1234"),
		tx("STARBUCKS #5678"),
		tx("POS STARBUCKS 99"),
	}

	e.EnrichBatch(context.Background(), txs)

	if got := lookup.totalCalls(); got != 1 {
		t.Errorf("Expected 1 lookup for 3 duplicate descriptions, got %d", got)
	}
	for i, transaction := range txs {
		if transaction.EnrichmentStatus != domain.EnrichmentEnriched {
			t.Errorf("tx %d: status = %s, want ENRICHED", i, transaction.EnrichmentStatus)
		}
		if transaction.Merchant != "Starbucks" {
			t.Errorf("tx %d: merchant = %q, want %q", i, transaction.Merchant, "Starbucks")
		}
	}
	if e.CacheSize() != 1 {
		t.Errorf("CacheSize = %d, want 1", e.CacheSize())
	}
}

func TestEnrichBatch_CachePersistsAcrossBatches(t *testing.T) {
	lookup := newMockLookup(map[string]string{
		"STARBUCKS": "Starbucks",
	})
	e := New(lookup, 2, time.Second)

	e.EnrichBatch(context.Background(), []*domain.Transaction{tx("STARBUCKS #1")})
	e.EnrichBatch(context.Background(), []*domain.Transaction{tx("STARBUCKS #2")})

	if got := lookup.totalCalls(); got != 1 {
		t.Errorf("Expected the second batch to hit the cache, got %d lookups", got)
	}
}

func TestEnrichBatch_FailureMarksRowFailed(t *testing.T) {
	lookup := newMockLookup(nil)
	lookup.err = errors.New("network down")
	e := New(lookup, 2, time.Second)

	txs := []*domain.Transaction{tx("UNKNOWN VENDOR LLC")}
	e.EnrichBatch(context.Background(), txs)

	if txs[0].EnrichmentStatus != domain.EnrichmentFailed {
		t.Errorf("status = %s, want FAILED", txs[0].EnrichmentStatus)
	}
	if txs[0].Merchant != "" {
		t.Errorf("merchant = %q, want empty on failure", txs[0].Merchant)
	}
}

func TestEnrichBatch_EmptyNormalizedDescription(t *testing.T) {
	lookup := newMockLookup(nil)
	e := New(lookup, 2, time.Second)

	// All digits and noise: normalizes to nothing, no lookup attempted.
	txs := []*domain.Transaction{tx("POS 123456 REF 789")}
	e.EnrichBatch(context.Background(), txs)

	if txs[0].EnrichmentStatus != domain.EnrichmentFailed {
		t.Errorf("status = %s, want FAILED", txs[0].EnrichmentStatus)
	}
	if got := lookup.totalCalls(); got != 0 {
		t.Errorf("Expected no lookups for empty query, got %d", got)
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"STARBUCKS #1234", "STARBUCKS"},
		{"POS STARBUCKS 99887766", "STARBUCKS"},
		{"SQ *BLUE BOTTLE COFFEE", "BLUE BOTTLE COFFEE"},
		{"AMZN Mktp US*1R2T4Y12", "AMZN MKTP US"},
		{"TST* JOE'S DINER", "JOE'S DINER"},
		{"ACH WEB PAYMENT 0042", ""},
		{"", ""},
	}

	for _, tt := range tests {
		if got := Normalize(tt.input); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
