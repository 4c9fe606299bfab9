package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dvloznov/moneyrag/internal/domain"
	"github.com/dvloznov/moneyrag/internal/schema"
	"github.com/dvloznov/moneyrag/internal/store/relational"
	"github.com/dvloznov/moneyrag/internal/store/vector"
)

// mockMapper returns a fixed mapping for the standard test header.
type mockMapper struct {
	err error
}

func (m *mockMapper) Infer(ctx context.Context, file string, header []string, sample [][]string) (*schema.Mapping, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &schema.Mapping{
		Columns: map[schema.Field]string{
			schema.FieldDate:        "Date",
			schema.FieldDescription: "Description",
			schema.FieldAmount:      "Amount",
			schema.FieldCategory:    "Category",
		},
		Confidence: map[schema.Field]float64{
			schema.FieldDate:        0.9,
			schema.FieldDescription: 0.9,
			schema.FieldAmount:      0.9,
			schema.FieldCategory:    0.9,
		},
		Sign: schema.SpendingIsNegative,
	}, nil
}

// mockEnricher marks every row enriched with a canned merchant.
type mockEnricher struct{}

func (m *mockEnricher) EnrichBatch(ctx context.Context, txs []*domain.Transaction) {
	for _, tx := range txs {
		tx.Merchant = "Merchant Inc"
		tx.EnrichmentStatus = domain.EnrichmentEnriched
	}
}

// mockEmbedder returns a fixed-dimension vector per text.
type mockEmbedder struct {
	err   error
	calls int
}

func (m *mockEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = []float32{float32(len(text)), 1, 0}
	}
	return out, nil
}

// failingVectorStore rejects upserts whose description matches a marker.
type failingVectorStore struct {
	inner  *vector.Store
	reject string
}

func (f *failingVectorStore) Upsert(id string, vec []float32, meta vector.Metadata) error {
	if f.reject != "" && strings.Contains(meta.RawDescription, f.reject) {
		return fmt.Errorf("upsert rejected for %s", meta.RawDescription)
	}
	return f.inner.Upsert(id, vec, meta)
}

func (f *failingVectorStore) Delete(id string) { f.inner.Delete(id) }

func writeCSV(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "statement.csv")
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	return path
}

func newTestPipeline(t *testing.T) (*Pipeline, *relational.Store, *vector.Store) {
	t.Helper()
	rel, err := relational.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { rel.Close() })
	vec := vector.New(3)
	p := New(&mockMapper{}, &mockEnricher{}, &mockEmbedder{}, rel, vec)
	return p, rel, vec
}

func TestIngestCSV(t *testing.T) {
	p, rel, vec := newTestPipeline(t)
	path := writeCSV(t,
		"Date,Description,Amount,Category",
		"2025-01-02,STARBUCKS #1234,-4.50,Dining",
		"2025-01-15,WHOLEFDS MKT 105,-82.10,Groceries",
	)

	report, err := p.IngestCSV(context.Background(), path)
	if err != nil {
		t.Fatalf("IngestCSV failed: %v", err)
	}

	if report.Succeeded != 2 || report.Failed != 0 || report.Skipped != 0 {
		t.Errorf("report = %s", report.Summary())
	}
	if n, _ := rel.Count(context.Background()); n != 2 {
		t.Errorf("relational count = %d, want 2", n)
	}
	if vec.Len() != 2 {
		t.Errorf("vector count = %d, want 2", vec.Len())
	}

	// Every relational row must have its embedding and vice versa.
	txs, err := rel.All(context.Background())
	if err != nil {
		t.Fatalf("All failed: %v", err)
	}
	for _, tx := range txs {
		if !vec.Has(tx.ID) {
			t.Errorf("row %s has no embedding", tx.ID)
		}
	}
}

func TestIngestCSV_ReingestSkips(t *testing.T) {
	p, rel, _ := newTestPipeline(t)
	path := writeCSV(t,
		"Date,Description,Amount,Category",
		"2025-01-02,STARBUCKS #1234,-4.50,Dining",
	)

	if _, err := p.IngestCSV(context.Background(), path); err != nil {
		t.Fatalf("first IngestCSV failed: %v", err)
	}
	report, err := p.IngestCSV(context.Background(), path)
	if err != nil {
		t.Fatalf("second IngestCSV failed: %v", err)
	}

	if report.Skipped != 1 || report.Succeeded != 0 {
		t.Errorf("re-ingest report = %s, want 1 skipped", report.Summary())
	}
	if n, _ := rel.Count(context.Background()); n != 1 {
		t.Errorf("relational count = %d after re-ingest, want 1", n)
	}
}

func TestIngestCSV_BadRowsAreReported(t *testing.T) {
	p, rel, _ := newTestPipeline(t)
	path := writeCSV(t,
		"Date,Description,Amount,Category",
		"not-a-date,STARBUCKS #1234,-4.50,Dining",
		"2025-01-03,BOOKSHOP,not-a-number,Shopping",
		"2025-01-04,VALID ROW,-10.00,Misc",
	)

	report, err := p.IngestCSV(context.Background(), path)
	if err != nil {
		t.Fatalf("IngestCSV failed: %v", err)
	}

	if report.Succeeded != 1 {
		t.Errorf("succeeded = %d, want 1", report.Succeeded)
	}
	if report.Failed != 2 {
		t.Errorf("failed = %d, want 2", report.Failed)
	}
	if n, _ := rel.Count(context.Background()); n != 1 {
		t.Errorf("relational count = %d, want 1", n)
	}
}

func TestIngestCSV_VectorFailureRollsBackRow(t *testing.T) {
	rel, err := relational.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { rel.Close() })

	inner := vector.New(3)
	vec := &failingVectorStore{inner: inner, reject: "POISON"}
	p := New(&mockMapper{}, &mockEnricher{}, &mockEmbedder{}, rel, vec)

	path := writeCSV(t,
		"Date,Description,Amount,Category",
		"2025-01-02,GOOD ROW,-4.50,Dining",
		"2025-01-03,POISON ROW,-9.99,Dining",
	)

	report, err := p.IngestCSV(context.Background(), path)
	if err != nil {
		t.Fatalf("IngestCSV failed: %v", err)
	}

	if report.Succeeded != 1 || report.Failed != 1 {
		t.Fatalf("report = %s, want 1 succeeded 1 failed", report.Summary())
	}

	// The failed row must exist in NEITHER store.
	if n, _ := rel.Count(context.Background()); n != 1 {
		t.Errorf("relational count = %d after rollback, want 1", n)
	}
	if inner.Len() != 1 {
		t.Errorf("vector count = %d, want 1", inner.Len())
	}

	// The failure names the consistency repair.
	found := false
	for _, f := range report.Failures {
		if strings.Contains(f.Reason, "consistency") || strings.Contains(f.Description, "POISON") {
			found = true
		}
	}
	if !found {
		t.Errorf("Expected a failure naming the poisoned row, got %+v", report.Failures)
	}
}

func TestIngestCSV_ReplaceVectorFailureClearsBothStores(t *testing.T) {
	rel, err := relational.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { rel.Close() })

	inner := vector.New(3)
	vec := &failingVectorStore{inner: inner}
	p := New(&mockMapper{}, &mockEnricher{}, &mockEmbedder{}, rel, vec)

	// First ingest succeeds and stores the embedding.
	first := writeCSV(t,
		"Date,Description,Amount,Category",
		"2025-01-02,STARBUCKS #1234,-4.50,Dining",
	)
	if _, err := p.IngestCSV(context.Background(), first); err != nil {
		t.Fatalf("first IngestCSV failed: %v", err)
	}
	if inner.Len() != 1 {
		t.Fatalf("vector count = %d after first ingest, want 1", inner.Len())
	}

	// Same date, description and amount (same ID) but a changed category:
	// this is a full replace, not a skip. Arm the vector store to fail it.
	vec.reject = "STARBUCKS"
	second := writeCSV(t,
		"Date,Description,Amount,Category",
		"2025-01-02,STARBUCKS #1234,-4.50,Food",
	)
	report, err := p.IngestCSV(context.Background(), second)
	if err != nil {
		t.Fatalf("second IngestCSV failed: %v", err)
	}
	if report.Failed != 1 {
		t.Fatalf("report = %s, want 1 failed", report.Summary())
	}

	// The rollback must clear BOTH stores: the old embedding may not
	// survive the deleted relational row.
	if n, _ := rel.Count(context.Background()); n != 0 {
		t.Errorf("relational count = %d after rollback, want 0", n)
	}
	if inner.Len() != 0 {
		t.Errorf("vector count = %d after rollback, want 0 (stale embedding retained)", inner.Len())
	}
}

func TestIngestCSV_EmbedderFailureRollsBack(t *testing.T) {
	rel, err := relational.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { rel.Close() })

	embedder := &mockEmbedder{err: errors.New("quota exhausted")}
	p := New(&mockMapper{}, &mockEnricher{}, embedder, rel, vector.New(3))

	path := writeCSV(t,
		"Date,Description,Amount,Category",
		"2025-01-02,STARBUCKS #1234,-4.50,Dining",
	)

	report, err := p.IngestCSV(context.Background(), path)
	if err != nil {
		t.Fatalf("IngestCSV failed: %v", err)
	}
	if report.Failed != 1 || report.Succeeded != 0 {
		t.Errorf("report = %s, want 1 failed", report.Summary())
	}
	if n, _ := rel.Count(context.Background()); n != 0 {
		t.Errorf("relational count = %d, want 0 (rolled back)", n)
	}
}

func TestIngestCSV_CancellationReturnsPartialReport(t *testing.T) {
	p, rel, _ := newTestPipeline(t)
	path := writeCSV(t,
		"Date,Description,Amount,Category",
		"2025-01-02,STARBUCKS #1234,-4.50,Dining",
	)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := p.IngestCSV(ctx, path)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
	if report == nil {
		t.Fatal("Expected a partial report alongside the error")
	}
	if n, _ := rel.Count(context.Background()); n != 0 {
		t.Errorf("relational count = %d, want 0", n)
	}
}

func TestIngestCSV_MapperFailureAbortsFile(t *testing.T) {
	rel, err := relational.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { rel.Close() })

	mapper := &mockMapper{err: &domain.SchemaInferenceError{File: "statement.csv", Missing: []string{"amount"}}}
	p := New(mapper, &mockEnricher{}, &mockEmbedder{}, rel, vector.New(3))

	path := writeCSV(t,
		"Date,Description",
		"2025-01-02,STARBUCKS #1234",
	)

	_, err = p.IngestCSV(context.Background(), path)
	var inferErr *domain.SchemaInferenceError
	if !errors.As(err, &inferErr) {
		t.Fatalf("Expected SchemaInferenceError, got %v", err)
	}
}
