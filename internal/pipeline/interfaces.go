package pipeline

import (
	"context"

	"github.com/dvloznov/moneyrag/internal/domain"
	"github.com/dvloznov/moneyrag/internal/schema"
	"github.com/dvloznov/moneyrag/internal/store/vector"
)

// Mapper infers the column mapping for one CSV file.
type Mapper interface {
	Infer(ctx context.Context, file string, header []string, sample [][]string) (*schema.Mapping, error)
}

// Enricher resolves merchants for a batch in place, best-effort.
type Enricher interface {
	EnrichBatch(ctx context.Context, txs []*domain.Transaction)
}

// Embedder turns texts into fixed-length vectors.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// RelationalStore is the subset of the SQLite store the writer needs.
type RelationalStore interface {
	Get(ctx context.Context, id string) (*domain.Transaction, error)
	Upsert(ctx context.Context, tx *domain.Transaction) error
	Delete(ctx context.Context, id string) error
}

// VectorStore is the subset of the vector collection the writer needs.
type VectorStore interface {
	Upsert(id string, vec []float32, meta vector.Metadata) error
	Delete(id string)
}
