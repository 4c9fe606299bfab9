package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/dvloznov/moneyrag/internal/domain"
	"github.com/dvloznov/moneyrag/internal/logger"
	"github.com/dvloznov/moneyrag/internal/store/vector"
)

// DefaultCurrency is used when a CSV carries no currency column, which is
// the norm for US bank exports.
const DefaultCurrency = "USD"

// Pipeline ingests one CSV file end to end: schema inference, canonical
// record construction, merchant enrichment, dual-store write.
type Pipeline struct {
	mapper   Mapper
	enricher Enricher
	embedder Embedder
	rel      RelationalStore
	vec      VectorStore

	currency     string
	embedTimeout time.Duration
}

// New wires a pipeline from its collaborators.
func New(mapper Mapper, enricher Enricher, embedder Embedder, rel RelationalStore, vec VectorStore) *Pipeline {
	return &Pipeline{
		mapper:       mapper,
		enricher:     enricher,
		embedder:     embedder,
		rel:          rel,
		vec:          vec,
		currency:     DefaultCurrency,
		embedTimeout: 30 * time.Second,
	}
}

// IngestCSV processes a single CSV file and reports per-row outcomes.
// Row-level failures land in the report; the returned error is non-nil only
// for whole-file conditions (schema inference failure, store unavailable).
// The partial report is returned alongside batch-level errors.
func (p *Pipeline) IngestCSV(ctx context.Context, path string) (*domain.BatchReport, error) {
	log := logger.FromContext(ctx)
	sourceFile := filepath.Base(path)

	report := &domain.BatchReport{
		BatchID:    uuid.NewString(),
		SourceFile: sourceFile,
	}

	// 1. Read the file.
	header, rows, err := readCSV(path)
	if err != nil {
		return report, err
	}

	// 2. Infer the column mapping from header + sample.
	mapping, err := p.mapper.Infer(ctx, path, header, sampleRows(rows))
	if err != nil {
		return report, err
	}

	// 3. Build canonical records; the sign convention is fixed here and
	// never altered downstream.
	txs := buildTransactions(mapping, header, rows, sourceFile, report.BatchID, p.currency, report)

	log.Info().
		Str("batch_id", report.BatchID).
		Str("file", sourceFile).
		Int("rows", len(rows)).
		Int("parsed", len(txs)).
		Msg("starting enrichment")

	// 4. Enrich merchants, bounded concurrency, best-effort.
	p.enricher.EnrichBatch(ctx, txs)

	// 5. Write each record to both stores.
	if err := p.writeAll(ctx, txs, report); err != nil {
		return report, err
	}

	log.Info().
		Str("batch_id", report.BatchID).
		Int("succeeded", report.Succeeded).
		Int("skipped", report.Skipped).
		Int("failed", report.Failed).
		Msg("ingestion batch finished")
	return report, nil
}

// writeAll performs the dual-store write per record: relational upsert
// first, then embedding + vector upsert under the same ID. A vector
// failure rolls the relational write back (compensating delete) so that a
// row exists relationally iff its embedding exists. Store-unavailable
// conditions abort the batch; everything else is a row failure.
func (p *Pipeline) writeAll(ctx context.Context, txs []*domain.Transaction, report *domain.BatchReport) error {
	for _, tx := range txs {
		// Cooperative cancellation between rows; rows already written
		// remain valid thanks to idempotent upserts.
		if err := ctx.Err(); err != nil {
			return err
		}

		existing, err := p.rel.Get(ctx, tx.ID)
		if err != nil {
			return err
		}
		if existing != nil && existing.Same(tx) {
			report.Skipped++
			continue
		}

		if err := p.rel.Upsert(ctx, tx); err != nil {
			var unavailable *domain.StoreUnavailableError
			if errors.As(err, &unavailable) {
				return err
			}
			report.AddFailure(tx.ID, tx.RawDescription, err.Error())
			continue
		}

		if err := p.writeVector(ctx, tx); err != nil {
			// Compensating action: undo the relational write and drop any
			// stale embedding left from a previous version of this row, so
			// the ID exists in neither store.
			if delErr := p.rel.Delete(ctx, tx.ID); delErr != nil {
				return delErr
			}
			p.vec.Delete(tx.ID)
			consistency := &domain.ConsistencyError{ID: tx.ID, Err: err}
			report.AddFailure(tx.ID, tx.RawDescription, consistency.Error())
			continue
		}

		report.Succeeded++
	}
	return nil
}

func (p *Pipeline) writeVector(ctx context.Context, tx *domain.Transaction) error {
	ectx := ctx
	if p.embedTimeout > 0 {
		var cancel context.CancelFunc
		ectx, cancel = context.WithTimeout(ctx, p.embedTimeout)
		defer cancel()
	}

	vecs, err := p.embedder.Embed(ectx, []string{tx.EmbeddingText()})
	if err != nil {
		return fmt.Errorf("writeVector: embed: %w", err)
	}
	if len(vecs) != 1 {
		return fmt.Errorf("writeVector: got %d embeddings, want 1", len(vecs))
	}

	return p.vec.Upsert(tx.ID, vecs[0], vector.Metadata{
		Date:           tx.Date,
		Amount:         tx.Amount,
		Currency:       tx.Currency,
		Merchant:       tx.Merchant,
		Category:       tx.Category,
		RawDescription: tx.RawDescription,
		SourceFile:     tx.SourceFile,
	})
}
