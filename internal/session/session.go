package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/moneyrag/internal/config"
	"github.com/dvloznov/moneyrag/internal/enrich"
	"github.com/dvloznov/moneyrag/internal/llm"
	"github.com/dvloznov/moneyrag/internal/pipeline"
	"github.com/dvloznov/moneyrag/internal/router"
	"github.com/dvloznov/moneyrag/internal/schema"
	"github.com/dvloznov/moneyrag/internal/store/relational"
	"github.com/dvloznov/moneyrag/internal/store/vector"
)

const lookupTimeout = 10 * time.Second

// Session owns every component of one analysis run: both stores, the LLM
// client, the ingestion pipeline and the query router. Stores live under one
// directory; when the config names no data_dir the session creates a temp
// directory and removes it on Close, so nothing outlives the run.
type Session struct {
	Config     *config.Config
	Log        zerolog.Logger
	LLM        llm.Client
	Relational *relational.Store
	Vector     *vector.Store
	Enricher   *enrich.Enricher
	Pipeline   *pipeline.Pipeline
	Router     *router.Router

	dir     string
	ownsDir bool
}

// New builds a fully wired session from config.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Session, error) {
	dir := cfg.DataDir
	ownsDir := false
	if dir == "" {
		tmp, err := os.MkdirTemp("", "moneyrag-*")
		if err != nil {
			return nil, fmt.Errorf("session.New: %w", err)
		}
		dir = tmp
		ownsDir = true
	} else if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("session.New: %w", err)
	}

	cleanup := func() {
		if ownsDir {
			os.RemoveAll(dir)
		}
	}

	client, err := llm.New(ctx, cfg)
	if err != nil {
		cleanup()
		return nil, err
	}

	rel, err := relational.Open(filepath.Join(dir, "transactions.db"))
	if err != nil {
		cleanup()
		return nil, err
	}

	vec := vector.New(cfg.EmbeddingDim)

	enricher := enrich.New(enrich.NewDuckDuckGo(lookupTimeout), cfg.EnrichmentConcurrency, lookupTimeout)
	mapper := schema.NewMapper(client, cfg.MappingConfidence, cfg.SignOverrides)
	pipe := pipeline.New(mapper, enricher, client, rel, vec)

	rt := router.New(client, cfg.RouterMaxSteps,
		router.NewRelationalTool(rel),
		router.NewSemanticTool(client, vec, cfg.SemanticTopK),
	)

	log.Info().
		Str("provider", cfg.Provider).
		Str("data_dir", dir).
		Bool("ephemeral", ownsDir).
		Msg("session ready")

	return &Session{
		Config:     cfg,
		Log:        log,
		LLM:        client,
		Relational: rel,
		Vector:     vec,
		Enricher:   enricher,
		Pipeline:   pipe,
		Router:     rt,
		dir:        dir,
		ownsDir:    ownsDir,
	}, nil
}

// embedBatchSize bounds texts per embedding request during a reindex.
const embedBatchSize = 64

// Reindex rebuilds the in-process vector index from the relational store.
// The index does not persist across processes, so a session opened on an
// existing data directory reindexes before semantic search is usable.
func (s *Session) Reindex(ctx context.Context) (int, error) {
	txs, err := s.Relational.All(ctx)
	if err != nil {
		return 0, fmt.Errorf("Session.Reindex: %w", err)
	}

	for start := 0; start < len(txs); start += embedBatchSize {
		end := min(start+embedBatchSize, len(txs))
		batch := txs[start:end]

		texts := make([]string, len(batch))
		for i, tx := range batch {
			texts[i] = tx.EmbeddingText()
		}
		vecs, err := s.LLM.Embed(ctx, texts)
		if err != nil {
			return 0, fmt.Errorf("Session.Reindex: embed: %w", err)
		}
		if len(vecs) != len(batch) {
			return 0, fmt.Errorf("Session.Reindex: got %d embeddings, want %d", len(vecs), len(batch))
		}

		for i, tx := range batch {
			if err := s.Vector.Upsert(tx.ID, vecs[i], vector.Metadata{
				Date:           tx.Date,
				Amount:         tx.Amount,
				Currency:       tx.Currency,
				Merchant:       tx.Merchant,
				Category:       tx.Category,
				RawDescription: tx.RawDescription,
				SourceFile:     tx.SourceFile,
			}); err != nil {
				return 0, fmt.Errorf("Session.Reindex: %w", err)
			}
		}
	}

	s.Log.Info().Int("indexed", len(txs)).Msg("vector index rebuilt")
	return len(txs), nil
}

// Dir returns the directory holding the session's stores.
func (s *Session) Dir() string { return s.dir }

// Close releases the stores and removes the data directory when the session
// created it.
func (s *Session) Close() error {
	var firstErr error
	if s.Relational != nil {
		if err := s.Relational.Close(); err != nil {
			firstErr = err
		}
	}
	if s.ownsDir {
		if err := os.RemoveAll(s.dir); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
