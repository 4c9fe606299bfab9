package enrich

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/dvloznov/moneyrag/internal/domain"
	"github.com/dvloznov/moneyrag/internal/logger"
)

// Lookup resolves a normalized description into a merchant candidate.
type Lookup interface {
	Search(ctx context.Context, query string) (string, error)
}

// Enricher resolves raw descriptions to merchant identities. Lookups are
// cached per normalized query for the lifetime of the session and bounded
// by a semaphore so external calls never exceed the configured concurrency.
type Enricher struct {
	lookup  Lookup
	sem     *semaphore.Weighted
	timeout time.Duration

	mu    sync.RWMutex
	cache map[string]string
}

// New builds an enricher with the given concurrency bound and per-lookup
// timeout.
func New(lookup Lookup, concurrency int, timeout time.Duration) *Enricher {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Enricher{
		lookup:  lookup,
		sem:     semaphore.NewWeighted(int64(concurrency)),
		timeout: timeout,
		cache:   make(map[string]string),
	}
}

// EnrichBatch resolves merchants for a batch in place. Failures mark the
// row EnrichmentFailed and never abort ingestion; only context cancellation
// stops the batch early.
func (e *Enricher) EnrichBatch(ctx context.Context, txs []*domain.Transaction) {
	log := logger.FromContext(ctx)

	// One lookup per distinct normalized description.
	queries := make(map[string][]*domain.Transaction)
	for _, tx := range txs {
		q := Normalize(tx.RawDescription)
		if q == "" {
			tx.EnrichmentStatus = domain.EnrichmentFailed
			continue
		}
		queries[q] = append(queries[q], tx)
	}

	// The semaphore in resolve bounds outstanding external lookups; the
	// group only fans out and joins.
	g, gctx := errgroup.WithContext(ctx)
	var mu sync.Mutex

	for q, group := range queries {
		g.Go(func() error {
			merchant, err := e.resolve(gctx, q)
			mu.Lock()
			defer mu.Unlock()
			for _, tx := range group {
				if err != nil {
					tx.EnrichmentStatus = domain.EnrichmentFailed
				} else {
					tx.Merchant = merchant
					tx.EnrichmentStatus = domain.EnrichmentEnriched
				}
			}
			if err != nil {
				enrichErr := &domain.EnrichmentError{Description: q, Err: err}
				log.Warn().Err(enrichErr).Msg("merchant lookup failed")
			}
			// Enrichment is best-effort: never propagate row errors.
			return gctx.Err()
		})
	}
	_ = g.Wait()
}

// resolve consults the cache, then performs one rate-limited lookup.
func (e *Enricher) resolve(ctx context.Context, query string) (string, error) {
	e.mu.RLock()
	merchant, ok := e.cache[query]
	e.mu.RUnlock()
	if ok {
		return merchant, nil
	}

	if err := e.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer e.sem.Release(1)

	// Another goroutine may have filled the cache while we waited.
	e.mu.RLock()
	merchant, ok = e.cache[query]
	e.mu.RUnlock()
	if ok {
		return merchant, nil
	}

	lctx := ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		lctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	merchant, err := e.lookup.Search(lctx, query)
	if err != nil {
		return "", err
	}

	e.mu.Lock()
	e.cache[query] = merchant
	e.mu.Unlock()
	return merchant, nil
}

// CacheSize reports how many distinct queries have been resolved.
func (e *Enricher) CacheSize() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.cache)
}
