package router

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/moneyrag/internal/domain"
	"github.com/dvloznov/moneyrag/internal/store/relational"
	"github.com/dvloznov/moneyrag/internal/store/vector"
)

// Tool is one retrieval modality. Tools are invocable independently of the
// router, which is how the direct tests exercise them.
type Tool interface {
	Name() string
	// Describe documents the input schema for the planner prompt.
	Describe() string
	// Invoke runs the tool on raw JSON parameters and returns a textual
	// observation. Malformed parameters yield *domain.ToolInputError.
	Invoke(ctx context.Context, input json.RawMessage) (string, error)
}

// RelationalRequest is the closed input schema of the relational tool.
type RelationalRequest struct {
	DateFrom  string   `json:"date_from,omitempty"` // YYYY-MM-DD inclusive
	DateTo    string   `json:"date_to,omitempty"`
	Merchants []string `json:"merchants,omitempty"`
	Category  string   `json:"category,omitempty"`
	MinAmount *float64 `json:"min_amount,omitempty"`
	MaxAmount *float64 `json:"max_amount,omitempty"`
	Aggregate string   `json:"aggregate,omitempty"` // rows|sum|count|avg
	Limit     int      `json:"limit,omitempty"`
}

// SemanticRequest is the closed input schema of the semantic tool.
type SemanticRequest struct {
	Query string `json:"query"`
	K     int    `json:"k,omitempty"`
}

// RelationalQuerier is the store capability the relational tool needs.
type RelationalQuerier interface {
	Query(ctx context.Context, spec relational.QuerySpec) (*relational.Result, error)
}

// RelationalTool translates structured sub-questions into store queries and
// returns typed rows or a scalar aggregate.
type RelationalTool struct {
	store RelationalQuerier
}

// NewRelationalTool wraps a relational store.
func NewRelationalTool(store RelationalQuerier) *RelationalTool {
	return &RelationalTool{store: store}
}

func (t *RelationalTool) Name() string { return "relational_query" }

func (t *RelationalTool) Describe() string {
	return `relational_query: exact filtering and aggregation over stored transactions.
Params: {"date_from": "YYYY-MM-DD", "date_to": "YYYY-MM-DD", "merchants": ["exact or partial names"], "category": "...", "min_amount": n, "max_amount": n, "aggregate": "rows"|"sum"|"count"|"avg", "limit": n}
All params optional. Amounts are signed: spending is negative. Use this tool for every numeric or aggregate answer.`
}

func (t *RelationalTool) Invoke(ctx context.Context, input json.RawMessage) (string, error) {
	req, err := decodeStrict[RelationalRequest](t.Name(), input)
	if err != nil {
		return "", err
	}

	spec, err := t.toSpec(req)
	if err != nil {
		return "", err
	}

	res, err := t.store.Query(ctx, spec)
	if err != nil {
		return "", err
	}
	return formatRelational(req.Aggregate, res), nil
}

func (t *RelationalTool) toSpec(req *RelationalRequest) (relational.QuerySpec, error) {
	spec := relational.QuerySpec{
		Merchants: req.Merchants,
		Category:  req.Category,
		Aggregate: relational.Aggregate(req.Aggregate),
		Limit:     req.Limit,
	}
	parse := func(field, s string) (*time.Time, error) {
		if s == "" {
			return nil, nil
		}
		d, err := time.Parse(domain.DateFormat, s)
		if err != nil {
			return nil, &domain.ToolInputError{
				Tool:   t.Name(),
				Reason: fmt.Sprintf("%s: invalid date %q, want YYYY-MM-DD", field, s),
			}
		}
		return &d, nil
	}
	var err error
	if spec.DateFrom, err = parse("date_from", req.DateFrom); err != nil {
		return spec, err
	}
	if spec.DateTo, err = parse("date_to", req.DateTo); err != nil {
		return spec, err
	}
	if req.MinAmount != nil {
		d := decimal.NewFromFloat(*req.MinAmount)
		spec.MinAmount = &d
	}
	if req.MaxAmount != nil {
		d := decimal.NewFromFloat(*req.MaxAmount)
		spec.MaxAmount = &d
	}
	return spec, nil
}

func formatRelational(aggregate string, res *relational.Result) string {
	if res.Scalar != nil {
		return fmt.Sprintf("%s = %s (%d rows matched)", aggregate, res.Scalar.String(), res.Matched)
	}
	if len(res.Rows) == 0 {
		return "no matching transactions"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d rows:\n", len(res.Rows))
	for _, tx := range res.Rows {
		fmt.Fprintf(&b, "%s | %s | %s | %s %s | %s\n",
			tx.Date.Format(domain.DateFormat), tx.Merchant, tx.RawDescription,
			tx.Amount.String(), tx.Currency, tx.Category)
	}
	return strings.TrimRight(b.String(), "\n")
}

// QueryEmbedder embeds the query text with the same vectorization used at
// ingestion.
type QueryEmbedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorSearcher is the store capability the semantic tool needs.
type VectorSearcher interface {
	Search(vec []float32, k int) ([]vector.Result, error)
}

// SemanticTool returns the top-k most similar transactions for a free-text
// query. Fixed metric (cosine) and deterministic tie-breaking live in the
// vector store; numeric answers are out of scope for this tool.
type SemanticTool struct {
	embedder QueryEmbedder
	store    VectorSearcher
	defaultK int
}

// NewSemanticTool wraps the embedder and vector store.
func NewSemanticTool(embedder QueryEmbedder, store VectorSearcher, defaultK int) *SemanticTool {
	return &SemanticTool{embedder: embedder, store: store, defaultK: defaultK}
}

func (t *SemanticTool) Name() string { return "semantic_search" }

func (t *SemanticTool) Describe() string {
	return fmt.Sprintf(`semantic_search: fuzzy similarity search over transaction descriptions and merchants.
Params: {"query": "free text", "k": n (default %d)}
Returns ranked transactions with similarity scores. Use it to resolve vague merchant or concept references into concrete names; never for sums or counts.`, t.defaultK)
}

func (t *SemanticTool) Invoke(ctx context.Context, input json.RawMessage) (string, error) {
	req, err := decodeStrict[SemanticRequest](t.Name(), input)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(req.Query) == "" {
		return "", &domain.ToolInputError{Tool: t.Name(), Reason: "query must not be empty"}
	}
	k := req.K
	if k <= 0 {
		k = t.defaultK
	}

	vecs, err := t.embedder.Embed(ctx, []string{req.Query})
	if err != nil {
		return "", fmt.Errorf("SemanticTool.Invoke: embed query: %w", err)
	}
	if len(vecs) != 1 {
		return "", fmt.Errorf("SemanticTool.Invoke: got %d embeddings, want 1", len(vecs))
	}

	results, err := t.store.Search(vecs[0], k)
	if err != nil {
		return "", fmt.Errorf("SemanticTool.Invoke: search: %w", err)
	}
	if len(results) == 0 {
		return "no similar transactions", nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "top %d by similarity:\n", len(results))
	for _, r := range results {
		fmt.Fprintf(&b, "score=%.4f | %s | %s | %s | %s %s\n",
			r.Score, r.Meta.Date.Format(domain.DateFormat), r.Meta.Merchant,
			r.Meta.RawDescription, r.Meta.Amount.String(), r.Meta.Currency)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

// decodeStrict rejects unknown fields so a filter referencing a
// non-existent column fails loudly instead of being silently dropped.
func decodeStrict[T any](tool string, input json.RawMessage) (*T, error) {
	if len(input) == 0 {
		input = json.RawMessage("{}")
	}
	dec := json.NewDecoder(bytes.NewReader(input))
	dec.DisallowUnknownFields()
	var req T
	if err := dec.Decode(&req); err != nil {
		return nil, &domain.ToolInputError{Tool: tool, Reason: err.Error()}
	}
	return &req, nil
}
