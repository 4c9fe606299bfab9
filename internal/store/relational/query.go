package relational

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/moneyrag/internal/domain"
)

// Aggregate selects how matching rows are reduced.
type Aggregate string

const (
	AggregateNone  Aggregate = ""
	AggregateRows  Aggregate = "rows"
	AggregateSum   Aggregate = "sum"
	AggregateCount Aggregate = "count"
	AggregateAvg   Aggregate = "avg"
)

// QuerySpec is a structured sub-question against the transactions table.
// Only the declared filters exist; anything else is rejected upstream at
// the tool boundary, never silently coerced.
type QuerySpec struct {
	DateFrom  *time.Time
	DateTo    *time.Time
	Merchants []string // matches merchant OR raw description, case-insensitive substring
	Category  string
	MinAmount *decimal.Decimal
	MaxAmount *decimal.Decimal
	Aggregate Aggregate
	Limit     int
}

// Result holds either rows or a scalar aggregate, depending on the spec.
type Result struct {
	Rows    []*domain.Transaction
	Scalar  *decimal.Decimal
	Matched int
}

const defaultQueryLimit = 50

// Query runs the spec. Aggregates are computed in Go over exact decimal
// values; SQL only filters.
func (s *Store) Query(ctx context.Context, spec QuerySpec) (*Result, error) {
	switch spec.Aggregate {
	case AggregateNone, AggregateRows, AggregateSum, AggregateCount, AggregateAvg:
	default:
		return nil, &domain.ToolInputError{
			Tool:   "relational_query",
			Reason: fmt.Sprintf("unknown aggregate %q", spec.Aggregate),
		}
	}

	where, args := buildWhere(spec)
	q := `
		SELECT id, transaction_date, raw_description, merchant, amount,
		       currency, category, source_file, batch_id, enrichment_status
		FROM transactions` + where + `
		ORDER BY transaction_date, id`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, &domain.StoreUnavailableError{Store: "relational", Err: err}
	}
	defer rows.Close()

	var matched []*domain.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("Query: %w", err)
		}
		matched = append(matched, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("Query: %w", err)
	}

	res := &Result{Matched: len(matched)}
	switch spec.Aggregate {
	case AggregateSum:
		sum := decimal.Zero
		for _, tx := range matched {
			sum = sum.Add(tx.Amount)
		}
		res.Scalar = &sum
	case AggregateCount:
		n := decimal.NewFromInt(int64(len(matched)))
		res.Scalar = &n
	case AggregateAvg:
		if len(matched) == 0 {
			zero := decimal.Zero
			res.Scalar = &zero
			break
		}
		sum := decimal.Zero
		for _, tx := range matched {
			sum = sum.Add(tx.Amount)
		}
		avg := sum.Div(decimal.NewFromInt(int64(len(matched)))).Round(4)
		res.Scalar = &avg
	default:
		limit := spec.Limit
		if limit <= 0 {
			limit = defaultQueryLimit
		}
		if len(matched) > limit {
			matched = matched[:limit]
		}
		res.Rows = matched
	}
	return res, nil
}

func buildWhere(spec QuerySpec) (string, []any) {
	var conds []string
	var args []any

	if spec.DateFrom != nil {
		conds = append(conds, "transaction_date >= ?")
		args = append(args, spec.DateFrom.Format(domain.DateFormat))
	}
	if spec.DateTo != nil {
		conds = append(conds, "transaction_date <= ?")
		args = append(args, spec.DateTo.Format(domain.DateFormat))
	}
	if len(spec.Merchants) > 0 {
		var ors []string
		for _, m := range spec.Merchants {
			ors = append(ors, `(LOWER(merchant) LIKE ? ESCAPE '\' OR LOWER(raw_description) LIKE ? ESCAPE '\')`)
			pattern := "%" + escapeLike(strings.ToLower(m)) + "%"
			args = append(args, pattern, pattern)
		}
		conds = append(conds, "("+strings.Join(ors, " OR ")+")")
	}
	if spec.Category != "" {
		conds = append(conds, "LOWER(category) = ?")
		args = append(args, strings.ToLower(spec.Category))
	}
	if spec.MinAmount != nil {
		f, _ := spec.MinAmount.Float64()
		conds = append(conds, "amount_num >= ?")
		args = append(args, f)
	}
	if spec.MaxAmount != nil {
		f, _ := spec.MaxAmount.Float64()
		conds = append(conds, "amount_num <= ?")
		args = append(args, f)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// escapeLike neutralizes LIKE wildcards so a merchant name containing % or _
// matches literally.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`).Replace(s)
}
