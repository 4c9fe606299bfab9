package pipeline

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/moneyrag/internal/domain"
	"github.com/dvloznov/moneyrag/internal/schema"
)

// buildTransactions turns raw CSV rows into canonical transactions using
// the resolved mapping. Unparseable rows become named failures in the
// report; they never abort the file.
func buildTransactions(
	mapping *schema.Mapping,
	header []string,
	rows [][]string,
	sourceFile, batchID, currency string,
	report *domain.BatchReport,
) []*domain.Transaction {
	dateIdx := mapping.Index(header, schema.FieldDate)
	descIdx := mapping.Index(header, schema.FieldDescription)
	amountIdx := mapping.Index(header, schema.FieldAmount)
	categoryIdx := mapping.Index(header, schema.FieldCategory)
	typeIdx := mapping.TypeIndex(header)

	txs := make([]*domain.Transaction, 0, len(rows))
	for i, row := range rows {
		cell := func(idx int) string {
			if idx < 0 || idx >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[idx])
		}

		desc := cell(descIdx)

		date, ok := schema.ParseDate(cell(dateIdx))
		if !ok {
			report.AddFailure("", desc, fmt.Sprintf("row %d: unparseable date %q", i+2, cell(dateIdx)))
			continue
		}
		amount, ok := schema.ParseAmount(cell(amountIdx))
		if !ok {
			report.AddFailure("", desc, fmt.Sprintf("row %d: unparseable amount %q", i+2, cell(amountIdx)))
			continue
		}
		if desc == "" {
			report.AddFailure("", "", fmt.Sprintf("row %d: empty description", i+2))
			continue
		}

		amount = normalizeSign(amount, cell(typeIdx), typeIdx >= 0, mapping.Sign)

		txs = append(txs, &domain.Transaction{
			ID:               domain.ContentID(date, desc, amount, sourceFile),
			Date:             date,
			RawDescription:   desc,
			Amount:           amount,
			Currency:         currency,
			Category:         cell(categoryIdx),
			SourceFile:       sourceFile,
			BatchID:          batchID,
			EnrichmentStatus: domain.EnrichmentPending,
		})
	}
	return txs
}

// normalizeSign fixes the canonical outflow-negative convention exactly
// once. With a debit/credit column the row marker decides; otherwise the
// file-wide convention does.
func normalizeSign(amount decimal.Decimal, typeValue string, hasTypeColumn bool, sign schema.SignConvention) decimal.Decimal {
	if hasTypeColumn {
		abs := amount.Abs()
		if schema.IsDebitMarker(typeValue) {
			return abs.Neg()
		}
		return abs
	}
	if sign == schema.SpendingIsPositive {
		return amount.Neg()
	}
	return amount
}
