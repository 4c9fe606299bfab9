package schema

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dvloznov/moneyrag/internal/llm"
)

// Generator is the minimal LLM capability the mapper needs.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// llmMappingResult is the JSON shape the model is instructed to return.
type llmMappingResult struct {
	DateCol        string `json:"date_col"`
	DescCol        string `json:"desc_col"`
	AmountCol      string `json:"amount_col"`
	CategoryCol    string `json:"category_col"`
	TypeCol        string `json:"type_col"`
	SignConvention string `json:"sign_convention"`
}

func buildMappingPrompt(file string, header []string, sample [][]string) string {
	var b strings.Builder
	b.WriteString("Act as a financial data parser. Analyze this CSV data:\n")
	fmt.Fprintf(&b, "Filename: %s\n", file)
	fmt.Fprintf(&b, "Headers: %s\n", strings.Join(header, ", "))
	b.WriteString("Sample rows:\n")
	for _, row := range sample {
		fmt.Fprintf(&b, "  %s\n", strings.Join(row, " | "))
	}
	b.WriteString("\nTASK:\n")
	b.WriteString("1. Map the CSV columns to standard fields: date, description, amount, category.\n")
	b.WriteString("2. Determine the sign convention for spending (outflows):\n")
	b.WriteString("   - If spending (like a restaurant or store) appears NEGATIVE, use \"spending_is_negative\".\n")
	b.WriteString("   - If spending appears POSITIVE, use \"spending_is_positive\".\n")
	b.WriteString("3. If a column marks each row as debit or credit, report it as type_col.\n\n")
	b.WriteString("RULES:\n")
	b.WriteString("- Column names MUST be copied exactly from the headers above. Never invent a column.\n")
	b.WriteString("- Use null for category_col or type_col when no such column exists.\n\n")
	b.WriteString("OUTPUT FORMAT (JSON ONLY, no Markdown, no code fences):\n")
	b.WriteString(`{"date_col": "...", "desc_col": "...", "amount_col": "...", "category_col": "... or null", "type_col": "... or null", "sign_convention": "spending_is_negative" | "spending_is_positive"}`)
	b.WriteString("\n")
	return b.String()
}

// inferWithLLM asks the model for a mapping and rejects any answer that
// references a column absent from the actual header.
func inferWithLLM(ctx context.Context, gen Generator, file string, header []string, sample [][]string) (*Mapping, error) {
	raw, err := gen.Generate(ctx, buildMappingPrompt(file, header, sample))
	if err != nil {
		return nil, fmt.Errorf("inferWithLLM: generate: %w", err)
	}

	var res llmMappingResult
	if err := json.Unmarshal([]byte(llm.CleanJSON(raw)), &res); err != nil {
		return nil, fmt.Errorf("inferWithLLM: unmarshal mapping: %w", err)
	}

	m := &Mapping{
		Columns:    make(map[Field]string),
		Confidence: make(map[Field]float64),
		UsedLLM:    true,
	}
	assign := func(f Field, col string) error {
		col = strings.TrimSpace(col)
		if col == "" || strings.EqualFold(col, "null") {
			return nil
		}
		if columnIndex(header, col) == -1 {
			return fmt.Errorf("inferWithLLM: model mapped %s to nonexistent column %q", f, col)
		}
		m.Columns[f] = col
		m.Confidence[f] = 0.9
		return nil
	}
	if err := assign(FieldDate, res.DateCol); err != nil {
		return nil, err
	}
	if err := assign(FieldDescription, res.DescCol); err != nil {
		return nil, err
	}
	if err := assign(FieldAmount, res.AmountCol); err != nil {
		return nil, err
	}
	if err := assign(FieldCategory, res.CategoryCol); err != nil {
		return nil, err
	}

	if col := strings.TrimSpace(res.TypeCol); col != "" && !strings.EqualFold(col, "null") {
		if columnIndex(header, col) == -1 {
			return nil, fmt.Errorf("inferWithLLM: model mapped type to nonexistent column %q", col)
		}
		m.TypeColumn = col
	}

	switch SignConvention(res.SignConvention) {
	case SpendingIsNegative, SpendingIsPositive:
		m.Sign = SignConvention(res.SignConvention)
	}
	return m, nil
}
