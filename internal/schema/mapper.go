package schema

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/dvloznov/moneyrag/internal/domain"
	"github.com/dvloznov/moneyrag/internal/logger"
)

// Mapper infers a column mapping for one CSV file. Deterministic heuristics
// run first; the LLM stage is consulted only when a required field falls
// below the confidence threshold, keeping non-determinism behind one seam.
type Mapper struct {
	gen       Generator // nil disables the LLM stage
	threshold float64
	overrides map[string]string // filename substring -> sign convention
}

// NewMapper builds a mapper. gen may be nil to run heuristics only.
func NewMapper(gen Generator, threshold float64, signOverrides map[string]string) *Mapper {
	return &Mapper{gen: gen, threshold: threshold, overrides: signOverrides}
}

// Infer produces the mapping for a file given its header and a small sample
// of data rows. Returns *domain.SchemaInferenceError when required fields
// stay unmappable after both stages.
func (m *Mapper) Infer(ctx context.Context, file string, header []string, sample [][]string) (*Mapping, error) {
	log := logger.FromContext(ctx)
	base := filepath.Base(file)

	mapping := inferHeuristic(header, sample)
	if m.needsEscalation(mapping) && m.gen != nil {
		log.Info().Str("file", base).Msg("heuristic mapping below threshold, escalating to LLM")
		llmMapping, err := inferWithLLM(ctx, m.gen, base, header, sample)
		if err != nil {
			// The LLM stage failing entirely leaves the heuristic result;
			// missing required fields are reported below.
			log.Warn().Err(err).Str("file", base).Msg("LLM mapping stage failed")
		} else {
			mapping = mergeMappings(mapping, llmMapping, m.threshold)
		}
	}

	if missing := mapping.MissingRequired(); len(missing) > 0 {
		return nil, &domain.SchemaInferenceError{File: base, Missing: missing}
	}

	m.resolveSign(base, mapping, header, sample)

	log.Info().
		Str("file", base).
		Str("date_col", mapping.Column(FieldDate)).
		Str("desc_col", mapping.Column(FieldDescription)).
		Str("amount_col", mapping.Column(FieldAmount)).
		Str("category_col", mapping.Column(FieldCategory)).
		Str("type_col", mapping.TypeColumn).
		Str("sign", string(mapping.Sign)).
		Bool("used_llm", mapping.UsedLLM).
		Msg("schema mapping resolved")

	return mapping, nil
}

func (m *Mapper) needsEscalation(mapping *Mapping) bool {
	for _, f := range RequiredFields {
		if mapping.Confidence[f] < m.threshold {
			return true
		}
	}
	return false
}

// mergeMappings keeps confident heuristic assignments and fills the rest
// from the LLM result, so a strong data signal is never overridden by the
// model.
func mergeMappings(heuristic, fromLLM *Mapping, threshold float64) *Mapping {
	merged := &Mapping{
		Columns:    make(map[Field]string),
		Confidence: make(map[Field]float64),
		TypeColumn: heuristic.TypeColumn,
		Sign:       fromLLM.Sign,
		UsedLLM:    true,
	}
	if merged.TypeColumn == "" {
		merged.TypeColumn = fromLLM.TypeColumn
	}
	for _, f := range []Field{FieldDate, FieldDescription, FieldAmount, FieldCategory} {
		if heuristic.Confidence[f] >= threshold {
			merged.Columns[f] = heuristic.Columns[f]
			merged.Confidence[f] = heuristic.Confidence[f]
			continue
		}
		if col := fromLLM.Column(f); col != "" {
			merged.Columns[f] = col
			merged.Confidence[f] = fromLLM.Confidence[f]
		} else if col := heuristic.Column(f); col != "" {
			merged.Columns[f] = col
			merged.Confidence[f] = heuristic.Confidence[f]
		}
	}
	return merged
}

// resolveSign fixes the sign convention once per file: a configured
// per-source override wins, then the LLM's verdict, then the
// value-distribution heuristic. With a debit/credit column the per-row
// markers decide instead and the convention is informational only.
func (m *Mapper) resolveSign(file string, mapping *Mapping, header []string, sample [][]string) {
	lower := strings.ToLower(file)
	for substr, conv := range m.overrides {
		if strings.Contains(lower, strings.ToLower(substr)) {
			mapping.Sign = SignConvention(conv)
			return
		}
	}
	if mapping.Sign != "" {
		return // set by the LLM stage
	}
	mapping.Sign = inferSignFromValues(sample, mapping.Index(header, FieldAmount))
}
