package schema

// Field names the canonical columns a CSV can map onto.
type Field string

const (
	FieldDate        Field = "date"
	FieldDescription Field = "description"
	FieldAmount      Field = "amount"
	FieldCategory    Field = "category"
)

// RequiredFields are the fields without which a transaction record is
// meaningless. A file that cannot map all of them fails ingestion.
var RequiredFields = []Field{FieldDate, FieldDescription, FieldAmount}

// SignConvention records how a source file encodes spending. The canonical
// convention is outflow-negative; rows from a spending-positive file get
// their sign flipped once, at mapping time.
type SignConvention string

const (
	SpendingIsNegative SignConvention = "spending_is_negative"
	SpendingIsPositive SignConvention = "spending_is_positive"
)

// Mapping is the result of schema inference for one file: source column per
// canonical field plus a confidence score per mapped field.
type Mapping struct {
	Columns    map[Field]string
	Confidence map[Field]float64

	// TypeColumn, when set, names a debit/credit marker column whose value
	// decides each row's sign instead of the file-wide convention.
	TypeColumn string

	Sign    SignConvention
	UsedLLM bool
}

// Column returns the source column mapped to f, or "".
func (m *Mapping) Column(f Field) string {
	if m.Columns == nil {
		return ""
	}
	return m.Columns[f]
}

// Index returns the header index of the column mapped to f, or -1.
func (m *Mapping) Index(header []string, f Field) int {
	return columnIndex(header, m.Column(f))
}

// TypeIndex returns the header index of the debit/credit column, or -1.
func (m *Mapping) TypeIndex(header []string) int {
	return columnIndex(header, m.TypeColumn)
}

func columnIndex(header []string, name string) int {
	if name == "" {
		return -1
	}
	for i, h := range header {
		if h == name {
			return i
		}
	}
	return -1
}

// MissingRequired lists required fields absent from the mapping.
func (m *Mapping) MissingRequired() []string {
	var missing []string
	for _, f := range RequiredFields {
		if m.Column(f) == "" {
			missing = append(missing, string(f))
		}
	}
	return missing
}
