package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// EnrichmentStatus tracks whether merchant enrichment ran for a transaction.
type EnrichmentStatus string

const (
	EnrichmentPending  EnrichmentStatus = "PENDING"
	EnrichmentEnriched EnrichmentStatus = "ENRICHED"
	EnrichmentFailed   EnrichmentStatus = "FAILED"
)

// DateFormat is the canonical date layout used across stores and prompts.
const DateFormat = "2006-01-02"

// Transaction is the canonical record every CSV variant normalizes into.
// Amount is signed: negative means money out. The sign is fixed once at
// mapping time and never altered downstream.
type Transaction struct {
	ID               string
	Date             time.Time
	RawDescription   string
	Merchant         string // empty until enriched
	Amount           decimal.Decimal
	Currency         string
	Category         string // empty allowed
	SourceFile       string
	BatchID          string
	EnrichmentStatus EnrichmentStatus
}

// ContentID derives the deterministic transaction ID from the defining
// fields, so re-ingesting an identical row produces the same key.
func ContentID(date time.Time, rawDescription string, amount decimal.Decimal, sourceFile string) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s|%s",
		date.Format(DateFormat), rawDescription, amount.String(), sourceFile)))
	return hex.EncodeToString(h[:])[:32]
}

// Same reports whether a stored transaction is identical to a freshly
// ingested one, ignoring BatchID. Used to turn re-ingestion into a no-op.
func (t *Transaction) Same(other *Transaction) bool {
	if t == nil || other == nil {
		return false
	}
	return t.ID == other.ID &&
		t.Date.Format(DateFormat) == other.Date.Format(DateFormat) &&
		t.RawDescription == other.RawDescription &&
		t.Merchant == other.Merchant &&
		t.Amount.Equal(other.Amount) &&
		t.Currency == other.Currency &&
		t.Category == other.Category &&
		t.SourceFile == other.SourceFile &&
		t.EnrichmentStatus == other.EnrichmentStatus
}

// EmbeddingText is the text vectorized for semantic search. The same
// composition must be used at ingestion and at query time.
func (t *Transaction) EmbeddingText() string {
	s := t.RawDescription
	if t.Category != "" {
		s = fmt.Sprintf("%s (%s)", s, t.Category)
	}
	if t.Merchant != "" {
		s = fmt.Sprintf("%s - %s", t.Merchant, s)
	}
	return s
}
