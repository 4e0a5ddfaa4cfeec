package pipeline

import "github.com/shopspring/decimal"

// Status is the terminal state of one document's journey through the
// pipeline. Every document reaches exactly one terminal state per
// invocation; there are no retries.
type Status string

const (
	// StatusDone: a payment was recorded and the balance recomputed.
	StatusDone Status = "DONE"
	// StatusSkippedDuplicate: the content fingerprint was already
	// processed. Not an error; nothing was touched.
	StatusSkippedDuplicate Status = "SKIPPED_DUPLICATE"
	// StatusFailedExtraction: the document yielded no usable text.
	StatusFailedExtraction Status = "FAILED_EXTRACTION"
	// StatusFailedIdentity: neither sender nor receiver was recognized.
	StatusFailedIdentity Status = "FAILED_IDENTITY"
	// StatusFailedAmount: no positive amount was recognized.
	StatusFailedAmount Status = "FAILED_AMOUNT"
	// StatusSkippedByOperator: the operator declined to create the
	// unknown client. Not an error; nothing was touched.
	StatusSkippedByOperator Status = "SKIPPED_BY_OPERATOR"
	// StatusFailedPersist: the store rejected a read or write.
	StatusFailedPersist Status = "FAILED_PERSIST"
)

// Outcome is the per-document result record: a terminal status plus a
// human-readable message, and on success the identity, amount, and fresh
// remaining debt.
type Outcome struct {
	Document      string          `json:"document"`
	Status        Status          `json:"status"`
	Message       string          `json:"message"`
	FIO           string          `json:"fio,omitempty"`
	Amount        decimal.Decimal `json:"amount,omitempty"`
	RemainingDebt decimal.Decimal `json:"remaining_debt,omitempty"`
}

// Recorded reports whether the document produced a ledger entry.
func (o Outcome) Recorded() bool { return o.Status == StatusDone }
