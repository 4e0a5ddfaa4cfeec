package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// SourceID identifies the pattern group used to extract fields from a
// receipt. Today there is a single group; the type exists so that more
// institutions can be added without touching the extraction code.
type SourceID string

const (
	// SourceSber is the default (and currently only) receipt layout family.
	SourceSber SourceID = "sber"
)

// Client is a ledger identity. TotalDebt is the baseline recorded at
// creation; it is only ever reduced afterwards by discounts, never by
// payment processing.
type Client struct {
	ID        int64           `json:"client_id"`
	FIO       string          `json:"fio"`
	Phone     string          `json:"phone,omitempty"`
	Account   string          `json:"account,omitempty"`
	TotalDebt decimal.Decimal `json:"total_debt"`
	CreatedAt time.Time       `json:"created_at"`
}

// Payment is a single debit event against a client's baseline debt.
// Fingerprint is empty for manual payments; when non-empty it is unique
// across payments.
type Payment struct {
	ID          int64           `json:"payment_id"`
	ClientID    int64           `json:"client_id"`
	Amount      decimal.Decimal `json:"amount"`
	PaymentDate string          `json:"payment_date"` // DD.MM.YYYY
	Excerpt     string          `json:"receipt_excerpt,omitempty"`
	BankName    string          `json:"bank_name,omitempty"`
	Fingerprint string          `json:"fingerprint,omitempty"`
	IsManual    bool            `json:"is_manual"`
	CreatedAt   time.Time       `json:"created_at"`
}

// PaymentRow is a payment joined with its client's name, as returned by the
// reporting query.
type PaymentRow struct {
	Payment
	FIO string `json:"fio"`
}

// ClientSummary is a client row enriched with derived totals for reporting.
type ClientSummary struct {
	Client
	Paid          decimal.Decimal `json:"paid"`
	RemainingDebt decimal.Decimal `json:"remaining_debt"`
	PaymentCount  int             `json:"payment_count"`
}

// Entities holds the fields recognized in a receipt's text. Fields that no
// pattern matched stay at their zero value; Amount additionally falls back
// to zero on an unparseable match, so a zero Amount always means
// "extraction failed", never a real zero payment.
type Entities struct {
	Source   SourceID
	Sender   string
	Receiver string
	FIO      string
	Amount   decimal.Decimal
	Date     string // DD.MM.YYYY
	Phone    string
	Account  string
}

// HasIdentity reports whether a sender or receiver name was recognized.
func (e Entities) HasIdentity() bool { return e.FIO != "" }

// HasAmount reports whether a positive amount was recognized.
func (e Entities) HasAmount() bool { return e.Amount.IsPositive() }

// Stats are the aggregate counters shown by the CLI and the API.
type Stats struct {
	Clients     int             `json:"clients"`
	Payments    int             `json:"payments"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}
