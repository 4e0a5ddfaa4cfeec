// Package resolver maps an extracted identity to a ledger client, asking a
// human before creating anyone new.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/insightdelivered/receipt-ledger/internal/ledger"
	"github.com/insightdelivered/receipt-ledger/internal/models"
)

// ErrRejected means the operator declined to create the unknown client. The
// pipeline treats it as "document skipped, no side effects".
var ErrRejected = errors.New("resolver: new client declined by operator")

// Store is the slice of the ledger the resolver needs.
type Store interface {
	FindClient(ctx context.Context, fio, phone, account string) (*models.Client, error)
	CreateClient(ctx context.Context, fio, phone, account string, totalDebt decimal.Decimal) (int64, error)
}

// Decision is the operator's answer for an unknown client.
type Decision struct {
	Accept       bool
	BaselineDebt decimal.Decimal
}

// ConfirmFunc obtains a human decision about creating a new client. It is
// synchronous from the pipeline's point of view; the interactive
// implementation lives in the presentation layer, tests substitute a
// scripted one.
type ConfirmFunc func(name string) Decision

// Resolver finds or (with confirmation) creates clients.
type Resolver struct {
	store   Store
	confirm ConfirmFunc
}

// New returns a resolver using the given store and confirmation capability.
func New(store Store, confirm ConfirmFunc) *Resolver {
	return &Resolver{store: store, confirm: confirm}
}

// Resolve looks the identity up by exact name, with phone and account as
// additional filters only when non-empty. On no match it asks the operator;
// a decline returns ErrRejected, an accept creates the client with the
// supplied debt baseline.
//
// Two people sharing a name are distinct records only if a distinguishing
// phone or account was extracted for both; otherwise they collapse into one
// record. That ambiguity is inherent to the receipt data and deliberately
// not resolved here.
func (r *Resolver) Resolve(ctx context.Context, fio, phone, account string) (*models.Client, error) {
	client, err := r.store.FindClient(ctx, fio, phone, account)
	if err == nil {
		return client, nil
	}
	if !errors.Is(err, ledger.ErrNotFound) {
		return nil, fmt.Errorf("resolver: lookup %q: %w", fio, err)
	}

	decision := r.confirm(fio)
	if !decision.Accept {
		return nil, ErrRejected
	}

	id, err := r.store.CreateClient(ctx, fio, phone, account, decision.BaselineDebt)
	if err != nil {
		return nil, fmt.Errorf("resolver: create %q: %w", fio, err)
	}
	return &models.Client{
		ID:        id,
		FIO:       fio,
		Phone:     phone,
		Account:   account,
		TotalDebt: decision.BaselineDebt,
		CreatedAt: time.Now(),
	}, nil
}
