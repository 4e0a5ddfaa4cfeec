// Package ledger is the system of record: client debt baselines, payment
// records, and the derived remaining-balance computation.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/insightdelivered/receipt-ledger/internal/models"
)

// ErrNotFound is returned when a client or payment id does not exist.
var ErrNotFound = errors.New("ledger: not found")

// Store is the Postgres-backed ledger. Every mutating call is independently
// atomic: single statements rely on Postgres, multi-statement mutations run
// in a transaction.
type Store struct {
	pool *pgxpool.Pool
}

// New returns a Store over an existing connection pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Ping reports whether the store is reachable. The pipeline uses it to tell
// a failed document apart from a dead connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// CreateClient inserts a new client with its debt baseline and returns the
// assigned id. The baseline is set exactly once here; afterwards only
// discounts may reduce it.
func (s *Store) CreateClient(ctx context.Context, fio, phone, account string, totalDebt decimal.Decimal) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO clients (fio, phone, account, total_debt)
		VALUES ($1, $2, $3, $4)
		RETURNING client_id
	`, fio, phone, account, totalDebt.String()).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("ledger: create client: %w", err)
	}
	return id, nil
}

// GetClient loads one client by id.
func (s *Store) GetClient(ctx context.Context, id int64) (*models.Client, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT client_id, fio, phone, account, total_debt::text, created_at
		FROM clients WHERE client_id = $1
	`, id)
	return scanClient(row)
}

// FindClient looks a client up by exact name. Phone and account constrain
// the match only when non-empty: an absent extracted phone does not filter,
// a present one must match exactly. Same-name clients with no phone or
// account on record therefore collapse into one match; that ambiguity is
// inherited from the receipt data itself.
func (s *Store) FindClient(ctx context.Context, fio, phone, account string) (*models.Client, error) {
	query := `
		SELECT client_id, fio, phone, account, total_debt::text, created_at
		FROM clients WHERE fio = $1`
	args := []any{fio}
	if phone != "" {
		args = append(args, phone)
		query += fmt.Sprintf(" AND phone = $%d", len(args))
	}
	if account != "" {
		args = append(args, account)
		query += fmt.Sprintf(" AND account = $%d", len(args))
	}
	query += " ORDER BY client_id LIMIT 1"

	client, err := scanClient(s.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNotFound
	}
	return client, err
}

// ClientUpdate carries a partial client update: nil fields stay unchanged.
type ClientUpdate struct {
	FIO       *string
	Phone     *string
	Account   *string
	TotalDebt *decimal.Decimal
}

// buildClientUpdate renders the SET clause and argument list for an update,
// leaving placeholder $1 for the client id.
func buildClientUpdate(upd ClientUpdate) (string, []any) {
	var sets []string
	args := []any{nil} // slot for client_id, filled by caller
	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if upd.FIO != nil {
		add("fio", *upd.FIO)
	}
	if upd.Phone != nil {
		add("phone", *upd.Phone)
	}
	if upd.Account != nil {
		add("account", *upd.Account)
	}
	if upd.TotalDebt != nil {
		add("total_debt", upd.TotalDebt.String())
	}
	return strings.Join(sets, ", "), args
}

// UpdateClient applies a partial update; only supplied fields change.
func (s *Store) UpdateClient(ctx context.Context, id int64, upd ClientUpdate) error {
	setClause, args := buildClientUpdate(upd)
	if setClause == "" {
		return nil
	}
	args[0] = id
	tag, err := s.pool.Exec(ctx,
		fmt.Sprintf("UPDATE clients SET %s WHERE client_id = $1", setClause), args...)
	if err != nil {
		return fmt.Errorf("ledger: update client %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteClient removes a client and all of its payments in one transaction,
// so no payment can ever reference a missing client.
func (s *Store) DeleteClient(ctx context.Context, id int64) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("ledger: delete client %d: %w", id, err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM payments WHERE client_id = $1`, id); err != nil {
		return fmt.Errorf("ledger: delete client %d payments: %w", id, err)
	}
	tag, err := tx.Exec(ctx, `DELETE FROM clients WHERE client_id = $1`, id)
	if err != nil {
		return fmt.Errorf("ledger: delete client %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return tx.Commit(ctx)
}

// AddPayment records a debit event for a client and returns the payment id.
func (s *Store) AddPayment(ctx context.Context, p *models.Payment) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO payments (client_id, amount, payment_date, receipt_excerpt, bank_name, file_hash, is_manual)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING payment_id
	`, p.ClientID, p.Amount.String(), p.PaymentDate, p.Excerpt, p.BankName, p.Fingerprint, p.IsManual).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("ledger: add payment for client %d: %w", p.ClientID, err)
	}
	return id, nil
}

// AddManualPayment records an operator-entered payment with no backing
// document: fingerprint empty, manual flag set, the description embedded in
// the audit excerpt.
func (s *Store) AddManualPayment(ctx context.Context, clientID int64, amount decimal.Decimal, paymentDate, description string) (int64, error) {
	return s.AddPayment(ctx, &models.Payment{
		ClientID:    clientID,
		Amount:      amount,
		PaymentDate: paymentDate,
		Excerpt:     "Manual payment: " + description,
		BankName:    "Manual entry",
		IsManual:    true,
	})
}

// DeletePayment removes a single payment.
func (s *Store) DeletePayment(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM payments WHERE payment_id = $1`, id)
	if err != nil {
		return fmt.Errorf("ledger: delete payment %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ApplyDiscount reduces a client's debt baseline, flooring it at zero:
// excess discount is absorbed so the "baseline ≥ 0" invariant holds
// unconditionally. Returns the freshly recomputed remaining debt.
func (s *Store) ApplyDiscount(ctx context.Context, clientID int64, amount decimal.Decimal) (decimal.Decimal, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE clients SET total_debt = GREATEST(total_debt - $2, 0)
		WHERE client_id = $1
	`, clientID, amount.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("ledger: apply discount for client %d: %w", clientID, err)
	}
	if tag.RowsAffected() == 0 {
		return decimal.Zero, ErrNotFound
	}
	return s.RemainingDebt(ctx, clientID)
}

// RemainingDebt computes baseline minus the sum of all payments. It is
// recomputed on every call and never cached, so it cannot go stale after a
// discount or a payment deletion.
func (s *Store) RemainingDebt(ctx context.Context, clientID int64) (decimal.Decimal, error) {
	var remaining string
	err := s.pool.QueryRow(ctx, `
		SELECT (c.total_debt - COALESCE(SUM(p.amount), 0))::text
		FROM clients c
		LEFT JOIN payments p ON p.client_id = c.client_id
		WHERE c.client_id = $1
		GROUP BY c.total_debt
	`, clientID).Scan(&remaining)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, ErrNotFound
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("ledger: remaining debt for client %d: %w", clientID, err)
	}
	d, err := decimal.NewFromString(remaining)
	if err != nil {
		return decimal.Zero, fmt.Errorf("ledger: remaining debt for client %d: %w", clientID, err)
	}
	return d, nil
}

// HasFingerprint reports whether a payment with this content fingerprint
// already exists. Empty fingerprints (manual payments) never count as
// duplicates.
func (s *Store) HasFingerprint(ctx context.Context, fp string) (bool, error) {
	if fp == "" {
		return false, nil
	}
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM payments WHERE file_hash = $1)`, fp).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("ledger: fingerprint lookup: %w", err)
	}
	return exists, nil
}

// ListClients returns all clients ordered by name.
func (s *Store) ListClients(ctx context.Context) ([]models.Client, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT client_id, fio, phone, account, total_debt::text, created_at
		FROM clients ORDER BY fio
	`)
	if err != nil {
		return nil, fmt.Errorf("ledger: list clients: %w", err)
	}
	defer rows.Close()

	var out []models.Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// ListPayments returns all payments joined with the client name, newest
// payment date first.
func (s *Store) ListPayments(ctx context.Context) ([]models.PaymentRow, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT p.payment_id, p.client_id, p.amount::text, p.payment_date,
		       p.receipt_excerpt, p.bank_name, p.file_hash, p.is_manual,
		       p.created_at, COALESCE(c.fio, '')
		FROM payments p
		LEFT JOIN clients c ON c.client_id = p.client_id
		ORDER BY p.payment_date DESC, p.payment_id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("ledger: list payments: %w", err)
	}
	defer rows.Close()

	var out []models.PaymentRow
	for rows.Next() {
		var (
			pr     models.PaymentRow
			amount string
		)
		if err := rows.Scan(&pr.ID, &pr.ClientID, &amount, &pr.PaymentDate,
			&pr.Excerpt, &pr.BankName, &pr.Fingerprint, &pr.IsManual,
			&pr.CreatedAt, &pr.FIO); err != nil {
			return nil, fmt.Errorf("ledger: list payments: %w", err)
		}
		pr.Amount, err = decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("ledger: list payments: %w", err)
		}
		out = append(out, pr)
	}
	return out, rows.Err()
}

// ClientSummaries returns all clients ordered by name, enriched with
// paid-total, remaining debt, and payment count for reporting.
func (s *Store) ClientSummaries(ctx context.Context) ([]models.ClientSummary, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT c.client_id, c.fio, c.phone, c.account, c.total_debt::text, c.created_at,
		       COALESCE(SUM(p.amount), 0)::text,
		       (c.total_debt - COALESCE(SUM(p.amount), 0))::text,
		       COUNT(p.payment_id)
		FROM clients c
		LEFT JOIN payments p ON p.client_id = c.client_id
		GROUP BY c.client_id
		ORDER BY c.fio
	`)
	if err != nil {
		return nil, fmt.Errorf("ledger: client summaries: %w", err)
	}
	defer rows.Close()

	var out []models.ClientSummary
	for rows.Next() {
		var (
			cs                    models.ClientSummary
			debt, paid, remaining string
		)
		if err := rows.Scan(&cs.ID, &cs.FIO, &cs.Phone, &cs.Account, &debt,
			&cs.CreatedAt, &paid, &remaining, &cs.PaymentCount); err != nil {
			return nil, fmt.Errorf("ledger: client summaries: %w", err)
		}
		if cs.TotalDebt, err = decimal.NewFromString(debt); err != nil {
			return nil, fmt.Errorf("ledger: client summaries: %w", err)
		}
		if cs.Paid, err = decimal.NewFromString(paid); err != nil {
			return nil, fmt.Errorf("ledger: client summaries: %w", err)
		}
		if cs.RemainingDebt, err = decimal.NewFromString(remaining); err != nil {
			return nil, fmt.Errorf("ledger: client summaries: %w", err)
		}
		out = append(out, cs)
	}
	return out, rows.Err()
}

// Stats returns the aggregate counters for the whole ledger.
func (s *Store) Stats(ctx context.Context) (models.Stats, error) {
	var (
		st    models.Stats
		total string
	)
	err := s.pool.QueryRow(ctx, `
		SELECT (SELECT COUNT(*) FROM clients),
		       (SELECT COUNT(*) FROM payments),
		       (SELECT COALESCE(SUM(amount), 0) FROM payments)::text
	`).Scan(&st.Clients, &st.Payments, &total)
	if err != nil {
		return models.Stats{}, fmt.Errorf("ledger: stats: %w", err)
	}
	if st.TotalAmount, err = decimal.NewFromString(total); err != nil {
		return models.Stats{}, fmt.Errorf("ledger: stats: %w", err)
	}
	return st, nil
}

func scanClient(row pgx.Row) (*models.Client, error) {
	var (
		c    models.Client
		debt string
	)
	err := row.Scan(&c.ID, &c.FIO, &c.Phone, &c.Account, &debt, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ledger: scan client: %w", err)
	}
	if c.TotalDebt, err = decimal.NewFromString(debt); err != nil {
		return nil, fmt.Errorf("ledger: scan client: %w", err)
	}
	return &c, nil
}
