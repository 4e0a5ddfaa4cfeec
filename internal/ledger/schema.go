package ledger

import (
	"context"
	"fmt"
)

// Two tables, linked by client_id. Amounts are NUMERIC and travel as
// strings between Go and Postgres so no float rounding ever touches money.
// payment_date stays a DD.MM.YYYY string: receipts express dates this way
// and the ledger never does date arithmetic beyond display and sorting.
const schema = `
CREATE TABLE IF NOT EXISTS clients (
	client_id  BIGSERIAL PRIMARY KEY,
	fio        TEXT NOT NULL,
	phone      TEXT NOT NULL DEFAULT '',
	account    TEXT NOT NULL DEFAULT '',
	total_debt NUMERIC(14,2) NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS payments (
	payment_id      BIGSERIAL PRIMARY KEY,
	client_id       BIGINT NOT NULL REFERENCES clients (client_id) ON DELETE CASCADE,
	amount          NUMERIC(14,2) NOT NULL,
	payment_date    TEXT NOT NULL,
	receipt_excerpt TEXT NOT NULL DEFAULT '',
	bank_name       TEXT NOT NULL DEFAULT '',
	file_hash       TEXT NOT NULL DEFAULT '',
	is_manual       BOOLEAN NOT NULL DEFAULT FALSE,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_payments_client ON payments (client_id);

-- Backstop for the duplicate-check-then-insert sequence if processing is
-- ever parallelized. Partial so that repeated empty hashes (manual
-- payments) never collide.
CREATE UNIQUE INDEX IF NOT EXISTS ux_payments_file_hash
	ON payments (file_hash) WHERE file_hash <> '';
`

// Init creates the schema if it does not exist yet.
func (s *Store) Init(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ledger: init schema: %w", err)
	}
	return nil
}
