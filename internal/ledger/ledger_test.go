package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/insightdelivered/receipt-ledger/internal/models"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestRemainingDebtRecomputed(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()

	id, err := s.CreateClient(ctx, "Иванов Иван", "", "", dec("5000"))
	if err != nil {
		t.Fatalf("create client: %v", err)
	}

	payID, err := s.AddPayment(ctx, &models.Payment{
		ClientID: id, Amount: dec("1000"), PaymentDate: "05.03.2024",
	})
	if err != nil {
		t.Fatalf("add payment: %v", err)
	}

	remaining, err := s.RemainingDebt(ctx, id)
	if err != nil {
		t.Fatalf("remaining debt: %v", err)
	}
	if !remaining.Equal(dec("4000")) {
		t.Errorf("after payment: got %s, want 4000", remaining)
	}

	// Deleting the payment must be reflected immediately: the balance is
	// derived, never cached.
	if err := s.DeletePayment(ctx, payID); err != nil {
		t.Fatalf("delete payment: %v", err)
	}
	remaining, _ = s.RemainingDebt(ctx, id)
	if !remaining.Equal(dec("5000")) {
		t.Errorf("after payment deletion: got %s, want 5000", remaining)
	}
}

func TestApplyDiscountFloorsAtZero(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()

	id, _ := s.CreateClient(ctx, "Петров Петр", "", "", dec("300"))

	remaining, err := s.ApplyDiscount(ctx, id, dec("1000000"))
	if err != nil {
		t.Fatalf("apply discount: %v", err)
	}
	if !remaining.Equal(decimal.Zero) {
		t.Errorf("over-discount: got %s, want 0", remaining)
	}

	c, _ := s.GetClient(ctx, id)
	if c.TotalDebt.IsNegative() {
		t.Errorf("baseline went negative: %s", c.TotalDebt)
	}
}

func TestApplyDiscountReducesRemaining(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()

	id, _ := s.CreateClient(ctx, "Сидоров", "", "", dec("5000"))
	s.AddPayment(ctx, &models.Payment{ClientID: id, Amount: dec("1000"), PaymentDate: "01.01.2024"})

	remaining, err := s.ApplyDiscount(ctx, id, dec("500"))
	if err != nil {
		t.Fatalf("apply discount: %v", err)
	}
	if !remaining.Equal(dec("3500")) {
		t.Errorf("got %s, want 3500", remaining)
	}
}

func TestDeleteClientCascades(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()

	id, _ := s.CreateClient(ctx, "Иванов", "", "", dec("1000"))
	other, _ := s.CreateClient(ctx, "Петров", "", "", dec("2000"))
	s.AddPayment(ctx, &models.Payment{ClientID: id, Amount: dec("100"), PaymentDate: "01.01.2024"})
	s.AddPayment(ctx, &models.Payment{ClientID: id, Amount: dec("200"), PaymentDate: "02.01.2024"})
	s.AddPayment(ctx, &models.Payment{ClientID: other, Amount: dec("300"), PaymentDate: "03.01.2024"})

	if err := s.DeleteClient(ctx, id); err != nil {
		t.Fatalf("delete client: %v", err)
	}

	rows, _ := s.ListPayments(ctx)
	for _, p := range rows {
		if p.ClientID == id {
			t.Errorf("orphaned payment %d still references deleted client", p.ID)
		}
	}
	if len(rows) != 1 {
		t.Errorf("expected 1 surviving payment, got %d", len(rows))
	}
}

func TestAddManualPayment(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()

	id, _ := s.CreateClient(ctx, "Иванов", "", "", dec("4000"))
	if _, err := s.AddManualPayment(ctx, id, dec("250"), "05.03.2024", "наличные"); err != nil {
		t.Fatalf("add manual payment: %v", err)
	}

	rows, _ := s.ListPayments(ctx)
	if len(rows) != 1 {
		t.Fatalf("expected 1 payment, got %d", len(rows))
	}
	p := rows[0]
	if !p.IsManual {
		t.Error("manual payment must carry the manual flag")
	}
	if p.Fingerprint != "" {
		t.Errorf("manual payment must have empty fingerprint, got %q", p.Fingerprint)
	}
	if p.Excerpt != "Manual payment: наличные" {
		t.Errorf("description should be embedded in excerpt, got %q", p.Excerpt)
	}

	remaining, _ := s.RemainingDebt(ctx, id)
	if !remaining.Equal(dec("3750")) {
		t.Errorf("remaining: got %s, want 3750", remaining)
	}
}

func TestFindClientFilters(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()

	a, _ := s.CreateClient(ctx, "Иванов Иван", "89161234567", "", dec("100"))
	b, _ := s.CreateClient(ctx, "Иванов Иван", "89990000000", "", dec("200"))

	// A non-empty phone must match exactly.
	c, err := s.FindClient(ctx, "Иванов Иван", "89990000000", "")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if c.ID != b {
		t.Errorf("got client %d, want %d", c.ID, b)
	}

	// An empty phone does not filter: the same name collapses onto the
	// first record. Documented ambiguity, not a bug.
	c, err = s.FindClient(ctx, "Иванов Иван", "", "")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if c.ID != a {
		t.Errorf("got client %d, want %d", c.ID, a)
	}

	if _, err := s.FindClient(ctx, "Никто", "", ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestHasFingerprint(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()

	id, _ := s.CreateClient(ctx, "Иванов", "", "", dec("1000"))
	s.AddPayment(ctx, &models.Payment{
		ClientID: id, Amount: dec("10"), PaymentDate: "01.01.2024", Fingerprint: "abc123",
	})
	s.AddManualPayment(ctx, id, dec("20"), "02.01.2024", "")
	s.AddManualPayment(ctx, id, dec("30"), "03.01.2024", "")

	if ok, _ := s.HasFingerprint(ctx, "abc123"); !ok {
		t.Error("known fingerprint not found")
	}
	if ok, _ := s.HasFingerprint(ctx, "other"); ok {
		t.Error("unknown fingerprint reported as existing")
	}
	// Repeated empty fingerprints (manual entries) never collide.
	if ok, _ := s.HasFingerprint(ctx, ""); ok {
		t.Error("empty fingerprint must never be a duplicate")
	}
}

func TestBuildClientUpdate(t *testing.T) {
	fio := "Новое Имя"
	debt := dec("1234.50")

	set, args := buildClientUpdate(ClientUpdate{FIO: &fio, TotalDebt: &debt})
	if set != "fio = $2, total_debt = $3" {
		t.Errorf("set clause: got %q", set)
	}
	if len(args) != 3 || args[1] != "Новое Имя" || args[2] != "1234.5" {
		t.Errorf("args: got %v", args)
	}

	set, args = buildClientUpdate(ClientUpdate{})
	if set != "" || len(args) != 1 {
		t.Errorf("empty update: got %q / %v", set, args)
	}
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()

	a, _ := s.CreateClient(ctx, "A", "", "", dec("100"))
	b, _ := s.CreateClient(ctx, "B", "", "", dec("200"))
	s.AddPayment(ctx, &models.Payment{ClientID: a, Amount: dec("10"), PaymentDate: "01.01.2024"})
	s.AddPayment(ctx, &models.Payment{ClientID: b, Amount: dec("15.50"), PaymentDate: "02.01.2024"})

	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st.Clients != 2 || st.Payments != 2 {
		t.Errorf("counts: got %d clients / %d payments", st.Clients, st.Payments)
	}
	if !st.TotalAmount.Equal(dec("25.50")) {
		t.Errorf("total: got %s, want 25.50", st.TotalAmount)
	}
}
