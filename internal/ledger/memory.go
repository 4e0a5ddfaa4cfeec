package ledger

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/insightdelivered/receipt-ledger/internal/models"
)

// MemStore is an in-memory ledger with the same semantics as Store. It backs
// headless tests and demo runs; data is lost on restart — use the
// Postgres-backed Store for anything real.
type MemStore struct {
	mu         sync.RWMutex
	clients    map[int64]*models.Client
	payments   map[int64]*models.Payment
	nextClient int64
	nextPay    int64

	// Unavailable simulates a dead store connection: when set, every call
	// fails with this error.
	Unavailable error
}

// NewMemStore returns an empty in-memory ledger.
func NewMemStore() *MemStore {
	return &MemStore{
		clients:    make(map[int64]*models.Client),
		payments:   make(map[int64]*models.Payment),
		nextClient: 1,
		nextPay:    1,
	}
}

func (s *MemStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Unavailable
}

func (s *MemStore) CreateClient(ctx context.Context, fio, phone, account string, totalDebt decimal.Decimal) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Unavailable != nil {
		return 0, s.Unavailable
	}
	id := s.nextClient
	s.nextClient++
	s.clients[id] = &models.Client{
		ID: id, FIO: fio, Phone: phone, Account: account,
		TotalDebt: totalDebt, CreatedAt: time.Now(),
	}
	return id, nil
}

func (s *MemStore) GetClient(ctx context.Context, id int64) (*models.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.Unavailable != nil {
		return nil, s.Unavailable
	}
	c, ok := s.clients[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *MemStore) FindClient(ctx context.Context, fio, phone, account string) (*models.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.Unavailable != nil {
		return nil, s.Unavailable
	}
	var match *models.Client
	for _, c := range s.clients {
		if c.FIO != fio {
			continue
		}
		if phone != "" && c.Phone != phone {
			continue
		}
		if account != "" && c.Account != account {
			continue
		}
		if match == nil || c.ID < match.ID {
			match = c
		}
	}
	if match == nil {
		return nil, ErrNotFound
	}
	cp := *match
	return &cp, nil
}

func (s *MemStore) UpdateClient(ctx context.Context, id int64, upd ClientUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Unavailable != nil {
		return s.Unavailable
	}
	c, ok := s.clients[id]
	if !ok {
		return ErrNotFound
	}
	if upd.FIO != nil {
		c.FIO = *upd.FIO
	}
	if upd.Phone != nil {
		c.Phone = *upd.Phone
	}
	if upd.Account != nil {
		c.Account = *upd.Account
	}
	if upd.TotalDebt != nil {
		c.TotalDebt = *upd.TotalDebt
	}
	return nil
}

func (s *MemStore) DeleteClient(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Unavailable != nil {
		return s.Unavailable
	}
	if _, ok := s.clients[id]; !ok {
		return ErrNotFound
	}
	delete(s.clients, id)
	for pid, p := range s.payments {
		if p.ClientID == id {
			delete(s.payments, pid)
		}
	}
	return nil
}

func (s *MemStore) AddPayment(ctx context.Context, p *models.Payment) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Unavailable != nil {
		return 0, s.Unavailable
	}
	if _, ok := s.clients[p.ClientID]; !ok {
		return 0, ErrNotFound
	}
	id := s.nextPay
	s.nextPay++
	cp := *p
	cp.ID = id
	cp.CreatedAt = time.Now()
	s.payments[id] = &cp
	return id, nil
}

func (s *MemStore) AddManualPayment(ctx context.Context, clientID int64, amount decimal.Decimal, paymentDate, description string) (int64, error) {
	return s.AddPayment(ctx, &models.Payment{
		ClientID:    clientID,
		Amount:      amount,
		PaymentDate: paymentDate,
		Excerpt:     "Manual payment: " + description,
		BankName:    "Manual entry",
		IsManual:    true,
	})
}

func (s *MemStore) DeletePayment(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Unavailable != nil {
		return s.Unavailable
	}
	if _, ok := s.payments[id]; !ok {
		return ErrNotFound
	}
	delete(s.payments, id)
	return nil
}

func (s *MemStore) ApplyDiscount(ctx context.Context, clientID int64, amount decimal.Decimal) (decimal.Decimal, error) {
	s.mu.Lock()
	if s.Unavailable != nil {
		s.mu.Unlock()
		return decimal.Zero, s.Unavailable
	}
	c, ok := s.clients[clientID]
	if !ok {
		s.mu.Unlock()
		return decimal.Zero, ErrNotFound
	}
	c.TotalDebt = c.TotalDebt.Sub(amount)
	if c.TotalDebt.IsNegative() {
		c.TotalDebt = decimal.Zero
	}
	s.mu.Unlock()
	return s.RemainingDebt(ctx, clientID)
}

func (s *MemStore) RemainingDebt(ctx context.Context, clientID int64) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.Unavailable != nil {
		return decimal.Zero, s.Unavailable
	}
	c, ok := s.clients[clientID]
	if !ok {
		return decimal.Zero, ErrNotFound
	}
	remaining := c.TotalDebt
	for _, p := range s.payments {
		if p.ClientID == clientID {
			remaining = remaining.Sub(p.Amount)
		}
	}
	return remaining, nil
}

func (s *MemStore) HasFingerprint(ctx context.Context, fp string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.Unavailable != nil {
		return false, s.Unavailable
	}
	if fp == "" {
		return false, nil
	}
	for _, p := range s.payments {
		if p.Fingerprint == fp {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemStore) ListClients(ctx context.Context) ([]models.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.Unavailable != nil {
		return nil, s.Unavailable
	}
	out := make([]models.Client, 0, len(s.clients))
	for _, c := range s.clients {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FIO < out[j].FIO })
	return out, nil
}

func (s *MemStore) ListPayments(ctx context.Context) ([]models.PaymentRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.Unavailable != nil {
		return nil, s.Unavailable
	}
	out := make([]models.PaymentRow, 0, len(s.payments))
	for _, p := range s.payments {
		row := models.PaymentRow{Payment: *p}
		if c, ok := s.clients[p.ClientID]; ok {
			row.FIO = c.FIO
		}
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PaymentDate != out[j].PaymentDate {
			return strings.Compare(out[i].PaymentDate, out[j].PaymentDate) > 0
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (s *MemStore) ClientSummaries(ctx context.Context) ([]models.ClientSummary, error) {
	clients, err := s.ListClients(ctx)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.ClientSummary, 0, len(clients))
	for _, c := range clients {
		cs := models.ClientSummary{Client: c, Paid: decimal.Zero}
		for _, p := range s.payments {
			if p.ClientID == c.ID {
				cs.Paid = cs.Paid.Add(p.Amount)
				cs.PaymentCount++
			}
		}
		cs.RemainingDebt = c.TotalDebt.Sub(cs.Paid)
		out = append(out, cs)
	}
	return out, nil
}

func (s *MemStore) Stats(ctx context.Context) (models.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.Unavailable != nil {
		return models.Stats{}, s.Unavailable
	}
	st := models.Stats{Clients: len(s.clients), Payments: len(s.payments), TotalAmount: decimal.Zero}
	for _, p := range s.payments {
		st.TotalAmount = st.TotalAmount.Add(p.Amount)
	}
	return st, nil
}
