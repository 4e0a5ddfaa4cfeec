package resolver

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/insightdelivered/receipt-ledger/internal/ledger"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestResolveExistingClient(t *testing.T) {
	ctx := context.Background()
	store := ledger.NewMemStore()
	id, _ := store.CreateClient(ctx, "Иванов Иван", "89161234567", "", dec("5000"))

	confirmCalled := false
	r := New(store, func(name string) Decision {
		confirmCalled = true
		return Decision{}
	})

	client, err := r.Resolve(ctx, "Иванов Иван", "89161234567", "")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if client.ID != id {
		t.Errorf("got client %d, want %d", client.ID, id)
	}
	if confirmCalled {
		t.Error("confirmation must not be asked for a known client")
	}
}

func TestResolveCreatesWithConfirmation(t *testing.T) {
	ctx := context.Background()
	store := ledger.NewMemStore()

	var asked string
	r := New(store, func(name string) Decision {
		asked = name
		return Decision{Accept: true, BaselineDebt: dec("5000")}
	})

	client, err := r.Resolve(ctx, "Иванов Иван", "", "")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if asked != "Иванов Иван" {
		t.Errorf("operator asked about %q", asked)
	}
	if !client.TotalDebt.Equal(dec("5000")) {
		t.Errorf("baseline: got %s, want 5000", client.TotalDebt)
	}

	stored, err := store.GetClient(ctx, client.ID)
	if err != nil {
		t.Fatalf("created client not in store: %v", err)
	}
	if stored.FIO != "Иванов Иван" {
		t.Errorf("stored name: got %q", stored.FIO)
	}
}

func TestResolveDeclined(t *testing.T) {
	ctx := context.Background()
	store := ledger.NewMemStore()

	r := New(store, func(name string) Decision {
		return Decision{Accept: false}
	})

	_, err := r.Resolve(ctx, "Неизвестный", "", "")
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("expected ErrRejected, got %v", err)
	}

	// A decline must leave no side effects.
	clients, _ := store.ListClients(ctx)
	if len(clients) != 0 {
		t.Errorf("decline created %d clients", len(clients))
	}
}

func TestResolveStoreError(t *testing.T) {
	ctx := context.Background()
	store := ledger.NewMemStore()
	store.Unavailable = errors.New("connection refused")

	r := New(store, func(name string) Decision {
		t.Error("confirmation must not be asked when the store fails")
		return Decision{}
	})

	if _, err := r.Resolve(ctx, "Иванов", "", ""); err == nil {
		t.Fatal("expected error from unavailable store")
	}
}
