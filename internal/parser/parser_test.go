package parser

import (
	"regexp"
	"testing"

	"github.com/insightdelivered/receipt-ledger/internal/models"
	"github.com/insightdelivered/receipt-ledger/internal/patterns"
)

const sampleReceipt = `Сбербанк
Чек по операции
5 марта 2024 14:32:11
ФИО отправителя Иванов Иван Иванович
ФИО получателя Петров Петр Петрович
Телефон получателя +7 916 123 45 67
Счёт отправителя **** 1234
Сумма перевода 1 000,00 ₽
`

func TestDetectSource(t *testing.T) {
	cfg := patterns.Default()

	tests := []struct {
		name string
		text string
	}{
		{"sber marker", "Сбербанк Онлайн\nЧек по операции"},
		{"latin marker", "SBER bank receipt"},
		{"no marker falls back to default", "какой-то другой банк"},
		{"empty text", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Classification never fails: today every text resolves to the
			// single configured group.
			if got := DetectSource(tt.text, cfg); got != models.SourceSber {
				t.Errorf("DetectSource: got %q, want %q", got, models.SourceSber)
			}
		})
	}
}

func TestExtract(t *testing.T) {
	ex := NewExtractor(patterns.Default())

	ent := ex.Extract(sampleReceipt, models.SourceSber)

	if ent.Sender != "Иванов Иван Иванович" {
		t.Errorf("sender: got %q", ent.Sender)
	}
	if ent.FIO != "Иванов Иван Иванович" {
		t.Errorf("fio should come from sender: got %q", ent.FIO)
	}
	if ent.Amount.String() != "1000" {
		t.Errorf("amount: got %s, want 1000", ent.Amount)
	}
	if ent.Date != "05.03.2024" {
		t.Errorf("date: got %q, want 05.03.2024", ent.Date)
	}
	if ent.Phone != "89161234567" {
		t.Errorf("phone: got %q, want 89161234567", ent.Phone)
	}
	if ent.Account != "1234" {
		t.Errorf("account: got %q, want 1234", ent.Account)
	}
}

func TestExtractReceiverFallback(t *testing.T) {
	ex := NewExtractor(patterns.Default())

	text := "ФИО получателя Петров Петр\nСумма перевода 500,00"
	ent := ex.Extract(text, models.SourceSber)

	if ent.Sender != "" {
		t.Errorf("sender should be absent, got %q", ent.Sender)
	}
	if ent.FIO != "Петров Петр" {
		t.Errorf("fio should fall back to receiver: got %q", ent.FIO)
	}
}

func TestExtractPartialResult(t *testing.T) {
	ex := NewExtractor(patterns.Default())

	// Missing fields are absent, not errors.
	ent := ex.Extract("ничего знакомого в этом тексте нет", models.SourceSber)

	if ent.HasIdentity() {
		t.Errorf("expected no identity, got %q", ent.FIO)
	}
	if ent.HasAmount() {
		t.Errorf("expected no amount, got %s", ent.Amount)
	}
	if ent.Phone != "" || ent.Account != "" || ent.Date != "" {
		t.Error("expected all fields absent")
	}
}

func TestExtractFirstPatternWins(t *testing.T) {
	ex := NewExtractor(patterns.Default())

	// Both the specific "Сумма перевода" pattern and the generic "₽" pattern
	// match; the specific one is listed first and must win.
	text := "Сумма перевода 2 500,00\nКомиссия 45,00 ₽"
	ent := ex.Extract(text, models.SourceSber)

	if ent.Amount.String() != "2500" {
		t.Errorf("amount: got %s, want 2500 (most specific pattern first)", ent.Amount)
	}
}

func TestExtractUnparseableAmount(t *testing.T) {
	ex := NewExtractor(patterns.Default())

	ent := ex.Extract(sampleReceipt, models.SourceSber)
	if !ent.HasAmount() {
		t.Fatal("sample receipt should have a positive amount")
	}

	// A matched-but-unparseable amount degrades to zero, which callers must
	// treat as extraction failure.
	if got := NormalizeAmount("12,34,56"); !got.IsZero() {
		t.Errorf("expected zero for unparseable amount, got %s", got)
	}
}

func TestExtractNbspSeparators(t *testing.T) {
	ex := NewExtractor(patterns.Default())

	// Receipts separate digit groups (and sometimes date words) with NBSP.
	text := "Сбербанк\n" +
		"ФИО отправителя Иванов Иван Иванович\n" +
		"Сумма перевода 1 000,00 ₽\n" +
		"5 марта 2024\n" +
		"Телефон получателя +7 916 123 45 67\n"
	ent := ex.Extract(text, models.SourceSber)

	if ent.Amount.String() != "1000" {
		t.Errorf("amount: got %s, want 1000", ent.Amount)
	}
	if ent.Date != "05.03.2024" {
		t.Errorf("date: got %q", ent.Date)
	}
	if ent.Phone != "89161234567" {
		t.Errorf("phone: got %q", ent.Phone)
	}
}

func TestExtractPatternWithoutGroup(t *testing.T) {
	// A programmatically built config may carry a pattern with no capture
	// group; a match then yields nothing instead of panicking.
	cfg := &patterns.Config{
		Default: models.SourceSber,
		Groups: map[models.SourceID]patterns.Group{
			models.SourceSber: {
				Fields: map[patterns.Field][]*regexp.Regexp{
					patterns.FieldAmount: {regexp.MustCompile(`\d+,\d{2}`)},
				},
			},
		},
	}
	ent := NewExtractor(cfg).Extract("Сумма перевода 1000,00", models.SourceSber)
	if !ent.Amount.IsZero() {
		t.Errorf("amount: got %s, want zero", ent.Amount)
	}
}
