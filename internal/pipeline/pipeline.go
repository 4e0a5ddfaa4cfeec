// Package pipeline orchestrates receipt reconciliation: fingerprint,
// dedupe, extract, resolve the client, append the payment, recompute the
// balance. Failures are local to a document; a batch never aborts unless
// the store connection itself is gone.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/insightdelivered/receipt-ledger/internal/models"
	"github.com/insightdelivered/receipt-ledger/internal/parser"
	"github.com/insightdelivered/receipt-ledger/internal/patterns"
	"github.com/insightdelivered/receipt-ledger/internal/resolver"
)

// ErrStoreUnavailable signals that the store connection is dead, not just
// one operation failed. It aborts the remaining documents of a batch.
var ErrStoreUnavailable = errors.New("pipeline: store unavailable")

// excerptLimit bounds the audit excerpt stored with each payment.
const excerptLimit = 500

// TextExtractor converts raw document bytes into text. An empty result is
// not an error from the extractor's point of view; the pipeline maps it to
// a failed-extraction outcome.
type TextExtractor interface {
	ExtractText(data []byte) (string, error)
}

// Store is the slice of the ledger the pipeline needs.
type Store interface {
	Ping(ctx context.Context) error
	HasFingerprint(ctx context.Context, fp string) (bool, error)
	AddPayment(ctx context.Context, p *models.Payment) (int64, error)
	RemainingDebt(ctx context.Context, clientID int64) (decimal.Decimal, error)
}

// ClientResolver maps an extracted identity to a client record, possibly
// asking a human first.
type ClientResolver interface {
	Resolve(ctx context.Context, fio, phone, account string) (*models.Client, error)
}

// Config wires a Processor.
type Config struct {
	Extractor TextExtractor
	Patterns  *patterns.Config
	Store     Store
	Resolver  ClientResolver
	Logger    zerolog.Logger
	Now       func() time.Time // defaults to time.Now
}

// Processor runs documents through the reconciliation pipeline, strictly
// one at a time.
type Processor struct {
	extractor TextExtractor
	patterns  *patterns.Config
	fields    *parser.Extractor
	store     Store
	resolver  ClientResolver
	log       zerolog.Logger
	now       func() time.Time
}

// New builds a Processor from its collaborators.
func New(cfg Config) *Processor {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Processor{
		extractor: cfg.Extractor,
		patterns:  cfg.Patterns,
		fields:    parser.NewExtractor(cfg.Patterns),
		store:     cfg.Store,
		resolver:  cfg.Resolver,
		log:       cfg.Logger,
		now:       now,
	}
}

// Fingerprint is the content hash used for deduplication. It is computed
// over the raw bytes, so byte-identical resubmissions are caught regardless
// of filename.
func Fingerprint(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ProcessDocument runs a single document to a terminal outcome. The
// duplicate check happens before any extraction work and before any side
// effect, which guarantees at-most-once ledger effect per distinct
// document.
func (p *Processor) ProcessDocument(ctx context.Context, name string, data []byte) Outcome {
	fp := Fingerprint(data)

	dup, err := p.store.HasFingerprint(ctx, fp)
	if err != nil {
		return p.failPersist(name, "duplicate check", err)
	}
	if dup {
		p.log.Info().Str("document", name).Msg("skipped duplicate")
		return Outcome{Document: name, Status: StatusSkippedDuplicate,
			Message: "skipped: already processed"}
	}

	text, err := p.extractor.ExtractText(data)
	if err != nil {
		p.log.Warn().Str("document", name).Err(err).Msg("text extraction failed")
		text = ""
	}
	if strings.TrimSpace(text) == "" {
		return Outcome{Document: name, Status: StatusFailedExtraction,
			Message: "failed to extract text from document"}
	}

	source := parser.DetectSource(text, p.patterns)
	ent := p.fields.Extract(text, source)

	if !ent.HasIdentity() {
		return Outcome{Document: name, Status: StatusFailedIdentity,
			Message: "failed to determine payer name"}
	}
	if !ent.HasAmount() {
		return Outcome{Document: name, Status: StatusFailedAmount,
			Message: "failed to determine payment amount"}
	}

	client, err := p.resolver.Resolve(ctx, ent.FIO, ent.Phone, ent.Account)
	if errors.Is(err, resolver.ErrRejected) {
		return Outcome{Document: name, Status: StatusSkippedByOperator, FIO: ent.FIO,
			Message: fmt.Sprintf("skipped by operator: %s", ent.FIO)}
	}
	if err != nil {
		return p.failPersist(name, "client resolution", err)
	}

	date := ent.Date
	if date == "" {
		date = p.now().Format("02.01.2006")
	}

	if _, err := p.store.AddPayment(ctx, &models.Payment{
		ClientID:    client.ID,
		Amount:      ent.Amount,
		PaymentDate: date,
		Excerpt:     truncate(text, excerptLimit),
		BankName:    string(source),
		Fingerprint: fp,
	}); err != nil {
		return p.failPersist(name, "payment insert", err)
	}

	out := Outcome{
		Document: name,
		Status:   StatusDone,
		FIO:      ent.FIO,
		Amount:   ent.Amount,
	}
	remaining, err := p.store.RemainingDebt(ctx, client.ID)
	if err != nil {
		// The payment is already recorded; report success but flag the
		// missing balance.
		p.log.Warn().Str("document", name).Err(err).Msg("balance recompute failed")
		out.Message = fmt.Sprintf("%s: payment %s rub. (balance unavailable)",
			ent.FIO, ent.Amount.StringFixed(2))
		return out
	}
	out.RemainingDebt = remaining
	out.Message = fmt.Sprintf("%s: payment %s rub. (remaining: %s rub.)",
		ent.FIO, ent.Amount.StringFixed(2), remaining.StringFixed(2))

	p.log.Info().
		Str("document", name).
		Str("fio", ent.FIO).
		Str("amount", ent.Amount.String()).
		Str("remaining", remaining.String()).
		Msg("payment recorded")
	return out
}

// Document is one batch item.
type Document struct {
	Name string
	Data []byte
}

// ProcessBatch processes documents strictly sequentially, collecting one
// outcome per document. An individual failure never aborts the batch; only
// a dead store connection does, in which case the outcomes gathered so far
// are returned together with ErrStoreUnavailable.
func (p *Processor) ProcessBatch(ctx context.Context, docs []Document) ([]Outcome, error) {
	batchID := uuid.NewString()
	log := p.log.With().Str("batch_id", batchID).Logger()
	log.Info().Int("documents", len(docs)).Msg("batch started")

	outcomes := make([]Outcome, 0, len(docs))
	for _, doc := range docs {
		out := p.ProcessDocument(ctx, doc.Name, doc.Data)
		outcomes = append(outcomes, out)

		if err := p.checkStoreAlive(ctx, log, out); err != nil {
			return outcomes, err
		}
	}
	log.Info().Int("processed", len(outcomes)).Msg("batch finished")
	return outcomes, nil
}

// ProcessFiles reads each path and runs it through the pipeline, returning
// one outcome per path in input order. An unreadable file is an input
// defect local to that document.
func (p *Processor) ProcessFiles(ctx context.Context, paths []string) ([]Outcome, error) {
	batchID := uuid.NewString()
	log := p.log.With().Str("batch_id", batchID).Logger()
	log.Info().Int("documents", len(paths)).Msg("batch started")

	outcomes := make([]Outcome, 0, len(paths))
	for _, path := range paths {
		name := filepath.Base(path)
		data, err := os.ReadFile(path)
		if err != nil {
			outcomes = append(outcomes, Outcome{
				Document: name,
				Status:   StatusFailedExtraction,
				Message:  fmt.Sprintf("file read error: %v", err),
			})
			continue
		}
		out := p.ProcessDocument(ctx, name, data)
		outcomes = append(outcomes, out)

		if err := p.checkStoreAlive(ctx, log, out); err != nil {
			return outcomes, err
		}
	}
	log.Info().Int("processed", len(outcomes)).Msg("batch finished")
	return outcomes, nil
}

// checkStoreAlive tells a one-off store error apart from a dead connection:
// only the latter aborts the rest of a batch.
func (p *Processor) checkStoreAlive(ctx context.Context, log zerolog.Logger, out Outcome) error {
	if out.Status != StatusFailedPersist {
		return nil
	}
	if err := p.store.Ping(ctx); err != nil {
		log.Error().Err(err).Msg("store unreachable, aborting batch")
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (p *Processor) failPersist(name, op string, err error) Outcome {
	p.log.Error().Str("document", name).Str("op", op).Err(err).Msg("store operation failed")
	return Outcome{Document: name, Status: StatusFailedPersist,
		Message: fmt.Sprintf("%s failed: %v", op, err)}
}

// truncate bounds s to n runes without splitting a multi-byte character.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
