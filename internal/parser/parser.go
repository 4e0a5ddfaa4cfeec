// Package parser turns the free-form text of a bank-transfer receipt into
// typed fields: payer name, amount, date, phone, account suffix.
//
// Extraction is pattern-driven: each recognized field has an ordered list of
// candidate regexes (most specific first) and the first match wins. Fields
// that nothing matches are simply absent — a partial result is normal, the
// pipeline decides what is fatal.
package parser

import (
	"strings"

	"github.com/insightdelivered/receipt-ledger/internal/models"
	"github.com/insightdelivered/receipt-ledger/internal/patterns"
)

// DetectSource identifies which pattern group a receipt belongs to by
// scanning for institution markers, case-insensitively. It always resolves:
// text with no recognizable marker falls back to the default group, because
// extraction tolerates partial results and a wrong group simply extracts
// nothing.
func DetectSource(text string, cfg *patterns.Config) models.SourceID {
	lower := strings.ToLower(text)
	for id, group := range cfg.Groups {
		if id == cfg.Default {
			continue
		}
		for _, marker := range group.Markers {
			if strings.Contains(lower, strings.ToLower(marker)) {
				return id
			}
		}
	}
	return cfg.Default
}

// Extractor applies a pattern configuration to receipt text.
type Extractor struct {
	cfg *patterns.Config
}

// NewExtractor returns an extractor over the given (immutable) pattern
// configuration.
func NewExtractor(cfg *patterns.Config) *Extractor {
	return &Extractor{cfg: cfg}
}

// Extract applies the source's pattern lists to the text and returns the
// normalized fields. The first pattern in a field's list that matches wins;
// only the first capture group is kept, whitespace-trimmed.
func (e *Extractor) Extract(text string, source models.SourceID) models.Entities {
	group := e.cfg.Group(source)

	raw := make(map[patterns.Field]string)
	for _, field := range patterns.Fields {
		for _, re := range group.Fields[field] {
			// len check guards against patterns without a capture group.
			if m := re.FindStringSubmatch(text); len(m) > 1 {
				raw[field] = strings.TrimSpace(m[1])
				break
			}
		}
	}

	ent := models.Entities{
		Source:   source,
		Sender:   raw[patterns.FieldSender],
		Receiver: raw[patterns.FieldReceiver],
		Account:  raw[patterns.FieldAccount],
	}

	if v, ok := raw[patterns.FieldAmount]; ok {
		ent.Amount = NormalizeAmount(v)
	}
	if v, ok := raw[patterns.FieldPhone]; ok {
		ent.Phone = NormalizePhone(v)
	}
	if v, ok := raw[patterns.FieldDate]; ok {
		ent.Date = NormalizeDate(v)
	}

	// The canonical identity is the sender when present, else the receiver.
	if ent.Sender != "" {
		ent.FIO = ent.Sender
	} else if ent.Receiver != "" {
		ent.FIO = ent.Receiver
	}

	return ent
}
