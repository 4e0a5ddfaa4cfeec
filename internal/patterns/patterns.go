// Package patterns holds the per-source field extraction patterns.
//
// A Config is built once at startup (either the built-in set or a YAML
// file) and passed into the extractor; it is never mutated afterwards.
package patterns

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/insightdelivered/receipt-ledger/internal/models"
)

// Field names the receipt attributes the extractor recognizes.
type Field string

const (
	FieldSender   Field = "sender"
	FieldReceiver Field = "receiver"
	FieldAmount   Field = "amount"
	FieldDate     Field = "date"
	FieldPhone    Field = "phone"
	FieldAccount  Field = "account"
)

// Fields lists all recognized fields in extraction order.
var Fields = []Field{FieldSender, FieldReceiver, FieldAmount, FieldDate, FieldPhone, FieldAccount}

// Group is one institution's pattern set. Patterns per field are ordered
// from most specific to most generic; the first match wins.
type Group struct {
	Markers []string
	Fields  map[Field][]*regexp.Regexp
}

// Config maps source identifiers to their pattern groups.
type Config struct {
	Default models.SourceID
	Groups  map[models.SourceID]Group
}

// Group returns the pattern group for a source, falling back to the default
// group for unknown sources so that extraction always has patterns to try.
func (c *Config) Group(id models.SourceID) Group {
	if g, ok := c.Groups[id]; ok {
		return g
	}
	return c.Groups[c.Default]
}

// Default returns the built-in pattern configuration: a single group for
// receipts in the Sber layout family.
func Default() *Config {
	return &Config{
		Default: models.SourceSber,
		Groups: map[models.SourceID]Group{
			models.SourceSber: {
				Markers: []string{"сбер", "sber"},
				Fields: map[Field][]*regexp.Regexp{
					FieldSender: compileAll(
						`ФИО отправителя\s*([^\n]+)`,
						`Отправитель[:\s]*([^\n]+)`,
						`ФИО[^\n]*отправителя[^\n]*([А-ЯЁ][а-яё]+(?:\s+[А-ЯЁ][а-яё]+)+)`,
					),
					FieldReceiver: compileAll(
						`ФИО получателя\s*([^\n]+)`,
						`Получатель[:\s]*([^\n]+)`,
						`ФИО[^\n]*получателя[^\n]*([А-ЯЁ][а-яё]+(?:\s+[А-ЯЁ][а-яё]+)+)`,
					),
					// \x{00A0}: receipts separate digit groups with NBSP,
					// which RE2's ASCII-only \s does not match.
					FieldAmount: compileAll(
						`Сумма перевода\s*([\d\s\x{00A0}]+[,\.]\d{2})`,
						`Сумма[^\d]*([\d\s\x{00A0}]+[,\.]\d{2})[\s\x{00A0}]*₽`,
						`([\d\s\x{00A0}]+[,\.]\d{2})[\s\x{00A0}]*₽`,
						`Перевод[^\d]*([\d\s\x{00A0}]+[,\.]\d{2})`,
					),
					FieldDate: compileAll(
						`(\d{1,2}[\s\x{00A0}]+(?:января|февраля|марта|апреля|мая|июня|июля|августа|сентября|октября|ноября|декабря)[\s\x{00A0}]+\d{4})`,
						`(\d{1,2}\.\d{1,2}\.\d{4})`,
						`Дата[:\s]*(\d{1,2}\.\d{1,2}\.\d{4})`,
					),
					FieldPhone: compileAll(
						`Телефон[^\n]*?(\+7[\s\x{00A0}\(\-]?\d{3}[\s\x{00A0}\)\-]?\d{3}[\s\x{00A0}\-]?\d{2}[\s\x{00A0}\-]?\d{2})`,
						`тел[\.:\s]*([\+7|8][\s\x{00A0}\(\-]?\d{3}[\s\x{00A0}\)\-]?\d{3}[\s\x{00A0}\-]?\d{2}[\s\x{00A0}\-]?\d{2})`,
					),
					FieldAccount: compileAll(
						`Счёт отправителя[^\d]*[\*]*\s*(\d{4})`,
						`Номер карты получателя[^\d]*[\*]*\s*(\d{4})`,
						`отправителя[^\d]*[\*]*\s*(\d{4})`,
					),
				},
			},
		},
	}
}

// compileAll compiles patterns case-insensitively. Only used for the
// built-in set, so a bad pattern is a programming error.
func compileAll(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(exprs))
	for _, e := range exprs {
		out = append(out, regexp.MustCompile(`(?i)`+e))
	}
	return out
}

// fileConfig is the YAML shape of a pattern file.
type fileConfig struct {
	Default string `yaml:"default"`
	Sources map[string]struct {
		Markers []string            `yaml:"markers"`
		Fields  map[string][]string `yaml:"fields"`
	} `yaml:"sources"`
}

// LoadFile reads a pattern configuration from a YAML file. Each pattern is
// compiled case-insensitively; the first capture group of a match is the
// extracted value, so a pattern without a capture group is rejected.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("patterns: read %s: %w", path, err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("patterns: parse %s: %w", path, err)
	}
	if len(fc.Sources) == 0 {
		return nil, fmt.Errorf("patterns: %s defines no sources", path)
	}

	cfg := &Config{
		Default: models.SourceID(fc.Default),
		Groups:  make(map[models.SourceID]Group, len(fc.Sources)),
	}
	for name, src := range fc.Sources {
		g := Group{Markers: src.Markers, Fields: make(map[Field][]*regexp.Regexp)}
		for field, exprs := range src.Fields {
			for _, e := range exprs {
				re, err := regexp.Compile(`(?i)` + e)
				if err != nil {
					return nil, fmt.Errorf("patterns: %s/%s: %w", name, field, err)
				}
				if re.NumSubexp() == 0 {
					return nil, fmt.Errorf("patterns: %s/%s: pattern %q has no capture group", name, field, e)
				}
				g.Fields[Field(field)] = append(g.Fields[Field(field)], re)
			}
		}
		cfg.Groups[models.SourceID(name)] = g
		if cfg.Default == "" {
			cfg.Default = models.SourceID(name)
		}
	}
	if _, ok := cfg.Groups[cfg.Default]; !ok {
		return nil, fmt.Errorf("patterns: default source %q not defined in %s", cfg.Default, path)
	}
	return cfg, nil
}
