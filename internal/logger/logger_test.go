package logger

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewLevels(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"WARN", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
		{"nonsense", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		if got := New(tt.in).GetLevel(); got != tt.want {
			t.Errorf("New(%q): got level %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestNewWithWriter(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf)
	log.Info().Str("document", "receipt.pdf").Msg("processed")

	out := buf.String()
	if !strings.Contains(out, "receipt.pdf") || !strings.Contains(out, "processed") {
		t.Errorf("unexpected output: %s", out)
	}
}
