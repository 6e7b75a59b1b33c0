package monitoring

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestSetLogger(t *testing.T) {
	original := Logger()
	defer SetLogger(&original)

	var buf bytes.Buffer
	custom := zerolog.New(&buf)
	SetLogger(&custom)

	l := Logger()
	l.Info().Msg("test message")
	if !strings.Contains(buf.String(), "test message") {
		t.Errorf("custom logger was not used, got %q", buf.String())
	}

	// nil mutes logging
	buf.Reset()
	SetLogger(nil)
	l = Logger()
	l.Info().Msg("should be dropped")
	if buf.Len() != 0 {
		t.Errorf("no-op logger wrote output: %q", buf.String())
	}
}

func TestLogger_Default(t *testing.T) {
	defer func() {
		if r := recover(); r != nil {
			t.Errorf("Logger panicked: %v", r)
		}
	}()
	l := Logger()
	l.Debug().Str("key", "value").Msg("test message")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    zerolog.Level
		wantErr bool
	}{
		{"", zerolog.InfoLevel, false},
		{"trace", zerolog.TraceLevel, false},
		{"debug", zerolog.DebugLevel, false},
		{"error", zerolog.ErrorLevel, false},
		{"loud", zerolog.NoLevel, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseLevel(%q) expected error", tt.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseLevel(%q) unexpected error: %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
