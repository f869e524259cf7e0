package logger

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestLoggerErrorIncludesContextFields(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Level: ParseLevel("debug"), Output: buf})

	ctx := context.Background()
	ctx = log.WithRequestID(ctx, "req-123")
	ctx = log.WithVendorID(ctx, "vendor-9")

	log.Error(ctx, "boom", errors.New("boom"))

	if !bytes.Contains(buf.Bytes(), []byte("\"request_id\"")) {
		t.Fatalf("expected request_id to be preserved; entry=%s", buf.String())
	}
	if !bytes.Contains(buf.Bytes(), []byte("\"vendor_id\":\"vendor-9\"")) {
		t.Fatalf("expected vendor_id to be preserved; entry=%s", buf.String())
	}
	if !bytes.Contains(buf.Bytes(), []byte("\"stack\"")) {
		t.Fatalf("expected stack trace on error; entry=%s", buf.String())
	}
}

func TestLoggerWarnStackToggle(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Level: ParseLevel("debug"), Output: buf, WarnStack: true})
	log.Warn(context.Background(), "warny")
	if !bytes.Contains(buf.Bytes(), []byte("\"stack\"")) {
		t.Fatalf("expected stack when warn stack enabled")
	}
}

func TestLoggerFieldsDoNotLeakAcrossContexts(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Level: ParseLevel("info"), Output: buf})

	base := context.Background()
	_ = log.WithOrderID(base, "order-1")
	log.Info(base, "plain")

	if bytes.Contains(buf.Bytes(), []byte("order_id")) {
		t.Fatalf("order_id leaked into parent context: %s", buf.String())
	}
}

func TestParseLevelDefaults(t *testing.T) {
	if lvl := ParseLevel(""); lvl != zerolog.InfoLevel {
		t.Fatalf("expected default info level, got %v", lvl)
	}
	if lvl := ParseLevel("invalid"); lvl != zerolog.InfoLevel {
		t.Fatalf("invalid level should fallback to info, got %v", lvl)
	}
	if lvl := ParseLevel(" WARN "); lvl != zerolog.WarnLevel {
		t.Fatalf("expected warn level, got %v", lvl)
	}
}

func TestLoggerFormatOption(t *testing.T) {
	t.Setenv("STOREFRONT_LOG_FORMAT", "console")

	buf := &bytes.Buffer{}
	New(Options{ServiceName: "test", Output: buf}).Info(context.Background(), "settled")
	if bytes.HasPrefix(bytes.TrimSpace(buf.Bytes()), []byte("{")) {
		t.Fatalf("expected console output from env; entry=%s", buf.String())
	}

	buf.Reset()
	New(Options{ServiceName: "test", Output: buf, Format: "json"}).Info(context.Background(), "settled")
	if !bytes.HasPrefix(bytes.TrimSpace(buf.Bytes()), []byte("{")) {
		t.Fatalf("explicit json format should win over env; entry=%s", buf.String())
	}
}

func TestLoggerWithFieldsIsOrdered(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Output: buf, Format: "json"})
	ctx := log.WithFields(context.Background(), map[string]any{
		"pending_cents": 300,
		"balance_cents": 700,
		"ledger_sum":    1000,
	})
	log.Info(ctx, "wallet checked")

	line := buf.String()
	b := strings.Index(line, "balance_cents")
	l := strings.Index(line, "ledger_sum")
	p := strings.Index(line, "pending_cents")
	if b < 0 || b > l || l > p {
		t.Fatalf("expected sorted field order; entry=%s", line)
	}
}
