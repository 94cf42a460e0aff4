package logger

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestEachPairDropsDanglingKey(t *testing.T) {
	var keys []string
	eachPair([]any{"a", 1, 2, "two", "dangling"}, func(k string, v any) {
		keys = append(keys, k)
	})
	if strings.Join(keys, ",") != "a,2" {
		t.Fatalf("unexpected keys %v", keys)
	}
}

func TestZapLoggerFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewZapLogger(zap.New(core))
	l.Info("role changed", "actor", "root", "retries", 2, "global", true)
	l.Error("audit write failed", "error", errors.New("disk full"))

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	ctx := entries[0].ContextMap()
	if ctx["actor"] != "root" || ctx["retries"] != int64(2) || ctx["global"] != true {
		t.Fatalf("unexpected fields %v", ctx)
	}
	if entries[1].Level != zapcore.ErrorLevel || entries[1].ContextMap()["error"] != "disk full" {
		t.Fatalf("unexpected error entry %+v", entries[1])
	}
}

func TestZapLoggerNilIsNop(t *testing.T) {
	l := NewZapLogger(nil)
	l.Debug("ignored")
	if err := l.Sync(); err != nil {
		t.Fatalf("sync: %v", err)
	}
}

func TestSLogLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewSLogLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})))
	l.Debug("hidden", "k", "v")
	l.Info("shown", "workspace", "ws-a")
	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "workspace=ws-a") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestNullLogger(t *testing.T) {
	var l Logger = NewNullLogger()
	l.Info("nothing", "k", "v")
}
