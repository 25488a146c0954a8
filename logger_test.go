package tarik

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapLoggerForwardsFields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	logger := NewZapLogger(zap.New(core))

	logger.Debug("task enqueued", "id", "abc", "priority", 5)
	logger.Warn("cache set failed", "key", "k")

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("got %d log entries, want 2", len(entries))
	}
	if entries[0].Message != "task enqueued" {
		t.Errorf("first message = %q, want %q", entries[0].Message, "task enqueued")
	}
	ctx := entries[0].ContextMap()
	if ctx["id"] != "abc" {
		t.Errorf("id field = %v, want %q", ctx["id"], "abc")
	}
	if entries[1].Level != zap.WarnLevel {
		t.Errorf("second entry level = %v, want warn", entries[1].Level)
	}
}

func TestSimpleLoggerDoesNotPanic(t *testing.T) {
	logger := NewSimpleLogger()
	logger.Debug("debug", "k", "v")
	logger.Info("info")
	logger.Warn("warn", "odd")
	logger.Error("error", "n", 1)
}
