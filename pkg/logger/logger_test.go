package logger

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewLevels(t *testing.T) {
	for _, lvl := range []string{"", "debug", "INFO", "warn", "error"} {
		l, err := New(Config{Level: lvl})
		if err != nil {
			t.Fatalf("level %q: %v", lvl, err)
		}
		_ = l.Sync()
	}
	if _, err := New(Config{Level: "loud"}); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestHelpersWithoutGlobal(t *testing.T) {
	InfoLogger, FatalLogger = nil, nil
	// без SetGlobal хелперы пишут в резервный логгер и не паникуют
	Info("hello %d", 1)
	Error("oops %s", "x")
}

func TestHelpersUseGlobal(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	prev := zap.L()
	SetGlobal(zap.New(core))
	t.Cleanup(func() { SetGlobal(prev) })

	Info("cycle finished: stage=%s exit=%d", "closed", 0)
	Error("close tracer: %v", "boom")

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("entries = %d", len(entries))
	}
	if entries[0].Message != "cycle finished: stage=closed exit=0" || entries[0].Level != zapcore.InfoLevel {
		t.Fatalf("info entry = %+v", entries[0])
	}
	if entries[1].Message != "close tracer: boom" || entries[1].Level != zapcore.ErrorLevel {
		t.Fatalf("error entry = %+v", entries[1])
	}
}
