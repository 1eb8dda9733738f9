package logger

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	for _, level := range []string{"debug", "info", "WARN", " error "} {
		l, err := New(level)
		if err != nil {
			t.Errorf("New(%q) error = %v", level, err)
			continue
		}
		l.Info("hello")
	}

	if _, err := New("verbose"); err == nil {
		t.Error("expected an error for an unknown level")
	}
}

func TestNewRespectsLevel(t *testing.T) {
	l, err := New("warn")
	if err != nil {
		t.Fatal(err)
	}
	if l.Core().Enabled(zapcore.DebugLevel) {
		t.Error("debug should be disabled at warn level")
	}
	if !l.Core().Enabled(zapcore.WarnLevel) {
		t.Error("warn should be enabled at warn level")
	}
}
