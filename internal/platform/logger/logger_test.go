package logger

import (
	"testing"

	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		level   string
		format  string
		wantErr bool
	}{
		{"json info", "info", "json", false},
		{"console debug", "debug", "console", false},
		{"default format", "warn", "", false},
		{"bad level", "loud", "json", true},
		{"bad format", "info", "xml", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.level, tt.format)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLogger_WithFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := NewWithCore(core).With("component", "generator")

	log.Info("lesson generated", "lesson_id", "L1")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("len(entries) = %d, want 1", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["component"] != "generator" {
		t.Errorf("component = %v, want generator", fields["component"])
	}
	if fields["lesson_id"] != "L1" {
		t.Errorf("lesson_id = %v, want L1", fields["lesson_id"])
	}
}

func TestLogger_NilIsSafe(t *testing.T) {
	var log *Logger
	log.Info("ignored", "k", "v")
	log.With("k", "v").Warn("still ignored")
	log.Sync()
}
