package infra

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		level, env string
		wantErr    bool
		enabled    zapcore.Level
		disabled   zapcore.Level
	}{
		{level: "info", env: "production", enabled: zapcore.InfoLevel, disabled: zapcore.DebugLevel},
		{level: "debug", env: "development", enabled: zapcore.DebugLevel, disabled: zapcore.DebugLevel - 1},
		{level: "warn", env: "", enabled: zapcore.WarnLevel, disabled: zapcore.InfoLevel},
		{level: "loud", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			log, err := NewLogger(tt.level, tt.env)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error for unknown level")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewLogger: %v", err)
			}
			core := log.Core()
			if !core.Enabled(tt.enabled) {
				t.Errorf("%v should be enabled", tt.enabled)
			}
			if core.Enabled(tt.disabled) {
				t.Errorf("%v should be disabled", tt.disabled)
			}
		})
	}
}
