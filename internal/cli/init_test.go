package cli

import (
	"context"
	"log/slog"
	"testing"

	"fintrack/internal/config"
	applog "fintrack/internal/log"
)

func TestSetupLogger(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	logger := SetupLogger(&config.Config{LogLevel: "debug"}, applog.ComponentWorker)
	if logger.Component() != applog.ComponentWorker {
		t.Errorf("Component() = %q, want %q", logger.Component(), applog.ComponentWorker)
	}
	if !slog.Default().Enabled(context.Background(), slog.LevelDebug) {
		t.Error("default logger should have debug enabled")
	}
}

func TestLoadAndValidateConfigDefaults(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })
	t.Setenv("PORT", "9090")

	cfg, logger := LoadAndValidateConfig()
	if cfg.Port != "9090" {
		t.Errorf("Port = %q, want 9090", cfg.Port)
	}
	if logger == nil {
		t.Fatal("logger is nil")
	}
}

func TestSignalContextCancel(t *testing.T) {
	ctx, cancel := SignalContext()
	cancel()
	<-ctx.Done()
}
