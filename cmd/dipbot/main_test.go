package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/dipbot/config"
	"github.com/alejandrodnm/dipbot/internal/application/engine/live"
	"github.com/alejandrodnm/dipbot/internal/domain"
)

func TestEngineConfig_MapsAllSections(t *testing.T) {
	cfg := &config.Config{
		Trading: config.TradingConfig{
			Bankroll:            1000,
			KellyFraction:       0.01,
			MaxExposurePct:      0.1,
			RevertFraction:      0.5,
			CheckpointThreshold: 57,
			VolumeFloor:         5000,
			VolumeWindowDays:    30,
			InPlayMinutes:       90,
			Ladder:              []config.LadderLevel{{PriceCents: 49, Multiplier: 1}, {PriceCents: 45, Multiplier: 1.5}},
		},
		Safety:     config.SafetyConfig{MaxTotalExposure: 300, MaxConcurrentMarkets: 3},
		Monitoring: config.MonitoringConfig{LookaheadHours: 24},
	}

	got := engineConfig(cfg)

	assert.Equal(t, 1000.0, got.Bankroll)
	assert.Equal(t, 300.0, got.MaxTotalExposure)
	assert.Equal(t, 3, got.MaxConcurrentMarkets)
	assert.Equal(t, 57, got.ThresholdCents)
	assert.Equal(t, 90*time.Minute, got.InPlayWindow)
	assert.Equal(t, 24*time.Hour, got.Lookahead)
	assert.Equal(t, []domain.LadderLevel{{PriceCents: 49, Multiplier: 1}, {PriceCents: 45, Multiplier: 1.5}}, got.Ladder)
	assert.Equal(t, live.ModeLive, got.Mode)

	cfg.Risk.DryRun = true
	assert.Equal(t, live.ModeDryRun, engineConfig(cfg).Mode)
}

func TestApplyFlagOverrides_ValidatedByLoad(t *testing.T) {
	for _, k := range []string{"DIPBOT_DRY_RUN", "LOG_LEVEL", "LOG_FORMAT", "KALSHI_API_KEY_ID", "KALSHI_PRIVATE_KEY_PATH"} {
		t.Setenv(k, "")
	}
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("trading: {bankroll: 100}\nschedule: {files: [a.csv]}\n"), 0o600))

	applyFlagOverrides(true, true, "xml")
	_, err := config.Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log.format")

	applyFlagOverrides(true, true, "json")
	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.Risk.DryRun)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestTelemetryConfig(t *testing.T) {
	cfg := &config.Config{Telemetry: config.TelemetryConfig{
		Sinks:        []string{"log", "kafka"},
		Buffer:       64,
		KafkaBrokers: []string{"k1:9092"},
		KafkaTopic:   "dipbot.events",
	}}

	got := telemetryConfig(cfg)

	assert.Equal(t, []string{"log", "kafka"}, got.Sinks)
	assert.Equal(t, 64, got.Buffer)
	assert.Equal(t, []string{"k1:9092"}, got.KafkaBrokers)
	assert.Equal(t, "dipbot.events", got.KafkaTopic)
}
