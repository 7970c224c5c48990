// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stimulator.conf")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "# empty config\n"))
	require.NoError(t, err)

	assert.Equal(t, 30.0, cfg.BaselineTemp)
	assert.Equal(t, 17.5, cfg.MaxDelta)
	assert.Equal(t, 80.0, cfg.CycleDuration)
	assert.Equal(t, 8, cfg.CyclesPerBlock)
	assert.Equal(t, 10, cfg.UpdateHz)
	assert.Equal(t, 1.5, cfg.TR)
	assert.True(t, cfg.Simulation)
	assert.Equal(t, "thermostim/status", cfg.TopicStatus)
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
# thermal
BASELINE_TEMP=32.0
MAX_DELTA=15.0
UPDATE_HZ=20
SIMULATION=false
COM_PORT=/dev/ttyUSB1
SIM_SEED=42
DISPLAY_UPDATE_MS=500
`))
	require.NoError(t, err)

	assert.Equal(t, 32.0, cfg.BaselineTemp)
	assert.Equal(t, 15.0, cfg.MaxDelta)
	assert.Equal(t, 20, cfg.UpdateHz)
	assert.False(t, cfg.Simulation)
	assert.Equal(t, "/dev/ttyUSB1", cfg.ComPort)
	assert.Equal(t, uint64(42), cfg.SimSeed)
	assert.Equal(t, 500, cfg.DisplayUpdateMS)
}

func TestLoadRejectsUnknownKey(t *testing.T) {
	_, err := Load(writeConfig(t, "NO_SUCH_KEY=1\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NO_SUCH_KEY")
}

func TestLoadRejectsMalformedLine(t *testing.T) {
	_, err := Load(writeConfig(t, "BASELINE_TEMP 30\n"))
	require.Error(t, err)
}

func TestLoadRejectsBadValue(t *testing.T) {
	_, err := Load(writeConfig(t, "UPDATE_HZ=ten\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "UPDATE_HZ")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"min above max", func(c *Config) { c.TempMin = 50; c.TempMax = 10 }},
		{"baseline below min", func(c *Config) { c.BaselineTemp = 5 }},
		{"baseline above max", func(c *Config) { c.BaselineTemp = 60 }},
		{"zero delta", func(c *Config) { c.MaxDelta = 0 }},
		{"negative ramp rate", func(c *Config) { c.RampRate = -1 }},
		{"zero cycle duration", func(c *Config) { c.CycleDuration = 0 }},
		{"zero cycles", func(c *Config) { c.CyclesPerBlock = 0 }},
		{"negative baseline buffer", func(c *Config) { c.BaselineBuffer = -1 }},
		{"zero update rate", func(c *Config) { c.UpdateHz = 0 }},
		{"zero TR", func(c *Config) { c.TR = 0 }},
		{"zero flush", func(c *Config) { c.FlushEvery = 0 }},
		{"zero NaN retries", func(c *Config) { c.NaNMaxRetries = 0 }},
		{"zero monitor poll", func(c *Config) { c.MonitorPollMS = 0 }},
		{"zero display update", func(c *Config) { c.DisplayUpdateMS = 0 }},
		{"hardware without port", func(c *Config) { c.Simulation = false; c.ComPort = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			require.NoError(t, cfg.Validate())
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
