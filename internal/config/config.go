// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
)

// Config holds all stimulator configuration values. One Config is built per
// run and treated as immutable afterwards; invalid combinations are rejected
// here, before any hardware command is issued.
type Config struct {
	// Thermal waveform
	BaselineTemp   float64 // degrees C
	TempMin        float64 // degrees C (safety clamp lower bound)
	TempMax        float64 // degrees C (safety clamp upper bound)
	MaxDelta       float64 // degrees C amplitude
	RampRate       float64 // degrees C/s
	CycleDuration  float64 // seconds per full triangle cycle
	CyclesPerBlock int
	BaselineBuffer float64 // seconds of baseline before/after a block

	// Update rate
	UpdateHz int // thermode update frequency

	// MR
	TR           float64 // seconds per volume
	DummyVolumes int

	// Thermode
	ComPort       string // serial port, e.g. /dev/ttyUSB0
	Simulation    bool   // true = simulated channel, no hardware
	NaNMaxRetries int    // re-reads when the device returns NaN
	NaNRetryDelay int    // milliseconds between NaN re-reads
	ReadTimeout   int    // milliseconds budget for one serial reply

	// Simulated channel
	SimLagTau float64 // first-order lag constant, seconds
	SimNoise  float64 // bounded read noise amplitude, degrees C
	SimSeed   uint64  // rng seed; fixed seed = reproducible QC

	// Output
	DataDir    string // root for BIDS output (data/sub-XX/ses-XX/func)
	FlushEvery int    // flush record file every N samples

	// MQTT telemetry (optional; empty broker disables publishing)
	MQTTBroker          string
	MQTTClientIDBlock   string
	MQTTClientIDConsole string
	MQTTClientIDDisplay string
	TopicStatus         string
	TopicQC             string

	// QC monitor
	MonitorListenAddr string
	MonitorPollMS     int // file poll interval, milliseconds
	MonitorStaticDir  string

	// Status display (ssd1306, fixed I2C address 0x3C)
	DisplayUpdateMS int
}

// Package-level unexported variables for singleton pattern:
//   - globalConfig: unexported so other packages cannot modify it directly.
//   - configOnce: ensures InitGlobal() only runs once.
//   - configMu: RWMutex; write lock for initialization, read lock for Get().
//
// External code must use InitGlobal() to set and Get() to read.
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Default returns the configuration used when a key is absent from the file.
// The values mirror the standard tPRF protocol parameters.
func Default() *Config {
	return &Config{
		BaselineTemp:   30.0,
		TempMin:        10.0,
		TempMax:        50.0,
		MaxDelta:       17.5,
		RampRate:       1.0,
		CycleDuration:  80.0,
		CyclesPerBlock: 8,
		BaselineBuffer: 30.0,

		UpdateHz: 10,

		TR:           1.5,
		DummyVolumes: 4,

		ComPort:       "/dev/ttyUSB0",
		Simulation:    true,
		NaNMaxRetries: 3,
		NaNRetryDelay: 10,
		ReadTimeout:   50,

		SimLagTau: 1.5,
		SimNoise:  0.05,
		SimSeed:   1,

		DataDir:    "data",
		FlushEvery: 10,

		MQTTClientIDBlock:   "thermostim-block-producer",
		MQTTClientIDConsole: "thermostim-console",
		MQTTClientIDDisplay: "thermostim-display",
		TopicStatus:         "thermostim/status",
		TopicQC:             "thermostim/qc",

		MonitorListenAddr: ":8080",
		MonitorPollMS:     2000,
		MonitorStaticDir:  "web",

		DisplayUpdateMS: 250,
	}
}

// Load reads the configuration file and returns a Config struct. Keys not
// present in the file keep their defaults.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	cfg := Default()
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse KEY=VALUE
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if err := cfg.setValue(key, value); err != nil {
			return nil, fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	switch key {
	// Thermal waveform
	case "BASELINE_TEMP":
		return setFloat(&c.BaselineTemp, key, value)
	case "TEMP_MIN":
		return setFloat(&c.TempMin, key, value)
	case "TEMP_MAX":
		return setFloat(&c.TempMax, key, value)
	case "MAX_DELTA":
		return setFloat(&c.MaxDelta, key, value)
	case "RAMP_RATE":
		return setFloat(&c.RampRate, key, value)
	case "CYCLE_DURATION":
		return setFloat(&c.CycleDuration, key, value)
	case "CYCLES_PER_BLOCK":
		return setInt(&c.CyclesPerBlock, key, value)
	case "BASELINE_BUFFER":
		return setFloat(&c.BaselineBuffer, key, value)

	// Update rate
	case "UPDATE_HZ":
		return setInt(&c.UpdateHz, key, value)

	// MR
	case "TR":
		return setFloat(&c.TR, key, value)
	case "DUMMY_VOLUMES":
		return setInt(&c.DummyVolumes, key, value)

	// Thermode
	case "COM_PORT":
		c.ComPort = value
	case "SIMULATION":
		return setBool(&c.Simulation, key, value)
	case "NAN_MAX_RETRIES":
		return setInt(&c.NaNMaxRetries, key, value)
	case "NAN_RETRY_DELAY_MS":
		return setInt(&c.NaNRetryDelay, key, value)
	case "READ_TIMEOUT_MS":
		return setInt(&c.ReadTimeout, key, value)

	// Simulated channel
	case "SIM_LAG_TAU":
		return setFloat(&c.SimLagTau, key, value)
	case "SIM_NOISE":
		return setFloat(&c.SimNoise, key, value)
	case "SIM_SEED":
		seed, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid SIM_SEED %q: %w", value, err)
		}
		c.SimSeed = seed

	// Output
	case "DATA_DIR":
		c.DataDir = value
	case "FLUSH_EVERY":
		return setInt(&c.FlushEvery, key, value)

	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID_BLOCK":
		c.MQTTClientIDBlock = value
	case "MQTT_CLIENT_ID_CONSOLE":
		c.MQTTClientIDConsole = value
	case "MQTT_CLIENT_ID_DISPLAY":
		c.MQTTClientIDDisplay = value
	case "TOPIC_STATUS":
		c.TopicStatus = value
	case "TOPIC_QC":
		c.TopicQC = value

	// Monitor
	case "MONITOR_LISTEN_ADDR":
		c.MonitorListenAddr = value
	case "MONITOR_POLL_MS":
		return setInt(&c.MonitorPollMS, key, value)
	case "MONITOR_STATIC_DIR":
		c.MonitorStaticDir = value

	// Display
	case "DISPLAY_UPDATE_MS":
		return setInt(&c.DisplayUpdateMS, key, value)

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return nil
}

func setFloat(dst *float64, key, value string) error {
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	*dst = v
	return nil
}

func setInt(dst *int, key, value string) error {
	v, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	*dst = v
	return nil
}

func setBool(dst *bool, key, value string) error {
	v, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	*dst = v
	return nil
}

// Validate checks cross-field constraints. Every violation here is fatal to
// the block attempt and is reported before any hardware command.
func (c *Config) Validate() error {
	if c.TempMin >= c.TempMax {
		return fmt.Errorf("TEMP_MIN (%.1f) must be below TEMP_MAX (%.1f)",
			c.TempMin, c.TempMax)
	}
	if c.BaselineTemp < c.TempMin || c.BaselineTemp > c.TempMax {
		return fmt.Errorf("BASELINE_TEMP (%.1f) outside safety bounds [%.1f, %.1f]",
			c.BaselineTemp, c.TempMin, c.TempMax)
	}
	if c.MaxDelta <= 0 {
		return fmt.Errorf("MAX_DELTA must be positive, got %.2f", c.MaxDelta)
	}
	if c.RampRate <= 0 {
		return fmt.Errorf("RAMP_RATE must be positive, got %.2f", c.RampRate)
	}
	if c.CycleDuration <= 0 {
		return fmt.Errorf("CYCLE_DURATION must be positive, got %.2f", c.CycleDuration)
	}
	if c.CyclesPerBlock < 1 {
		return fmt.Errorf("CYCLES_PER_BLOCK must be at least 1, got %d", c.CyclesPerBlock)
	}
	if c.BaselineBuffer < 0 {
		return fmt.Errorf("BASELINE_BUFFER must not be negative, got %.2f", c.BaselineBuffer)
	}
	if c.UpdateHz < 1 {
		return fmt.Errorf("UPDATE_HZ must be at least 1, got %d", c.UpdateHz)
	}
	if c.TR <= 0 {
		return fmt.Errorf("TR must be positive, got %.2f", c.TR)
	}
	if c.FlushEvery < 1 {
		return fmt.Errorf("FLUSH_EVERY must be at least 1, got %d", c.FlushEvery)
	}
	if c.NaNMaxRetries < 1 {
		return fmt.Errorf("NAN_MAX_RETRIES must be at least 1, got %d", c.NaNMaxRetries)
	}
	if c.MonitorPollMS < 1 {
		return fmt.Errorf("MONITOR_POLL_MS must be at least 1, got %d", c.MonitorPollMS)
	}
	if c.DisplayUpdateMS < 1 {
		return fmt.Errorf("DISPLAY_UPDATE_MS must be at least 1, got %d", c.DisplayUpdateMS)
	}
	if !c.Simulation && c.ComPort == "" {
		return fmt.Errorf("COM_PORT is required when SIMULATION=false")
	}
	return nil
}

// InitGlobal initializes the global configuration from file.
// Uses sync.Once so repeated calls are harmless.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration instance.
// InitGlobal must be called first, or this will return nil.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
