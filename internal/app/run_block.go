// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package app wires the stimulator components into the runnable programs:
// the block producer, the QC web monitor, the MQTT console, and the OLED
// status display.
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/thermal_stimulator/internal/block"
	"github.com/relabs-tech/thermal_stimulator/internal/config"
	"github.com/relabs-tech/thermal_stimulator/internal/qc"
	"github.com/relabs-tech/thermal_stimulator/internal/record"
	"github.com/relabs-tech/thermal_stimulator/internal/thermode"
)

// Session identifies where one block's output files land in the BIDS tree.
type Session struct {
	Subject string // e.g. "01"
	Session string // e.g. "01"
	Run     int    // 1-based run number
}

func (s Session) funcDir(dataDir string) string {
	return filepath.Join(dataDir,
		"sub-"+s.Subject, "ses-"+s.Session, "func")
}

func (s Session) basename(stamp string) string {
	return fmt.Sprintf("sub-%s_ses-%s_task-tprf_run-%02d", s.Subject, s.Session, s.Run) +
		"_" + stamp
}

// Status is the per-tick telemetry message published over MQTT. It mirrors
// the record stream but is lossy by design: QoS 0, no retry, never allowed
// to stall the control loop.
type Status struct {
	Timestamp  float64   `json:"timestamp"`
	BlockIndex int       `json:"block_index"`
	BlockType  string    `json:"block_type"`
	MaskName   string    `json:"mask_name"`
	CycleIndex int       `json:"cycle_index"`
	Delta      float64   `json:"delta"`
	Set        []float64 `json:"set"`
	Actual     []float64 `json:"actual"`
}

// RunBlock executes one stimulation block end to end: opens the hardware
// channel, creates the output files, runs the control loop, and writes the
// events sidecar. It returns the terminal outcome; OutcomeAborted is a
// normal exit (operator Ctrl-C), not an error.
func RunBlock(ctx context.Context, cfg *config.Config, sess Session, params block.Params) (block.Outcome, error) {
	// Parameter errors must surface before any hardware command.
	if err := cfg.Validate(); err != nil {
		return block.OutcomeHardwareFault, err
	}

	ch, err := openChannel(cfg)
	if err != nil {
		return block.OutcomeHardwareFault, err
	}
	defer func() {
		if err := ch.Close(); err != nil {
			log.Printf("run_block: channel close failed: %v", err)
		}
	}()

	dir := sess.funcDir(cfg.DataDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return block.OutcomeHardwareFault, fmt.Errorf("failed to create output dir: %w", err)
	}
	stamp := time.Now().Format("20060102-150405")
	base := sess.basename(stamp)

	recPath := filepath.Join(dir, base+"_thermode.tsv")
	rec, err := record.NewRecorder(recPath, cfg.FlushEvery)
	if err != nil {
		return block.OutcomeHardwareFault, err
	}
	defer rec.Close()

	sidecar := record.NewSidecar(cfg, params.BlockType, params.MaskName, params.WarmFirst)
	if err := sidecar.Write(filepath.Join(dir, base+"_thermode.json")); err != nil {
		return block.OutcomeHardwareFault, err
	}

	qcw, err := record.NewQCWriter(filepath.Join(dir, base+"_qc.tsv"),
		params.BlockType, params.MaskName, params.WarmFirst)
	if err != nil {
		return block.OutcomeHardwareFault, err
	}
	defer qcw.Close()

	runner, err := block.NewRunner(cfg, params, ch, rec, qcw)
	if err != nil {
		return block.OutcomeHardwareFault, err
	}

	tel := connectTelemetry(cfg, cfg.MQTTClientIDBlock)
	if tel != nil {
		defer tel.Disconnect(250)
		runner.OnTick = func(r record.Record) {
			publishJSON(tel, cfg.TopicStatus, Status{
				Timestamp:  r.Onset,
				BlockIndex: r.BlockIndex,
				BlockType:  r.BlockType,
				MaskName:   r.MaskName,
				CycleIndex: r.CycleIndex,
				Delta:      r.Delta,
				Set:        r.Set,
				Actual:     r.Actual,
			})
		}
		runner.OnCycle = func(s qc.Summary) {
			publishJSON(tel, cfg.TopicQC, s)
		}
	}

	log.Printf("run_block: writing %s", recPath)
	outcome, runErr := runner.Run(ctx)

	if err := writeEvents(filepath.Join(dir, base+"_events.json"), runner.Timings()); err != nil {
		log.Printf("run_block: events write failed: %v", err)
	}
	return outcome, runErr
}

// openChannel selects the simulated or the serial thermode per config.
func openChannel(cfg *config.Config) (thermode.Channel, error) {
	if cfg.Simulation {
		log.Printf("run_block: SIMULATION mode, no hardware attached")
		return thermode.NewSim(cfg), nil
	}
	return thermode.NewSerial(cfg)
}

func writeEvents(path string, timings []block.PhaseTiming) error {
	data, err := json.MarshalIndent(timings, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal events: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// connectTelemetry opens the MQTT client, or returns nil when no broker is
// configured or the connection fails. Telemetry is never load-bearing.
func connectTelemetry(cfg *config.Config, clientID string) mqtt.Client {
	if cfg.MQTTBroker == "" {
		return nil
	}
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(clientID).
		SetConnectTimeout(2 * time.Second).
		SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(3*time.Second) || token.Error() != nil {
		log.Printf("telemetry: broker %s unavailable, publishing disabled: %v",
			cfg.MQTTBroker, token.Error())
		return nil
	}
	log.Printf("telemetry: connected to %s", cfg.MQTTBroker)
	return client
}

// publishJSON fires a QoS 0 message without waiting for the token; a slow
// or absent broker must not perturb tick timing.
func publishJSON(client mqtt.Client, topic string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("telemetry: marshal failed for %s: %v", topic, err)
		return
	}
	client.Publish(topic, 0, false, data)
}
