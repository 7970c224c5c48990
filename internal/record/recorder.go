// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package record

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"

	"github.com/relabs-tech/thermal_stimulator/internal/config"
)

// Recorder appends thermode records to a headerless TSV, flushing every
// flushEvery samples (~1 s at 10 Hz) so the live monitor never lags far
// behind and an abrupt termination loses at most one flush window.
type Recorder struct {
	file       *os.File
	w          *csv.Writer
	flushEvery int
	count      int
}

// NewRecorder creates (truncates) the record file.
func NewRecorder(path string, flushEvery int) (*Recorder, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create record file: %w", err)
	}
	w := csv.NewWriter(f)
	w.Comma = '\t'
	return &Recorder{file: f, w: w, flushEvery: flushEvery}, nil
}

// Append writes one record and flushes on the configured cadence.
func (r *Recorder) Append(rec Record) error {
	if err := r.w.Write(rec.Row()); err != nil {
		return fmt.Errorf("failed to append record: %w", err)
	}
	r.count++
	if r.count%r.flushEvery == 0 {
		r.w.Flush()
		if err := r.w.Error(); err != nil {
			return fmt.Errorf("failed to flush records: %w", err)
		}
	}
	return nil
}

// Count returns the number of records appended so far.
func (r *Recorder) Count() int { return r.count }

// Flush forces buffered rows to disk.
func (r *Recorder) Flush() error {
	r.w.Flush()
	return r.w.Error()
}

// Close flushes and closes the record file.
func (r *Recorder) Close() error {
	r.w.Flush()
	if err := r.w.Error(); err != nil {
		r.file.Close()
		return err
	}
	return r.file.Close()
}

// Sidecar is the JSON metadata accompanying a thermode TSV. It carries
// everything needed to reinterpret the headerless stream: sampling
// frequency, column order, and the block parameters.
type Sidecar struct {
	SamplingFrequency int      `json:"SamplingFrequency"`
	StartTime         float64  `json:"StartTime"`
	Columns           []string `json:"Columns"`
	BlockType         string   `json:"block_type"`
	MaskName          string   `json:"mask_name"`
	WarmFirst         bool     `json:"warm_first"`
	BaselineTemp      float64  `json:"baseline_temp"`
	TempMin           float64  `json:"temp_min"`
	TempMax           float64  `json:"temp_max"`
	MaxDelta          float64  `json:"max_delta"`
	CycleDuration     float64  `json:"cycle_duration"`
	CyclesPerBlock    int      `json:"cycles_per_block"`
	RampRate          float64  `json:"ramp_rate"`
	TR                float64  `json:"TR"`
}

// NewSidecar fills a sidecar from the run configuration and block identity.
func NewSidecar(cfg *config.Config, blockType, maskName string, warmFirst bool) Sidecar {
	return Sidecar{
		SamplingFrequency: cfg.UpdateHz,
		StartTime:         0.0,
		Columns:           Columns,
		BlockType:         blockType,
		MaskName:          maskName,
		WarmFirst:         warmFirst,
		BaselineTemp:      cfg.BaselineTemp,
		TempMin:           cfg.TempMin,
		TempMax:           cfg.TempMax,
		MaxDelta:          cfg.MaxDelta,
		CycleDuration:     cfg.CycleDuration,
		CyclesPerBlock:    cfg.CyclesPerBlock,
		RampRate:          cfg.RampRate,
		TR:                cfg.TR,
	}
}

// Write serializes the sidecar next to the record file.
func (s Sidecar) Write(path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal sidecar: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write sidecar: %w", err)
	}
	return nil
}

// ReadSidecar loads a sidecar from disk (used by the monitor).
func ReadSidecar(path string) (Sidecar, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Sidecar{}, fmt.Errorf("failed to read sidecar: %w", err)
	}
	var s Sidecar
	if err := json.Unmarshal(data, &s); err != nil {
		return Sidecar{}, fmt.Errorf("failed to parse sidecar: %w", err)
	}
	return s, nil
}
