// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package record

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"github.com/relabs-tech/thermal_stimulator/internal/qc"
)

// qcHeader is the QC TSV header row; unlike the thermode stream this file
// carries its own header.
var qcHeader = []string{
	"block_type", "mask_name", "warm_first",
	"cycle_index", "onset_latency_s",
	"mean_ramp_rate", "std_ramp_rate",
	"mean_warming_rate", "mean_cooling_rate", "warming_cooling_diff",
	"mean_temp_error", "max_temp_error", "n_ramp_flags", "n_samples",
}

// QCWriter appends one row per completed cycle to the QC TSV, flushing on
// every row so external monitoring can react within one cycle's latency.
type QCWriter struct {
	file      *os.File
	w         *csv.Writer
	blockType string
	maskName  string
	warmFirst bool
}

// NewQCWriter creates the QC file and writes its header.
func NewQCWriter(path, blockType, maskName string, warmFirst bool) (*QCWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create QC file: %w", err)
	}
	w := csv.NewWriter(f)
	w.Comma = '\t'
	if err := w.Write(qcHeader); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write QC header: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return nil, err
	}
	return &QCWriter{file: f, w: w, blockType: blockType, maskName: maskName, warmFirst: warmFirst}, nil
}

// Append writes one cycle summary and flushes immediately.
func (q *QCWriter) Append(s qc.Summary) error {
	row := []string{
		q.blockType,
		q.maskName,
		boolField(q.warmFirst),
		strconv.Itoa(s.CycleIndex),
		strconv.FormatFloat(s.OnsetLatency, 'f', 4, 64),
		strconv.FormatFloat(s.MeanRampRate, 'f', 4, 64),
		strconv.FormatFloat(s.StdRampRate, 'f', 4, 64),
		strconv.FormatFloat(s.MeanWarmingRate, 'f', 4, 64),
		strconv.FormatFloat(s.MeanCoolingRate, 'f', 4, 64),
		strconv.FormatFloat(s.WarmingCoolingDiff, 'f', 4, 64),
		strconv.FormatFloat(s.MeanTempError, 'f', 4, 64),
		strconv.FormatFloat(s.MaxTempError, 'f', 4, 64),
		strconv.Itoa(s.NRampFlags),
		strconv.Itoa(s.NSamples),
	}
	if err := q.w.Write(row); err != nil {
		return fmt.Errorf("failed to append QC row: %w", err)
	}
	q.w.Flush()
	return q.w.Error()
}

// Close flushes and closes the QC file.
func (q *QCWriter) Close() error {
	q.w.Flush()
	if err := q.w.Error(); err != nil {
		q.file.Close()
		return err
	}
	return q.file.Close()
}
