// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package record defines the per-tick record schema and the append-only
// writers for the thermode stream, its JSON sidecar, and the per-cycle QC
// stream.
//
// The thermode TSV is headerless; column order and units are fixed by the
// sidecar and must not change within a run. The file is written by exactly
// one producer and may be re-read at any time by the monitor, which must
// ignore a partial trailing line.
package record

import (
	"fmt"
	"math"
	"strconv"
)

// NumColumns is the fixed width of one thermode row.
const NumColumns = 18

// Columns is the sidecar column order for the headerless thermode TSV.
var Columns = []string{
	"onset", "volume", "block_index", "block_type", "cycle_index",
	"mask_name", "warm_first", "delta",
	"zone1_set", "zone2_set", "zone3_set", "zone4_set", "zone5_set",
	"zone1_actual", "zone2_actual", "zone3_actual", "zone4_actual",
	"zone5_actual",
}

// Record is one tick of the control loop: what was commanded and what the
// probe reported, with enough identifiers to re-slice the stream offline.
// Records are created once per tick and never mutated.
type Record struct {
	Onset      float64 // seconds from scanner trigger
	Volume     int     // MR volume index, floor(onset/TR)+1
	BlockIndex int
	BlockType  string // e.g. "TGI", "NonTGI", "TGI_baseline"
	CycleIndex int    // -1 during baseline phases
	MaskName   string
	WarmFirst  bool
	Delta      float64
	Set        []float64 // commanded zone temperatures
	Actual     []float64 // sensed zone temperatures, NaN tolerated
}

// Row renders the record as TSV fields in sidecar column order.
func (r Record) Row() []string {
	row := make([]string, 0, NumColumns)
	row = append(row,
		strconv.FormatFloat(r.Onset, 'f', 4, 64),
		strconv.Itoa(r.Volume),
		strconv.Itoa(r.BlockIndex),
		r.BlockType,
		strconv.Itoa(r.CycleIndex),
		r.MaskName,
		boolField(r.WarmFirst),
		strconv.FormatFloat(r.Delta, 'f', 4, 64),
	)
	for _, t := range r.Set {
		row = append(row, strconv.FormatFloat(t, 'f', 2, 64))
	}
	for _, a := range r.Actual {
		row = append(row, formatActual(a))
	}
	return row
}

// ParseRow decodes one complete TSV row back into a Record. Rows with the
// wrong width or unparseable numeric fields are rejected; the monitor
// treats such rows as a partial trailing line and stops there.
func ParseRow(fields []string) (Record, error) {
	if len(fields) != NumColumns {
		return Record{}, fmt.Errorf("expected %d columns, got %d", NumColumns, len(fields))
	}

	var r Record
	var err error
	if r.Onset, err = strconv.ParseFloat(fields[0], 64); err != nil {
		return Record{}, fmt.Errorf("onset: %w", err)
	}
	if r.Volume, err = strconv.Atoi(fields[1]); err != nil {
		return Record{}, fmt.Errorf("volume: %w", err)
	}
	if r.BlockIndex, err = strconv.Atoi(fields[2]); err != nil {
		return Record{}, fmt.Errorf("block_index: %w", err)
	}
	r.BlockType = fields[3]
	if r.CycleIndex, err = strconv.Atoi(fields[4]); err != nil {
		return Record{}, fmt.Errorf("cycle_index: %w", err)
	}
	r.MaskName = fields[5]
	r.WarmFirst = fields[6] == "1"
	if r.Delta, err = strconv.ParseFloat(fields[7], 64); err != nil {
		return Record{}, fmt.Errorf("delta: %w", err)
	}
	r.Set = make([]float64, 5)
	r.Actual = make([]float64, 5)
	for z := 0; z < 5; z++ {
		if r.Set[z], err = strconv.ParseFloat(fields[8+z], 64); err != nil {
			return Record{}, fmt.Errorf("zone%d_set: %w", z+1, err)
		}
		if r.Actual[z], err = strconv.ParseFloat(fields[13+z], 64); err != nil {
			return Record{}, fmt.Errorf("zone%d_actual: %w", z+1, err)
		}
	}
	return r, nil
}

func boolField(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// formatActual keeps full float precision for sensed values and writes NaN
// explicitly (strconv round-trips it), so an unreadable zone stays visible
// in the data instead of silently becoming a number.
func formatActual(a float64) string {
	if math.IsNaN(a) {
		return "NaN"
	}
	return strconv.FormatFloat(a, 'f', -1, 64)
}
