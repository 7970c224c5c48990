// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package mask defines the spatial polarity patterns for TGI and Non-TGI
// conditions and applies them to a waveform delta.
//
// Each participant receives one NonTGI mask and one TGI mask. A mask is an
// ordered tuple of per-zone polarities (+1 warm, -1 cool, 0 neutral) and is
// selected once per block; adding a pattern is a data change only.
package mask

import (
	"fmt"
	"math"
	"sort"
)

// ZoneCount is the number of independently controlled thermode zones.
const ZoneCount = 5

// NonTGI masks: 2 positions x 2 polarities (4-bar thermode, zones 1-4).
// P1 = zones 1,2 (proximal), P3 = zones 3,4 (distal).
var NonTGI = map[string][]int{
	"P1_W": {+1, +1, 0, 0, 0},
	"P1_C": {-1, -1, 0, 0, 0},
	"P3_W": {0, 0, +1, +1, 0},
	"P3_C": {0, 0, -1, -1, 0},
}

// TGI masks: alternating warm/cool patterns.
var TGI = map[string][]int{
	"TGI_1": {+1, -1, +1, -1, 0},
	"TGI_2": {-1, +1, -1, +1, 0},
}

// Get looks a mask up by name across both families. An unknown name is a
// configuration error and must be reported before any hardware command.
func Get(name string) ([]int, error) {
	if m, ok := NonTGI[name]; ok {
		return m, nil
	}
	if m, ok := TGI[name]; ok {
		return m, nil
	}
	return nil, fmt.Errorf("unknown mask name %q (known: %v)", name, Names())
}

// Names returns all known mask names, sorted.
func Names() []string {
	names := make([]string, 0, len(NonTGI)+len(TGI))
	for n := range NonTGI {
		names = append(names, n)
	}
	for n := range TGI {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Apply computes per-zone target temperatures from a scalar delta.
//
// For each zone: baseline + polarity*delta, clamped to [tempMin, tempMax].
// The clamp runs after polarity is applied and is the sole safety boundary.
// Temperatures are rounded to 0.01 C, the resolution of the record stream.
func Apply(m []int, delta, baseline, tempMin, tempMax float64) []float64 {
	temps := make([]float64, len(m))
	for i, s := range m {
		t := baseline + float64(s)*delta
		if t < tempMin {
			t = tempMin
		}
		if t > tempMax {
			t = tempMax
		}
		temps[i] = math.Round(t*100) / 100
	}
	return temps
}

// ActiveZones returns the indices of zones with nonzero polarity.
func ActiveZones(m []int) []int {
	var active []int
	for i, s := range m {
		if s != 0 {
			active = append(active, i)
		}
	}
	return active
}
