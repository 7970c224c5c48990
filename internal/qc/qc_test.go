// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package qc

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var tgiMask = []int{+1, -1, +1, -1, 0}

// feedRamp feeds n samples where every active zone tracks its command at
// the given rate, starting from baseline, with delta rising at the same
// rate.
func feedRamp(t *Tracker, n int, dt, rate float64) {
	for i := 0; i < n; i++ {
		ts := float64(i) * dt
		delta := rate * ts
		commanded := []float64{30 + delta, 30 - delta, 30 + delta, 30 - delta, 30}
		actual := append([]float64(nil), commanded...)
		t.Update(ts, commanded, actual, delta, tgiMask)
	}
}

func TestEmptyCycle(t *testing.T) {
	tr := NewTracker(30, 1.0)
	tr.StartCycle(0)
	s := tr.EndCycle()

	assert.Equal(t, 0, s.CycleIndex)
	assert.Equal(t, 0, s.NSamples)
	assert.Equal(t, 0, s.NRampFlags)
	assert.True(t, math.IsNaN(s.MeanRampRate))
	assert.True(t, math.IsNaN(s.StdRampRate))
	assert.True(t, math.IsNaN(s.MeanTempError))
	assert.True(t, math.IsNaN(s.MaxTempError))
	assert.True(t, math.IsNaN(s.OnsetLatency))
}

func TestPerfectTrackingNotFlagged(t *testing.T) {
	tr := NewTracker(30, 1.0)
	tr.StartCycle(0)
	feedRamp(tr, 50, 0.1, 1.0)
	s := tr.EndCycle()

	assert.InDelta(t, 1.0, s.MeanRampRate, 1e-9)
	assert.InDelta(t, 0.0, s.StdRampRate, 1e-9)
	assert.Equal(t, 0, s.NRampFlags)
	assert.InDelta(t, 0.0, s.MeanTempError, 1e-9)
	assert.InDelta(t, 0.0, s.MaxTempError, 1e-9)
}

func TestRampRateOutOfToleranceFlagged(t *testing.T) {
	tr := NewTracker(30, 1.0)
	tr.StartCycle(0)
	// Ramping at 2 C/s against an expected 1 C/s: every ramping sample
	// deviates by 1.0 > RampRateTolerance.
	feedRamp(tr, 20, 0.1, 2.0)
	s := tr.EndCycle()

	assert.InDelta(t, 2.0, s.MeanRampRate, 1e-9)
	assert.Equal(t, 19, s.NRampFlags)
}

func TestOnsetLatency(t *testing.T) {
	tr := NewTracker(30, 1.0)
	tr.StartCycle(0)

	hold := []float64{30, 30, 30, 30, 30}
	// Command still at baseline: no onset reference yet.
	tr.Update(0.0, hold, hold, 0, tgiMask)
	// Command changes at t=1.0, actual still at baseline.
	cmd := []float64{31, 29, 31, 29, 30}
	tr.Update(1.0, cmd, hold, 1.0, tgiMask)
	tr.Update(1.4, cmd, []float64{30.3, 29.7, 30.3, 29.7, 30}, 1.0, tgiMask)
	// Actual crosses baseline +/- OnsetThreshold at t=1.8.
	tr.Update(1.8, cmd, []float64{30.6, 29.4, 30.6, 29.4, 30}, 1.0, tgiMask)
	s := tr.EndCycle()

	assert.InDelta(t, 0.8, s.OnsetLatency, 1e-9)
}

func TestWarmingCoolingSplit(t *testing.T) {
	tr := NewTracker(30, 1.0)
	tr.StartCycle(0)

	// Rising delta then falling delta, same physical ramp rate.
	deltas := []float64{0, 0.5, 1.0, 1.5, 2.0, 1.5, 1.0, 0.5, 0}
	for i, d := range deltas {
		ts := float64(i) * 0.5
		commanded := []float64{30 + d, 30 - d, 30 + d, 30 - d, 30}
		actual := append([]float64(nil), commanded...)
		tr.Update(ts, commanded, actual, d, tgiMask)
	}
	s := tr.EndCycle()

	require.Greater(t, s.NSamples, 0)
	assert.False(t, math.IsNaN(s.MeanWarmingRate))
	assert.False(t, math.IsNaN(s.MeanCoolingRate))
	assert.InDelta(t, 1.0, s.MeanWarmingRate, 1e-9)
	assert.InDelta(t, 1.0, s.MeanCoolingRate, 1e-9)
	assert.InDelta(t, 0.0, s.WarmingCoolingDiff, 1e-9)
}

func TestNaNZonesSkipped(t *testing.T) {
	tr := NewTracker(30, 1.0)
	tr.StartCycle(0)

	nan := math.NaN()
	for i := 0; i < 10; i++ {
		ts := float64(i) * 0.1
		d := ts
		commanded := []float64{30 + d, 30 - d, 30 + d, 30 - d, 30}
		// Zone 1 never reports; the others track perfectly.
		actual := []float64{nan, 30 - d, 30 + d, 30 - d, 30}
		tr.Update(ts, commanded, actual, d, tgiMask)
	}
	s := tr.EndCycle()

	assert.InDelta(t, 1.0, s.MeanRampRate, 1e-9)
	assert.Equal(t, 0, s.NRampFlags)
	assert.InDelta(t, 0.0, s.MeanTempError, 1e-9)
}

func TestNeutralMaskIgnored(t *testing.T) {
	tr := NewTracker(30, 1.0)
	tr.StartCycle(0)
	all := []float64{99, 99, 99, 99, 99}
	tr.Update(0, all, all, 1, []int{0, 0, 0, 0, 0})
	s := tr.EndCycle()
	assert.Equal(t, 0, s.NSamples)
}

func TestBlockSummariesAndReset(t *testing.T) {
	tr := NewTracker(30, 1.0)

	tr.StartCycle(0)
	feedRamp(tr, 10, 0.1, 1.0)
	tr.EndCycle()

	tr.StartCycle(1)
	feedRamp(tr, 10, 0.1, 1.0)
	tr.EndCycle()

	sums := tr.BlockSummaries()
	require.Len(t, sums, 2)
	assert.Equal(t, 0, sums[0].CycleIndex)
	assert.Equal(t, 1, sums[1].CycleIndex)

	tr.ResetBlock()
	assert.Empty(t, tr.BlockSummaries())
}
