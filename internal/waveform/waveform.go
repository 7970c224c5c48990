// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package waveform generates the bipolar triangular delta signal that
// modulates zone temperatures around baseline.
//
// One cycle contains one full bipolar period with two symmetric halves:
//
//	0 → +maxDelta → 0 → -maxDelta → 0
//
// For a +1 (warm) mask zone with baseline 30 C and maxDelta 20 C this
// commands 30 → 50 → 30 → 10 → 30. The ramp rate is constant at
// maxDelta / (cycleDuration / 4), i.e. 1 C/s for the default parameters.
//
// Everything here is a pure function of time and parameters; identical
// inputs always yield bit-identical outputs.
package waveform

import "math"

// Period returns the duration of one full bipolar triangle period for the
// given amplitude and ramp rate: 4 * maxDelta / rampRate.
func Period(maxDelta, rampRate float64) float64 {
	return 4 * maxDelta / rampRate
}

// Delta evaluates the warm-first bipolar triangle at elapsed time t.
// delta(0) = 0 and the signal rises first; range is [-maxDelta, +maxDelta].
func Delta(t, maxDelta, rampRate float64) float64 {
	period := Period(maxDelta, rampRate)
	phase := math.Mod(t, period) / period
	if phase < 0 {
		phase += 1.0
	}
	shifted := math.Mod(phase+0.25, 1.0)
	return maxDelta * (1.0 - 2.0*math.Abs(2.0*shifted-1.0))
}

// DeltaShifted evaluates the cool-first variant: the warm-first triangle
// advanced by half a period, so delta(0) = 0 and the signal falls first.
// The two variants are related by the phase offset, not by negation.
func DeltaShifted(t, maxDelta, rampRate float64) float64 {
	return Delta(t+Period(maxDelta, rampRate)/2, maxDelta, rampRate)
}

// Eval evaluates the warm-first triangle over an arbitrary time grid.
func Eval(ts []float64, maxDelta, rampRate float64) []float64 {
	out := make([]float64, len(ts))
	for i, t := range ts {
		out[i] = Delta(t, maxDelta, rampRate)
	}
	return out
}

// Grid generates one full cycle of delta values sampled at updateHz.
// The cycle duration is the triangle period, so the ramp rate is implied:
// rampRate = 4 * maxDelta / cycleDuration.
//
// Length of the returned slice is cycleDuration * updateHz.
func Grid(cycleDuration float64, updateHz int, maxDelta float64) []float64 {
	n := int(cycleDuration * float64(updateHz))
	rampRate := 4 * maxDelta / cycleDuration
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = Delta(float64(i)/float64(updateHz), maxDelta, rampRate)
	}
	return out
}

// PhaseShift rotates a sampled cycle by half its length, turning a
// warm-first grid into the cool-first one.
func PhaseShift(w []float64) []float64 {
	n := len(w)
	out := make([]float64, n)
	half := n / 2
	for i := 0; i < n; i++ {
		out[i] = w[(i+half)%n]
	}
	return out
}
