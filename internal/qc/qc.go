// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package qc tracks real-time quality control for thermode delivery.
//
// Per-cycle metrics: actual ramp rate vs expected, onset latency between the
// commanded and the observed temperature change, commanded-vs-actual error,
// and warming/cooling ramp asymmetry.
//
// Onset latency is estimated by first threshold crossing: the delay between
// the first nonzero commanded delta and the first actual sample deviating
// more than OnsetThreshold from baseline. The estimator is deterministic for
// a given record stream and must stay fixed within a session so summaries
// remain comparable across blocks.
package qc

import (
	"log"
	"math"
)

const (
	// RampRateTolerance flags samples whose ramp rate deviates from the
	// expected rate by more than this, in degrees C/s.
	RampRateTolerance = 0.3
	// OnsetThreshold is the deviation from baseline that counts as the
	// stimulus having arrived, in degrees C.
	OnsetThreshold = 0.5
	// TempErrorThreshold triggers a console warning for large
	// commanded-vs-actual errors, in degrees C.
	TempErrorThreshold = 2.0

	// minActiveRate separates samples that are actually ramping from hold
	// periods at the triangle extrema; only ramping samples contribute to
	// rate statistics and flags.
	minActiveRate = 0.05

	// maxFlagWarnings limits console spam per cycle.
	maxFlagWarnings = 3
)

// Summary holds the QC metrics of one closed cycle. Rate and error fields
// are NaN when the cycle had no usable samples; NSamples tells consumers
// how much statistical weight the row carries.
type Summary struct {
	CycleIndex         int     `json:"cycle_index"`
	OnsetLatency       float64 `json:"onset_latency_s"`
	MeanRampRate       float64 `json:"mean_ramp_rate"`
	StdRampRate        float64 `json:"std_ramp_rate"`
	MeanWarmingRate    float64 `json:"mean_warming_rate"`
	MeanCoolingRate    float64 `json:"mean_cooling_rate"`
	WarmingCoolingDiff float64 `json:"warming_cooling_diff"`
	MeanTempError      float64 `json:"mean_temp_error"`
	MaxTempError       float64 `json:"max_temp_error"`
	NRampFlags         int     `json:"n_ramp_flags"`
	NSamples           int     `json:"n_samples"`
}

// Tracker accumulates per-sample thermode data and computes cycle metrics.
//
// Usage:
//
//	qc := NewTracker(baseline, rampRate)
//	qc.StartCycle(idx)
//	for each sample: qc.Update(t, commanded, actual, delta, mask)
//	summary := qc.EndCycle()
type Tracker struct {
	baselineTemp float64
	expectedRate float64

	cycleIdx      int
	prevActual    []float64
	prevTimestamp float64
	havePrev      bool

	onsetDetected bool
	onsetLatency  float64
	cmdChangeTime float64
	haveCmdChange bool

	rampRates    []float64
	tempErrors   []float64
	warmingRates []float64
	coolingRates []float64
	prevDelta    float64
	havePrevDel  bool
	nRampFlags   int

	summaries []Summary
}

// NewTracker builds a tracker for one block.
func NewTracker(baselineTemp, expectedRampRate float64) *Tracker {
	t := &Tracker{
		baselineTemp: baselineTemp,
		expectedRate: expectedRampRate,
	}
	t.resetCycle()
	return t
}

func (t *Tracker) resetCycle() {
	t.cycleIdx = 0
	t.prevActual = nil
	t.prevTimestamp = 0
	t.havePrev = false
	t.onsetDetected = false
	t.onsetLatency = math.NaN()
	t.cmdChangeTime = 0
	t.haveCmdChange = false
	t.rampRates = nil
	t.tempErrors = nil
	t.warmingRates = nil
	t.coolingRates = nil
	t.prevDelta = 0
	t.havePrevDel = false
	t.nRampFlags = 0
}

// StartCycle begins accumulation for a new cycle.
func (t *Tracker) StartCycle(cycleIdx int) {
	t.resetCycle()
	t.cycleIdx = cycleIdx
}

// Update folds one sample into the open cycle.
//
// timestamp is seconds from trigger; commanded and actual are per-zone
// temperatures; delta is the waveform value; m is the polarity mask.
// Zones with NaN actual readings are skipped sample-by-sample.
func (t *Tracker) Update(timestamp float64, commanded, actual []float64, delta float64, m []int) {
	var active []int
	for i, s := range m {
		if s != 0 {
			active = append(active, i)
		}
	}
	if len(active) == 0 {
		return
	}

	// Temperature error (commanded vs actual)
	for _, z := range active {
		c, a := commanded[z], actual[z]
		if math.IsNaN(a) || math.IsNaN(c) {
			continue
		}
		errAbs := math.Abs(c - a)
		t.tempErrors = append(t.tempErrors, errAbs)
		if errAbs > TempErrorThreshold {
			log.Printf("qc: WARNING zone %d temp error = %.1f C (commanded=%.1f, actual=%.1f)",
				z+1, errAbs, c, a)
		}
	}

	// Onset detection
	if !t.onsetDetected && delta != 0 && !t.haveCmdChange {
		t.cmdChangeTime = timestamp
		t.haveCmdChange = true
	}
	if !t.onsetDetected {
		for _, z := range active {
			a := actual[z]
			if math.IsNaN(a) {
				continue
			}
			if math.Abs(a-t.baselineTemp) > OnsetThreshold {
				t.onsetDetected = true
				if t.haveCmdChange {
					t.onsetLatency = timestamp - t.cmdChangeTime
				}
				break
			}
		}
	}

	// Ramp rate from consecutive actual readings
	if t.havePrev {
		dt := timestamp - t.prevTimestamp
		if dt > 0 {
			var sum float64
			var n int
			for _, z := range active {
				aNow, aPrev := actual[z], t.prevActual[z]
				if math.IsNaN(aNow) || math.IsNaN(aPrev) {
					continue
				}
				sum += math.Abs(aNow-aPrev) / dt
				n++
			}
			if n > 0 {
				meanRate := sum / float64(n)
				t.rampRates = append(t.rampRates, meanRate)

				// Classify as warming or cooling phase from the
				// commanded delta derivative.
				prevDelta := delta
				if t.havePrevDel {
					prevDelta = t.prevDelta
				}
				if delta > prevDelta {
					t.warmingRates = append(t.warmingRates, meanRate)
				} else if delta < prevDelta {
					t.coolingRates = append(t.coolingRates, meanRate)
				}
				t.prevDelta = delta
				t.havePrevDel = true

				// Flag only when actually ramping
				if meanRate > minActiveRate &&
					math.Abs(meanRate-t.expectedRate) > RampRateTolerance {
					t.nRampFlags++
					if t.nRampFlags <= maxFlagWarnings {
						log.Printf("qc: WARNING ramp rate = %.2f C/s (expected %.1f +/- %.1f)",
							meanRate, t.expectedRate, RampRateTolerance)
					}
				}
			}
		}
	}

	t.prevActual = append([]float64(nil), actual...)
	t.prevTimestamp = timestamp
	t.havePrev = true
}

// EndCycle closes the current cycle and returns its summary. A cycle with
// no samples (or an aborted partial cycle) finalizes cleanly: counts are
// zero and rate statistics are NaN, never a division by zero.
func (t *Tracker) EndCycle() Summary {
	activeRamp := filterAbove(t.rampRates, minActiveRate)
	activeWarming := filterAbove(t.warmingRates, minActiveRate)
	activeCooling := filterAbove(t.coolingRates, minActiveRate)

	s := Summary{
		CycleIndex:         t.cycleIdx,
		OnsetLatency:       t.onsetLatency,
		MeanRampRate:       safeMean(activeRamp),
		StdRampRate:        safeStd(activeRamp),
		MeanWarmingRate:    safeMean(activeWarming),
		MeanCoolingRate:    safeMean(activeCooling),
		WarmingCoolingDiff: safeMean(activeWarming) - safeMean(activeCooling),
		MeanTempError:      safeMean(t.tempErrors),
		MaxTempError:       safeMax(t.tempErrors),
		NRampFlags:         t.nRampFlags,
		NSamples:           len(t.rampRates),
	}

	t.summaries = append(t.summaries, s)
	return s
}

// BlockSummaries returns all cycle summaries collected so far.
func (t *Tracker) BlockSummaries() []Summary {
	return append([]Summary(nil), t.summaries...)
}

// ResetBlock clears all cycle summaries for a new block.
func (t *Tracker) ResetBlock() {
	t.summaries = nil
	t.resetCycle()
}

func filterAbove(vals []float64, floor float64) []float64 {
	var out []float64
	for _, v := range vals {
		if v > floor {
			out = append(out, v)
		}
	}
	return out
}

func safeMean(vals []float64) float64 {
	if len(vals) == 0 {
		return math.NaN()
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

func safeStd(vals []float64) float64 {
	if len(vals) == 0 {
		return math.NaN()
	}
	mean := safeMean(vals)
	var ss float64
	for _, v := range vals {
		d := v - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(vals)))
}

func safeMax(vals []float64) float64 {
	if len(vals) == 0 {
		return math.NaN()
	}
	maxV := vals[0]
	for _, v := range vals[1:] {
		if v > maxV {
			maxV = v
		}
	}
	return maxV
}
