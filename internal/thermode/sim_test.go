// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package thermode

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/thermal_stimulator/internal/config"
	"github.com/relabs-tech/thermal_stimulator/internal/mask"
	"github.com/relabs-tech/thermal_stimulator/internal/qc"
	"github.com/relabs-tech/thermal_stimulator/internal/waveform"
)

func simConfig() *config.Config {
	cfg := config.Default()
	cfg.SimNoise = 0 // deterministic trajectory for step tests
	return cfg
}

func TestSimStartsAtBaseline(t *testing.T) {
	s := NewSim(simConfig())
	temps, err := s.ReadZoneTemperatures()
	require.NoError(t, err)
	for z, temp := range temps {
		assert.InDelta(t, 30.0, temp, 1e-9, "zone %d", z)
	}
}

func TestSimLagsTowardCommand(t *testing.T) {
	cfg := simConfig()
	s := NewSim(cfg)

	target := []float64{50, 10, 50, 10, 30}
	require.NoError(t, s.SetZoneTemperatures(target))

	// First read moves toward the target but must not reach it.
	temps, err := s.ReadZoneTemperatures()
	require.NoError(t, err)
	assert.Greater(t, temps[0], 30.0)
	assert.Less(t, temps[0], 50.0)
	assert.Less(t, temps[1], 30.0)
	assert.Greater(t, temps[1], 10.0)
	assert.InDelta(t, 30.0, temps[4], 1e-9)

	// After many time constants the response converges.
	for i := 0; i < 20*int(cfg.SimLagTau*float64(cfg.UpdateHz)); i++ {
		temps, err = s.ReadZoneTemperatures()
		require.NoError(t, err)
	}
	for z := range target {
		assert.InDelta(t, target[z], temps[z], 0.01, "zone %d", z)
	}
}

func TestSimStepFraction(t *testing.T) {
	// With tau=1.5 s and 10 Hz, one step closes 1-exp(-0.1/1.5) of the
	// gap: 30 + 20*0.0645 = 31.29.
	s := NewSim(simConfig())
	require.NoError(t, s.SetZoneTemperatures([]float64{50, 30, 30, 30, 30}))
	temps, err := s.ReadZoneTemperatures()
	require.NoError(t, err)
	assert.InDelta(t, 31.29, temps[0], 0.01)
}

func TestSimDeterministicWithSeed(t *testing.T) {
	cfg := config.Default() // noise enabled, fixed seed
	a := NewSim(cfg)
	b := NewSim(cfg)

	require.NoError(t, a.SetZoneTemperatures([]float64{45, 15, 45, 15, 30}))
	require.NoError(t, b.SetZoneTemperatures([]float64{45, 15, 45, 15, 30}))

	for i := 0; i < 100; i++ {
		ta, err := a.ReadZoneTemperatures()
		require.NoError(t, err)
		tb, err := b.ReadZoneTemperatures()
		require.NoError(t, err)
		assert.Equal(t, ta, tb, "step %d", i)
	}
}

// simCycleLatency drives one full waveform cycle through the simulated
// channel the way the control loop does and returns the tracked onset
// latency.
func simCycleLatency(t *testing.T, tau float64) float64 {
	t.Helper()
	cfg := config.Default()
	cfg.SimNoise = 0
	cfg.SimLagTau = tau
	ch := NewSim(cfg)

	m, err := mask.Get("TGI_1")
	require.NoError(t, err)
	grid := waveform.Grid(cfg.CycleDuration, cfg.UpdateHz, cfg.MaxDelta)

	tr := qc.NewTracker(cfg.BaselineTemp, cfg.RampRate)
	tr.StartCycle(0)
	for i, delta := range grid {
		temps := mask.Apply(m, delta, cfg.BaselineTemp, cfg.TempMin, cfg.TempMax)
		require.NoError(t, ch.SetZoneTemperatures(temps))
		actual, err := ch.ReadZoneTemperatures()
		require.NoError(t, err)
		tr.Update(float64(i)/float64(cfg.UpdateHz), temps, actual, delta, m)
	}
	return tr.EndCycle().OnsetLatency
}

func TestSimOnsetLatencyTracksLagConstant(t *testing.T) {
	latSlow := simCycleLatency(t, 2.0)
	latFast := simCycleLatency(t, 0.5)

	require.False(t, math.IsNaN(latSlow))
	require.False(t, math.IsNaN(latFast))

	// With the threshold estimator the observed lag is on the order of
	// the lag constant, and a slower probe shows a longer onset.
	assert.Greater(t, latSlow, 0.5*2.0)
	assert.Less(t, latSlow, 1.1*2.0)
	assert.Greater(t, latFast, 0.5*0.5)
	assert.Less(t, latFast, 1.1*2.0)
	assert.Greater(t, latSlow, latFast)
}

func TestSimRejectsWrongZoneCount(t *testing.T) {
	s := NewSim(simConfig())
	assert.Error(t, s.SetZoneTemperatures([]float64{30, 30, 30}))
}

func TestSimReturnToBaseline(t *testing.T) {
	cfg := simConfig()
	s := NewSim(cfg)
	require.NoError(t, s.SetZoneTemperatures([]float64{50, 50, 50, 50, 50}))
	for i := 0; i < 50; i++ {
		_, err := s.ReadZoneTemperatures()
		require.NoError(t, err)
	}

	require.NoError(t, s.ReturnToBaseline())
	var temps []float64
	var err error
	for i := 0; i < 20*int(cfg.SimLagTau*float64(cfg.UpdateHz)); i++ {
		temps, err = s.ReadZoneTemperatures()
		require.NoError(t, err)
	}
	for z, temp := range temps {
		assert.InDelta(t, 30.0, temp, 0.01, "zone %d", z)
	}
}
