// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package thermode

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/relabs-tech/thermal_stimulator/internal/config"
)

// SimChannel models the thermode without hardware so the full control and
// QC path can run anywhere. Each zone follows its commanded target with
// first-order lag; reads carry small bounded noise from a seeded generator,
// so a fixed seed gives a bit-reproducible step response.
//
// The model advances by one fixed step (1/updateHz) per read, matching the
// set-then-read call pattern of the control loop. This keeps the response
// independent of wall-clock jitter.
type SimChannel struct {
	tau       float64 // lag constant, seconds
	dt        float64 // model step, seconds
	noise     float64 // uniform read noise amplitude, degrees C
	baseline  float64
	rng       *rand.Rand
	commanded []float64
	actual    []float64
}

// NewSim builds a simulated channel at baseline temperature.
func NewSim(cfg *config.Config) *SimChannel {
	s := &SimChannel{
		tau:       cfg.SimLagTau,
		dt:        1.0 / float64(cfg.UpdateHz),
		noise:     cfg.SimNoise,
		baseline:  cfg.BaselineTemp,
		rng:       rand.New(rand.NewPCG(cfg.SimSeed, cfg.SimSeed)),
		commanded: baselineTargets(cfg.BaselineTemp),
		actual:    baselineTargets(cfg.BaselineTemp),
	}
	return s
}

// SetZoneTemperatures stores the commanded targets.
func (s *SimChannel) SetZoneTemperatures(temps []float64) error {
	if len(temps) != Zones {
		return fmt.Errorf("thermode: expected %d zone temperatures, got %d", Zones, len(temps))
	}
	copy(s.commanded, temps)
	return nil
}

// ReadZoneTemperatures advances the lag model by one step and returns the
// sensed temperatures. read() never equals set() instantaneously: each zone
// moves toward its target by the fraction 1-exp(-dt/tau) per step.
func (s *SimChannel) ReadZoneTemperatures() ([]float64, error) {
	alpha := 1 - math.Exp(-s.dt/s.tau)
	out := make([]float64, Zones)
	for z := 0; z < Zones; z++ {
		s.actual[z] += (s.commanded[z] - s.actual[z]) * alpha
		out[z] = s.actual[z]
		if s.noise > 0 {
			out[z] += (s.rng.Float64()*2 - 1) * s.noise
		}
	}
	return out, nil
}

// ReturnToBaseline retargets every zone to baseline; the modelled
// temperature decays there with the same lag as any other command.
func (s *SimChannel) ReturnToBaseline() error {
	return s.SetZoneTemperatures(baselineTargets(s.baseline))
}

// Close is a no-op for the simulated device.
func (s *SimChannel) Close() error { return nil }
