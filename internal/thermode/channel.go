// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package thermode abstracts the 5-zone TCS II.1 thermal stimulator.
//
// The experiment drives the device in follow mode: targets are sent at the
// update rate and the hardware ramps toward each target at a high internal
// ramp speed, so the waveform shape is determined by the software update
// sequence rather than the hardware ramp rate.
package thermode

import "fmt"

// Channel is the capability set the control loop needs from a thermode.
// Two implementations exist: the serial hardware driver and a simulated
// device with first-order lag. The variant is selected by configuration,
// never by runtime type inspection.
type Channel interface {
	// SetZoneTemperatures commands target temperatures for all zones.
	SetZoneTemperatures(temps []float64) error
	// ReadZoneTemperatures returns the current sensed zone temperatures.
	// Individual values may be NaN when the device momentarily fails to
	// report a zone; consumers must tolerate NaN per zone.
	ReadZoneTemperatures() ([]float64, error)
	// ReturnToBaseline commands every zone back to the neutral temperature.
	// Called on normal completion and on abort.
	ReturnToBaseline() error
	// Close releases the device. For hardware this aborts stimulation and
	// returns to baseline first.
	Close() error
}

// FaultError marks a device-level failure (timeout, malformed reply, fault
// code). It is fatal to the current block: the loop returns to baseline and
// propagates the fault to the orchestrator.
type FaultError struct {
	Op  string // the command that failed, e.g. "set temperatures"
	Err error
}

func (e *FaultError) Error() string {
	return fmt.Sprintf("thermode fault: %s: %v", e.Op, e.Err)
}

func (e *FaultError) Unwrap() error { return e.Err }
