// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package thermode

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetCommand(t *testing.T) {
	assert.Equal(t, "C350350350350350", setCommand([]float64{35, 35, 35, 35, 35}))
	assert.Equal(t, "C500100500100300", setCommand([]float64{50, 10, 50, 10, 30}))
	// Tenths are rounded, not truncated.
	assert.Equal(t, "C305305305305305", setCommand([]float64{30.46, 30.46, 30.46, 30.46, 30.46}))
}

func TestParseTemperatures(t *testing.T) {
	temps, err := parseTemperatures("+350+348+351+349+350")
	require.NoError(t, err)
	assert.Equal(t, []float64{35.0, 34.8, 35.1, 34.9, 35.0}, temps)
}

func TestParseTemperaturesNegative(t *testing.T) {
	temps, err := parseTemperatures("-050+348+351+349+350")
	require.NoError(t, err)
	assert.Equal(t, -5.0, temps[0])
}

func TestParseTemperaturesNaNSentinel(t *testing.T) {
	temps, err := parseTemperatures("+999+348+351+349+350")
	require.NoError(t, err)
	assert.True(t, math.IsNaN(temps[0]))
	assert.Equal(t, 34.8, temps[1])

	temps, err = parseTemperatures("-999+348+351+349+350")
	require.NoError(t, err)
	assert.True(t, math.IsNaN(temps[0]))
}

func TestParseTemperaturesMalformed(t *testing.T) {
	for _, reply := range []string{
		"",
		"+350",
		"+350+348+351+349",      // only 4 groups
		"+350+348+351+349+3500", // too long
		"x350+348+351+349+350",  // missing sign
	} {
		_, err := parseTemperatures(reply)
		assert.Error(t, err, "reply %q", reply)
	}
}

func TestParseTemperaturesUnreadableGroup(t *testing.T) {
	// A garbled group decodes as NaN rather than failing the reply.
	temps, err := parseTemperatures("+35x+348+351+349+350")
	require.NoError(t, err)
	assert.True(t, math.IsNaN(temps[0]))
	assert.Equal(t, 34.8, temps[1])
}

func TestTenths(t *testing.T) {
	assert.Equal(t, 300, tenths(30.0))
	assert.Equal(t, 305, tenths(30.46))
	assert.Equal(t, 1000, tenths(100.0))
}

func TestBaselineTargets(t *testing.T) {
	assert.Equal(t, []float64{30, 30, 30, 30, 30}, baselineTargets(30))
}

func TestAnyNaN(t *testing.T) {
	assert.False(t, anyNaN([]float64{1, 2, 3}))
	assert.True(t, anyNaN([]float64{1, math.NaN(), 3}))
}

func TestFaultErrorUnwrap(t *testing.T) {
	inner := errors.New("device unplugged")
	err := &FaultError{Op: "read temperatures", Err: inner}
	assert.Contains(t, err.Error(), "read temperatures")
	assert.ErrorIs(t, err, inner)
}
