// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package mask

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetKnownMasks(t *testing.T) {
	for _, name := range []string{"P1_W", "P1_C", "P3_W", "P3_C", "TGI_1", "TGI_2"} {
		m, err := Get(name)
		require.NoError(t, err, name)
		assert.Len(t, m, ZoneCount, name)
	}
}

func TestGetUnknownMask(t *testing.T) {
	_, err := Get("TGI_9")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TGI_9")
}

func TestNamesSorted(t *testing.T) {
	names := Names()
	assert.Equal(t, []string{"P1_C", "P1_W", "P3_C", "P3_W", "TGI_1", "TGI_2"}, names)
}

func TestApplyTGIExample(t *testing.T) {
	// TGI_1 with baseline 30, delta 20: warm zones to 50, cool zones
	// to 10, neutral zone stays.
	m, err := Get("TGI_1")
	require.NoError(t, err)

	temps := Apply(m, 20, 30, 10, 50)
	assert.Equal(t, []float64{50, 10, 50, 10, 30}, temps)
}

func TestApplyMirroredMasks(t *testing.T) {
	m1, err := Get("TGI_1")
	require.NoError(t, err)
	m2, err := Get("TGI_2")
	require.NoError(t, err)

	// TGI_2 is the polarity mirror of TGI_1: same temps with the delta
	// sign flipped.
	a := Apply(m1, 7.5, 30, 10, 50)
	b := Apply(m2, -7.5, 30, 10, 50)
	assert.Equal(t, a, b)
}

func TestApplyClamp(t *testing.T) {
	m := []int{+1, -1, 0, 0, 0}

	// Amplitude larger than the safety window: both extremes clamp.
	temps := Apply(m, 30, 30, 10, 50)
	assert.Equal(t, 50.0, temps[0])
	assert.Equal(t, 10.0, temps[1])
	assert.Equal(t, 30.0, temps[2])

	// Within the window nothing clamps.
	temps = Apply(m, 5, 30, 10, 50)
	assert.Equal(t, []float64{35, 25, 30, 30, 30}, temps)
}

func TestApplyRounding(t *testing.T) {
	m := []int{+1, 0, 0, 0, 0}
	temps := Apply(m, 1.0/3.0, 30, 10, 50)
	assert.Equal(t, 30.33, temps[0])
}

func TestApplyZeroDelta(t *testing.T) {
	m, err := Get("TGI_1")
	require.NoError(t, err)
	temps := Apply(m, 0, 30, 10, 50)
	assert.Equal(t, []float64{30, 30, 30, 30, 30}, temps)
}

func TestActiveZones(t *testing.T) {
	m, err := Get("P3_W")
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3}, ActiveZones(m))

	m, err = Get("TGI_1")
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3}, ActiveZones(m))
}
