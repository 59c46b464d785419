// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

package pstates

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pstatectl/internal/cpufreq"
)

// scriptedProvider returns canned per-property values and errors, and
// records every access.
type scriptedProvider struct {
	vals   map[string]Value
	errs   map[string]error
	reads  []string
	writes []string
}

func (p *scriptedProvider) GetCPUProp(name string, cpu int) (Value, error) {
	p.reads = append(p.reads, name)
	if err, ok := p.errs[name]; ok {
		return Value{}, err
	}
	return p.vals[name], nil
}

func (p *scriptedProvider) SetCPUProp(name string, val string, cpus []int) error {
	for _, cpu := range cpus {
		p.writes = append(p.writes, fmt.Sprintf("%s=%s@%d", name, val, cpu))
	}
	return nil
}

func (p *scriptedProvider) CPUs() []int {
	return []int{0}
}

func turboOnProvider() *scriptedProvider {
	return &scriptedProvider{
		vals: map[string]Value{
			PropTurbo:        StringValue("on"),
			PropFrequencies:  ListValue([]uint64{800_000_000, 1_600_000_000, 2_400_000_000, 3_200_000_000}),
			PropMaxFreqLimit: Uint64Value(3_200_000_000),
			PropBaseFreq:     Uint64Value(2_200_000_000),
		},
	}
}

func TestResolveTurboOnLimitMatchesCeiling(t *testing.T) {
	p := turboOnProvider()

	freq, err := ResolveMaxFreq(p, 0, false)
	require.NoError(t, err)
	assert.Equal(t, TokenMax, freq.Token(), "a trustworthy limit resolves to the symbolic max")

	freq, err = ResolveMaxFreq(p, 0, true)
	require.NoError(t, err)
	assert.True(t, freq.IsNumeric())
	assert.Equal(t, uint64(3_200_000_000), freq.Hz())
}

func TestResolveDriverLimitQuirk(t *testing.T) {
	// acpi-cpufreq may report a max_freq_limit that cannot be used as a max
	// frequency setpoint, the largest acceptable frequency wins instead
	p := turboOnProvider()
	p.vals[PropMaxFreqLimit] = Uint64Value(3_000_000_000)

	for _, numeric := range []bool{false, true} {
		freq, err := ResolveMaxFreq(p, 0, numeric)
		require.NoError(t, err)
		assert.True(t, freq.IsNumeric(), "numeric=%v", numeric)
		assert.Equal(t, uint64(3_200_000_000), freq.Hz(), "numeric=%v", numeric)
	}
}

func TestResolveTurboOff(t *testing.T) {
	p := &scriptedProvider{
		vals: map[string]Value{
			PropTurbo:       StringValue("off"),
			PropFrequencies: ListValue([]uint64{800_000_000, 1_600_000_000, 2_400_000_000}),
		},
	}
	for _, numeric := range []bool{false, true} {
		freq, err := ResolveMaxFreq(p, 0, numeric)
		require.NoError(t, err)
		assert.Equal(t, uint64(2_400_000_000), freq.Hz(), "numeric=%v", numeric)
	}
}

func TestResolveTurboAbsent(t *testing.T) {
	// an absent turbo property behaves like turbo off
	p := &scriptedProvider{
		vals: map[string]Value{
			PropFrequencies: ListValue([]uint64{800_000_000, 2_400_000_000}),
		},
	}
	freq, err := ResolveMaxFreq(p, 0, false)
	require.NoError(t, err)
	assert.Equal(t, uint64(2_400_000_000), freq.Hz())
}

func TestResolveFallback(t *testing.T) {
	p := &scriptedProvider{
		vals: map[string]Value{
			PropTurbo:    StringValue("off"),
			PropBaseFreq: Uint64Value(2_200_000_000),
		},
	}

	freq, err := ResolveMaxFreq(p, 0, false)
	require.NoError(t, err)
	assert.Equal(t, TokenHFM, freq.Token())

	freq, err = ResolveMaxFreq(p, 0, true)
	require.NoError(t, err)
	assert.Equal(t, uint64(2_200_000_000), freq.Hz())
}

func TestResolveTurboOnMissingPieces(t *testing.T) {
	// with turbo on, both the frequencies list and the limit must be there,
	// otherwise the base frequency fallback applies
	tests := []struct {
		name   string
		remove string
	}{
		{"no frequencies list", PropFrequencies},
		{"no max frequency limit", PropMaxFreqLimit},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			p := turboOnProvider()
			delete(p.vals, test.remove)

			freq, err := ResolveMaxFreq(p, 0, false)
			require.NoError(t, err)
			assert.Equal(t, TokenHFM, freq.Token())

			freq, err = ResolveMaxFreq(p, 0, true)
			require.NoError(t, err)
			assert.Equal(t, uint64(2_200_000_000), freq.Hz())
		})
	}
}

func TestResolveZeroCountsAsUnresolved(t *testing.T) {
	// a zero frequency is indistinguishable from no value at all
	p := turboOnProvider()
	p.vals[PropMaxFreqLimit] = Uint64Value(0)
	freq, err := ResolveMaxFreq(p, 0, false)
	require.NoError(t, err)
	assert.Equal(t, TokenHFM, freq.Token(), "a zero limit does not count as a limit")

	p = &scriptedProvider{
		vals: map[string]Value{
			PropTurbo:       StringValue("off"),
			PropFrequencies: ListValue([]uint64{0}),
			PropBaseFreq:    Uint64Value(2_200_000_000),
		},
	}
	freq, err = ResolveMaxFreq(p, 0, true)
	require.NoError(t, err)
	assert.Equal(t, uint64(2_200_000_000), freq.Hz(), "a zero ceiling falls through to the base frequency")
}

func TestResolveErrorPropagation(t *testing.T) {
	// provider failures surface unchanged, with no wrapping
	tests := []struct {
		name    string
		failing string
		numeric bool
	}{
		{"turbo read fails", PropTurbo, false},
		{"frequencies read fails", PropFrequencies, false},
		{"limit read fails", PropMaxFreqLimit, false},
		{"base frequency read fails", PropBaseFreq, true},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			sentinel := errors.New("I/O fault")
			p := turboOnProvider()
			if test.failing == PropBaseFreq {
				delete(p.vals, PropFrequencies)
			}
			p.errs = map[string]error{test.failing: sentinel}

			_, err := ResolveMaxFreq(p, 0, test.numeric)
			assert.Equal(t, sentinel, err)
		})
	}
}

func TestResolveReadOrderAndIdempotence(t *testing.T) {
	p := turboOnProvider()

	first, err := ResolveMaxFreq(p, 0, false)
	require.NoError(t, err)
	assert.Equal(t, []string{PropTurbo, PropFrequencies, PropMaxFreqLimit}, p.reads)

	second, err := ResolveMaxFreq(p, 0, false)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	// no caching, the second call reads everything again
	assert.Len(t, p.reads, 6)
}

func TestParseFreqSpec(t *testing.T) {
	tests := []struct {
		spec     string
		expected Frequency
		err      bool
	}{
		{"2.4GHz", NumericFreq(2_400_000_000), false},
		{"800MHz", NumericFreq(800_000_000), false},
		{"1200000kHz", NumericFreq(1_200_000_000), false},
		{"1600000000", NumericFreq(1_600_000_000), false},
		{"2.4G", NumericFreq(2_400_000_000), false},
		{"max", SymbolicFreq(TokenMax), false},
		{"MAX", SymbolicFreq(TokenMax), false},
		{"min", SymbolicFreq(TokenMin), false},
		{"base", SymbolicFreq(TokenBase), false},
		{"hfm", SymbolicFreq(TokenHFM), false},
		{"p1", SymbolicFreq(TokenP1), false},
		{"Pm", SymbolicFreq(TokenPm), false},
		{"bogus", Frequency{}, true},
		{"-800MHz", Frequency{}, true},
		{"", Frequency{}, true},
	}
	for _, test := range tests {
		freq, err := ParseFreqSpec(test.spec)
		if test.err {
			assert.Error(t, err, "spec %q", test.spec)
			continue
		}
		require.NoError(t, err, "spec %q", test.spec)
		assert.Equal(t, test.expected, freq, "spec %q", test.spec)
	}
}

func TestFrequencyNumeric(t *testing.T) {
	p := &scriptedProvider{
		vals: map[string]Value{
			PropMinFreqLimit: Uint64Value(800_000_000),
			PropMaxFreqLimit: Uint64Value(3_200_000_000),
			PropBaseFreq:     Uint64Value(2_200_000_000),
			PropMinOperFreq:  Uint64Value(400_000_000),
		},
	}
	tests := []struct {
		freq     Frequency
		expected uint64
	}{
		{NumericFreq(1_000_000_000), 1_000_000_000},
		{SymbolicFreq(TokenMin), 800_000_000},
		{SymbolicFreq(TokenMax), 3_200_000_000},
		{SymbolicFreq(TokenBase), 2_200_000_000},
		{SymbolicFreq(TokenHFM), 2_200_000_000},
		{SymbolicFreq(TokenP1), 2_200_000_000},
		{SymbolicFreq(TokenPm), 400_000_000},
	}
	for _, test := range tests {
		hz, err := test.freq.Numeric(p, 0)
		require.NoError(t, err, "frequency %v", test.freq)
		assert.Equal(t, test.expected, hz, "frequency %v", test.freq)
	}

	// a setpoint whose backing property is absent cannot be resolved
	delete(p.vals, PropMinOperFreq)
	_, err := SymbolicFreq(TokenPm).Numeric(p, 0)
	assert.Error(t, err)
}

func TestSetCPUFreqsOrdering(t *testing.T) {
	// moving the range below the current min must write min before max
	p := &scriptedProvider{
		vals: map[string]Value{
			PropMinFreq: Uint64Value(2_000_000_000),
		},
	}
	err := SetCPUFreqs(p, "800MHz", "1.5GHz", []int{0})
	require.NoError(t, err)
	assert.Equal(t, []string{"min_freq=800000000@0", "max_freq=1500000000@0"}, p.writes)

	// moving the range up writes max first
	p = &scriptedProvider{
		vals: map[string]Value{
			PropMinFreq: Uint64Value(1_000_000_000),
		},
	}
	err = SetCPUFreqs(p, "1.2GHz", "2.4GHz", []int{0})
	require.NoError(t, err)
	assert.Equal(t, []string{"max_freq=2400000000@0", "min_freq=1200000000@0"}, p.writes)
}

func TestSetCPUFreqsRejectsCrossedRange(t *testing.T) {
	p := &scriptedProvider{vals: map[string]Value{}}
	err := SetCPUFreqs(p, "2.4GHz", "1.2GHz", []int{0})
	require.Error(t, err)
	assert.True(t, errors.Is(err, cpufreq.ErrFreqOrder))
	assert.Empty(t, p.writes)
}

func TestSetCPUFreqsSingleSided(t *testing.T) {
	p := &scriptedProvider{vals: map[string]Value{}}
	require.NoError(t, SetCPUFreqs(p, "", "2.4GHz", []int{0}))
	assert.Equal(t, []string{"max_freq=2.4GHz@0"}, p.writes)

	p = &scriptedProvider{vals: map[string]Value{}}
	require.NoError(t, SetCPUFreqs(p, "min", "", []int{0}))
	assert.Equal(t, []string{"min_freq=min@0"}, p.writes)

	p = &scriptedProvider{vals: map[string]Value{}}
	require.NoError(t, SetCPUFreqs(p, "", "", []int{0}))
	assert.Empty(t, p.writes)
}
