package pstates

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"fmt"
	"strconv"
	"strings"

	"pstatectl/internal/cpufreq"
	"pstatectl/internal/util"
)

// Symbolic frequency tokens.
const (
	TokenMin  = "min"  // min supported frequency
	TokenMax  = "max"  // max supported frequency
	TokenBase = "base" // base frequency
	TokenHFM  = "hfm"  // high frequency mode, a synonym for the base frequency
	TokenP1   = "P1"   // another synonym for the base frequency
	TokenPm   = "Pm"   // min operating frequency
)

// Frequency is either a numeric value in Hz or a symbolic token such as
// "max" or "hfm".
type Frequency struct {
	hz  uint64
	tok string
}

func NumericFreq(hz uint64) Frequency {
	return Frequency{hz: hz}
}

func SymbolicFreq(tok string) Frequency {
	return Frequency{tok: tok}
}

// IsNumeric reports whether the frequency is a plain number rather than a
// symbolic token.
func (f Frequency) IsNumeric() bool {
	return f.tok == ""
}

// Hz returns the numeric value, 0 for symbolic frequencies.
func (f Frequency) Hz() uint64 {
	return f.hz
}

// Token returns the symbolic token, "" for numeric frequencies.
func (f Frequency) Token() string {
	return f.tok
}

func (f Frequency) String() string {
	if f.tok != "" {
		return f.tok
	}
	return util.FormatHz(f.hz)
}

// ResolveMaxFreq determines the max frequency the frequency driver accepts
// for cpu. With numeric set, the result is always a number in Hz, otherwise
// symbolic tokens may be returned. Provider failures propagate unchanged.
func ResolveMaxFreq(p Provider, cpu int, numeric bool) (Frequency, error) {
	turbo, err := p.GetCPUProp(PropTurbo, cpu)
	if err != nil {
		return Frequency{}, err
	}
	freqs, err := p.GetCPUProp(PropFrequencies, cpu)
	if err != nil {
		return Frequency{}, err
	}

	var maxFreq Frequency
	list := freqs.List()
	if turbo.Str() == "on" {
		// On some platforms running the acpi-cpufreq driver, max_freq_limit
		// holds a value the driver will not accept as a max frequency
		// setpoint. Check the acceptable frequencies and take the largest
		// one in that case.
		limit, err := p.GetCPUProp(PropMaxFreqLimit, cpu)
		if err != nil {
			return Frequency{}, err
		}
		if len(list) > 0 && limit.Uint64() != 0 {
			if limit.Uint64() == list[len(list)-1] {
				if numeric {
					maxFreq = NumericFreq(limit.Uint64())
				} else {
					maxFreq = SymbolicFreq(TokenMax)
				}
			} else {
				maxFreq = NumericFreq(list[len(list)-1])
			}
		}
	} else if len(list) > 0 {
		maxFreq = NumericFreq(list[len(list)-1])
	}

	// A numeric value of 0 counts as unresolved, the same as no value at
	// all.
	if maxFreq.tok == "" && maxFreq.hz == 0 {
		if numeric {
			base, err := p.GetCPUProp(PropBaseFreq, cpu)
			if err != nil {
				return Frequency{}, err
			}
			maxFreq = NumericFreq(base.Uint64())
		} else {
			maxFreq = SymbolicFreq(TokenHFM)
		}
	}
	return maxFreq, nil
}

// ParseFreqSpec parses a frequency given on the command line: a number with
// an optional kHz/MHz/GHz suffix, or one of the symbolic setpoints min, max,
// base, hfm, P1, and Pm.
func ParseFreqSpec(spec string) (Frequency, error) {
	switch strings.ToLower(spec) {
	case TokenMin:
		return SymbolicFreq(TokenMin), nil
	case TokenMax:
		return SymbolicFreq(TokenMax), nil
	case TokenBase:
		return SymbolicFreq(TokenBase), nil
	case TokenHFM:
		return SymbolicFreq(TokenHFM), nil
	case "p1":
		return SymbolicFreq(TokenP1), nil
	case "pm":
		return SymbolicFreq(TokenPm), nil
	}
	hz, err := parseHz(spec)
	if err != nil {
		return Frequency{}, err
	}
	return NumericFreq(hz), nil
}

func parseHz(spec string) (uint64, error) {
	s := strings.ToLower(strings.TrimSpace(spec))
	mult := float64(1)
	for _, suffix := range []struct {
		text string
		mult float64
	}{
		{"ghz", 1e9}, {"mhz", 1e6}, {"khz", 1e3}, {"hz", 1},
		{"g", 1e9}, {"m", 1e6}, {"k", 1e3},
	} {
		if strings.HasSuffix(s, suffix.text) {
			s = strings.TrimSuffix(s, suffix.text)
			mult = suffix.mult
			break
		}
	}
	num, err := strconv.ParseFloat(s, 64)
	if err != nil || num < 0 {
		return 0, fmt.Errorf("bad frequency value %q, expected a number with an optional kHz/MHz/GHz suffix or a symbolic setpoint", spec)
	}
	return uint64(num * mult), nil
}

// Numeric resolves the frequency to Hz for cpu. Symbolic setpoints go
// through the provider: min and max map to the frequency limits, base, hfm,
// and P1 to the base frequency, Pm to the min operating frequency.
func (f Frequency) Numeric(p Provider, cpu int) (uint64, error) {
	if f.IsNumeric() {
		return f.hz, nil
	}
	var prop string
	switch f.tok {
	case TokenMin:
		prop = PropMinFreqLimit
	case TokenMax:
		prop = PropMaxFreqLimit
	case TokenBase, TokenHFM, TokenP1:
		prop = PropBaseFreq
	case TokenPm:
		prop = PropMinOperFreq
	default:
		return 0, fmt.Errorf("unknown frequency token %q", f.tok)
	}
	val, err := p.GetCPUProp(prop, cpu)
	if err != nil {
		return 0, err
	}
	if !val.Present || val.Uint64() == 0 {
		return 0, fmt.Errorf("cannot resolve %q for CPU %d: %s is not available", f.tok, cpu, prop)
	}
	return val.Uint64(), nil
}

// SetCPUFreqs applies min and/or max frequency setpoints to cpus, ordering
// the two writes per CPU so that min never exceeds max in between. Empty
// specs are skipped.
func SetCPUFreqs(p Provider, minSpec, maxSpec string, cpus []int) error {
	if minSpec == "" && maxSpec == "" {
		return nil
	}
	if minSpec == "" {
		return p.SetCPUProp(PropMaxFreq, maxSpec, cpus)
	}
	if maxSpec == "" {
		return p.SetCPUProp(PropMinFreq, minSpec, cpus)
	}
	minFreq, err := ParseFreqSpec(minSpec)
	if err != nil {
		return err
	}
	maxFreq, err := ParseFreqSpec(maxSpec)
	if err != nil {
		return err
	}
	for _, cpu := range cpus {
		newMin, err := minFreq.Numeric(p, cpu)
		if err != nil {
			return err
		}
		newMax, err := maxFreq.Numeric(p, cpu)
		if err != nil {
			return err
		}
		if newMin > newMax {
			return fmt.Errorf("min frequency %s is higher than max frequency %s: %w",
				util.FormatHz(newMin), util.FormatHz(newMax), cpufreq.ErrFreqOrder)
		}
		curMin, err := p.GetCPUProp(PropMinFreq, cpu)
		if err != nil {
			return err
		}
		// When the new range lies below the current min, the max must move
		// down after the min, otherwise the max moves first.
		order := []struct {
			prop string
			hz   uint64
		}{
			{PropMaxFreq, newMax},
			{PropMinFreq, newMin},
		}
		if newMax < curMin.Uint64() {
			order[0], order[1] = order[1], order[0]
		}
		for _, write := range order {
			if err := p.SetCPUProp(write.prop, strconv.FormatUint(write.hz, 10), []int{cpu}); err != nil {
				return err
			}
		}
	}
	return nil
}
