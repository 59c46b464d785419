// Package pstates models Linux CPU P-state properties, provides access to
// them through sysfs and MSR backed providers, and resolves symbolic
// frequency setpoints.
package pstates

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

// Property names accepted by Provider.GetCPUProp and SetCPUProp.
const (
	PropTurbo           = "turbo"
	PropMinFreq         = "min_freq"
	PropMaxFreq         = "max_freq"
	PropMinFreqLimit    = "min_freq_limit"
	PropMaxFreqLimit    = "max_freq_limit"
	PropBaseFreq        = "base_freq"
	PropFrequencies     = "frequencies"
	PropBusClock        = "bus_clock"
	PropMinOperFreq     = "min_oper_freq"
	PropMaxTurboFreq    = "max_turbo_freq"
	PropHWP             = "hwp"
	PropEPP             = "epp"
	PropEPB             = "epb"
	PropDriver          = "driver"
	PropIntelPstateMode = "intel_pstate_mode"
	PropGovernor        = "governor"
	PropGovernors       = "governors"
)

// Property describes one P-state property.
type Property struct {
	Name     string
	Writable bool
}

// Props lists every property.
var Props = []Property{
	{Name: PropTurbo, Writable: true},
	{Name: PropMinFreq, Writable: true},
	{Name: PropMaxFreq, Writable: true},
	{Name: PropMinFreqLimit},
	{Name: PropMaxFreqLimit},
	{Name: PropBaseFreq},
	{Name: PropFrequencies},
	{Name: PropBusClock},
	{Name: PropMinOperFreq},
	{Name: PropMaxTurboFreq},
	{Name: PropHWP},
	{Name: PropEPP, Writable: true},
	{Name: PropEPB, Writable: true},
	{Name: PropDriver},
	{Name: PropIntelPstateMode, Writable: true},
	{Name: PropGovernor, Writable: true},
	{Name: PropGovernors},
}

// LookupProp returns the descriptor of a property by name.
func LookupProp(name string) (Property, bool) {
	for _, prop := range Props {
		if prop.Name == name {
			return prop, true
		}
	}
	return Property{}, false
}
