package pstates

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"errors"
	"fmt"
	"strconv"

	"pstatectl/internal/cpufreq"
	"pstatectl/internal/cpuinfo"
	"pstatectl/internal/hostfs"
	"pstatectl/internal/msr"
)

// Provider supplies P-state property values for CPUs. Implementations must
// return an absent Value, not an error, for properties the platform does not
// support, and an error for nonexistent CPUs or real I/O faults.
type Provider interface {
	GetCPUProp(name string, cpu int) (Value, error)
	SetCPUProp(name string, val string, cpus []int) error
	CPUs() []int
}

// intelBusClockHz is the bus clock of all Intel processors since Sandy
// Bridge.
const intelBusClockHz uint64 = 100_000_000

// hwpVerifyRetries is how many times frequency write verification re-reads
// the value on HWP systems, where the kernel applies changes with a delay.
const hwpVerifyRetries = 2

// SysfsProvider reads properties from sysfs, filling the gaps from MSRs on
// Intel systems.
type SysfsProvider struct {
	info *cpuinfo.CPUInfo
	freq *cpufreq.Client
	msr  *msr.Reader
}

// NewSysfsProvider builds a provider on top of fs. MSR access is enabled
// only for Intel CPUs and only on the live system, i.e., when fs points at
// the real root.
func NewSysfsProvider(fs *hostfs.FS) (*SysfsProvider, error) {
	info, err := cpuinfo.New(fs)
	if err != nil {
		return nil, err
	}
	client := cpufreq.New(fs)
	if info.Vendor == cpuinfo.VendorIntel && info.HasFlag("hwp") {
		client.SetVerifyRetries(hwpVerifyRetries)
	}
	p := &SysfsProvider{info: info, freq: client}
	if info.Vendor == cpuinfo.VendorIntel && fs.Root() == "/" {
		p.msr = msr.NewReader()
	}
	return p, nil
}

// SetMSRReader overrides the MSR reader, e.g., to read from a captured
// register dump.
func (p *SysfsProvider) SetMSRReader(reader *msr.Reader) {
	p.msr = reader
}

// Info returns the CPU identification and topology data of the system.
func (p *SysfsProvider) Info() *cpuinfo.CPUInfo {
	return p.info
}

// CPUs returns the online CPU numbers.
func (p *SysfsProvider) CPUs() []int {
	return p.info.OnlineCPUs()
}

// CurFreq returns the current frequency of cpu in Hz.
func (p *SysfsProvider) CurFreq(cpu int) (uint64, error) {
	return p.freq.CurFreq(cpu)
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

// absentOnNotSupported maps the not-supported sentinel to an absent value
// and passes every other error through.
func absentOnNotSupported(v Value, err error) (Value, error) {
	if err != nil {
		if errors.Is(err, hostfs.ErrNotSupported) {
			return Value{}, nil
		}
		return Value{}, err
	}
	return v, nil
}

func uint64OrAbsent(n uint64, err error) (Value, error) {
	if err != nil {
		return Value{}, err
	}
	if n == 0 {
		return Value{}, nil
	}
	return Uint64Value(n), nil
}

func (p *SysfsProvider) GetCPUProp(name string, cpu int) (Value, error) {
	if _, ok := LookupProp(name); !ok {
		return Value{}, fmt.Errorf("unknown property %q", name)
	}
	if !p.info.IsPresent(cpu) {
		return Value{}, fmt.Errorf("CPU %d does not exist", cpu)
	}
	switch name {
	case PropTurbo:
		turbo, err := p.freq.Turbo(cpu)
		return absentOnNotSupported(StringValue(onOff(turbo)), err)
	case PropMinFreq:
		hz, err := p.freq.MinFreq(cpu)
		return absentOnNotSupported(Uint64Value(hz), err)
	case PropMaxFreq:
		hz, err := p.freq.MaxFreq(cpu)
		return absentOnNotSupported(Uint64Value(hz), err)
	case PropMinFreqLimit:
		hz, err := p.freq.MinFreqLimit(cpu)
		return absentOnNotSupported(Uint64Value(hz), err)
	case PropMaxFreqLimit:
		hz, err := p.freq.MaxFreqLimit(cpu)
		return absentOnNotSupported(Uint64Value(hz), err)
	case PropBaseFreq:
		return p.baseFreq(cpu)
	case PropFrequencies:
		freqs, err := p.freq.AvailableFrequencies(cpu)
		return absentOnNotSupported(ListValue(freqs), err)
	case PropBusClock:
		if p.info.Vendor != cpuinfo.VendorIntel {
			return Value{}, nil
		}
		return Uint64Value(intelBusClockHz), nil
	case PropMinOperFreq:
		if !p.msrSupported(cpu) {
			return Value{}, nil
		}
		return uint64OrAbsent(p.msr.MinOperFreq(cpu))
	case PropMaxTurboFreq:
		if !p.msrSupported(cpu) {
			return Value{}, nil
		}
		return uint64OrAbsent(p.msr.MaxTurboFreq(cpu))
	case PropHWP:
		return StringValue(onOff(p.info.HasFlag("hwp"))), nil
	case PropEPP:
		epp, err := p.freq.EPP(cpu)
		return absentOnNotSupported(StringValue(epp), err)
	case PropEPB:
		epb, err := p.freq.EPB(cpu)
		return absentOnNotSupported(Uint64Value(epb), err)
	case PropDriver:
		driver, err := p.freq.Driver(cpu)
		return absentOnNotSupported(StringValue(driver), err)
	case PropIntelPstateMode:
		mode, err := p.freq.IntelPstateMode(cpu)
		return absentOnNotSupported(StringValue(mode), err)
	case PropGovernor:
		governor, err := p.freq.Governor(cpu)
		return absentOnNotSupported(StringValue(governor), err)
	case PropGovernors:
		governors, err := p.freq.AvailableGovernors(cpu)
		return absentOnNotSupported(StringsValue(governors), err)
	}
	return Value{}, fmt.Errorf("unknown property %q", name)
}

// baseFreq reads the base frequency from sysfs, falling back to
// MSR_PLATFORM_INFO when sysfs has nothing.
func (p *SysfsProvider) baseFreq(cpu int) (Value, error) {
	hz, err := p.freq.BaseFreq(cpu)
	if err == nil {
		return Uint64Value(hz), nil
	}
	if !errors.Is(err, hostfs.ErrNotSupported) {
		return Value{}, err
	}
	if !p.msrSupported(cpu) {
		return Value{}, nil
	}
	return uint64OrAbsent(p.msr.BaseFreq(cpu))
}

func (p *SysfsProvider) msrSupported(cpu int) bool {
	return p.msr != nil && p.msr.Supported(cpu)
}

func parseOnOff(val string) (bool, error) {
	switch val {
	case "on":
		return true, nil
	case "off":
		return false, nil
	}
	return false, fmt.Errorf("bad value %q, use \"on\" or \"off\"", val)
}

// SetCPUProp writes a property for all of cpus. Frequency values may be
// numeric with an optional kHz/MHz/GHz suffix or symbolic (min, max, base,
// hfm, P1, Pm). Global properties are written once.
func (p *SysfsProvider) SetCPUProp(name string, val string, cpus []int) error {
	prop, ok := LookupProp(name)
	if !ok {
		return fmt.Errorf("unknown property %q", name)
	}
	if !prop.Writable {
		return fmt.Errorf("property %q is read-only", name)
	}
	if len(cpus) == 0 {
		cpus = p.CPUs()
	}
	for _, cpu := range cpus {
		if !p.info.IsPresent(cpu) {
			return fmt.Errorf("CPU %d does not exist", cpu)
		}
	}
	switch name {
	case PropTurbo:
		enable, err := parseOnOff(val)
		if err != nil {
			return err
		}
		return p.freq.SetTurbo(cpus[0], enable)
	case PropIntelPstateMode:
		return p.freq.SetIntelPstateMode(cpus[0], val)
	case PropMinFreq, PropMaxFreq:
		freq, err := ParseFreqSpec(val)
		if err != nil {
			return err
		}
		for _, cpu := range cpus {
			hz, err := freq.Numeric(p, cpu)
			if err != nil {
				return err
			}
			if name == PropMinFreq {
				err = p.freq.SetMinFreq(cpu, hz)
			} else {
				err = p.freq.SetMaxFreq(cpu, hz)
			}
			if err != nil {
				return err
			}
		}
		return nil
	case PropGovernor:
		for _, cpu := range cpus {
			if err := p.freq.SetGovernor(cpu, val); err != nil {
				return err
			}
		}
		return nil
	case PropEPP:
		for _, cpu := range cpus {
			if err := p.freq.SetEPP(cpu, val); err != nil {
				return err
			}
		}
		return nil
	case PropEPB:
		epb, err := strconv.ParseUint(val, 10, 64)
		if err != nil {
			return fmt.Errorf("bad EPB value %q, expected an integer in the [0,15] range", val)
		}
		for _, cpu := range cpus {
			if err := p.freq.SetEPB(cpu, epb); err != nil {
				return err
			}
		}
		return nil
	}
	return fmt.Errorf("property %q is read-only", name)
}
