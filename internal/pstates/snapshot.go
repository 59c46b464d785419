package pstates

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"time"

	"golang.org/x/sys/unix"
	"gopkg.in/yaml.v2"

	"pstatectl/internal/hostfs"
)

// Snapshot captures every P-state property of a host at one point in time,
// for offline reporting and bug reports. Zero/empty fields mean the platform
// does not support the property.
type Snapshot struct {
	Host       string        `yaml:"host"`
	Taken      string        `yaml:"taken"`
	Kernel     string        `yaml:"kernel,omitempty"`
	Vendor     string        `yaml:"vendor,omitempty"`
	ModelName  string        `yaml:"model_name,omitempty"`
	Family     string        `yaml:"family,omitempty"`
	Model      string        `yaml:"model,omitempty"`
	Stepping   string        `yaml:"stepping,omitempty"`
	Driver     string        `yaml:"driver,omitempty"`
	Mode       string        `yaml:"intel_pstate_mode,omitempty"`
	Turbo      string        `yaml:"turbo,omitempty"`
	HWP        string        `yaml:"hwp,omitempty"`
	BusClock   uint64        `yaml:"bus_clock,omitempty"`
	Governors  []string      `yaml:"governors,omitempty,flow"`
	EPPChoices []string      `yaml:"epp_choices,omitempty,flow"`
	CPUs       []CPUSnapshot `yaml:"cpus"`
}

// CPUSnapshot holds the per-CPU properties. Frequencies are in Hz.
type CPUSnapshot struct {
	CPU          int      `yaml:"cpu"`
	Package      string   `yaml:"package,omitempty"`
	Core         string   `yaml:"core,omitempty"`
	BaseFreq     uint64   `yaml:"base_freq,omitempty"`
	MinFreqLimit uint64   `yaml:"min_freq_limit,omitempty"`
	MaxFreqLimit uint64   `yaml:"max_freq_limit,omitempty"`
	MinFreq      uint64   `yaml:"min_freq,omitempty"`
	MaxFreq      uint64   `yaml:"max_freq,omitempty"`
	CurFreq      uint64   `yaml:"cur_freq,omitempty"`
	MinOperFreq  uint64   `yaml:"min_oper_freq,omitempty"`
	MaxTurboFreq uint64   `yaml:"max_turbo_freq,omitempty"`
	Frequencies  []uint64 `yaml:"frequencies,omitempty,flow"`
	Governor     string   `yaml:"governor,omitempty"`
	EPP          string   `yaml:"epp,omitempty"`
	EPB          string   `yaml:"epb,omitempty"`
}

func kernelRelease() string {
	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		return ""
	}
	return unix.ByteSliceToString(uts.Release[:])
}

// TakeSnapshot records all properties of all online CPUs from p.
func TakeSnapshot(p *SysfsProvider) (*Snapshot, error) {
	cpus := p.CPUs()
	if len(cpus) == 0 {
		return nil, fmt.Errorf("no online CPUs found")
	}
	host, _ := os.Hostname()
	snap := &Snapshot{
		Host:      host,
		Taken:     time.Now().UTC().Format(time.RFC3339),
		Kernel:    kernelRelease(),
		Vendor:    p.info.Vendor,
		ModelName: p.info.ModelName,
		Family:    p.info.Family,
		Model:     p.info.Model,
		Stepping:  p.info.Stepping,
	}

	// driver, mode, turbo, hwp, and bus clock are global, read them from the
	// first CPU
	first := cpus[0]
	globals := []struct {
		name string
		dst  *string
	}{
		{PropDriver, &snap.Driver},
		{PropIntelPstateMode, &snap.Mode},
		{PropTurbo, &snap.Turbo},
		{PropHWP, &snap.HWP},
	}
	for _, global := range globals {
		val, err := p.GetCPUProp(global.name, first)
		if err != nil {
			return nil, err
		}
		*global.dst = val.Str()
	}
	busClock, err := p.GetCPUProp(PropBusClock, first)
	if err != nil {
		return nil, err
	}
	snap.BusClock = busClock.Uint64()
	governors, err := p.GetCPUProp(PropGovernors, first)
	if err != nil {
		return nil, err
	}
	snap.Governors = governors.Strs()
	epps, err := p.freq.AvailableEPPs(first)
	if err != nil && !errors.Is(err, hostfs.ErrNotSupported) {
		return nil, err
	}
	snap.EPPChoices = epps

	for _, cpu := range cpus {
		cs := CPUSnapshot{
			CPU:     cpu,
			Package: p.info.PackageOf(cpu),
			Core:    p.info.CoreOf(cpu),
		}
		freqProps := []struct {
			name string
			dst  *uint64
		}{
			{PropBaseFreq, &cs.BaseFreq},
			{PropMinFreqLimit, &cs.MinFreqLimit},
			{PropMaxFreqLimit, &cs.MaxFreqLimit},
			{PropMinFreq, &cs.MinFreq},
			{PropMaxFreq, &cs.MaxFreq},
			{PropMinOperFreq, &cs.MinOperFreq},
			{PropMaxTurboFreq, &cs.MaxTurboFreq},
		}
		for _, freqProp := range freqProps {
			val, err := p.GetCPUProp(freqProp.name, cpu)
			if err != nil {
				return nil, err
			}
			*freqProp.dst = val.Uint64()
		}
		curFreq, err := p.freq.CurFreq(cpu)
		if err != nil && !errors.Is(err, hostfs.ErrNotSupported) {
			return nil, err
		}
		cs.CurFreq = curFreq
		freqs, err := p.GetCPUProp(PropFrequencies, cpu)
		if err != nil {
			return nil, err
		}
		cs.Frequencies = freqs.List()
		governor, err := p.GetCPUProp(PropGovernor, cpu)
		if err != nil {
			return nil, err
		}
		cs.Governor = governor.Str()
		epp, err := p.GetCPUProp(PropEPP, cpu)
		if err != nil {
			return nil, err
		}
		cs.EPP = epp.Str()
		epb, err := p.GetCPUProp(PropEPB, cpu)
		if err != nil {
			return nil, err
		}
		if epb.Present {
			cs.EPB = strconv.FormatUint(epb.Uint64(), 10)
		}
		snap.CPUs = append(snap.CPUs, cs)
	}
	return snap, nil
}

// YAML serializes the snapshot.
func (s *Snapshot) YAML() ([]byte, error) {
	return yaml.Marshal(s)
}

// Save writes the snapshot to path as YAML.
func (s *Snapshot) Save(path string) error {
	out, err := s.YAML()
	if err != nil {
		return fmt.Errorf("failed to serialize snapshot: %w", err)
	}
	if err := os.WriteFile(path, out, 0644); err != nil { // #nosec G306
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot reads a snapshot from a YAML file written by Save.
func LoadSnapshot(path string) (*Snapshot, error) {
	in, err := os.ReadFile(path) // #nosec G304
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	var snap Snapshot
	if err := yaml.Unmarshal(in, &snap); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot %s: %w", path, err)
	}
	if len(snap.CPUs) == 0 {
		return nil, fmt.Errorf("snapshot %s holds no CPU records", path)
	}
	return &snap, nil
}

// SnapshotProvider replays a recorded snapshot through the Provider
// interface. Writes are rejected.
type SnapshotProvider struct {
	snap  *Snapshot
	byCPU map[int]*CPUSnapshot
}

func NewSnapshotProvider(snap *Snapshot) *SnapshotProvider {
	byCPU := make(map[int]*CPUSnapshot, len(snap.CPUs))
	for i := range snap.CPUs {
		byCPU[snap.CPUs[i].CPU] = &snap.CPUs[i]
	}
	return &SnapshotProvider{snap: snap, byCPU: byCPU}
}

// Snapshot returns the underlying snapshot.
func (p *SnapshotProvider) Snapshot() *Snapshot {
	return p.snap
}

func (p *SnapshotProvider) CPUs() []int {
	cpus := make([]int, 0, len(p.byCPU))
	for cpu := range p.byCPU {
		cpus = append(cpus, cpu)
	}
	slices.Sort(cpus)
	return cpus
}

func strOrAbsent(s string) Value {
	if s == "" {
		return Value{}
	}
	return StringValue(s)
}

func numOrAbsent(n uint64) Value {
	if n == 0 {
		return Value{}
	}
	return Uint64Value(n)
}

func (p *SnapshotProvider) GetCPUProp(name string, cpu int) (Value, error) {
	if _, ok := LookupProp(name); !ok {
		return Value{}, fmt.Errorf("unknown property %q", name)
	}
	cs, ok := p.byCPU[cpu]
	if !ok {
		return Value{}, fmt.Errorf("CPU %d does not exist in the snapshot", cpu)
	}
	switch name {
	case PropTurbo:
		return strOrAbsent(p.snap.Turbo), nil
	case PropMinFreq:
		return numOrAbsent(cs.MinFreq), nil
	case PropMaxFreq:
		return numOrAbsent(cs.MaxFreq), nil
	case PropMinFreqLimit:
		return numOrAbsent(cs.MinFreqLimit), nil
	case PropMaxFreqLimit:
		return numOrAbsent(cs.MaxFreqLimit), nil
	case PropBaseFreq:
		return numOrAbsent(cs.BaseFreq), nil
	case PropFrequencies:
		if len(cs.Frequencies) == 0 {
			return Value{}, nil
		}
		return ListValue(slices.Clone(cs.Frequencies)), nil
	case PropBusClock:
		return numOrAbsent(p.snap.BusClock), nil
	case PropMinOperFreq:
		return numOrAbsent(cs.MinOperFreq), nil
	case PropMaxTurboFreq:
		return numOrAbsent(cs.MaxTurboFreq), nil
	case PropHWP:
		return strOrAbsent(p.snap.HWP), nil
	case PropEPP:
		return strOrAbsent(cs.EPP), nil
	case PropEPB:
		if cs.EPB == "" {
			return Value{}, nil
		}
		epb, err := strconv.ParseUint(cs.EPB, 10, 64)
		if err != nil {
			return Value{}, fmt.Errorf("bad EPB value %q in the snapshot: %w", cs.EPB, err)
		}
		return Uint64Value(epb), nil
	case PropDriver:
		return strOrAbsent(p.snap.Driver), nil
	case PropIntelPstateMode:
		return strOrAbsent(p.snap.Mode), nil
	case PropGovernor:
		return strOrAbsent(cs.Governor), nil
	case PropGovernors:
		if len(p.snap.Governors) == 0 {
			return Value{}, nil
		}
		return StringsValue(slices.Clone(p.snap.Governors)), nil
	}
	return Value{}, fmt.Errorf("unknown property %q", name)
}

// SetCPUProp always fails, snapshots are read-only.
func (p *SnapshotProvider) SetCPUProp(name string, val string, cpus []int) error {
	return fmt.Errorf("cannot set %q, the snapshot of %s is read-only", name, p.snap.Host)
}
