// Package cpuinfo enumerates the CPUs of the host and answers topology
// questions, e.g., which CPUs are online, which package a CPU belongs to, and
// whether the processor advertises a capability flag.
package cpuinfo

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/prometheus/procfs"

	"pstatectl/internal/hostfs"
	"pstatectl/internal/util"
)

// CPU vendor identifiers as they appear in /proc/cpuinfo.
const (
	VendorIntel = "GenuineIntel"
	VendorAMD   = "AuthenticAMD"
)

const (
	onlinePath  = "sys/devices/system/cpu/online"
	presentPath = "sys/devices/system/cpu/present"
)

// CPUInfo holds the processor identity and topology of the host.
type CPUInfo struct {
	Vendor    string
	ModelName string
	Family    string
	Model     string
	Stepping  string

	flags    mapset.Set[string]
	online   []int
	present  mapset.Set[int]
	packages map[int]string
	cores    map[int]string
}

// New reads the processor identity from procfs and the CPU inventory from
// sysfs. The same filesystem root is used for both so that recorded datasets
// can stand in for the live system.
func New(fs *hostfs.FS) (*CPUInfo, error) {
	pfs, err := procfs.NewFS(filepath.Join(fs.Root(), "proc"))
	if err != nil {
		return nil, fmt.Errorf("failed to open procfs: %w", err)
	}
	procCPUs, err := pfs.CPUInfo()
	if err != nil {
		return nil, fmt.Errorf("failed to read cpuinfo: %w", err)
	}
	if len(procCPUs) == 0 {
		return nil, fmt.Errorf("no CPUs found in cpuinfo")
	}
	info := &CPUInfo{
		Vendor:    procCPUs[0].VendorID,
		ModelName: procCPUs[0].ModelName,
		Family:    procCPUs[0].CPUFamily,
		Model:     procCPUs[0].Model,
		Stepping:  procCPUs[0].Stepping,
		flags:     mapset.NewSet[string](),
		packages:  map[int]string{},
		cores:     map[int]string{},
	}
	for _, flag := range procCPUs[0].Flags {
		info.flags.Add(flag)
	}
	procCPUNums := make([]int, 0, len(procCPUs))
	for _, procCPU := range procCPUs {
		cpu := int(procCPU.Processor) // #nosec G115
		info.packages[cpu] = procCPU.PhysicalID
		info.cores[cpu] = procCPU.CoreID
		procCPUNums = append(procCPUNums, cpu)
	}
	slices.Sort(procCPUNums)
	if info.online, err = readCPUList(fs, onlinePath, procCPUNums); err != nil {
		return nil, err
	}
	present, err := readCPUList(fs, presentPath, procCPUNums)
	if err != nil {
		return nil, err
	}
	info.present = mapset.NewSet(present...)
	return info, nil
}

// readCPUList reads a sysfs CPU list file, e.g., "0-3,8-11". A missing file
// falls back to the CPUs that appear in cpuinfo, i.e., the online ones.
func readCPUList(fs *hostfs.FS, relPath string, fallback []int) ([]int, error) {
	val, err := fs.Read(relPath)
	if err != nil {
		if errors.Is(err, hostfs.ErrNotSupported) {
			return slices.Clone(fallback), nil
		}
		return nil, err
	}
	if val == "" {
		return nil, nil
	}
	cpus, err := util.SelectiveIntRangeToIntList(val)
	if err != nil {
		return nil, fmt.Errorf("failed to parse CPU list in %s: %w", fs.Path(relPath), err)
	}
	slices.Sort(cpus)
	return cpus, nil
}

// OnlineCPUs returns the online CPU numbers in ascending order.
func (c *CPUInfo) OnlineCPUs() []int {
	return slices.Clone(c.online)
}

// IsPresent reports whether the given CPU number exists on this host.
func (c *CPUInfo) IsPresent(cpu int) bool {
	return c.present.Contains(cpu)
}

// PackageOf returns the package ID of the given CPU, "" if unknown.
func (c *CPUInfo) PackageOf(cpu int) string {
	return c.packages[cpu]
}

// CoreOf returns the core ID of the given CPU, "" if unknown.
func (c *CPUInfo) CoreOf(cpu int) string {
	return c.cores[cpu]
}

// HasFlag reports whether the processor advertises the given capability flag,
// e.g., "hwp".
func (c *CPUInfo) HasFlag(flag string) bool {
	return c.flags.Contains(flag)
}

// ParseCPUList expands a user-provided CPU list, e.g., "0-3,7", into sorted
// unique CPU numbers. The keyword "all" and the empty string select all online
// CPUs. An error is returned if the list names a CPU that does not exist.
func (c *CPUInfo) ParseCPUList(spec string) ([]int, error) {
	if spec == "" || spec == "all" {
		return c.OnlineCPUs(), nil
	}
	cpus, err := util.SelectiveIntRangeToIntList(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid CPU list %q: %w", spec, err)
	}
	requested := mapset.NewSet(cpus...)
	missing := requested.Difference(c.present)
	if missing.Cardinality() > 0 {
		names := missing.ToSlice()
		slices.Sort(names)
		return nil, fmt.Errorf("CPU(s) %s do not exist", util.IntSliceToRangeString(names))
	}
	result := requested.ToSlice()
	slices.Sort(result)
	return result, nil
}
