// Package cpufreq accesses the Linux "cpufreq" subsystem through sysfs. All
// frequencies cross the package boundary in Hz, while the sysfs files store
// kHz.
package cpufreq

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"pstatectl/internal/hostfs"
	"pstatectl/internal/util"
)

// CPU frequency driver names as reported by Driver.
const (
	DriverIntelPstate = "intel_pstate"
	DriverACPICpufreq = "acpi-cpufreq"
)

// intel_pstate driver operation modes.
const (
	ModeActive  = "active"
	ModePassive = "passive"
	ModeOff     = "off"
)

var (
	// ErrFreqRange means a frequency value lies outside the supported limits.
	ErrFreqRange = errors.New("frequency out of range")
	// ErrFreqOrder means a min frequency would exceed the max, or vice versa.
	ErrFreqOrder = errors.New("frequency order conflict")
	// ErrVerifyFailed means a written frequency did not read back as written.
	ErrVerifyFailed = errors.New("frequency write verification failed")
)

const (
	baseDir            = "sys/devices/system/cpu"
	intelPstateDir     = baseDir + "/intel_pstate"
	intelPstateNoTurbo = intelPstateDir + "/no_turbo"
	intelPstateStatus  = intelPstateDir + "/status"
	acpiCpufreqBoost   = baseDir + "/cpufreq/boost"
)

const defaultVerifySleep = 100 * time.Millisecond

// PolicyPath returns the path of a cpufreq policy file for cpu, relative to
// the sysfs root.
func PolicyPath(cpu int, file string) string {
	return fmt.Sprintf("%s/cpufreq/policy%d/%s", baseDir, cpu, file)
}

func cpuPath(cpu int, file string) string {
	return fmt.Sprintf("%s/cpu%d/%s", baseDir, cpu, file)
}

// Client reads and writes cpufreq sysfs files.
type Client struct {
	fs            *hostfs.FS
	verifyRetries int
	verifySleep   time.Duration
}

func New(fs *hostfs.FS) *Client {
	return &Client{fs: fs, verifySleep: defaultVerifySleep}
}

// SetVerifyRetries sets how many times a frequency write is re-read before
// verification gives up. On Intel systems with HWP enabled the kernel may
// apply frequency changes with a delay, so callers should allow a couple of
// retries there.
func (c *Client) SetVerifyRetries(retries int) {
	c.verifyRetries = retries
}

func (c *Client) readFreq(relPath string) (uint64, error) {
	khz, err := c.fs.ReadUint64(relPath)
	if err != nil {
		return 0, err
	}
	return khz * 1000, nil
}

// MinFreq returns the configured minimum scaling frequency of cpu in Hz.
func (c *Client) MinFreq(cpu int) (uint64, error) {
	return c.readFreq(PolicyPath(cpu, "scaling_min_freq"))
}

// MaxFreq returns the configured maximum scaling frequency of cpu in Hz.
func (c *Client) MaxFreq(cpu int) (uint64, error) {
	return c.readFreq(PolicyPath(cpu, "scaling_max_freq"))
}

// CurFreq returns the current frequency of cpu in Hz as reported by the
// scaling driver.
func (c *Client) CurFreq(cpu int) (uint64, error) {
	return c.readFreq(PolicyPath(cpu, "scaling_cur_freq"))
}

// MinFreqLimit returns the lowest frequency the driver allows, in Hz.
func (c *Client) MinFreqLimit(cpu int) (uint64, error) {
	return c.readFreq(PolicyPath(cpu, "cpuinfo_min_freq"))
}

// MaxFreqLimit returns the highest frequency the driver allows, in Hz.
func (c *Client) MaxFreqLimit(cpu int) (uint64, error) {
	return c.readFreq(PolicyPath(cpu, "cpuinfo_max_freq"))
}

// BaseFreq returns the base (guaranteed) frequency of cpu in Hz. The
// intel_pstate driver exposes it directly, otherwise fall back to the
// 'bios_limit' file.
func (c *Client) BaseFreq(cpu int) (uint64, error) {
	hz, err := c.readFreq(PolicyPath(cpu, "base_frequency"))
	if err == nil {
		return hz, nil
	}
	if !errors.Is(err, hostfs.ErrNotSupported) {
		return 0, err
	}
	khz, err := c.fs.ReadUint64(cpuPath(cpu, "cpufreq/bios_limit"))
	if err != nil {
		return 0, err
	}
	// On Intel systems that support turbo, 'bios_limit' holds the turbo
	// activation frequency, which is the base frequency plus 1 MHz.
	if khz%10000 != 0 {
		khz -= 1000
	}
	return khz * 1000, nil
}

// AvailableFrequencies returns the frequencies cpu supports, in Hz, sorted in
// ascending order. Not every driver provides the list, e.g., intel_pstate in
// active mode does not.
func (c *Client) AvailableFrequencies(cpu int) ([]uint64, error) {
	khzs, err := c.fs.ReadUint64List(PolicyPath(cpu, "scaling_available_frequencies"))
	if err != nil {
		return nil, err
	}
	freqs := make([]uint64, 0, len(khzs))
	for _, khz := range khzs {
		freqs = append(freqs, khz*1000)
	}
	return freqs, nil
}

// Driver returns the CPU frequency driver name for cpu. The intel_pstate
// driver calls itself "intel_cpufreq" when in passive mode, both are reported
// as "intel_pstate".
func (c *Client) Driver(cpu int) (string, error) {
	name, err := c.fs.Read(PolicyPath(cpu, "scaling_driver"))
	if err != nil {
		// In the "off" mode the intel_pstate driver removes the policy
		// directories, but its own sysfs directory remains.
		if errors.Is(err, hostfs.ErrNotSupported) && c.fs.Exists(intelPstateDir) {
			return DriverIntelPstate, nil
		}
		return "", err
	}
	if name == "intel_cpufreq" {
		name = DriverIntelPstate
	}
	return name, nil
}

// IntelPstateMode returns the intel_pstate driver operation mode, one of
// "active", "passive", or "off".
func (c *Client) IntelPstateMode(cpu int) (string, error) {
	driver, err := c.Driver(cpu)
	if err != nil {
		return "", err
	}
	if driver != DriverIntelPstate {
		return "", fmt.Errorf("intel_pstate mode with the %s driver: %w", driver, hostfs.ErrNotSupported)
	}
	return c.fs.Read(intelPstateStatus)
}

// SetIntelPstateMode switches the intel_pstate driver operation mode.
func (c *Client) SetIntelPstateMode(cpu int, mode string) error {
	switch mode {
	case ModeActive, ModePassive, ModeOff:
	default:
		return fmt.Errorf("bad intel_pstate mode %q, use one of: %s, %s, %s", mode, ModeActive, ModePassive, ModeOff)
	}
	curMode, err := c.IntelPstateMode(cpu)
	if err != nil {
		return err
	}
	// Writing "off" while already off errors out in the kernel.
	if mode == ModeOff && curMode == ModeOff {
		return nil
	}
	return c.fs.Write(intelPstateStatus, mode)
}

// Turbo reports whether turbo is enabled. The knob location depends on the
// driver, and its status is global to all CPUs.
func (c *Client) Turbo(cpu int) (bool, error) {
	driver, err := c.Driver(cpu)
	if err != nil {
		return false, err
	}
	switch driver {
	case DriverIntelPstate:
		disabled, err := c.fs.ReadUint64(intelPstateNoTurbo)
		if err != nil {
			return false, err
		}
		return disabled == 0, nil
	case DriverACPICpufreq:
		enabled, err := c.fs.ReadUint64(acpiCpufreqBoost)
		if err != nil {
			return false, err
		}
		return enabled != 0, nil
	}
	return false, fmt.Errorf("turbo status with the %s driver: %w", driver, hostfs.ErrNotSupported)
}

// SetTurbo enables or disables turbo globally.
func (c *Client) SetTurbo(cpu int, enable bool) error {
	driver, err := c.Driver(cpu)
	if err != nil {
		return err
	}
	switch driver {
	case DriverIntelPstate:
		val := uint64(1)
		if enable {
			val = 0
		}
		return c.fs.WriteUint64(intelPstateNoTurbo, val)
	case DriverACPICpufreq:
		val := uint64(0)
		if enable {
			val = 1
		}
		return c.fs.WriteUint64(acpiCpufreqBoost, val)
	}
	return fmt.Errorf("turbo control with the %s driver: %w", driver, hostfs.ErrNotSupported)
}

// Governor returns the scaling governor of cpu.
func (c *Client) Governor(cpu int) (string, error) {
	return c.fs.Read(PolicyPath(cpu, "scaling_governor"))
}

// AvailableGovernors returns the scaling governors cpu supports.
func (c *Client) AvailableGovernors(cpu int) ([]string, error) {
	return c.fs.ReadStrings(PolicyPath(cpu, "scaling_available_governors"))
}

// SetGovernor sets the scaling governor of cpu.
func (c *Client) SetGovernor(cpu int, governor string) error {
	governors, err := c.AvailableGovernors(cpu)
	if err == nil && !slices.Contains(governors, governor) {
		return fmt.Errorf("bad governor %q for CPU %d, use one of: %s", governor, cpu, strings.Join(governors, ", "))
	}
	return c.fs.Write(PolicyPath(cpu, "scaling_governor"), governor)
}

// EPP returns the energy performance preference of cpu.
func (c *Client) EPP(cpu int) (string, error) {
	return c.fs.Read(PolicyPath(cpu, "energy_performance_preference"))
}

// AvailableEPPs returns the energy performance preferences cpu supports.
func (c *Client) AvailableEPPs(cpu int) ([]string, error) {
	return c.fs.ReadStrings(PolicyPath(cpu, "energy_performance_available_preferences"))
}

// SetEPP sets the energy performance preference of cpu.
func (c *Client) SetEPP(cpu int, epp string) error {
	epps, err := c.AvailableEPPs(cpu)
	if err == nil && !slices.Contains(epps, epp) {
		return fmt.Errorf("bad EPP %q for CPU %d, use one of: %s", epp, cpu, strings.Join(epps, ", "))
	}
	return c.fs.Write(PolicyPath(cpu, "energy_performance_preference"), epp)
}

// EPB returns the energy performance bias of cpu, 0 (performance) to 15
// (power saving).
func (c *Client) EPB(cpu int) (uint64, error) {
	return c.fs.ReadUint64(cpuPath(cpu, "power/energy_perf_bias"))
}

// SetEPB sets the energy performance bias of cpu.
func (c *Client) SetEPB(cpu int, epb uint64) error {
	if epb > 15 {
		return fmt.Errorf("bad EPB value %d, must be in the [0,15] range", epb)
	}
	return c.fs.WriteUint64(cpuPath(cpu, "power/energy_perf_bias"), epb)
}

// SetMinFreq sets the minimum scaling frequency of cpu to hz.
func (c *Client) SetMinFreq(cpu int, hz uint64) error {
	return c.setFreq(cpu, hz, "min")
}

// SetMaxFreq sets the maximum scaling frequency of cpu to hz.
func (c *Client) SetMaxFreq(cpu int, hz uint64) error {
	return c.setFreq(cpu, hz, "max")
}

func (c *Client) validateFreq(cpu int, hz uint64, ftype string) error {
	minLimit, err := c.MinFreqLimit(cpu)
	if err != nil {
		return err
	}
	maxLimit, err := c.MaxFreqLimit(cpu)
	if err != nil {
		return err
	}
	if hz < minLimit || hz > maxLimit {
		return fmt.Errorf("%s frequency %s for CPU %d is outside the supported [%s, %s] range: %w",
			ftype, util.FormatHz(hz), cpu, util.FormatHz(minLimit), util.FormatHz(maxLimit), ErrFreqRange)
	}
	if ftype == "min" {
		maxFreq, err := c.MaxFreq(cpu)
		if err != nil {
			return err
		}
		if hz > maxFreq {
			return fmt.Errorf("min frequency %s for CPU %d is above the configured max frequency %s: %w",
				util.FormatHz(hz), cpu, util.FormatHz(maxFreq), ErrFreqOrder)
		}
	} else {
		minFreq, err := c.MinFreq(cpu)
		if err != nil {
			return err
		}
		if hz < minFreq {
			return fmt.Errorf("max frequency %s for CPU %d is below the configured min frequency %s: %w",
				util.FormatHz(hz), cpu, util.FormatHz(minFreq), ErrFreqOrder)
		}
	}
	return nil
}

func (c *Client) setFreq(cpu int, hz uint64, ftype string) error {
	if err := c.validateFreq(cpu, hz, ftype); err != nil {
		return err
	}
	file := "scaling_min_freq"
	if ftype == "max" {
		file = "scaling_max_freq"
	}
	relPath := PolicyPath(cpu, file)
	khz := hz / 1000
	if err := c.fs.WriteUint64(relPath, khz); err != nil {
		return err
	}
	// The kernel may apply the change with a delay, re-read until the new
	// value shows up or the retries run out.
	var got uint64
	for attempt := 0; ; attempt++ {
		var err error
		got, err = c.fs.ReadUint64(relPath)
		if err != nil {
			return err
		}
		if got == khz {
			return nil
		}
		if attempt >= c.verifyRetries {
			break
		}
		time.Sleep(c.verifySleep)
	}
	return fmt.Errorf("set %s frequency of CPU %d to %s but read back %s: %w",
		ftype, cpu, util.FormatHz(hz), util.FormatHz(got*1000), ErrVerifyFailed)
}
