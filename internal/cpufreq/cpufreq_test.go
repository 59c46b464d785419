// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

package cpufreq

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"pstatectl/internal/hostfs"
)

func fakeSysfs(t *testing.T, files map[string]string) *hostfs.FS {
	t.Helper()
	root := t.TempDir()
	for relPath, content := range files {
		path := filepath.Join(root, relPath)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatalf("failed to create directory: %v", err)
		}
		if err := os.WriteFile(path, []byte(content+"\n"), 0644); err != nil {
			t.Fatalf("failed to write file: %v", err)
		}
	}
	return hostfs.NewWithRoot(root)
}

// intelPstateFiles builds a typical intel_pstate active mode policy for CPU 0.
func intelPstateFiles() map[string]string {
	return map[string]string{
		"sys/devices/system/cpu/cpufreq/policy0/scaling_driver":   "intel_pstate",
		"sys/devices/system/cpu/cpufreq/policy0/scaling_governor": "powersave",
		"sys/devices/system/cpu/cpufreq/policy0/scaling_available_governors": "performance powersave",
		"sys/devices/system/cpu/cpufreq/policy0/scaling_min_freq":            "800000",
		"sys/devices/system/cpu/cpufreq/policy0/scaling_max_freq":            "3400000",
		"sys/devices/system/cpu/cpufreq/policy0/scaling_cur_freq":            "1200000",
		"sys/devices/system/cpu/cpufreq/policy0/cpuinfo_min_freq":            "800000",
		"sys/devices/system/cpu/cpufreq/policy0/cpuinfo_max_freq":            "3400000",
		"sys/devices/system/cpu/cpufreq/policy0/base_frequency":              "2200000",
		"sys/devices/system/cpu/cpufreq/policy0/energy_performance_preference": "balance_performance",
		"sys/devices/system/cpu/cpufreq/policy0/energy_performance_available_preferences": "default performance balance_performance balance_power power",
		"sys/devices/system/cpu/cpu0/power/energy_perf_bias": "6",
		"sys/devices/system/cpu/intel_pstate/no_turbo":       "0",
		"sys/devices/system/cpu/intel_pstate/status":         "active",
	}
}

func TestFrequencies(t *testing.T) {
	client := New(fakeSysfs(t, intelPstateFiles()))
	tests := []struct {
		name     string
		read     func(int) (uint64, error)
		expected uint64
	}{
		{"min", client.MinFreq, 800_000_000},
		{"max", client.MaxFreq, 3_400_000_000},
		{"current", client.CurFreq, 1_200_000_000},
		{"min limit", client.MinFreqLimit, 800_000_000},
		{"max limit", client.MaxFreqLimit, 3_400_000_000},
		{"base", client.BaseFreq, 2_200_000_000},
	}
	for _, test := range tests {
		freq, err := test.read(0)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", test.name, err)
		}
		if freq != test.expected {
			t.Errorf("%s: expected %d Hz, got %d Hz", test.name, test.expected, freq)
		}
	}
}

func TestBaseFreqBiosLimit(t *testing.T) {
	// no base_frequency file, the bios_limit value includes the 1 MHz turbo
	// activation offset
	client := New(fakeSysfs(t, map[string]string{
		"sys/devices/system/cpu/cpufreq/policy0/scaling_driver": "acpi-cpufreq",
		"sys/devices/system/cpu/cpu0/cpufreq/bios_limit":        "2301000",
	}))
	freq, err := client.BaseFreq(0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if freq != 2_300_000_000 {
		t.Errorf("expected 2300000000 Hz, got %d Hz", freq)
	}
}

func TestBaseFreqNotSupported(t *testing.T) {
	client := New(fakeSysfs(t, map[string]string{
		"sys/devices/system/cpu/cpufreq/policy0/scaling_driver": "acpi-cpufreq",
	}))
	if _, err := client.BaseFreq(0); !errors.Is(err, hostfs.ErrNotSupported) {
		t.Errorf("expected ErrNotSupported, got %v", err)
	}
}

func TestAvailableFrequencies(t *testing.T) {
	// acpi-cpufreq lists frequencies in descending order
	client := New(fakeSysfs(t, map[string]string{
		"sys/devices/system/cpu/cpufreq/policy0/scaling_available_frequencies": "3200000 2400000 1600000 800000",
	}))
	freqs, err := client.AvailableFrequencies(0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := []uint64{800_000_000, 1_600_000_000, 2_400_000_000, 3_200_000_000}
	if !slices.Equal(freqs, expected) {
		t.Errorf("expected %v, got %v", expected, freqs)
	}
}

func TestDriver(t *testing.T) {
	tests := []struct {
		name     string
		files    map[string]string
		expected string
		err      bool
	}{
		{
			name:     "intel_pstate active",
			files:    map[string]string{"sys/devices/system/cpu/cpufreq/policy0/scaling_driver": "intel_pstate"},
			expected: "intel_pstate",
		},
		{
			name:     "intel_pstate passive reports intel_pstate",
			files:    map[string]string{"sys/devices/system/cpu/cpufreq/policy0/scaling_driver": "intel_cpufreq"},
			expected: "intel_pstate",
		},
		{
			name: "intel_pstate off removes the policy",
			files: map[string]string{
				"sys/devices/system/cpu/intel_pstate/status": "off",
			},
			expected: "intel_pstate",
		},
		{
			name:     "acpi-cpufreq",
			files:    map[string]string{"sys/devices/system/cpu/cpufreq/policy0/scaling_driver": "acpi-cpufreq"},
			expected: "acpi-cpufreq",
		},
		{
			name:  "no cpufreq support",
			files: map[string]string{},
			err:   true,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			client := New(fakeSysfs(t, test.files))
			driver, err := client.Driver(0)
			if (err != nil) != test.err {
				t.Fatalf("expected error %v, got %v", test.err, err)
			}
			if !test.err && driver != test.expected {
				t.Errorf("expected driver %q, got %q", test.expected, driver)
			}
		})
	}
}

func TestTurbo(t *testing.T) {
	tests := []struct {
		name     string
		files    map[string]string
		expected bool
	}{
		{
			name: "intel_pstate turbo on",
			files: map[string]string{
				"sys/devices/system/cpu/cpufreq/policy0/scaling_driver": "intel_pstate",
				"sys/devices/system/cpu/intel_pstate/no_turbo":          "0",
			},
			expected: true,
		},
		{
			name: "intel_pstate turbo off",
			files: map[string]string{
				"sys/devices/system/cpu/cpufreq/policy0/scaling_driver": "intel_pstate",
				"sys/devices/system/cpu/intel_pstate/no_turbo":          "1",
			},
			expected: false,
		},
		{
			name: "acpi-cpufreq boost on",
			files: map[string]string{
				"sys/devices/system/cpu/cpufreq/policy0/scaling_driver": "acpi-cpufreq",
				"sys/devices/system/cpu/cpufreq/boost":                  "1",
			},
			expected: true,
		},
		{
			name: "acpi-cpufreq boost off",
			files: map[string]string{
				"sys/devices/system/cpu/cpufreq/policy0/scaling_driver": "acpi-cpufreq",
				"sys/devices/system/cpu/cpufreq/boost":                  "0",
			},
			expected: false,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			client := New(fakeSysfs(t, test.files))
			turbo, err := client.Turbo(0)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if turbo != test.expected {
				t.Errorf("expected turbo %v, got %v", test.expected, turbo)
			}
		})
	}
}

func TestSetTurbo(t *testing.T) {
	fs := fakeSysfs(t, intelPstateFiles())
	client := New(fs)
	if err := client.SetTurbo(0, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	val, err := fs.Read("sys/devices/system/cpu/intel_pstate/no_turbo")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if val != "1" {
		t.Errorf("expected no_turbo to be 1, got %s", val)
	}
	turbo, err := client.Turbo(0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if turbo {
		t.Error("expected turbo to be disabled")
	}
}

func TestUnsupportedDriverTurbo(t *testing.T) {
	client := New(fakeSysfs(t, map[string]string{
		"sys/devices/system/cpu/cpufreq/policy0/scaling_driver": "cppc_cpufreq",
	}))
	if _, err := client.Turbo(0); !errors.Is(err, hostfs.ErrNotSupported) {
		t.Errorf("expected ErrNotSupported, got %v", err)
	}
}

func TestGovernor(t *testing.T) {
	fs := fakeSysfs(t, intelPstateFiles())
	client := New(fs)
	governor, err := client.Governor(0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if governor != "powersave" {
		t.Errorf("expected powersave, got %s", governor)
	}
	if err := client.SetGovernor(0, "performance"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	governor, err = client.Governor(0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if governor != "performance" {
		t.Errorf("expected performance, got %s", governor)
	}
	if err := client.SetGovernor(0, "ondemand"); err == nil {
		t.Error("expected error setting unavailable governor")
	}
}

func TestEPP(t *testing.T) {
	client := New(fakeSysfs(t, intelPstateFiles()))
	epp, err := client.EPP(0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if epp != "balance_performance" {
		t.Errorf("expected balance_performance, got %s", epp)
	}
	if err := client.SetEPP(0, "power"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := client.SetEPP(0, "bogus"); err == nil {
		t.Error("expected error setting unavailable EPP")
	}
}

func TestEPB(t *testing.T) {
	client := New(fakeSysfs(t, intelPstateFiles()))
	epb, err := client.EPB(0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if epb != 6 {
		t.Errorf("expected 6, got %d", epb)
	}
	if err := client.SetEPB(0, 15); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := client.SetEPB(0, 16); err == nil {
		t.Error("expected error setting out of range EPB")
	}
}

func TestSetFreq(t *testing.T) {
	client := New(fakeSysfs(t, intelPstateFiles()))
	if err := client.SetMaxFreq(0, 2_400_000_000); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	freq, err := client.MaxFreq(0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if freq != 2_400_000_000 {
		t.Errorf("expected 2400000000 Hz, got %d Hz", freq)
	}
}

func TestSetFreqOutOfRange(t *testing.T) {
	client := New(fakeSysfs(t, intelPstateFiles()))
	if err := client.SetMaxFreq(0, 4_000_000_000); !errors.Is(err, ErrFreqRange) {
		t.Errorf("expected ErrFreqRange, got %v", err)
	}
	if err := client.SetMinFreq(0, 400_000_000); !errors.Is(err, ErrFreqRange) {
		t.Errorf("expected ErrFreqRange, got %v", err)
	}
}

func TestSetFreqOrderConflict(t *testing.T) {
	client := New(fakeSysfs(t, intelPstateFiles()))
	// crossing min over max in either direction must fail
	if err := client.SetMinFreq(0, 3_400_000_000); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := client.SetMaxFreq(0, 2_000_000_000); !errors.Is(err, ErrFreqOrder) {
		t.Errorf("expected ErrFreqOrder, got %v", err)
	}
	if err := client.SetMinFreq(0, 800_000_000); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := client.SetMaxFreq(0, 2_000_000_000); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := client.SetMinFreq(0, 2_400_000_000); !errors.Is(err, ErrFreqOrder) {
		t.Errorf("expected ErrFreqOrder, got %v", err)
	}
}

func TestIntelPstateMode(t *testing.T) {
	fs := fakeSysfs(t, intelPstateFiles())
	client := New(fs)
	mode, err := client.IntelPstateMode(0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mode != "active" {
		t.Errorf("expected active, got %s", mode)
	}
	if err := client.SetIntelPstateMode(0, "passive"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := client.SetIntelPstateMode(0, "bogus"); err == nil {
		t.Error("expected error setting bad mode")
	}
}
