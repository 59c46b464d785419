// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

package info

import (
	"testing"

	"pstatectl/internal/pstates"

	"github.com/stretchr/testify/assert"
)

func testSnapshot() *pstates.Snapshot {
	return &pstates.Snapshot{
		Host:   "bighorn",
		Driver: "intel_pstate",
		CPUs: []pstates.CPUSnapshot{
			{CPU: 0, MaxFreq: 3_400_000_000},
			{CPU: 1, MaxFreq: 3_400_000_000},
			{CPU: 2, MaxFreq: 3_400_000_000},
			{CPU: 5, MaxFreq: 3_400_000_000},
		},
	}
}

func TestFilterCPUs(t *testing.T) {
	snap := testSnapshot()
	err := filterCPUs(snap, "0,2")
	assert.NoError(t, err)
	assert.Len(t, snap.CPUs, 2)
	assert.Equal(t, 0, snap.CPUs[0].CPU)
	assert.Equal(t, 2, snap.CPUs[1].CPU)
}

func TestFilterCPUsRange(t *testing.T) {
	snap := testSnapshot()
	err := filterCPUs(snap, "1-2,5,1")
	assert.NoError(t, err)
	assert.Len(t, snap.CPUs, 3)
	assert.Equal(t, 1, snap.CPUs[0].CPU)
	assert.Equal(t, 2, snap.CPUs[1].CPU)
	assert.Equal(t, 5, snap.CPUs[2].CPU)
}

func TestFilterCPUsAll(t *testing.T) {
	snap := testSnapshot()
	err := filterCPUs(snap, "all")
	assert.NoError(t, err)
	assert.Len(t, snap.CPUs, 4)

	err = filterCPUs(snap, "")
	assert.NoError(t, err)
	assert.Len(t, snap.CPUs, 4)
}

func TestFilterCPUsMissing(t *testing.T) {
	snap := testSnapshot()
	err := filterCPUs(snap, "0,3")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "CPU 3")
}

func TestFilterCPUsBadSpec(t *testing.T) {
	snap := testSnapshot()
	err := filterCPUs(snap, "zero")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid CPU list")
}
