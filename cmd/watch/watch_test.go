// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

package watch

import (
	"testing"
	"time"

	"github.com/Knetic/govaluate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

func testSample() sample {
	return sample{
		taken: time.Date(2025, 3, 14, 13, 45, 5, 0, time.UTC),
		turbo: true,
		cpus: []cpuSample{
			{cpu: 0, curHz: 800_000_000, minHz: 800_000_000, maxHz: 3_400_000_000},
			{cpu: 1, curHz: 2_400_000_000, minHz: 800_000_000, maxHz: 3_400_000_000},
			{cpu: 2, curHz: 3_400_000_000, minHz: 800_000_000, maxHz: 3_400_000_000},
		},
	}
}

func TestAggregateMHz(t *testing.T) {
	low, avg, high := aggregateMHz(testSample())
	assert.Equal(t, 800.0, low)
	assert.Equal(t, 2200.0, avg)
	assert.Equal(t, 3400.0, high)
}

func TestFormatSampleLine(t *testing.T) {
	printer := message.NewPrinter(language.English)
	line := formatSampleLine(testSample(), printer)
	assert.Equal(t, "13:45:05  low 800.00 MHz  avg 2,200.00 MHz  high 3,400.00 MHz  turbo on", line)
}

func TestWatchStats(t *testing.T) {
	stats := newWatchStats([]int{0, 1, 2})
	stats.add(testSample())
	second := testSample()
	second.cpus[0].curHz = 1_600_000_000
	stats.add(second)

	require.Len(t, stats.byCPU, 3)
	assert.Equal(t, 2, stats.byCPU[0].samples)
	assert.Equal(t, 800.0, stats.byCPU[0].minMHz)
	assert.Equal(t, 1600.0, stats.byCPU[0].maxMHz)
	assert.Equal(t, 1200.0, stats.byCPU[0].sumMHz/float64(stats.byCPU[0].samples))
	assert.Equal(t, 2400.0, stats.byCPU[1].minMHz)
	assert.Equal(t, 2400.0, stats.byCPU[1].maxMHz)
}

func TestSummaryTableValues(t *testing.T) {
	printer := message.NewPrinter(language.English)
	stats := newWatchStats([]int{0, 1, 2, 7})
	stats.add(testSample())
	tableValues := summaryTableValues(stats, printer)

	assert.Equal(t, observedTableName, tableValues.Name)
	require.Len(t, tableValues.Fields, 5)
	// CPU 7 never produced a sample and is left out
	assert.Equal(t, []string{"0", "1", "2"}, tableValues.Fields[0].Values)
	assert.Equal(t, []string{"1", "1", "1"}, tableValues.Fields[1].Values)
	assert.Equal(t, []string{"800.00", "2,400.00", "3,400.00"}, tableValues.Fields[2].Values)
}

func TestAlertParameters(t *testing.T) {
	s := testSample()
	expr, err := govaluate.NewEvaluableExpression("cur_mhz > 2400 && turbo")
	require.NoError(t, err)

	result, err := expr.Evaluate(alertParameters(s, s.cpus[1]))
	require.NoError(t, err)
	assert.Equal(t, false, result)

	result, err = expr.Evaluate(alertParameters(s, s.cpus[2]))
	require.NoError(t, err)
	assert.Equal(t, true, result)
}

func TestAlertParametersCPUVariable(t *testing.T) {
	s := testSample()
	expr, err := govaluate.NewEvaluableExpression("cpu == 2 && cur_mhz >= max_mhz")
	require.NoError(t, err)

	result, err := expr.Evaluate(alertParameters(s, s.cpus[2]))
	require.NoError(t, err)
	assert.Equal(t, true, result)

	result, err = expr.Evaluate(alertParameters(s, s.cpus[0]))
	require.NoError(t, err)
	assert.Equal(t, false, result)
}
