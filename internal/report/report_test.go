// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

package report

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"pstatectl/internal/pstates"
)

// acpiSnapshot resembles a capture of an acpi-cpufreq host where turbo can
// reach 3.2GHz but the driver reports the base frequency as the limit.
func acpiSnapshot() *pstates.Snapshot {
	return &pstates.Snapshot{
		Host:      "bighorn",
		Taken:     "2025-06-11T08:15:00Z",
		Kernel:    "6.8.0-40-generic",
		Vendor:    "GenuineIntel",
		ModelName: "Intel(R) Xeon(R) Gold 6238R CPU @ 2.20GHz",
		Family:    "6",
		Model:     "85",
		Stepping:  "7",
		Driver:    "acpi-cpufreq",
		Turbo:     "on",
		Governors: []string{"performance", "schedutil"},
		CPUs: []pstates.CPUSnapshot{
			{
				CPU:          0,
				Package:      "0",
				Core:         "0",
				BaseFreq:     3_000_000_000,
				MinFreqLimit: 800_000_000,
				MaxFreqLimit: 3_000_000_000,
				MinFreq:      800_000_000,
				MaxFreq:      3_000_000_000,
				CurFreq:      1_600_000_000,
				Frequencies:  []uint64{800_000_000, 1_600_000_000, 2_400_000_000, 3_200_000_000},
				Governor:     "performance",
				EPB:          "6",
			},
			{
				CPU:          1,
				Package:      "0",
				Core:         "1",
				BaseFreq:     3_000_000_000,
				MinFreqLimit: 800_000_000,
				MaxFreqLimit: 3_000_000_000,
				MinFreq:      800_000_000,
				MaxFreq:      3_000_000_000,
				CurFreq:      2_400_000_000,
				Frequencies:  []uint64{800_000_000, 1_600_000_000, 2_400_000_000, 3_200_000_000},
				Governor:     "performance",
				EPB:          "6",
			},
		},
	}
}

func TestProcessTables(t *testing.T) {
	allTableValues := ProcessTables(AllTables(), acpiSnapshot())
	require.Len(t, allTableValues, 4)

	system := allTableValues[0]
	assert.Equal(t, SystemTableName, system.Name)
	idx, err := GetFieldIndex("Host", system)
	require.NoError(t, err)
	assert.Equal(t, []string{"bighorn"}, system.Fields[idx].Values)
	idx, err = GetFieldIndex("Packages", system)
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, system.Fields[idx].Values)

	pstatesTable := allTableValues[1]
	idx, err = GetFieldIndex("Driver", pstatesTable)
	require.NoError(t, err)
	assert.Equal(t, []string{"acpi-cpufreq"}, pstatesTable.Fields[idx].Values)

	freqs := allTableValues[2]
	assert.True(t, freqs.HasRows)
	idx, err = GetFieldIndex("Accepted Max", freqs)
	require.NoError(t, err)
	// the acceptable frequencies ceiling wins over the driver-reported limit
	assert.Equal(t, []string{"3.2GHz", "3.2GHz"}, freqs.Fields[idx].Values)
	idx, err = GetFieldIndex("Current", freqs)
	require.NoError(t, err)
	assert.Equal(t, []string{"1.6GHz", "2.4GHz"}, freqs.Fields[idx].Values)

	acceptable := allTableValues[3]
	idx, err = GetFieldIndex("Frequencies", acceptable)
	require.NoError(t, err)
	assert.Equal(t, "800MHz, 1.6GHz, 2.4GHz, 3.2GHz", acceptable.Fields[idx].Values[0])
}

func TestGetFieldIndex(t *testing.T) {
	tableValues := TableValues{
		TableDefinition: TableDefinition{Name: "Test"},
		Fields: []Field{
			{Name: "A", Values: []string{"1"}},
			{Name: "B", Values: []string{}},
		},
	}
	idx, err := GetFieldIndex("A", tableValues)
	assert.NoError(t, err)
	assert.Equal(t, 0, idx)
	_, err = GetFieldIndex("B", tableValues)
	assert.Error(t, err)
	_, err = GetFieldIndex("C", tableValues)
	assert.Error(t, err)
}

func TestGetValuesForTableValidation(t *testing.T) {
	// mismatched value counts must yield an empty table, not a crash
	table := TableDefinition{
		Name: "Broken",
		FieldsFunc: func(snap *pstates.Snapshot) []Field {
			return []Field{
				{Name: "A", Values: []string{"1", "2"}},
				{Name: "B", Values: []string{"1"}},
			}
		},
	}
	tableValues := GetValuesForTable(table, acpiSnapshot())
	assert.Empty(t, tableValues.Fields)
}

func TestCreateTextReport(t *testing.T) {
	out, err := Create(FormatTxt, ProcessTables(AllTables(), acpiSnapshot()), "bighorn")
	require.NoError(t, err)
	text := string(out)
	assert.Contains(t, text, "CPU Frequencies\n===============")
	assert.Contains(t, text, "bighorn")
	assert.Contains(t, text, "3.2GHz")

	// intel_pstate publishes no acceptable frequencies list
	snap := acpiSnapshot()
	snap.Driver = "intel_pstate"
	for i := range snap.CPUs {
		snap.CPUs[i].Frequencies = nil
	}
	out, err = Create(FormatTxt, ProcessTables(AllTables(), snap), "bighorn")
	require.NoError(t, err)
	assert.Contains(t, string(out), "The driver does not publish an acceptable frequencies list.")
}

func TestCreateJsonReport(t *testing.T) {
	out, err := Create(FormatJson, ProcessTables(AllTables(), acpiSnapshot()), "bighorn")
	require.NoError(t, err)
	var parsed map[string][]map[string]string
	require.NoError(t, json.Unmarshal(out, &parsed))
	require.Contains(t, parsed, SystemTableName)
	require.Contains(t, parsed, FrequenciesTableName)
	assert.Equal(t, "bighorn", parsed[SystemTableName][0]["Host"])
	require.Len(t, parsed[FrequenciesTableName], 2)
	assert.Equal(t, "3.2GHz", parsed[FrequenciesTableName][1]["Accepted Max"])
}

func TestCreateHtmlReport(t *testing.T) {
	out, err := Create(FormatHtml, ProcessTables(AllTables(), acpiSnapshot()), "bighorn")
	require.NoError(t, err)
	html := string(out)
	assert.Contains(t, html, "<h1>bighorn</h1>")
	assert.Contains(t, html, "pure-table")
	assert.Contains(t, html, "3.2GHz")
	assert.True(t, strings.HasSuffix(html, "</html>\n"), "report must be a complete document")
}

func TestCreateXlsxReport(t *testing.T) {
	out, err := Create(FormatXlsx, ProcessTables(AllTables(), acpiSnapshot()), "bighorn")
	require.NoError(t, err)
	f, err := excelize.OpenReader(bytes.NewReader(out))
	require.NoError(t, err)
	defer f.Close()
	val, err := f.GetCellValue(xlsxSheetName, "A1")
	require.NoError(t, err)
	assert.Equal(t, SystemTableName, val)
}

func TestCreateRowMismatch(t *testing.T) {
	broken := []TableValues{
		{
			TableDefinition: TableDefinition{Name: "Broken"},
			Fields: []Field{
				{Name: "A", Values: []string{"1", "2"}},
				{Name: "B", Values: []string{"1"}},
			},
		},
	}
	_, err := Create(FormatTxt, broken, "bighorn")
	assert.Error(t, err)
}
