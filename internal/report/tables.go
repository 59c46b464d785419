package report

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"log/slog"
	"strconv"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"

	"pstatectl/internal/pstates"
	"pstatectl/internal/util"
)

const (
	SystemTableName          = "System"
	PStatesTableName         = "P-States"
	FrequenciesTableName     = "CPU Frequencies"
	AcceptableFreqsTableName = "Acceptable Frequencies"
)

// AllTables returns the table definitions in display order.
func AllTables() []TableDefinition {
	return []TableDefinition{
		{
			Name:       SystemTableName,
			FieldsFunc: systemTableFields,
		},
		{
			Name:       PStatesTableName,
			FieldsFunc: pstatesTableFields,
		},
		{
			Name:       FrequenciesTableName,
			FieldsFunc: frequencyTableFields,
			HasRows:    true,
		},
		{
			Name:        AcceptableFreqsTableName,
			FieldsFunc:  acceptableFreqsTableFields,
			HasRows:     true,
			NoDataFound: "The driver does not publish an acceptable frequencies list.",
		},
	}
}

// hzOrEmpty formats a frequency, hiding the zero that stands for "not
// supported".
func hzOrEmpty(hz uint64) string {
	if hz == 0 {
		return ""
	}
	return util.FormatHz(hz)
}

func systemTableFields(snap *pstates.Snapshot) (fieldValues []Field) {
	packages := mapset.NewSet[string]()
	for _, cs := range snap.CPUs {
		if cs.Package != "" {
			packages.Add(cs.Package)
		}
	}
	numPackages := ""
	if packages.Cardinality() > 0 {
		numPackages = strconv.Itoa(packages.Cardinality())
	}
	fieldValues = append(fieldValues,
		Field{Name: "Host", Values: []string{snap.Host}},
		Field{Name: "Time", Values: []string{snap.Taken}},
		Field{Name: "Kernel", Values: []string{snap.Kernel}},
		Field{Name: "Vendor", Values: []string{snap.Vendor}},
		Field{Name: "CPU Model", Values: []string{snap.ModelName}},
		Field{Name: "Family", Values: []string{snap.Family}},
		Field{Name: "Model", Values: []string{snap.Model}},
		Field{Name: "Stepping", Values: []string{snap.Stepping}},
		Field{Name: "CPUs", Values: []string{strconv.Itoa(len(snap.CPUs))}},
		Field{Name: "Packages", Values: []string{numPackages}},
	)
	return
}

func pstatesTableFields(snap *pstates.Snapshot) (fieldValues []Field) {
	busClock := ""
	if snap.BusClock != 0 {
		busClock = util.FormatHz(snap.BusClock)
	}
	fieldValues = append(fieldValues,
		Field{Name: "Driver", Values: []string{snap.Driver}},
		Field{Name: "Operation Mode", Description: "Operation mode of the intel_pstate driver", Values: []string{snap.Mode}},
		Field{Name: "Turbo", Values: []string{snap.Turbo}},
		Field{Name: "Hardware P-States (HWP)", Values: []string{snap.HWP}},
		Field{Name: "Bus Clock", Values: []string{busClock}},
		Field{Name: "Available Governors", Values: []string{strings.Join(snap.Governors, ", ")}},
		Field{Name: "Available EPPs", Description: "Energy Performance Preference policies the kernel accepts", Values: []string{strings.Join(snap.EPPChoices, ", ")}},
	)
	return
}

func frequencyTableFields(snap *pstates.Snapshot) []Field {
	fields := []Field{
		{Name: "CPU"},
		{Name: "Pkg"},
		{Name: "Core"},
		{Name: "Base"},
		{Name: "Min Limit", Description: "Lowest frequency the OS may request"},
		{Name: "Max Limit", Description: "Highest frequency the OS may request"},
		{Name: "Min"},
		{Name: "Max"},
		{Name: "Current"},
		{Name: "Min Oper", Description: "Lowest frequency the CPU can operate at"},
		{Name: "Max Turbo", Description: "Highest single-core turbo frequency"},
		{Name: "Accepted Max", Description: "Frequency a request for \"max\" resolves to"},
		{Name: "Governor"},
		{Name: "EPP"},
		{Name: "EPB"},
	}
	provider := pstates.NewSnapshotProvider(snap)
	for _, cs := range snap.CPUs {
		acceptedMax := ""
		if freq, err := pstates.ResolveMaxFreq(provider, cs.CPU, true); err == nil {
			acceptedMax = hzOrEmpty(freq.Hz())
		} else {
			slog.Warn("failed to resolve the max frequency", slog.Int("cpu", cs.CPU), slog.String("error", err.Error()))
		}
		row := []string{
			strconv.Itoa(cs.CPU),
			cs.Package,
			cs.Core,
			hzOrEmpty(cs.BaseFreq),
			hzOrEmpty(cs.MinFreqLimit),
			hzOrEmpty(cs.MaxFreqLimit),
			hzOrEmpty(cs.MinFreq),
			hzOrEmpty(cs.MaxFreq),
			hzOrEmpty(cs.CurFreq),
			hzOrEmpty(cs.MinOperFreq),
			hzOrEmpty(cs.MaxTurboFreq),
			acceptedMax,
			cs.Governor,
			cs.EPP,
			cs.EPB,
		}
		for i := range fields {
			fields[i].Values = append(fields[i].Values, row[i])
		}
	}
	return fields
}

func acceptableFreqsTableFields(snap *pstates.Snapshot) (fieldValues []Field) {
	cpus := []string{}
	freqLists := []string{}
	for _, cs := range snap.CPUs {
		if len(cs.Frequencies) == 0 {
			continue
		}
		parts := make([]string, 0, len(cs.Frequencies))
		for _, hz := range cs.Frequencies {
			parts = append(parts, util.FormatHz(hz))
		}
		cpus = append(cpus, strconv.Itoa(cs.CPU))
		freqLists = append(freqLists, strings.Join(parts, ", "))
	}
	fieldValues = append(fieldValues,
		Field{Name: "CPU", Values: cpus},
		Field{Name: "Frequencies", Values: freqLists},
	)
	return
}
