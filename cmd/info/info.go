// Package info is a subcommand of the root command. It reports the P-state configuration of the host.
package info

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"pstatectl/internal/common"
	"pstatectl/internal/pstates"
	"pstatectl/internal/report"
	"pstatectl/internal/util"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const cmdName = "info"

var examples = []string{
	fmt.Sprintf("  Report in txt format on stdout:   $ %s %s", common.AppName, cmdName),
	fmt.Sprintf("  Report in html and json format:   $ %s %s --format html,json", common.AppName, cmdName),
	fmt.Sprintf("  Report on a subset of CPUs:       $ %s %s --cpus 0-15", common.AppName, cmdName),
	fmt.Sprintf("  Report from a recorded snapshot:  $ %s %s --input bighorn.raw", common.AppName, cmdName),
}

var Cmd = &cobra.Command{
	Use:           cmdName,
	Short:         "Report the P-state configuration of the host",
	Example:       strings.Join(examples, "\n"),
	RunE:          runCmd,
	PreRunE:       validateFlags,
	GroupID:       "primary",
	Args:          cobra.NoArgs,
	SilenceErrors: true,
}

func init() {
	Cmd.Flags().StringVar(&common.FlagCPUs, common.FlagCPUsName, "", "")
	Cmd.Flags().StringSliceVar(&common.FlagFormat, common.FlagFormatName, []string{report.FormatTxt}, "")
	Cmd.Flags().StringVar(&common.FlagInput, common.FlagInputName, "", "")

	Cmd.SetUsageFunc(usageFunc)
}

// formatOptions returns the formats the info command can produce, i.e., the
// report formats plus the raw snapshot.
func formatOptions() []string {
	return append(slices.Clone(report.FormatOptions), report.FormatRaw)
}

func usageFunc(cmd *cobra.Command) error {
	cmd.Printf("Usage: %s [flags]\n\n", cmd.CommandPath())
	cmd.Printf("Examples:\n%s\n\n", cmd.Example)
	cmd.Println("Flags:")
	for _, group := range getFlagGroups() {
		cmd.Printf("  %s:\n", group.GroupName)
		for _, flag := range group.Flags {
			flagDefault := ""
			if cmd.Flags().Lookup(flag.Name).DefValue != "" {
				flagDefault = fmt.Sprintf(" (default: %s)", cmd.Flags().Lookup(flag.Name).DefValue)
			}
			cmd.Printf("    --%-20s %s%s\n", flag.Name, flag.Help, flagDefault)
		}
	}
	cmd.Println("\nGlobal Flags:")
	cmd.Parent().PersistentFlags().VisitAll(func(pf *pflag.Flag) {
		flagDefault := ""
		if cmd.Parent().PersistentFlags().Lookup(pf.Name).DefValue != "" {
			flagDefault = fmt.Sprintf(" (default: %s)", cmd.Flags().Lookup(pf.Name).DefValue)
		}
		cmd.Printf("  --%-20s %s%s\n", pf.Name, pf.Usage, flagDefault)
	})
	return nil
}

func getFlagGroups() []common.FlagGroup {
	var groups []common.FlagGroup
	flags := []common.Flag{
		{
			Name: common.FlagCPUsName,
			Help: "comma-separated list of CPU ranges, e.g., 0-15,32, default is all CPUs",
		},
		{
			Name: common.FlagFormatName,
			Help: fmt.Sprintf("choose output format(s) from: %s", strings.Join(append([]string{report.FormatAll}, formatOptions()...), ", ")),
		},
	}
	groups = append(groups, common.FlagGroup{
		GroupName: "Report Options",
		Flags:     flags,
	})
	flags = []common.Flag{
		{
			Name: common.FlagInputName,
			Help: "\".raw\" snapshot file. Will skip data collection and report from the recorded data.",
		},
	}
	groups = append(groups, common.FlagGroup{
		GroupName: "Advanced Options",
		Flags:     flags,
	})
	return groups
}

func validateFlags(cmd *cobra.Command, args []string) error {
	// validate format options
	formatOptions := append([]string{report.FormatAll}, formatOptions()...)
	for _, format := range common.FlagFormat {
		if !slices.Contains(formatOptions, format) {
			return common.FlagValidationError(cmd, fmt.Sprintf("format options are: %s", strings.Join(formatOptions, ", ")))
		}
	}
	// validate the CPU list
	if common.FlagCPUs != "" && common.FlagCPUs != "all" {
		if _, err := util.SelectiveIntRangeToIntList(common.FlagCPUs); err != nil {
			return common.FlagValidationError(cmd, fmt.Sprintf("invalid CPU list: %s, expected ranges like 0-15,32", common.FlagCPUs))
		}
	}
	// validate the input file
	if common.FlagInput != "" {
		exists, err := util.FileExists(common.FlagInput)
		if err != nil || !exists {
			return common.FlagValidationError(cmd, fmt.Sprintf("snapshot file not found: %s", common.FlagInput))
		}
	}
	return nil
}

func runCmd(cmd *cobra.Command, args []string) error {
	// appContext is the application context that holds common data and resources.
	appContext := cmd.Parent().Context().Value(common.AppContext{}).(common.AppContext)
	snap, err := getSnapshot(appContext)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		slog.Error(err.Error())
		cmd.SilenceUsage = true
		return err
	}
	allTableValues := report.ProcessTables(report.AllTables(), snap)
	// expand the format list, dropping duplicates
	formats := []string{}
	if slices.Contains(common.FlagFormat, report.FormatAll) {
		formats = formatOptions()
	} else {
		for _, format := range common.FlagFormat {
			formats = util.UniqueAppend(formats, format)
		}
	}
	// a single txt report goes to stdout, all other requests go to files
	if len(formats) == 1 && formats[0] == report.FormatTxt {
		reportBytes, err := report.Create(report.FormatTxt, allTableValues, snap.Host)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			slog.Error(err.Error())
			cmd.SilenceUsage = true
			return err
		}
		fmt.Print(string(reportBytes))
		return nil
	}
	if err := common.CreateOutputDir(appContext.OutputDir); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		slog.Error(err.Error())
		cmd.SilenceUsage = true
		return err
	}
	reportFilePaths := []string{}
	for _, format := range formats {
		var reportBytes []byte
		var err error
		if format == report.FormatRaw {
			// the raw report is the snapshot itself
			reportBytes, err = snap.YAML()
		} else {
			reportBytes, err = report.Create(format, allTableValues, snap.Host)
		}
		if err != nil {
			err = fmt.Errorf("failed to create %s report: %w", format, err)
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			slog.Error(err.Error())
			cmd.SilenceUsage = true
			return err
		}
		reportPath := filepath.Join(appContext.OutputDir, fmt.Sprintf("%s.%s", snap.Host, format))
		if err := common.WriteReport(reportBytes, reportPath); err != nil {
			cmd.SilenceUsage = true
			return err
		}
		reportFilePaths = append(reportFilePaths, reportPath)
	}
	if len(reportFilePaths) > 0 {
		fmt.Println("Report files:")
	}
	for _, reportFilePath := range reportFilePaths {
		fmt.Printf("  %s\n", reportFilePath)
	}
	return nil
}

// getSnapshot collects the P-state configuration, either live from the host or
// from a previously recorded snapshot file, restricted to the requested CPUs.
func getSnapshot(appContext common.AppContext) (*pstates.Snapshot, error) {
	var snap *pstates.Snapshot
	if common.FlagInput != "" {
		var err error
		snap, err = pstates.LoadSnapshot(common.FlagInput)
		if err != nil {
			return nil, fmt.Errorf("failed to load snapshot: %w", err)
		}
	} else {
		provider, err := common.NewProvider(appContext)
		if err != nil {
			return nil, err
		}
		snap, err = pstates.TakeSnapshot(provider)
		if err != nil {
			return nil, fmt.Errorf("failed to collect the P-state configuration: %w", err)
		}
	}
	if err := filterCPUs(snap, common.FlagCPUs); err != nil {
		return nil, err
	}
	return snap, nil
}

// filterCPUs restricts the snapshot's CPU records to the requested list.
func filterCPUs(snap *pstates.Snapshot, spec string) error {
	if spec == "" || spec == "all" {
		return nil
	}
	requested, err := util.SelectiveIntRangeToIntList(spec)
	if err != nil {
		return fmt.Errorf("invalid CPU list %q: %w", spec, err)
	}
	slices.Sort(requested)
	requested = slices.Compact(requested)
	byCPU := make(map[int]pstates.CPUSnapshot, len(snap.CPUs))
	for _, cs := range snap.CPUs {
		byCPU[cs.CPU] = cs
	}
	kept := make([]pstates.CPUSnapshot, 0, len(requested))
	for _, cpu := range requested {
		cs, ok := byCPU[cpu]
		if !ok {
			return fmt.Errorf("CPU %d is not present in the collected data", cpu)
		}
		kept = append(kept, cs)
	}
	snap.CPUs = kept
	return nil
}
