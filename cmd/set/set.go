// Package set is a subcommand of the root command. It modifies the P-state
// configuration of the host.
package set

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"strings"

	"pstatectl/internal/common"
	"pstatectl/internal/pstates"
	"pstatectl/internal/report"
	"pstatectl/internal/util"

	"github.com/spf13/cobra"
)

const cmdName = "set"

var examples = []string{
	fmt.Sprintf("  Cap the frequency of four CPUs:  $ %s %s --max-freq 2.4GHz --cpus 0-3", common.AppName, cmdName),
	fmt.Sprintf("  Pin all CPUs to the base clock:  $ %s %s --min-freq base --max-freq base", common.AppName, cmdName),
	fmt.Sprintf("  Disable turbo:                   $ %s %s --turbo off", common.AppName, cmdName),
	fmt.Sprintf("  Set governor and EPP:            $ %s %s --governor powersave --epp power", common.AppName, cmdName),
	fmt.Sprintf("  View the current configuration:  $ %s %s", common.AppName, cmdName),
}

var Cmd = &cobra.Command{
	Use:   cmdName,
	Short: "Modify the P-state configuration of the host",
	Long: `Sets P-state configuration items on the host.

USE CAUTION! Changes take effect immediately. It is up to the user to ensure that the requested configuration is valid for the host. There is not an automated way to revert the changes. If all else fails, reboot the host.`,
	Example:       strings.Join(examples, "\n"),
	RunE:          runCmd,
	PreRunE:       validateFlags,
	GroupID:       "primary",
	Args:          cobra.NoArgs,
	SilenceErrors: true,
}

func init() {
	initializeFlags(Cmd)
}

func runCmd(cmd *cobra.Command, args []string) error {
	// appContext is the application context that holds common data and resources.
	appContext := cmd.Parent().Context().Value(common.AppContext{}).(common.AppContext)
	provider, err := common.NewProvider(appContext)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		slog.Error(err.Error())
		cmd.SilenceUsage = true
		return err
	}
	cpus, err := requestedCPUs(cmd, provider)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		slog.Error(err.Error())
		cmd.SilenceUsage = true
		return err
	}
	// print config prior to changes
	if err := printConfig(provider, cpus); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		slog.Error(err.Error())
		cmd.SilenceUsage = true
		return err
	}
	// make requested changes
	changeRequested := false
	// min and max frequency go through one call so that the pair is written
	// in an order the kernel accepts
	minSpec, maxSpec := changedFreqSpecs(cmd)
	if minSpec != "" || maxSpec != "" {
		changeRequested = true
		if err := setFreqs(minSpec, maxSpec, provider, cpus); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			slog.Error(err.Error())
		}
	}
	for _, group := range flagGroups {
		for _, flag := range group.flags {
			if !cmd.Flags().Lookup(flag.GetName()).Changed || !flag.HasSetFunc() {
				continue
			}
			changeRequested = true
			var err error
			switch flag.GetType() {
			case "int":
				if flag.intSetFunc != nil {
					value, _ := cmd.Flags().GetInt(flag.GetName())
					err = flag.intSetFunc(value, provider, cpus)
				}
			case "string":
				if flag.stringSetFunc != nil {
					value, _ := cmd.Flags().GetString(flag.GetName())
					err = flag.stringSetFunc(value, provider, cpus)
				}
			}
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				slog.Error(err.Error(), slog.String("flag", flag.GetName()))
			}
		}
	}
	if !changeRequested {
		fmt.Println("No changes requested.")
		return nil
	}
	// print config after making changes, reading it back from the kernel
	fmt.Println("") // blank line
	if err := printConfig(provider, cpus); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		slog.Error(err.Error())
		return err
	}
	return nil
}

// printConfig reads the configuration from the kernel and prints it in the
// txt report format.
func printConfig(provider *pstates.SysfsProvider, cpus []int) error {
	snap, err := pstates.TakeSnapshot(provider)
	if err != nil {
		return fmt.Errorf("failed to collect the P-state configuration: %w", err)
	}
	keepCPUs(snap, cpus)
	tables := []report.TableDefinition{}
	for _, table := range report.AllTables() {
		if table.Name == report.PStatesTableName || table.Name == report.FrequenciesTableName {
			tables = append(tables, table)
		}
	}
	tableValues := report.ProcessTables(tables, snap)
	reportBytes, err := report.Create(report.FormatTxt, tableValues, snap.Host)
	if err != nil {
		return fmt.Errorf("failed to create report: %w", err)
	}
	fmt.Print(string(reportBytes))
	return nil
}

// requestedCPUs expands the --cpus flag into a sorted list of unique CPU
// numbers, verified against the host inventory. An empty list selects all
// CPUs.
func requestedCPUs(cmd *cobra.Command, provider *pstates.SysfsProvider) ([]int, error) {
	spec, _ := cmd.Flags().GetString(common.FlagCPUsName)
	if spec == "" || spec == "all" {
		return nil, nil
	}
	return provider.Info().ParseCPUList(spec)
}

// keepCPUs prunes the snapshot down to the requested CPUs. An empty list
// keeps every CPU.
func keepCPUs(snap *pstates.Snapshot, cpus []int) {
	if len(cpus) == 0 {
		return
	}
	kept := make([]pstates.CPUSnapshot, 0, len(cpus))
	for _, cs := range snap.CPUs {
		if slices.Contains(cpus, cs.CPU) {
			kept = append(kept, cs)
		}
	}
	snap.CPUs = kept
}

// changedFreqSpecs returns the min and max frequency flag values, empty when
// a flag was not set on the command line.
func changedFreqSpecs(cmd *cobra.Command) (minSpec string, maxSpec string) {
	if cmd.Flags().Lookup(flagMinFreqName).Changed {
		minSpec, _ = cmd.Flags().GetString(flagMinFreqName)
	}
	if cmd.Flags().Lookup(flagMaxFreqName).Changed {
		maxSpec, _ = cmd.Flags().GetString(flagMaxFreqName)
	}
	return
}

// cpuLabel renders the CPU scope for progress messages.
func cpuLabel(cpus []int) string {
	if len(cpus) == 0 {
		return "all CPUs"
	}
	return "CPUs " + util.IntSliceToRangeString(cpus)
}

func setFreqs(minSpec string, maxSpec string, provider *pstates.SysfsProvider, cpus []int) error {
	if minSpec != "" {
		fmt.Printf("set minimum frequency to %s on %s\n", minSpec, cpuLabel(cpus))
	}
	if maxSpec != "" {
		fmt.Printf("set maximum frequency to %s on %s\n", maxSpec, cpuLabel(cpus))
	}
	return pstates.SetCPUFreqs(provider, minSpec, maxSpec, cpus)
}

// setIntelPstateMode switches the driver operation mode, a system-wide knob.
func setIntelPstateMode(mode string, provider *pstates.SysfsProvider, cpus []int) error {
	fmt.Printf("set intel_pstate mode to %s\n", mode)
	return provider.SetCPUProp(pstates.PropIntelPstateMode, mode, cpus)
}

func setGovernor(governor string, provider *pstates.SysfsProvider, cpus []int) error {
	fmt.Printf("set governor to %s on %s\n", governor, cpuLabel(cpus))
	return provider.SetCPUProp(pstates.PropGovernor, governor, cpus)
}

func setEPP(epp string, provider *pstates.SysfsProvider, cpus []int) error {
	fmt.Printf("set energy performance preference to %s on %s\n", epp, cpuLabel(cpus))
	return provider.SetCPUProp(pstates.PropEPP, epp, cpus)
}

func setEPB(epb int, provider *pstates.SysfsProvider, cpus []int) error {
	fmt.Printf("set energy perf bias to %d on %s\n", epb, cpuLabel(cpus))
	return provider.SetCPUProp(pstates.PropEPB, strconv.Itoa(epb), cpus)
}

// setTurbo flips the system-wide turbo switch.
func setTurbo(value string, provider *pstates.SysfsProvider, cpus []int) error {
	fmt.Printf("set turbo to %s\n", value)
	return provider.SetCPUProp(pstates.PropTurbo, value, cpus)
}
