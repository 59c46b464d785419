package set

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"fmt"
	"slices"
	"strings"

	"pstatectl/internal/common"
	"pstatectl/internal/pstates"
	"pstatectl/internal/util"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// flagGroup - structure to hold a group of flags
// groups are used to organize the flags for display in the help message
type flagGroup struct {
	name  string
	flags []flagDefinition
}

// flagGroups - list of flag groups
// initialized by initializeFlags
// and used by the set command
var flagGroups = []flagGroup{}

// flag group names
const (
	flagGroupFrequencyName = "Frequency Options"
	flagGroupPowerName     = "Power Management Options"
	flagGroupOtherName     = "Other Options"
)

// frequency flag names
const (
	flagMinFreqName = "min-freq"
	flagMaxFreqName = "max-freq"
)

// power management flag names
const (
	flagPstateModeName = "intel-pstate-mode"
	flagGovernorName   = "governor"
	flagEPPName        = "epp"
	flagEPBName        = "epb"
	flagTurboName      = "turbo"
)

// turboOptions - list of valid turbo options
var turboOptions = []string{"on", "off"}

// intelPstateModeOptions - list of valid intel_pstate operation modes
var intelPstateModeOptions = []string{"active", "passive", "off"}

// freqHelpSuffix names the symbolic frequencies accepted in place of a number
const freqHelpSuffix = "e.g., 2.4GHz, or one of min, max, base, hfm, P1, Pm"

// validFreqSpec confirms that the named flag holds a parseable frequency
func validFreqSpec(cmd *cobra.Command, name string) bool {
	value, _ := cmd.Flags().GetString(name)
	_, err := pstates.ParseFreqSpec(value)
	return err == nil
}

// initializeFlags initializes the command line flags for the set command
// the global flagGroups variable is used to store the flags
func initializeFlags(cmd *cobra.Command) {
	// frequency options
	// min and max carry no set function, runCmd applies them as a pair
	group := flagGroup{name: flagGroupFrequencyName, flags: []flagDefinition{}}
	group.flags = append(group.flags,
		newStringFlag(cmd, flagMinFreqName, "", nil, "lowest frequency the governor may select, "+freqHelpSuffix, freqHelpSuffix,
			func(cmd *cobra.Command) bool { return validFreqSpec(cmd, flagMinFreqName) }),
		newStringFlag(cmd, flagMaxFreqName, "", nil, "highest frequency the governor may select, "+freqHelpSuffix, freqHelpSuffix,
			func(cmd *cobra.Command) bool { return validFreqSpec(cmd, flagMaxFreqName) }))
	flagGroups = append(flagGroups, group)
	// power management options
	group = flagGroup{name: flagGroupPowerName, flags: []flagDefinition{}}
	group.flags = append(group.flags,
		newStringFlag(cmd, flagPstateModeName, "", setIntelPstateMode,
			"intel_pstate driver operation mode ("+strings.Join(intelPstateModeOptions, ", ")+")", strings.Join(intelPstateModeOptions, ", "),
			func(cmd *cobra.Command) bool {
				value, _ := cmd.Flags().GetString(flagPstateModeName)
				return slices.Contains(intelPstateModeOptions, value)
			}),
		newStringFlag(cmd, flagGovernorName, "", setGovernor,
			"CPU scaling governor, e.g., performance, powersave", "the governors the kernel lists as available",
			func(cmd *cobra.Command) bool {
				value, _ := cmd.Flags().GetString(flagGovernorName)
				return value != ""
			}),
		newStringFlag(cmd, flagEPPName, "", setEPP,
			"energy performance preference, e.g., performance, balance_performance, power", "the preferences the kernel lists as available",
			func(cmd *cobra.Command) bool {
				value, _ := cmd.Flags().GetString(flagEPPName)
				return value != ""
			}),
		newIntFlag(cmd, flagEPBName, 0, setEPB,
			"energy perf bias from best performance (0) to most power savings (15)", "0-15",
			func(cmd *cobra.Command) bool {
				value, _ := cmd.Flags().GetInt(flagEPBName)
				return value >= 0 && value <= 15
			}),
		newStringFlag(cmd, flagTurboName, "", setTurbo,
			"turbo ("+strings.Join(turboOptions, ", ")+")", strings.Join(turboOptions, ", "),
			func(cmd *cobra.Command) bool {
				value, _ := cmd.Flags().GetString(flagTurboName)
				return slices.Contains(turboOptions, value)
			}))
	flagGroups = append(flagGroups, group)
	// other options
	group = flagGroup{name: flagGroupOtherName, flags: []flagDefinition{}}
	group.flags = append(group.flags,
		newStringFlag(cmd, common.FlagCPUsName, "", nil,
			"comma-separated list of CPU ranges to modify, e.g., 0-15,32, default is all CPUs", "CPU ranges like 0-15,32",
			func(cmd *cobra.Command) bool {
				value, _ := cmd.Flags().GetString(common.FlagCPUsName)
				if value == "" || value == "all" {
					return true
				}
				_, err := util.SelectiveIntRangeToIntList(value)
				return err == nil
			}))
	flagGroups = append(flagGroups, group)

	Cmd.SetUsageFunc(usageFunc)
}

// usageFunc prints the usage information for the command
func usageFunc(cmd *cobra.Command) error {
	cmd.Printf("Usage: %s [flags]\n\n", cmd.CommandPath())
	cmd.Printf("Examples:\n%s\n\n", cmd.Example)
	cmd.Println("Flags:")
	for _, group := range flagGroups {
		cmd.Printf("  %s:\n", group.name)
		for _, flag := range group.flags {
			cmd.Printf("    --%-20s %s\n", flag.GetName(), flag.pflag.Usage)
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

// validateFlags validates the command line flags for the set command
// operates on the global flagGroups variable
func validateFlags(cmd *cobra.Command, args []string) error {
	for _, group := range flagGroups {
		for _, flag := range group.flags {
			if cmd.Flags().Lookup(flag.GetName()).Changed && flag.validationFunc != nil {
				if !flag.validationFunc(cmd) {
					return common.FlagValidationError(cmd, fmt.Sprintf("invalid flag value, --%s %s, valid values are %s", flag.GetName(), flag.GetValueAsString(), flag.validationDescription))
				}
			}
		}
	}
	return nil
}
