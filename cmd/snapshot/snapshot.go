// Package snapshot is a subcommand of the root command. It records the P-state
// configuration of every CPU to a file for offline analysis.
package snapshot

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"pstatectl/internal/common"
	"pstatectl/internal/pstates"

	"github.com/spf13/cobra"
)

const cmdName = "snapshot"

var examples = []string{
	fmt.Sprintf("  Record a snapshot:                      $ %s %s", common.AppName, cmdName),
	fmt.Sprintf("  Record a snapshot to a chosen dir:      $ %s %s --output /tmp", common.AppName, cmdName),
	fmt.Sprintf("  Report from the recorded snapshot:      $ %s info --input bighorn.raw", common.AppName),
}

var Cmd = &cobra.Command{
	Use:           cmdName,
	Short:         "Record the P-state configuration to a file",
	Example:       strings.Join(examples, "\n"),
	RunE:          runCmd,
	GroupID:       "primary",
	Args:          cobra.NoArgs,
	SilenceErrors: true,
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
	snap, err := pstates.TakeSnapshot(provider)
	if err != nil {
		err = fmt.Errorf("failed to collect the P-state configuration: %w", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		slog.Error(err.Error())
		cmd.SilenceUsage = true
		return err
	}
	if err := common.CreateOutputDir(appContext.OutputDir); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		slog.Error(err.Error())
		cmd.SilenceUsage = true
		return err
	}
	snapshotPath := filepath.Join(appContext.OutputDir, snap.Host+".raw")
	if err := snap.Save(snapshotPath); err != nil {
		err = fmt.Errorf("failed to write snapshot: %w", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		slog.Error(err.Error())
		cmd.SilenceUsage = true
		return err
	}
	fmt.Println("Snapshot file:")
	fmt.Printf("  %s\n", snapshotPath)
	return nil
}
