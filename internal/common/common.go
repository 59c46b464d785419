// Package common defines data structures and functions that are used by multiple
// application commands, e.g., info, set, watch, snapshot.
package common

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"pstatectl/internal/hostfs"
	"pstatectl/internal/pstates"
	"pstatectl/internal/util"

	"github.com/spf13/cobra"
)

var AppName = filepath.Base(os.Args[0])

// AppContext represents the application context that can be accessed from all commands.
type AppContext struct {
	Timestamp   string // Timestamp is the timestamp when the application was started.
	OutputDir   string // OutputDir is the directory where the application will write output files.
	SystemRoot  string // SystemRoot is the directory that mirrors / and holds the sys and proc trees, "/" on a live system.
	LogFilePath string // LogFilePath is the path to the log file.
	Version     string // Version is the version of the application.
	Debug       bool   // Debug is true if the application is running in debug mode.
}

// Flag represents a command-line flag with its name and help text.
type Flag struct {
	Name string
	Help string
}

// FlagGroup represents a group of related flags with a group name.
type FlagGroup struct {
	GroupName string
	Flags     []Flag
}

// Global flag variables shared by multiple commands.
var (
	FlagInput  string
	FlagFormat []string
	FlagCPUs   string
)

const (
	FlagInputName  = "input"
	FlagFormatName = "format"
	FlagCPUsName   = "cpus"
)

// Flag names for flags defined in the root command, but sometimes used in other commands.
const (
	FlagDebugName      = "debug"
	FlagSyslogName     = "syslog"
	FlagLogStdOutName  = "log-stdout"
	FlagOutputDirName  = "output"
	FlagSystemRootName = "system-root"
)

// NewProvider creates a property provider backed by the kernel interface
// files under the context's system root.
func NewProvider(appContext AppContext) (*pstates.SysfsProvider, error) {
	fs := hostfs.NewWithRoot(appContext.SystemRoot)
	return pstates.NewSysfsProvider(fs)
}

// CreateOutputDir creates the output directory if it does not exist
func CreateOutputDir(outputDir string) error {
	err := util.CreateDirectoryIfNotExists(outputDir, 0755) // #nosec G301
	if err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	return nil
}

// FlagValidationError is used to report an error with a flag
func FlagValidationError(cmd *cobra.Command, msg string) error {
	err := errors.New(msg)
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	fmt.Fprintf(os.Stderr, "See '%s --help' for usage details.\n", cmd.CommandPath())
	cmd.SilenceUsage = true
	return err
}

// WriteReport writes the report bytes to the specified path.
func WriteReport(reportBytes []byte, reportPath string) error {
	err := os.WriteFile(reportPath, reportBytes, 0644) // #nosec G306
	if err != nil {
		err = fmt.Errorf("failed to write report file: %v", err)
		fmt.Fprintln(os.Stderr, err)
		slog.Error(err.Error())
		return err
	}
	return nil
}
