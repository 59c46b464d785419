package set

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"pstatectl/internal/pstates"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type IntSetFunc func(int, *pstates.SysfsProvider, []int) error
type StringSetFunc func(string, *pstates.SysfsProvider, []int) error
type ValidationFunc func(cmd *cobra.Command) bool

// flagDefinition is a struct that defines a command line flag.
type flagDefinition struct {
	pflag                 *pflag.Flag
	intSetFunc            IntSetFunc
	stringSetFunc         StringSetFunc
	validationFunc        ValidationFunc
	validationDescription string
}

// HasSetFunc checks if any set function is defined for the flag.
func (f *flagDefinition) HasSetFunc() bool {
	return f.intSetFunc != nil || f.stringSetFunc != nil
}

// GetName returns the name of the flag.
func (f *flagDefinition) GetName() string {
	return f.pflag.Name
}

// GetType returns the type of the flag.
func (f *flagDefinition) GetType() string {
	return f.pflag.Value.Type()
}

// GetValueAsString returns the value of the flag as a string.
func (f *flagDefinition) GetValueAsString() string {
	return f.pflag.Value.String()
}

// newIntFlag creates a new int flag and adds it to the command.
func newIntFlag(cmd *cobra.Command, name string, defaultValue int, setFunc IntSetFunc, help string, validationDescription string, validationFunc ValidationFunc) flagDefinition {
	cmd.Flags().Int(name, defaultValue, help)
	pFlag := cmd.Flags().Lookup(name)
	return flagDefinition{
		pflag:                 pFlag,
		intSetFunc:            setFunc,
		validationFunc:        validationFunc,
		validationDescription: validationDescription,
	}
}

// newStringFlag creates a new string flag and adds it to the command.
func newStringFlag(cmd *cobra.Command, name string, defaultValue string, setFunc StringSetFunc, help string, validationDescription string, validationFunc ValidationFunc) flagDefinition {
	cmd.Flags().String(name, defaultValue, help)
	pFlag := cmd.Flags().Lookup(name)
	return flagDefinition{
		pflag:                 pFlag,
		stringSetFunc:         setFunc,
		validationFunc:        validationFunc,
		validationDescription: validationDescription,
	}
}
