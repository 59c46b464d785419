package pstates

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

// Value holds one property value with an explicit present/absent marker. A
// property a platform does not support yields an absent Value, not an error.
type Value struct {
	Present bool
	str     string
	num     uint64
	list    []uint64
	strs    []string
}

func StringValue(s string) Value {
	return Value{Present: true, str: s}
}

func Uint64Value(n uint64) Value {
	return Value{Present: true, num: n}
}

func ListValue(l []uint64) Value {
	return Value{Present: true, list: l}
}

func StringsValue(s []string) Value {
	return Value{Present: true, strs: s}
}

// Str returns the token of a string-kind value, or "" when absent.
func (v Value) Str() string {
	return v.str
}

// Uint64 returns the numeric value, or 0 when absent.
func (v Value) Uint64() uint64 {
	return v.num
}

// List returns the numeric list value, or nil when absent.
func (v Value) List() []uint64 {
	return v.list
}

// Strs returns the string list value, or nil when absent.
func (v Value) Strs() []string {
	return v.strs
}
