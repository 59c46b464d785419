// Package msr reads model-specific registers through the msr kernel module.
package msr

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"os"
	"syscall"

	"github.com/pkg/errors"

	"pstatectl/internal/util"
)

// registers of interest
const (
	PlatformInfo    int64 = 0xCE  // MSR_PLATFORM_INFO
	TurboRatioLimit int64 = 0x1AD // MSR_TURBO_RATIO_LIMIT
)

// busClockHz is the bus clock used to scale frequency ratios. All Intel
// processors since Sandy Bridge use a 100 MHz bus clock.
const busClockHz uint64 = 100_000_000

const defaultDevPathFmt = "/dev/cpu/%d/msr"

// Reader reads MSRs from the per-CPU device files exposed by the msr module.
type Reader struct {
	devPathFmt string
}

func NewReader() *Reader {
	return &Reader{devPathFmt: defaultDevPathFmt}
}

// NewReaderWithPath overrides the device path format, e.g., to read from a
// captured register dump. The format must contain one %d verb for the CPU
// number.
func NewReaderWithPath(pathFmt string) *Reader {
	return &Reader{devPathFmt: pathFmt}
}

// Supported reports whether the MSR device file for cpu exists, i.e.,
// whether the msr kernel module is loaded.
func (r *Reader) Supported(cpu int) bool {
	_, err := os.Stat(fmt.Sprintf(r.devPathFmt, cpu))
	return err == nil
}

// Read returns the 64-bit value of register reg on cpu.
func (r *Reader) Read(cpu int, reg int64) (uint64, error) {
	path := fmt.Sprintf(r.devPathFmt, cpu)
	fd, err := syscall.Open(path, syscall.O_RDONLY, 0)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to open %s, is the msr module loaded?", path)
	}
	defer syscall.Close(fd)
	buf := make([]byte, 8)
	rc, err := syscall.Pread(fd, buf, reg)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to read register 0x%X from %s", reg, path)
	}
	if rc != 8 {
		return 0, errors.Errorf("short read of register 0x%X from %s, got %d bytes", reg, path, rc)
	}
	// all x86 MSRs are little endian
	val := binary.LittleEndian.Uint64(buf)
	slog.Debug("read MSR", slog.Int("cpu", cpu), slog.String("register", fmt.Sprintf("0x%X", reg)), slog.String("value", fmt.Sprintf("0x%X", val)))
	return val, nil
}

// ratioField extracts a frequency ratio from bits hi:lo of register reg and
// scales it by the bus clock. A zero ratio yields 0 Hz, meaning the register
// does not report the value.
func (r *Reader) ratioField(cpu int, reg int64, hi, lo int) (uint64, error) {
	val, err := r.Read(cpu, reg)
	if err != nil {
		return 0, err
	}
	ratio, err := util.Uint64Field(val, hi, lo)
	if err != nil {
		return 0, err
	}
	return ratio * busClockHz, nil
}

// BaseFreq returns the base (guaranteed) frequency in Hz from
// MSR_PLATFORM_INFO bits 15:8.
func (r *Reader) BaseFreq(cpu int) (uint64, error) {
	return r.ratioField(cpu, PlatformInfo, 15, 8)
}

// MinOperFreq returns the minimum operating frequency in Hz from
// MSR_PLATFORM_INFO bits 55:48.
func (r *Reader) MinOperFreq(cpu int) (uint64, error) {
	return r.ratioField(cpu, PlatformInfo, 55, 48)
}

// MaxTurboFreq returns the maximum single-core turbo frequency in Hz from
// MSR_TURBO_RATIO_LIMIT bits 7:0.
func (r *Reader) MaxTurboFreq(cpu int) (uint64, error) {
	return r.ratioField(cpu, TurboRatioLimit, 7, 0)
}
