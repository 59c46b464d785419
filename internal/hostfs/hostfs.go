// Package hostfs provides low-level read/write access to kernel interface
// files. All accessors take paths relative to a system root that mirrors "/"
// and contains the sys and proc trees, so that tests and recorded datasets
// can substitute a fake tree for the live system.
package hostfs

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
)

// ErrNotSupported indicates that a kernel interface file backing a capability does not
// exist on this system, i.e., the kernel or the hardware does not provide it.
var ErrNotSupported = errors.New("not supported")

// FS accesses files beneath a filesystem root, "/" by default.
type FS struct {
	root string
}

// New returns an FS rooted at the live filesystem.
func New() *FS {
	return &FS{root: "/"}
}

// NewWithRoot returns an FS rooted at the given directory. Pass "" or "/" for
// the live filesystem.
func NewWithRoot(root string) *FS {
	if root == "" {
		root = "/"
	}
	return &FS{root: root}
}

// Root returns the filesystem root this FS reads from.
func (f *FS) Root() string {
	return f.root
}

// Path joins the given elements beneath the filesystem root.
func (f *FS) Path(elem ...string) string {
	return filepath.Join(append([]string{f.root}, elem...)...)
}

// Exists reports whether the given relative path exists.
func (f *FS) Exists(relPath string) bool {
	_, err := os.Stat(f.Path(relPath))
	return err == nil
}

// Read reads the file at the given relative path and returns its contents with
// surrounding whitespace trimmed. A missing file is reported as ErrNotSupported.
func (f *FS) Read(relPath string) (string, error) {
	path := f.Path(relPath)
	data, err := os.ReadFile(path) // #nosec G304
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%s: %w", path, ErrNotSupported)
		}
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	val := strings.TrimSpace(string(data))
	slog.Debug("hostfs read", slog.String("path", path), slog.String("value", val))
	return val, nil
}

// ReadUint64 reads the file at the given relative path as an unsigned integer.
func (f *FS) ReadUint64(relPath string) (uint64, error) {
	val, err := f.Read(relPath)
	if err != nil {
		return 0, err
	}
	num, err := strconv.ParseUint(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse %s value %q: %w", f.Path(relPath), val, err)
	}
	return num, nil
}

// ReadUint64List reads the file at the given relative path as a whitespace
// separated list of unsigned integers, returned in ascending order.
func (f *FS) ReadUint64List(relPath string) ([]uint64, error) {
	val, err := f.Read(relPath)
	if err != nil {
		return nil, err
	}
	var nums []uint64
	for _, field := range strings.Fields(val) {
		num, err := strconv.ParseUint(field, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s value %q: %w", f.Path(relPath), field, err)
		}
		nums = append(nums, num)
	}
	// some drivers, e.g., acpi-cpufreq, list available frequencies in
	// descending order
	slices.Sort(nums)
	return nums, nil
}

// ReadStrings reads the file at the given relative path as a whitespace
// separated list of strings.
func (f *FS) ReadStrings(relPath string) ([]string, error) {
	val, err := f.Read(relPath)
	if err != nil {
		return nil, err
	}
	return strings.Fields(val), nil
}

// Write writes the given value to the file at the given relative path. A
// missing file is reported as ErrNotSupported.
func (f *FS) Write(relPath string, val string) error {
	path := f.Path(relPath)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%s: %w", path, ErrNotSupported)
		}
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}
	slog.Debug("hostfs write", slog.String("path", path), slog.String("value", val))
	if err := os.WriteFile(path, []byte(val), 0644); err != nil { // #nosec G306
		return fmt.Errorf("failed to write %q to %s: %w", val, path, err)
	}
	return nil
}

// WriteUint64 writes the given unsigned integer to the file at the given
// relative path.
func (f *FS) WriteUint64(relPath string, val uint64) error {
	return f.Write(relPath, strconv.FormatUint(val, 10))
}
