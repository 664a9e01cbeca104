// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package kernel

import (
	"fmt"
	"strings"
)

// Format is the storage format of a texture.
type Format uint8

const (
	// FormatRGBA32F stores four float32 components.
	FormatRGBA32F Format = iota

	// FormatRGBA16F stores four IEEE 754 binary16 components.
	FormatRGBA16F

	// FormatRGBM8 stores rgb and a shared multiplier in four bytes, for
	// targets without float render support. Alpha is not preserved.
	FormatRGBM8

	formatCount
)

var formatNames = [formatCount]string{
	FormatRGBA32F: "rgba32f",
	FormatRGBA16F: "rgba16f",
	FormatRGBM8:   "rgbm",
}

// String returns the short format name.
func (f Format) String() string {
	if f.IsValid() {
		return formatNames[f]
	}
	return fmt.Sprintf("Format(%d)", uint8(f))
}

// IsValid reports whether f is a known format.
func (f Format) IsValid() bool {
	return f < formatCount
}

// BytesPerPixel returns the storage size of one pixel.
func (f Format) BytesPerPixel() int {
	switch f {
	case FormatRGBA32F:
		return 16
	case FormatRGBA16F:
		return 8
	case FormatRGBM8:
		return 4
	default:
		return 0
	}
}

// ParseFormat parses a format name as printed by String.
func ParseFormat(s string) (Format, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for f, name := range formatNames {
		if s == name {
			return Format(f), nil
		}
	}
	return 0, fmt.Errorf("%q: %w", s, ErrFormat)
}
