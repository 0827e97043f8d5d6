// Copyright 2017 The go-ethereum Authors
// (original work)
// Copyright 2024 The Erigon Authors
// (modifications)
// This file is part of Erigon.
//
// Erigon is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Erigon is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Erigon. If not, see <http://www.gnu.org/licenses/>.

// Package numeric holds small integer-parsing and overflow-checked
// arithmetic helpers shared by the CLI front-end and the manager's own
// PSN bookkeeping.
package numeric

import (
	"fmt"
	"math/bits"
	"strconv"
)

// ParseUint64 parses s as an integer in decimal or hexadecimal syntax,
// used by the CLI to accept its starting-PSN flag in either form. The
// empty string parses as zero.
func ParseUint64(s string) (uint64, bool) {
	if s == "" {
		return 0, true
	}
	if len(s) >= 2 && (s[:2] == "0x" || s[:2] == "0X") {
		v, err := strconv.ParseUint(s[2:], 16, 64)
		return v, err == nil
	}
	v, err := strconv.ParseUint(s, 10, 64)
	return v, err == nil
}

// MustParseUint64 parses s and panics if it is not a valid integer.
func MustParseUint64(s string) uint64 {
	v, ok := ParseUint64(s)
	if !ok {
		panic(fmt.Sprintf("numeric: invalid unsigned 64 bit integer %q", s))
	}
	return v
}

// SafeAdd returns x+y and reports whether the addition overflowed a
// uint64, used to guard the PSN counter against wraparound instead of
// assuming a 64-bit range is always enough headroom.
func SafeAdd(x, y uint64) (sum uint64, overflow bool) {
	sum, carryOut := bits.Add64(x, y, 0)
	return sum, carryOut != 0
}

// CeilDiv returns ceil(x/y), or 0 if y is 0. Nothing in this module
// calls it.
func CeilDiv(x, y int) int {
	if y == 0 {
		return 0
	}
	return (x + y - 1) / y
}
