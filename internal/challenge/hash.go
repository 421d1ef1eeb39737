// Package challenge implements the contact form's two bot speed bumps: a
// timed token issued on page load and an interactive slider the visitor
// must hold on a target.
package challenge

import (
	"strconv"
	"unicode/utf16"
)

const (
	fnvOffset32 uint32 = 2166136261
	fnvPrime32  uint32 = 16777619
)

// Hash is a 32-bit FNV-1a style mix over the UTF-16 code units of s,
// rendered in base 36. Browser clients compute the same value, so it must
// stay bit-for-bit stable. It is not a cryptographic hash.
func Hash(s string) string {
	h := fnvOffset32
	for _, unit := range utf16.Encode([]rune(s)) {
		h ^= uint32(unit)
		h *= fnvPrime32
	}
	return strconv.FormatUint(uint64(h), 36)
}
