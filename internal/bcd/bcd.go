// Package bcd implements packed-decimal (binary-coded decimal) encoding,
// the byte-level format used by the `bcd`-encoded fields of the ISO 8583
// field catalog: two decimal digits packed into the high and low nibble of
// one byte.
package bcd

import (
	"errors"
	"fmt"
)

// Sentinel errors for malformed BCD input.
var (
	// ErrNonDigit indicates a character outside '0'-'9' was given to Encode.
	ErrNonDigit = errors.New("bcd: non-digit character")

	// ErrInvalidNibble indicates a nibble in 0xA-0xE (not a valid decimal
	// digit, not the 0xF padding sentinel) was encountered while decoding.
	ErrInvalidNibble = errors.New("bcd: invalid nibble")
)

// padNibble is the sentinel nibble value (0xF) that Decode treats as padding
// and silently skips, per older NPSB implementations that fill odd-length
// values with an all-ones nibble instead of a zero nibble.
const padNibble = 0xF

// Encode packs a digit string into BCD bytes. An odd-length input is
// left-padded with '0' before packing, so the first digit of the pair
// lands in the high nibble of the first byte.
func Encode(digits string) ([]byte, error) {
	if len(digits)%2 != 0 {
		digits = "0" + digits
	}

	out := make([]byte, len(digits)/2)
	for i := 0; i < len(digits); i += 2 {
		hi, err := digitValue(digits[i])
		if err != nil {
			return nil, err
		}
		lo, err := digitValue(digits[i+1])
		if err != nil {
			return nil, err
		}
		out[i/2] = hi<<4 | lo
	}

	return out, nil
}

// Decode unpacks BCD bytes into a digit string. Each byte yields two
// digits (high nibble first). 0xF nibbles are padding and are dropped from
// the output; any other non-decimal nibble (0xA-0xE) is an error. The
// expanded digit string is then right-trimmed to the rightmost
// expectedDigits characters — packing occasionally left-pads an odd-length
// value with a zero nibble, and it is the leading nibble that must be
// discarded on the way back out, never a trailing one.
func Decode(raw []byte, expectedDigits int) (string, error) {
	buf := make([]byte, 0, len(raw)*2)

	for _, b := range raw {
		hi := b >> 4
		lo := b & 0x0F

		for _, nibble := range [2]byte{hi, lo} {
			if nibble == padNibble {
				continue
			}
			if nibble > 9 {
				return "", fmt.Errorf("%w: %#x", ErrInvalidNibble, nibble)
			}
			buf = append(buf, '0'+nibble)
		}
	}

	if len(buf) <= expectedDigits {
		return string(buf), nil
	}

	return string(buf[len(buf)-expectedDigits:]), nil
}

// digitValue converts an ASCII digit byte to its numeric value.
func digitValue(c byte) (byte, error) {
	if c < '0' || c > '9' {
		return 0, fmt.Errorf("%w: %q", ErrNonDigit, c)
	}
	return c - '0', nil
}
