// Package iso8583 assembles and disassembles whole ISO 8583 messages: the
// 4-byte ASCII MTI, the primary/secondary bitmap pair, and the ordered field
// bytes each bitmap bit names. It drives internal/field for each individual
// field and internal/catalog to resolve field numbers to definitions.
package iso8583

import (
	"errors"
	"fmt"
	"sort"

	"github.com/npsb/npswitch/internal/catalog"
	"github.com/npsb/npswitch/internal/field"
)

// Sentinel errors for message-level codec failures.
var (
	// ErrReservedField indicates field 1 (the secondary-bitmap indicator,
	// never a data field) was present in a Message's Fields map.
	ErrReservedField = errors.New("iso8583: field 1 is reserved and may not be set")

	// ErrShortMTI indicates fewer than 4 bytes were available for the MTI.
	ErrShortMTI = errors.New("iso8583: buffer too short for MTI")

	// ErrShortBitmap indicates fewer bytes were available than the
	// primary (and, if extended, secondary) bitmap requires.
	ErrShortBitmap = errors.New("iso8583: buffer too short for bitmap")

	// ErrTrailingBytes indicates bytes remained after the last bitmap-named
	// field was decoded: a framing error.
	ErrTrailingBytes = errors.New("iso8583: trailing bytes after last field")
)

// Message is a single ISO 8583 message: an MTI plus a sparse set of fields.
// The bitmap is never stored; it is derived from Fields on Encode and
// discarded once Decode has populated Fields.
type Message struct {
	MTI    string
	Fields map[int][]byte
}

// New returns an empty Message with the given MTI.
func New(mti string) *Message {
	return &Message{MTI: mti, Fields: make(map[int][]byte)}
}

// Set stores value under field number n. It is the caller's responsibility
// to pass a value shaped for n's catalog class (digit string for N,
// character string for AN/ANS, raw bytes for B); Encode validates shape.
func (m *Message) Set(n int, value []byte) {
	if m.Fields == nil {
		m.Fields = make(map[int][]byte)
	}
	m.Fields[n] = value
}

// Get returns field n's raw value and whether it was present.
func (m *Message) Get(n int) ([]byte, bool) {
	v, ok := m.Fields[n]
	return v, ok
}

// Encode renders the message as mti(4 ASCII bytes) | bitmap | fields, with
// fields emitted in ascending field-number order split across the primary
// (2-64) and secondary (65-128) bitmap halves.
func Encode(m *Message, mode field.EncoderMode) ([]byte, error) {
	if len(m.MTI) != 4 {
		return nil, fmt.Errorf("iso8583: MTI must be 4 bytes, got %q", m.MTI)
	}
	if _, reserved := m.Fields[1]; reserved {
		return nil, ErrReservedField
	}

	numbers := make([]int, 0, len(m.Fields))
	for n := range m.Fields {
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)

	hasSecondary := len(numbers) > 0 && numbers[len(numbers)-1] > 64

	out := make([]byte, 0, 4+16+len(numbers)*8)
	out = append(out, m.MTI...)
	out = append(out, buildBitmap(numbers, hasSecondary)...)

	primary, secondary := splitByBitmapHalf(numbers)
	for _, group := range [][]int{primary, secondary} {
		for _, n := range group {
			def, err := catalog.Lookup(n)
			if err != nil {
				return nil, err
			}
			wire, err := field.Encode(def, m.Fields[n], mode)
			if err != nil {
				return nil, err
			}
			out = append(out, wire...)
		}
	}

	return out, nil
}

// Decode parses a complete ISO 8583 message (as delimited by the framer)
// into a Message. Any byte left over after the last bitmap-named field is a
// framing error.
func Decode(data []byte, mode field.EncoderMode) (*Message, error) {
	if len(data) < 4 {
		return nil, ErrShortMTI
	}
	m := New(string(data[:4]))
	rest := data[4:]

	if len(rest) < 8 {
		return nil, ErrShortBitmap
	}
	primary := rest[:8]
	rest = rest[8:]

	hasSecondary := primary[0]&0x80 != 0
	var secondary []byte
	if hasSecondary {
		if len(rest) < 8 {
			return nil, ErrShortBitmap
		}
		secondary = rest[:8]
		rest = rest[8:]
	}

	numbers := parseBitmap(primary, secondary)
	for _, n := range numbers {
		def, err := catalog.Lookup(n)
		if err != nil {
			return nil, err
		}
		value, consumed, err := field.Decode(def, rest, mode)
		if err != nil {
			return nil, err
		}
		m.Fields[n] = value
		rest = rest[consumed:]
	}

	if len(rest) != 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrTrailingBytes, len(rest))
	}

	return m, nil
}

// buildBitmap sets bit k (0-indexed) for each present field n = k+1, for
// k >= 1 (field 1 itself is never a valid key). Bit 0 of byte 0 signals a
// secondary bitmap follows.
func buildBitmap(numbers []int, hasSecondary bool) []byte {
	size := 8
	if hasSecondary {
		size = 16
	}
	bm := make([]byte, size)
	if hasSecondary {
		bm[0] |= 0x80
	}
	for _, n := range numbers {
		k := n - 1
		bm[k/8] |= 1 << uint(7-(k%8))
	}
	return bm
}

// parseBitmap returns the sorted field numbers named by a primary bitmap
// (and, if present, secondary bitmap), excluding bit 0 which is the
// secondary-bitmap-follows indicator rather than a field.
func parseBitmap(primary, secondary []byte) []int {
	var numbers []int
	walk := func(bm []byte, startBit int) {
		for byteIdx, b := range bm {
			for bit := 0; bit < 8; bit++ {
				k := byteIdx*8 + bit
				if k < startBit {
					continue
				}
				if b&(1<<uint(7-bit)) != 0 {
					numbers = append(numbers, k+1)
				}
			}
		}
	}
	walk(primary, 1)
	if secondary != nil {
		for byteIdx, b := range secondary {
			for bit := 0; bit < 8; bit++ {
				if b&(1<<uint(7-bit)) != 0 {
					numbers = append(numbers, 64+byteIdx*8+bit+1)
				}
			}
		}
	}
	sort.Ints(numbers)
	return numbers
}

// splitByBitmapHalf partitions ascending field numbers into the primary
// (<=64) and secondary (>64) groups, each still ascending.
func splitByBitmapHalf(numbers []int) (primary, secondary []int) {
	for _, n := range numbers {
		if n <= 64 {
			primary = append(primary, n)
		} else {
			secondary = append(secondary, n)
		}
	}
	return primary, secondary
}
