// Package catalog holds the static NPSB field catalog: the closed table of
// field numbers 2-128 mapping to their wire format, data encoding, maximum
// length, and data class. The catalog is the contract between switch
// endpoints and is never mutated at runtime.
package catalog

import (
	"errors"
	"fmt"
)

// Format names a field's length-prefixing scheme on the wire.
type Format int

// Recognized field formats.
const (
	// Fixed fields carry no length prefix; their encoded length is always
	// MaxLength (digits, characters, or bytes depending on Class).
	Fixed Format = iota
	// LLVAR fields are prefixed with a 2-digit length indicator.
	LLVAR
	// LLLVAR fields are prefixed with a 3-digit length indicator.
	LLLVAR
)

// String implements fmt.Stringer for diagnostic output.
func (f Format) String() string {
	switch f {
	case Fixed:
		return "FIXED"
	case LLVAR:
		return "LLVAR"
	case LLLVAR:
		return "LLLVAR"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}

// Encoding names how a field's data bytes are laid out on the wire.
type Encoding int

// Recognized data encodings.
const (
	// ASCII encodes each character as one byte.
	ASCII Encoding = iota
	// BCD packs two decimal digits per byte.
	BCD
	// Binary carries opaque bytes, copied without interpretation.
	Binary
)

// String implements fmt.Stringer for diagnostic output.
func (e Encoding) String() string {
	switch e {
	case ASCII:
		return "ascii"
	case BCD:
		return "bcd"
	case Binary:
		return "binary"
	default:
		return fmt.Sprintf("Encoding(%d)", int(e))
	}
}

// Class names a field's data class, which governs padding direction and
// pad character in the field codec.
type Class int

// Recognized data classes.
const (
	// N is numeric: digits only, zero-padded on the left.
	N Class = iota
	// AN is alphanumeric: space-padded on the right.
	AN
	// ANS is alphanumeric plus symbols: space-padded on the right.
	ANS
	// B is binary: no padding, exact length required.
	B
)

// String implements fmt.Stringer for diagnostic output.
func (c Class) String() string {
	switch c {
	case N:
		return "N"
	case AN:
		return "AN"
	case ANS:
		return "ANS"
	case B:
		return "B"
	default:
		return fmt.Sprintf("Class(%d)", int(c))
	}
}

// FieldDefinition is the immutable, per-field-number catalog entry.
type FieldDefinition struct {
	Number    int
	Name      string
	Format    Format
	Encoding  Encoding
	MaxLength int
	Class     Class
}

// ErrUnknownField indicates a field number has no catalog entry.
var ErrUnknownField = errors.New("catalog: unknown field number")

// table is the closed set of field definitions, keyed by field number.
// Field 1 is reserved for the secondary-bitmap indicator and is
// deliberately absent: it is never a valid Message field key.
var table = buildTable()

func buildTable() map[int]FieldDefinition {
	defs := []FieldDefinition{
		{2, "Primary Account Number", LLVAR, BCD, 19, N},
		{3, "Processing Code", Fixed, BCD, 6, N},
		{4, "Transaction Amount", Fixed, BCD, 12, N},
		{5, "Settlement Amount", Fixed, BCD, 12, N},
		{6, "Billing Amount", Fixed, BCD, 12, N},
		{7, "Transmission Date/Time", Fixed, BCD, 10, N},
		{10, "Conversion Rate", Fixed, BCD, 8, N},
		{11, "System Trace Audit Number", Fixed, BCD, 6, N},
		{12, "Local Time", Fixed, BCD, 6, N},
		{13, "Local Date", Fixed, BCD, 4, N},
		{18, "Merchant Type", Fixed, BCD, 4, N},
		{19, "Acquirer Country", Fixed, BCD, 3, N},
		{22, "POS Entry Mode", Fixed, BCD, 3, N},
		{25, "POS Condition", Fixed, BCD, 2, N},
		{32, "Acquirer ID", LLVAR, BCD, 11, N},
		{35, "Track 2", LLVAR, ASCII, 37, AN},
		{37, "Retrieval Reference Number", Fixed, ASCII, 12, AN},
		{38, "Authorization ID", Fixed, ASCII, 6, AN},
		{39, "Response Code", Fixed, ASCII, 2, AN},
		{41, "Terminal ID", Fixed, ASCII, 8, ANS},
		{42, "Card Acceptor ID", Fixed, ASCII, 15, ANS},
		{43, "Card Acceptor Name/Location", Fixed, ASCII, 40, ANS},
		{46, "NPSB Proprietary", LLLVAR, ASCII, 999, ANS},
		{47, "NPSB Proprietary", LLLVAR, ASCII, 999, ANS},
		{48, "NPSB Proprietary", LLLVAR, ASCII, 999, ANS},
		{49, "Currency", Fixed, BCD, 3, N},
		{50, "Settlement Currency", Fixed, ASCII, 3, AN},
		{51, "Billing Currency", Fixed, ASCII, 3, AN},
		{52, "PIN", Fixed, Binary, 16, B},
		{53, "Security Control", Fixed, Binary, 16, B},
		{54, "Additional Amounts", LLLVAR, ASCII, 120, ANS},
		{70, "Network Mgmt Info", Fixed, BCD, 3, N},
		{103, "Account ID-2", LLVAR, ASCII, 104, ANS},
		{112, "Additional Info", LLLVAR, ASCII, 999, AN},
		{125, "NPSB Proprietary", LLLVAR, ASCII, 999, ANS},
		{128, "MAC", Fixed, Binary, 16, B},
	}

	m := make(map[int]FieldDefinition, len(defs))
	for _, d := range defs {
		m[d.Number] = d
	}
	return m
}

// Lookup returns the FieldDefinition for a field number, or ErrUnknownField
// if the number is not part of the catalog (including field 1, which is
// never a valid data field).
func Lookup(number int) (FieldDefinition, error) {
	def, ok := table[number]
	if !ok {
		return FieldDefinition{}, fmt.Errorf("%w: %d", ErrUnknownField, number)
	}
	return def, nil
}

// MustLookup is Lookup without an error return, for call sites that have
// already validated the field number (e.g. iterating a parsed bitmap whose
// bits were set by this same catalog). It panics on an unknown field,
// signaling a programming error rather than a wire error.
func MustLookup(number int) FieldDefinition {
	def, err := Lookup(number)
	if err != nil {
		panic(err)
	}
	return def
}
