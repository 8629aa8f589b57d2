// Package field encodes and decodes a single ISO 8583 field value given its
// catalog.FieldDefinition: fixed-length padding/truncation, LLVAR/LLLVAR
// length prefixes, and the BCD/ASCII/binary data encodings.
package field

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/npsb/npswitch/internal/bcd"
	"github.com/npsb/npswitch/internal/catalog"
)

// Sentinel errors for field codec failures.
var (
	// ErrNonNumeric indicates a numeric-class field value contains a
	// non-digit character.
	ErrNonNumeric = errors.New("field: non-numeric value in numeric field")

	// ErrLengthOverflow indicates a value's natural length exceeds the
	// field definition's MaxLength.
	ErrLengthOverflow = errors.New("field: value exceeds maximum length")

	// ErrTruncatedBuffer indicates fewer bytes remain than the field needs.
	ErrTruncatedBuffer = errors.New("field: truncated buffer")

	// ErrUnparsableLength indicates a variable-field length prefix could
	// not be parsed as a number.
	ErrUnparsableLength = errors.New("field: unparsable length prefix")

	// ErrWrongBinaryLength indicates a binary field value does not match
	// its declared exact byte length.
	ErrWrongBinaryLength = errors.New("field: binary value has wrong length")
)

// EncoderMode selects the process-wide numeric encoding used for
// LLVAR/LLLVAR length prefixes. A field's own data bytes always use its
// catalog Encoding; only the length prefix is governed by this mode.
type EncoderMode struct {
	LengthEncoding catalog.Encoding
}

// DefaultEncoderMode is the switch's default: BCD length prefixes, with
// each field's data encoded per its own catalog entry.
func DefaultEncoderMode() EncoderMode {
	return EncoderMode{LengthEncoding: catalog.BCD}
}

// Encode renders value (a digit string for N, a character string for
// AN/ANS, raw bytes for B) as wire bytes for def, including any LLVAR/LLLVAR
// length prefix.
func Encode(def catalog.FieldDefinition, value []byte, mode EncoderMode) ([]byte, error) {
	if def.Format == catalog.Fixed {
		return encodeFixed(def, value)
	}
	return encodeVariable(def, value, mode)
}

// Decode reads one field's wire bytes from the front of data, returning the
// decoded value and the number of bytes consumed. Decoded AN/ANS values keep
// their space padding intact: trimming, if wanted, is the dispatcher's job.
func Decode(def catalog.FieldDefinition, data []byte, mode EncoderMode) (value []byte, consumed int, err error) {
	if def.Format == catalog.Fixed {
		return decodeFixed(def, data)
	}
	return decodeVariable(def, data, mode)
}

// -------------------------------------------------------------------------
// Fixed fields
// -------------------------------------------------------------------------

func encodeFixed(def catalog.FieldDefinition, value []byte) ([]byte, error) {
	switch def.Class {
	case catalog.N:
		digits, err := padOrTruncateNumeric(string(value), def.MaxLength)
		if err != nil {
			return nil, err
		}
		if def.Encoding == catalog.BCD {
			return bcd.Encode(digits)
		}
		return []byte(digits), nil
	case catalog.AN, catalog.ANS:
		return []byte(padOrTruncateText(string(value), def.MaxLength)), nil
	case catalog.B:
		if len(value) != def.MaxLength {
			return nil, fmt.Errorf("%w: field %d wants %d bytes, got %d",
				ErrWrongBinaryLength, def.Number, def.MaxLength, len(value))
		}
		out := make([]byte, len(value))
		copy(out, value)
		return out, nil
	default:
		return nil, fmt.Errorf("field %d: unsupported class %v", def.Number, def.Class)
	}
}

func decodeFixed(def catalog.FieldDefinition, data []byte) ([]byte, int, error) {
	switch def.Class {
	case catalog.N:
		if def.Encoding == catalog.BCD {
			n := (def.MaxLength + 1) / 2
			if len(data) < n {
				return nil, 0, fmt.Errorf("%w: field %d", ErrTruncatedBuffer, def.Number)
			}
			digits, err := bcd.Decode(data[:n], def.MaxLength)
			if err != nil {
				return nil, 0, fmt.Errorf("field %d: %w", def.Number, err)
			}
			return []byte(digits), n, nil
		}
		if len(data) < def.MaxLength {
			return nil, 0, fmt.Errorf("%w: field %d", ErrTruncatedBuffer, def.Number)
		}
		v := data[:def.MaxLength]
		if err := validateNumeric(v); err != nil {
			return nil, 0, fmt.Errorf("field %d: %w", def.Number, err)
		}
		out := make([]byte, def.MaxLength)
		copy(out, v)
		return out, def.MaxLength, nil
	case catalog.AN, catalog.ANS:
		if len(data) < def.MaxLength {
			return nil, 0, fmt.Errorf("%w: field %d", ErrTruncatedBuffer, def.Number)
		}
		out := make([]byte, def.MaxLength)
		copy(out, data[:def.MaxLength])
		return out, def.MaxLength, nil
	case catalog.B:
		if len(data) < def.MaxLength {
			return nil, 0, fmt.Errorf("%w: field %d", ErrTruncatedBuffer, def.Number)
		}
		out := make([]byte, def.MaxLength)
		copy(out, data[:def.MaxLength])
		return out, def.MaxLength, nil
	default:
		return nil, 0, fmt.Errorf("field %d: unsupported class %v", def.Number, def.Class)
	}
}

// padOrTruncateNumeric left-pads digits with '0' to exactly length digits,
// or truncates from the left (keeping the low-order digits) if longer.
func padOrTruncateNumeric(digits string, length int) (string, error) {
	if err := validateNumeric([]byte(digits)); err != nil {
		return "", err
	}
	if len(digits) > length {
		return digits[len(digits)-length:], nil
	}
	for len(digits) < length {
		digits = "0" + digits
	}
	return digits, nil
}

// padOrTruncateText right-pads s with spaces to exactly length characters,
// or truncates from the right if longer.
func padOrTruncateText(s string, length int) string {
	if len(s) > length {
		return s[:length]
	}
	for len(s) < length {
		s += " "
	}
	return s
}

func validateNumeric(v []byte) error {
	for _, c := range v {
		if c < '0' || c > '9' {
			return fmt.Errorf("%w: %q", ErrNonNumeric, v)
		}
	}
	return nil
}

// -------------------------------------------------------------------------
// Variable fields (LLVAR / LLLVAR)
// -------------------------------------------------------------------------

func lengthPrefixDigits(def catalog.FieldDefinition) int {
	if def.Format == catalog.LLLVAR {
		return 3
	}
	return 2
}

func encodeVariable(def catalog.FieldDefinition, value []byte, mode EncoderMode) ([]byte, error) {
	natural := len(value)
	if def.Class == catalog.N {
		if err := validateNumeric(value); err != nil {
			return nil, fmt.Errorf("field %d: %w", def.Number, err)
		}
	}
	if natural > def.MaxLength {
		return nil, fmt.Errorf("%w: field %d has %d, max %d",
			ErrLengthOverflow, def.Number, natural, def.MaxLength)
	}

	prefixDigits := lengthPrefixDigits(def)
	lenStr := fmt.Sprintf("%0*d", prefixDigits, natural)

	var prefix []byte
	if mode.LengthEncoding == catalog.BCD {
		packed, err := bcd.Encode(lenStr)
		if err != nil {
			return nil, fmt.Errorf("field %d: encode length prefix: %w", def.Number, err)
		}
		prefix = packed
	} else {
		prefix = []byte(lenStr)
	}

	var data []byte
	if def.Class == catalog.N && def.Encoding == catalog.BCD {
		packed, err := bcd.Encode(string(value))
		if err != nil {
			return nil, fmt.Errorf("field %d: %w", def.Number, err)
		}
		data = packed
	} else {
		data = make([]byte, len(value))
		copy(data, value)
	}

	out := make([]byte, 0, len(prefix)+len(data))
	out = append(out, prefix...)
	out = append(out, data...)
	return out, nil
}

func decodeVariable(def catalog.FieldDefinition, data []byte, mode EncoderMode) ([]byte, int, error) {
	prefixDigits := lengthPrefixDigits(def)

	natural, prefixLen, err := decodeLengthPrefix(def, data, prefixDigits, mode)
	if err != nil {
		return nil, 0, err
	}
	if natural > def.MaxLength {
		return nil, 0, fmt.Errorf("%w: field %d has %d, max %d",
			ErrLengthOverflow, def.Number, natural, def.MaxLength)
	}

	rest := data[prefixLen:]

	if def.Class == catalog.N && def.Encoding == catalog.BCD {
		n := (natural + 1) / 2
		if len(rest) < n {
			return nil, 0, fmt.Errorf("%w: field %d", ErrTruncatedBuffer, def.Number)
		}
		digits, err := bcd.Decode(rest[:n], natural)
		if err != nil {
			return nil, 0, fmt.Errorf("field %d: %w", def.Number, err)
		}
		return []byte(digits), prefixLen + n, nil
	}

	if len(rest) < natural {
		return nil, 0, fmt.Errorf("%w: field %d", ErrTruncatedBuffer, def.Number)
	}
	v := rest[:natural]
	if def.Class == catalog.N {
		if err := validateNumeric(v); err != nil {
			return nil, 0, fmt.Errorf("field %d: %w", def.Number, err)
		}
	}
	out := make([]byte, natural)
	copy(out, v)
	return out, prefixLen + natural, nil
}

// decodeLengthPrefix reads the LLVAR/LLLVAR length indicator and returns
// the natural field length plus the number of prefix bytes consumed.
func decodeLengthPrefix(def catalog.FieldDefinition, data []byte, prefixDigits int, mode EncoderMode) (int, int, error) {
	if mode.LengthEncoding == catalog.BCD {
		n := (prefixDigits + 1) / 2
		if len(data) < n {
			return 0, 0, fmt.Errorf("%w: field %d", ErrTruncatedBuffer, def.Number)
		}
		digits, err := bcd.Decode(data[:n], prefixDigits)
		if err != nil {
			return 0, 0, fmt.Errorf("field %d: length prefix: %w", def.Number, err)
		}
		val, convErr := strconv.Atoi(digits)
		if convErr != nil {
			return 0, 0, fmt.Errorf("%w: field %d: %q", ErrUnparsableLength, def.Number, digits)
		}
		return val, n, nil
	}

	if len(data) < prefixDigits {
		return 0, 0, fmt.Errorf("%w: field %d", ErrTruncatedBuffer, def.Number)
	}
	val, convErr := strconv.Atoi(string(data[:prefixDigits]))
	if convErr != nil {
		return 0, 0, fmt.Errorf("%w: field %d: %q", ErrUnparsableLength, def.Number, data[:prefixDigits])
	}
	return val, prefixDigits, nil
}
