package bytes

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"
)

// HexBytes is a wrapper around []byte that encodes data as hexadecimal
// strings for use in JSON and log output. Block hashes are HexBytes
// throughout the codebase.
type HexBytes []byte

// MarshalText encodes a HexBytes value as hexadecimal digits.
// This method is used by json.Marshal.
func (bz HexBytes) MarshalText() ([]byte, error) {
	enc := hex.EncodeToString([]byte(bz))
	return []byte(strings.ToUpper(enc)), nil
}

// UnmarshalText handles decoding of HexBytes from JSON strings.
// This method is used by json.Unmarshal.
func (bz *HexBytes) UnmarshalText(data []byte) error {
	input := string(data)
	if input == "" || input == "null" {
		return nil
	}
	dec, err := hex.DecodeString(input)
	if err != nil {
		return err
	}
	*bz = dec
	return nil
}

// Equal reports whether bz and other hold the same bytes.
func (bz HexBytes) Equal(other HexBytes) bool {
	return bytes.Equal(bz, other)
}

// Copy returns an independent copy of bz.
func (bz HexBytes) Copy() HexBytes {
	cp := make(HexBytes, len(bz))
	copy(cp, bz)
	return cp
}

// Bytes returns the underlying slice.
func (bz HexBytes) Bytes() []byte {
	return bz
}

// ShortString returns the first three bytes in hex, for compact logging.
func (bz HexBytes) ShortString() string {
	if len(bz) < 3 {
		return strings.ToUpper(hex.EncodeToString(bz))
	}
	return strings.ToUpper(hex.EncodeToString(bz[:3]))
}

func (bz HexBytes) String() string {
	return strings.ToUpper(hex.EncodeToString(bz))
}

// Format writes either the address of the 0th element in base 16 notation
// (%p), or casts HexBytes to bytes and writes it as a hexadecimal string.
func (bz HexBytes) Format(s fmt.State, verb rune) {
	switch verb {
	case 'p':
		s.Write([]byte(fmt.Sprintf("%p", bz)))
	default:
		s.Write([]byte(fmt.Sprintf("%X", []byte(bz))))
	}
}
