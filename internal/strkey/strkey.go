// Package strkey encodes raw ledger keys into version-tagged, checksummed
// base32 strings and back.
package strkey

import (
	"bytes"
	"encoding/base32"
	"encoding/binary"

	"github.com/pkg/errors"
)

// VersionByte selects the address space of an encoded key.
type VersionByte byte

const (
	VersionByteBalanceID VersionByte = 1 << 3  // B...
	VersionByteAccountID VersionByte = 6 << 3  // G...
	VersionByteSeed      VersionByte = 18 << 3 // S...
)

// RawKeyLength length of an ed25519 public key or seed.
const RawKeyLength = 32

var (
	ErrInvalidVersionByte = errors.New("invalid version byte")
	ErrInvalidChecksum    = errors.New("invalid checksum")
	ErrInvalidEncoding    = errors.New("invalid strkey encoding")
)

var encoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// String returns the address space name.
func (v VersionByte) String() string {
	switch v {
	case VersionByteBalanceID:
		return "balance id"
	case VersionByteAccountID:
		return "account id"
	case VersionByteSeed:
		return "seed"
	default:
		return "unknown"
	}
}

func (v VersionByte) valid() bool {
	switch v {
	case VersionByteBalanceID, VersionByteAccountID, VersionByteSeed:
		return true
	}
	return false
}

// Encode encodes src under the given version: base32(version || src || crc16(version || src)).
func Encode(version VersionByte, src []byte) (string, error) {
	if !version.valid() {
		return "", errors.Wrapf(ErrInvalidVersionByte, "%d", version)
	}

	raw := make([]byte, 0, 1+len(src)+2)
	raw = append(raw, byte(version))
	raw = append(raw, src...)
	raw = binary.LittleEndian.AppendUint16(raw, checksum(raw))

	return encoding.EncodeToString(raw), nil
}

// MustEncode is Encode that panics on an invalid version.
func MustEncode(version VersionByte, src []byte) string {
	s, err := Encode(version, src)
	if err != nil {
		panic(err)
	}
	return s
}

// Decode decodes src and checks that it belongs to the expected address space.
func Decode(expected VersionByte, src string) ([]byte, error) {
	version, payload, err := decode(src)
	if err != nil {
		return nil, err
	}
	if version != expected {
		return nil, errors.Wrapf(ErrInvalidVersionByte, "expected %s, got %s", expected, version)
	}
	return payload, nil
}

// Decode32 decodes a 32 byte key.
func Decode32(expected VersionByte, src string) ([RawKeyLength]byte, error) {
	var out [RawKeyLength]byte
	payload, err := Decode(expected, src)
	if err != nil {
		return out, err
	}
	if len(payload) != RawKeyLength {
		return out, errors.Wrapf(ErrInvalidEncoding, "expected %d byte key, got %d", RawKeyLength, len(payload))
	}
	copy(out[:], payload)
	return out, nil
}

// Version returns the version byte of an encoded key.
func Version(src string) (VersionByte, error) {
	version, _, err := decode(src)
	return version, err
}

// IsValid reports whether src is a well-formed key of the given version.
func IsValid(expected VersionByte, src string) bool {
	_, err := Decode(expected, src)
	return err == nil
}

func decode(src string) (VersionByte, []byte, error) {
	raw, err := encoding.DecodeString(src)
	if err != nil {
		return 0, nil, errors.Wrap(ErrInvalidEncoding, err.Error())
	}
	// must round trip, rejects non-canonical trailing bits
	if encoding.EncodeToString(raw) != src {
		return 0, nil, errors.Wrap(ErrInvalidEncoding, "non-canonical encoding")
	}
	if len(raw) < 3 {
		return 0, nil, errors.Wrap(ErrInvalidEncoding, "too short")
	}

	version := VersionByte(raw[0])
	if !version.valid() {
		return 0, nil, errors.Wrapf(ErrInvalidVersionByte, "%d", raw[0])
	}

	body := raw[:len(raw)-2]
	expected := raw[len(raw)-2:]
	var actual [2]byte
	binary.LittleEndian.PutUint16(actual[:], checksum(body))
	if !bytes.Equal(expected, actual[:]) {
		return 0, nil, ErrInvalidChecksum
	}

	return version, body[1:], nil
}

// checksum CRC-16/XMODEM (poly 0x1021, init 0).
func checksum(data []byte) uint16 {
	var crc uint16
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
