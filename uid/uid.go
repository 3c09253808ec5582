// Package uid implements the 128-bit time-ordered identifiers regmint issues.
//
// A UID follows the UUIDv7 bit layout: the leading 48 bits are a unix
// millisecond timestamp, the remainder is random (with a small monotonic
// counter inside one generated batch). Identifiers therefore sort close to
// their creation order while staying globally unique and unguessable.
//
// The all-zero value is reserved: it means "no identifier assigned yet" and
// is never produced by the generator.
package uid

import (
	"bytes"
	"encoding/binary"
	"errors"
	"time"

	"github.com/google/uuid"
)

// UID is the compact binary form. It is comparable and usable as a map key.
type UID [16]byte

// Zero is the reserved empty sentinel.
var Zero UID

var ErrMalformed = errors.New("uid: malformed identifier string")

// String returns the canonical 8-4-4-4-12 text form.
func (u UID) String() string {
	return uuid.UUID(u).String()
}

func (u UID) Bytes() []byte {
	b := make([]byte, 16)
	copy(b, u[:])
	return b
}

// IsZero reports whether u is the empty sentinel.
func (u UID) IsZero() bool {
	return u == Zero
}

// Time returns the creation timestamp encoded in the leading 48 bits.
// The granularity is one millisecond, so equal times are expected.
func (u UID) Time() time.Time {
	var ms [8]byte
	copy(ms[2:], u[:6])
	return time.UnixMilli(int64(binary.BigEndian.Uint64(ms[:])))
}

func (u UID) Compare(other UID) int {
	return bytes.Compare(u[:], other[:])
}

func (u UID) Less(other UID) bool {
	return u.Compare(other) < 0
}

// ParseUID decodes the canonical text form. Only the plain 36-character
// form is accepted; URN and braced variants are rejected.
func ParseUID(s string) (UID, error) {
	if len(s) != 36 {
		return Zero, ErrMalformed
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		return Zero, ErrMalformed
	}
	return UID(parsed), nil
}

// FromBytes decodes the 16-byte binary form.
func FromBytes(b []byte) (UID, error) {
	if len(b) != 16 {
		return Zero, ErrMalformed
	}
	var u UID
	copy(u[:], b)
	return u, nil
}

// IsValidString reports whether s is a well-formed canonical identifier.
// The zero sentinel is well-formed but never a valid assigned identifier.
func IsValidString(s string) bool {
	_, err := ParseUID(s)
	return err == nil
}
