package utils

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/x/bsonx/bsoncore"
)

// SixIDHookFunc defines the signature for the NewSixID test hook.
// It returns a SixID and a boolean indicating whether to override the default generation.
type SixIDHookFunc func() (id SixID, override bool)

// NewSixIDHook is a package-level variable that tests can set to override NewSixID behavior.
var NewSixIDHook SixIDHookFunc

// sixIDSubtype is the user-defined BSON binary subtype SixIDs are stored under.
const sixIDSubtype byte = 0x80

// SixID is a 6-byte document identifier rendered as 10 Crockford Base32 characters.
type SixID [6]byte

var ErrInvalidSixID = errors.New("invalid SixID")

// NewSixID creates a new random SixID.
func NewSixID() SixID {
	if NewSixIDHook != nil {
		if id, override := NewSixIDHook(); override {
			return id
		}
	}

	var id SixID
	if _, err := rand.Read(id[:]); err != nil {
		return SixID{}
	}
	return id
}

// Crockford Base32 encoding alphabet (uppercase)
const crockfordAlphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

var crockfordDecodeMap = func() map[byte]byte {
	m := make(map[byte]byte, 40)
	for i := 0; i < len(crockfordAlphabet); i++ {
		c := crockfordAlphabet[i]
		m[c] = byte(i)
		if c >= 'A' && c <= 'Z' {
			m[c+('a'-'A')] = byte(i)
		}
	}
	m['O'], m['o'] = m['0'], m['0']
	m['I'], m['i'] = m['1'], m['1']
	m['L'], m['l'] = m['1'], m['1']
	return m
}()

// IsZero reports whether the id is unset. The BSON encoder uses it for omitempty.
func (u SixID) IsZero() bool {
	return u == SixID{}
}

// String returns the 10 character Crockford Base32 form.
func (u SixID) String() string {
	result := make([]byte, 0, 10)
	var bits, offset uint
	for i := 0; i < len(u); i++ {
		bits |= uint(u[i]) << offset
		offset += 8
		for offset >= 5 {
			result = append(result, crockfordAlphabet[bits&0x1F])
			bits >>= 5
			offset -= 5
		}
	}
	if offset > 0 {
		result = append(result, crockfordAlphabet[bits&0x1F])
	}
	return string(result)
}

// ParseSixID parses the Crockford Base32 form. Hyphens and spaces are ignored
// and lowercase or commonly confused characters are accepted.
func ParseSixID(s string) (SixID, error) {
	s = strings.NewReplacer("-", "", " ", "").Replace(s)
	if len(s) != 10 {
		return SixID{}, fmt.Errorf("%w: %q must be 10 characters", ErrInvalidSixID, s)
	}

	var id SixID
	var bits uint64
	var offset uint
	n := 0
	for i := 0; i < len(s); i++ {
		val, ok := crockfordDecodeMap[s[i]]
		if !ok {
			return SixID{}, fmt.Errorf("%w: bad character %q", ErrInvalidSixID, s[i])
		}
		bits |= uint64(val) << offset
		offset += 5
		for offset >= 8 && n < len(id) {
			id[n] = byte(bits & 0xFF)
			n++
			bits >>= 8
			offset -= 8
		}
	}
	if n != len(id) || bits != 0 {
		return SixID{}, fmt.Errorf("%w: %q is not canonical", ErrInvalidSixID, s)
	}
	return id, nil
}

// MarshalBSONValue stores the id as binary with subtype 0x80.
func (u SixID) MarshalBSONValue() (bsontype.Type, []byte, error) {
	return bsontype.Binary, bsoncore.AppendBinary(nil, sixIDSubtype, u[:]), nil
}

// UnmarshalBSONValue reads the binary form written by MarshalBSONValue.
func (u *SixID) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	switch t {
	case bsontype.Null, bsontype.Undefined:
		*u = SixID{}
		return nil
	case bsontype.Binary:
		subtype, bin, _, ok := bsoncore.ReadBinary(data)
		if !ok || subtype != sixIDSubtype || len(bin) != len(u) {
			return fmt.Errorf("%w: unexpected binary subtype or length", ErrInvalidSixID)
		}
		copy(u[:], bin)
		return nil
	default:
		return fmt.Errorf("%w: cannot decode BSON %s", ErrInvalidSixID, t)
	}
}

// MarshalJSON marshals the SixID as a JSON string in Crockford Base32 format.
func (u SixID) MarshalJSON() ([]byte, error) {
	return json.Marshal(u.String())
}

// UnmarshalJSON unmarshals a SixID from a JSON string in Crockford Base32 format.
func (u *SixID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*u = SixID{}
		return nil
	}
	parsed, err := ParseSixID(s)
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}
