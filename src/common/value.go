package common

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"

	"github.com/ugorji/go/codec"
)

// Value is a payload supplied by a client, held in its canonical JSON form.
// Two payloads that have the same canonical encoding are the same Value, so a
// Value can be used directly as a map key.
type Value string

var canonicalHandle = newCanonicalHandle()

func newCanonicalHandle() *codec.JsonHandle {
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	jh.MapType = reflect.TypeOf(map[string]interface{}(nil))
	jh.SignedInteger = true
	return jh
}

// NewValue parses a JSON document and returns its canonical Value. Object keys
// are sorted and whitespace is removed.
func NewValue(data []byte) (Value, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("empty value")
	}

	var v interface{}
	if err := codec.NewDecoderBytes(data, canonicalHandle).Decode(&v); err != nil {
		return "", fmt.Errorf("decoding value: %v", err)
	}

	var out []byte
	if err := codec.NewEncoderBytes(&out, canonicalHandle).Encode(v); err != nil {
		return "", fmt.Errorf("encoding value: %v", err)
	}

	return Value(out), nil
}

// MustValue is like NewValue but panics on malformed input. Handy in tests.
func MustValue(data string) Value {
	v, err := NewValue([]byte(data))
	if err != nil {
		panic(err)
	}
	return v
}

// IntValue returns the Value of an integer payload.
func IntValue(i int) Value {
	return Value(strconv.Itoa(i))
}

// MarshalJSON writes the canonical encoding as-is.
func (v Value) MarshalJSON() ([]byte, error) {
	if v == "" {
		return []byte("null"), nil
	}
	return []byte(v), nil
}

// UnmarshalJSON canonicalises the incoming payload.
func (v *Value) UnmarshalJSON(data []byte) error {
	val, err := NewValue(data)
	if err != nil {
		return err
	}
	*v = val
	return nil
}

func (v Value) String() string {
	return string(v)
}

// SortValues orders values by length, then lexically. Non-negative integers
// therefore come out in numeric order.
func SortValues(values []Value) {
	sort.Slice(values, func(i, j int) bool {
		if len(values[i]) != len(values[j]) {
			return len(values[i]) < len(values[j])
		}
		return values[i] < values[j]
	})
}
