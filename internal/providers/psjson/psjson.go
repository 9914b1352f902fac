// Package psjson decodes the JSON emitted by PowerShell's ConvertTo-Json.
//
// ConvertTo-Json collapses single-element arrays to a bare value, writes
// absent properties as null and, when run through Windows PowerShell 5,
// may prefix output with a UTF-8 byte order mark. The helpers here accept
// all of those shapes.
package psjson

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrEmptyResult is returned when a script produced no JSON at all.
var ErrEmptyResult = errors.New("empty result")

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Clean strips a byte order mark and surrounding whitespace.
func Clean(data []byte) []byte {
	return bytes.TrimSpace(bytes.TrimPrefix(bytes.TrimSpace(data), utf8BOM))
}

// Decode unmarshals PowerShell output into v. Blank output yields
// ErrEmptyResult.
func Decode(data []byte, v any) error {
	data = Clean(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return ErrEmptyResult
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode powershell json: %w", err)
	}
	return nil
}

// DecodeList unmarshals output that is either a JSON array or a single
// object standing in for a one-element array. Blank output is an empty list.
func DecodeList[T any](data []byte) ([]T, error) {
	data = Clean(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return []T{}, nil
	}
	if data[0] == '[' {
		var out []T
		if err := json.Unmarshal(data, &out); err != nil {
			return nil, fmt.Errorf("decode powershell json array: %w", err)
		}
		if out == nil {
			out = []T{}
		}
		return out, nil
	}
	var one T
	if err := json.Unmarshal(data, &one); err != nil {
		return nil, fmt.Errorf("decode powershell json object: %w", err)
	}
	return []T{one}, nil
}

// List is a slice field that also accepts a bare object or null.
type List[T any] []T

func (l *List[T]) UnmarshalJSON(data []byte) error {
	items, err := DecodeList[T](data)
	if err != nil {
		return err
	}
	*l = items
	return nil
}

// Strings handles PowerShell JSON that serializes single-element arrays
// as bare strings. Accepts both "value" and ["value"] in JSON.
type Strings []string

func (f *Strings) UnmarshalJSON(data []byte) error {
	// Try as array first (common case)
	var arr []string
	if err := json.Unmarshal(data, &arr); err == nil {
		*f = arr
		return nil
	}
	// Fall back to bare string
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s != "" {
			*f = []string{s}
		} else {
			*f = nil
		}
		return nil
	}
	// Accept null gracefully
	*f = nil
	return nil
}

// Int accepts a JSON number, a numeric string, or null. Valid is false when
// the property was absent or not numeric.
type Int struct {
	Value int
	Valid bool
}

func (n *Int) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*n = Int{}
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		*n = Int{}
		return nil
	}
	*n = Int{Value: int(v), Valid: true}
	return nil
}

// Ptr returns the value as *int, nil when invalid.
func (n Int) Ptr() *int {
	if !n.Valid {
		return nil
	}
	v := n.Value
	return &v
}

// Bool accepts JSON booleans, "True"/"False" strings and 0/1 numbers.
type Bool bool

func (b *Bool) UnmarshalJSON(data []byte) error {
	s := strings.ToLower(strings.Trim(string(data), `"`))
	*b = Bool(s == "true" || s == "1" || s == "yes" || s == "on")
	return nil
}

// Enum is a .NET enum serialised either as its integer value (the
// ConvertTo-Json default) or as its name (-EnumsAsStrings or ToString()).
type Enum struct {
	Name   string
	Value  int
	Number bool
	Valid  bool
}

func (e *Enum) UnmarshalJSON(data []byte) error {
	*e = Enum{}
	raw := strings.TrimSpace(string(data))
	if raw == "" || raw == "null" {
		return nil
	}
	if !strings.HasPrefix(raw, `"`) {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil
		}
		*e = Enum{Value: int(v), Number: true, Valid: true}
		return nil
	}
	s := strings.Trim(raw, `"`)
	if s == "" {
		return nil
	}
	if v, err := strconv.Atoi(s); err == nil {
		*e = Enum{Value: v, Number: true, Valid: true}
		return nil
	}
	*e = Enum{Name: s, Valid: true}
	return nil
}

// String returns the enum name, or names(Value) for numeric input.
func (e Enum) String(names func(int) string) string {
	if e.Number {
		return names(e.Value)
	}
	return e.Name
}
