package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"slices"
)

// scanJSON decodes a JSON column value. SQLite hands back TEXT as string while
// PostgreSQL returns []byte, so both are accepted.
func scanJSON(value any, dest any, typeName string) error {
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("failed to scan %s: expected []byte or string, got %T", typeName, value)
	}
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", typeName, err)
	}
	return nil
}

// StringSet is an ordered list of unique strings stored as a JSON array.
type StringSet []string

// Add appends s when it is not present yet and reports whether the set changed.
func (s *StringSet) Add(v string) bool {
	if slices.Contains(*s, v) {
		return false
	}
	*s = append(*s, v)
	return true
}

// Has reports whether v is a member of the set.
func (s StringSet) Has(v string) bool {
	return slices.Contains(s, v)
}

// Scan implements sql.Scanner
func (s *StringSet) Scan(value any) error {
	*s = StringSet{}
	if value == nil {
		return nil
	}
	return scanJSON(value, (*[]string)(s), "StringSet")
}

// Value implements driver.Valuer
func (s StringSet) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(s))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Int64List is a list of integer identifiers stored as a JSON array.
type Int64List []int64

// Scan implements sql.Scanner
func (l *Int64List) Scan(value any) error {
	*l = Int64List{}
	if value == nil {
		return nil
	}
	return scanJSON(value, (*[]int64)(l), "Int64List")
}

// Value implements driver.Valuer
func (l Int64List) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]int64(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Float64List is a list of numbers stored as a JSON array (bounding boxes).
type Float64List []float64

// Scan implements sql.Scanner
func (l *Float64List) Scan(value any) error {
	*l = Float64List{}
	if value == nil {
		return nil
	}
	return scanJSON(value, (*[]float64)(l), "Float64List")
}

// Value implements driver.Valuer
func (l Float64List) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]float64(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// RawJSON keeps an arbitrary JSON document (segmentation polygons, metadata)
// without interpreting it.
type RawJSON json.RawMessage

// MarshalJSON emits the stored document verbatim, or null when empty.
func (r RawJSON) MarshalJSON() ([]byte, error) {
	if len(r) == 0 {
		return []byte("null"), nil
	}
	return r, nil
}

// UnmarshalJSON stores a copy of the document.
func (r *RawJSON) UnmarshalJSON(data []byte) error {
	*r = append((*r)[:0], data...)
	return nil
}

// Scan implements sql.Scanner
func (r *RawJSON) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		*r = nil
	case []byte:
		*r = append(RawJSON(nil), v...)
	case string:
		*r = RawJSON(v)
	default:
		return fmt.Errorf("failed to scan RawJSON: expected []byte or string, got %T", value)
	}
	return nil
}

// Value implements driver.Valuer
func (r RawJSON) Value() (driver.Value, error) {
	if len(r) == 0 {
		return "null", nil
	}
	return string(r), nil
}
