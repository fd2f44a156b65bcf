package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"time"
)

// Value is a single table cell. Only Text, Number and Boolean implement it.
type Value interface {
	cellValue()
}

// Text is a string cell. The empty Text is the empty cell.
type Text string

func (Text) cellValue() {}

// Number is a numeric cell.
type Number float64

func (Number) cellValue() {}

// Boolean is a true/false cell.
type Boolean bool

func (Boolean) cellValue() {}

// IsEmpty reports whether v is absent or the empty text.
func IsEmpty(v Value) bool {
	if v == nil {
		return true
	}
	t, ok := v.(Text)
	return ok && t == ""
}

// ParseValue decodes a JSON scalar into a cell. JSON null yields a nil Value.
func ParseValue(raw json.RawMessage) (Value, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		return Text(s), nil
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return nil, err
		}
		return Boolean(b), nil
	case '{', '[':
		return nil, fmt.Errorf("cell values must be scalars, got %s", raw)
	default:
		var n float64
		if err := json.Unmarshal(raw, &n); err != nil {
			return nil, err
		}
		return Number(n), nil
	}
}

// CheckValue validates a cell against the declared column type.
func CheckValue(t ColumnType, v Value) error {
	if IsEmpty(v) {
		return nil
	}
	switch t {
	case ColumnText:
		if _, ok := v.(Text); !ok {
			return fmt.Errorf("expected text, got %T", v)
		}
	case ColumnNumber:
		if _, ok := v.(Number); !ok {
			return fmt.Errorf("expected number, got %T", v)
		}
	case ColumnBoolean:
		if _, ok := v.(Boolean); !ok {
			return fmt.Errorf("expected boolean, got %T", v)
		}
	case ColumnEmail:
		s, ok := v.(Text)
		if !ok {
			return fmt.Errorf("expected email text, got %T", v)
		}
		if err := Validate.Var(string(s), "email"); err != nil {
			return fmt.Errorf("invalid email %q", s)
		}
	case ColumnDate:
		s, ok := v.(Text)
		if !ok {
			return fmt.Errorf("expected date text, got %T", v)
		}
		if _, err := time.Parse(time.DateOnly, string(s)); err != nil {
			return fmt.Errorf("invalid date %q, want YYYY-MM-DD", s)
		}
	default:
		return fmt.Errorf("unknown column type %q", t)
	}
	return nil
}

// RowData maps column ids to cells.
type RowData map[string]Value

// UnmarshalJSON decodes a JSON object of scalars, dropping nulls.
func (d *RowData) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	out := make(RowData, len(raw))
	for k, msg := range raw {
		v, err := ParseValue(msg)
		if err != nil {
			return fmt.Errorf("cell %s: %w", k, err)
		}
		if v != nil {
			out[k] = v
		}
	}
	*d = out
	return nil
}

// Clone returns a copy of the data. Cells are immutable values.
func (d RowData) Clone() RowData {
	if d == nil {
		return nil
	}
	return maps.Clone(d)
}

// Normalized drops empty cells so that absent and empty compare equal.
func (d RowData) Normalized() RowData {
	out := make(RowData, len(d))
	for k, v := range d {
		if !IsEmpty(v) {
			out[k] = v
		}
	}
	return out
}

// Equal compares two rows of data treating absent columns as empty.
func (d RowData) Equal(other RowData) bool {
	a, b := d.Normalized(), other.Normalized()
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if w, ok := b[k]; !ok || v != w {
			return false
		}
	}
	return true
}
