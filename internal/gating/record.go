// Package gating holds the domain model of a gating run: cell records returned
// by the analysis service, the operator's selection, request status, and the
// transformations from a gated sample to plot series and CSV text.
package gating

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Channel names a measured dimension of a cytometry event (e.g. "FSC-A").
type Channel = string

// Default axes shown before the service has reported a channel list.
const (
	DefaultX Channel = "FSC-A"
	DefaultY Channel = "SSC-A"
)

// DefaultChannels returns the channel set known before the first analysis.
func DefaultChannels() []Channel {
	return []Channel{DefaultX, DefaultY}
}

// PopulationField is the reserved record key carrying the population id.
const PopulationField = "Population_Gate"

// Field is one key/value pair of a CellRecord. Raw holds the JSON value exactly
// as the service sent it, so numbers keep their literal text.
type Field struct {
	Name string
	Raw  json.RawMessage
}

// CellRecord is a single gated event. Field order is the order the service
// emitted, which fixes the CSV column order.
type CellRecord struct {
	fields []Field
}

// NewRecord builds a record from name/value pairs. Values are encoded with
// encoding/json; float64 values that are integral keep no fractional part.
func NewRecord(pairs ...any) CellRecord {
	if len(pairs)%2 != 0 {
		panic("gating: NewRecord needs name/value pairs")
	}
	r := CellRecord{fields: make([]Field, 0, len(pairs)/2)}
	for i := 0; i < len(pairs); i += 2 {
		name, ok := pairs[i].(string)
		if !ok {
			panic(fmt.Sprintf("gating: NewRecord key %v is not a string", pairs[i]))
		}
		raw, err := json.Marshal(pairs[i+1])
		if err != nil {
			panic(fmt.Sprintf("gating: NewRecord value for %q: %v", name, err))
		}
		r.fields = append(r.fields, Field{Name: name, Raw: raw})
	}
	return r
}

// Len returns the number of fields.
func (r CellRecord) Len() int {
	return len(r.fields)
}

// Keys returns field names in record order.
func (r CellRecord) Keys() []string {
	keys := make([]string, len(r.fields))
	for i, f := range r.fields {
		keys[i] = f.Name
	}
	return keys
}

// Fields returns a copy of the record's fields.
func (r CellRecord) Fields() []Field {
	out := make([]Field, len(r.fields))
	copy(out, r.fields)
	return out
}

func (r CellRecord) raw(name string) (json.RawMessage, bool) {
	for _, f := range r.fields {
		if f.Name == name {
			return f.Raw, true
		}
	}
	return nil, false
}

// Text returns the value of name as plain text: numbers verbatim, strings
// unquoted, null as "". The bool is false when the key is absent.
func (r CellRecord) Text(name string) (string, bool) {
	raw, ok := r.raw(name)
	if !ok {
		return "", false
	}
	return rawText(raw), true
}

// Float returns the numeric value of name. It reports false when the key is
// absent, null, not a number, or not finite ("NaN", "Infinity").
func (r CellRecord) Float(name string) (float64, bool) {
	raw, ok := r.raw(name)
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseFloat(rawText(raw), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// Population returns the population id assigned by the service. It reports
// false when the field is missing or is not a non-negative integer.
func (r CellRecord) Population() (int, bool) {
	text, ok := r.Text(PopulationField)
	if !ok {
		return 0, false
	}
	return ParsePopulation(text)
}

// ParsePopulation parses a population label as written in a sample or an
// export. "2" and "2.0" are both population 2.
func ParsePopulation(text string) (int, bool) {
	v, err := strconv.ParseFloat(text, 64)
	if err != nil || v < 0 || v != math.Trunc(v) || v > math.MaxInt32 {
		return 0, false
	}
	return int(v), true
}

func rawText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	}
	return string(raw)
}

// UnmarshalJSON decodes a JSON object keeping its key order.
func (r *CellRecord) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("cell record: expected object, got %v", tok)
	}

	fields := make([]Field, 0, 4)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := tok.(string)
		if !ok {
			return fmt.Errorf("cell record: expected key, got %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("cell record: field %q: %w", name, err)
		}
		fields = append(fields, Field{Name: name, Raw: bytes.TrimSpace(raw)})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	r.fields = fields
	return nil
}

// MarshalJSON encodes the record as an object in field order.
func (r CellRecord) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range r.fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		if len(f.Raw) == 0 {
			buf.WriteString("null")
		} else {
			buf.Write(f.Raw)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Sample is the ordered set of gated events returned by one analysis.
type Sample []CellRecord
