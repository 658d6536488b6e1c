// Package sanitize turns client JSON bodies into typed, allow-listed inputs.
//
// A body is decoded into a Payload and each entity parser reads only the keys
// it knows about, so fields such as id, ownerId or createdAt never reach the
// store no matter what the client sends.
package sanitize

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/LovationAdmin/finance-api/apperr"
)

var validate = validator.New()

// Optional carries a field that may be absent, explicitly null, or set.
type Optional[T any] struct {
	Set   bool
	Value *T
}

func some[T any](v T) Optional[T] { return Optional[T]{Set: true, Value: &v} }

// Payload is a decoded JSON object, one raw value per key.
type Payload map[string]json.RawMessage

// Decode parses a request body. Only JSON objects are accepted.
func Decode(body []byte) (Payload, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return Payload{}, nil
	}

	var p Payload
	if err := json.Unmarshal(body, &p); err != nil || p == nil {
		return nil, apperr.Validation("body", "request body must be a JSON object")
	}
	return p, nil
}

func (p Payload) raw(field string) (json.RawMessage, bool) {
	v, ok := p[field]
	if !ok {
		return nil, false
	}
	return v, true
}

func isNull(v json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(v), []byte("null"))
}

// String reads a string field. Empty and whitespace-only strings read as null.
func (p Payload) String(field string) (Optional[string], error) {
	v, ok := p.raw(field)
	if !ok {
		return Optional[string]{}, nil
	}
	if isNull(v) {
		return Optional[string]{Set: true}, nil
	}

	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return Optional[string]{}, apperr.Validation(field, fmt.Sprintf("invalid string field %s", field))
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return Optional[string]{Set: true}, nil
	}
	return some(s), nil
}

// Decimal reads a number given either as a JSON number or a numeric string.
// Non-finite and unparsable values are rejected.
func (p Payload) Decimal(field string) (Optional[decimal.Decimal], error) {
	v, ok := p.raw(field)
	if !ok {
		return Optional[decimal.Decimal]{}, nil
	}
	if isNull(v) {
		return Optional[decimal.Decimal]{Set: true}, nil
	}

	invalid := apperr.Validation(field, fmt.Sprintf("invalid number field %s", field))

	var text string
	if err := json.Unmarshal(v, &text); err == nil {
		text = strings.TrimSpace(text)
		if text == "" {
			return Optional[decimal.Decimal]{Set: true}, nil
		}
	} else {
		var n json.Number
		dec := json.NewDecoder(bytes.NewReader(v))
		dec.UseNumber()
		if err := dec.Decode(&n); err != nil {
			return Optional[decimal.Decimal]{}, invalid
		}
		text = n.String()
	}

	// decimal rejects NaN and Inf; ParseFloat also rejects out-of-range exponents.
	d, err := decimal.NewFromString(text)
	if err != nil {
		return Optional[decimal.Decimal]{}, invalid
	}
	if _, err := strconv.ParseFloat(text, 64); err != nil {
		return Optional[decimal.Decimal]{}, invalid
	}
	return some(d), nil
}

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseDate accepts RFC 3339 timestamps and plain calendar dates.
func ParseDate(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// Date reads a date field. An empty string reads as null.
func (p Payload) Date(field string) (Optional[time.Time], error) {
	v, ok := p.raw(field)
	if !ok {
		return Optional[time.Time]{}, nil
	}
	if isNull(v) {
		return Optional[time.Time]{Set: true}, nil
	}

	invalid := apperr.Validation(field, fmt.Sprintf("invalid date field %s", field))

	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return Optional[time.Time]{}, invalid
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return Optional[time.Time]{Set: true}, nil
	}

	t, ok := ParseDate(s)
	if !ok {
		return Optional[time.Time]{}, invalid
	}
	return some(t), nil
}

// Bool reads a boolean given as a JSON bool or as "true"/"false".
func (p Payload) Bool(field string) (Optional[bool], error) {
	v, ok := p.raw(field)
	if !ok {
		return Optional[bool]{}, nil
	}
	if isNull(v) {
		return Optional[bool]{Set: true}, nil
	}

	var b bool
	if err := json.Unmarshal(v, &b); err == nil {
		return some(b), nil
	}

	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		if parsed, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return some(parsed), nil
		}
	}
	return Optional[bool]{}, apperr.Validation(field, fmt.Sprintf("invalid boolean field %s", field))
}

// Int reads a whole number given as a JSON number or a numeric string.
func (p Payload) Int(field string) (Optional[int], error) {
	d, err := p.Decimal(field)
	if err != nil || d.Value == nil {
		return Optional[int]{Set: d.Set}, err
	}
	if !d.Value.IsInteger() {
		return Optional[int]{}, apperr.Validation(field, fmt.Sprintf("invalid integer field %s", field))
	}
	return some(int(d.Value.IntPart())), nil
}

func required[T any](field string, o Optional[T]) (T, error) {
	if o.Value == nil {
		var zero T
		return zero, apperr.Validation(field, field+" is required")
	}
	return *o.Value, nil
}

func checkVar(field string, value any, tag string) error {
	if err := validate.Var(value, tag); err != nil {
		return apperr.Validation(field, fmt.Sprintf("invalid %s", field))
	}
	return nil
}
