package frame

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/niktheblak/esp32-sensor-api/pkg/sensor"
)

const (
	FieldHumidity    = "humidade"
	FieldTemperature = "temperatura"
	FieldSmoke       = "fumaca"
)

// SmokeScale converts the device's smoke value (tenths) into the published unit.
const SmokeScale = 10

var (
	ErrDecode       = errors.New("invalid UTF-8")
	ErrMalformed    = errors.New("malformed JSON")
	ErrMissingField = errors.New("missing field")
	ErrNotNumeric   = errors.New("field is not a number")
)

// Kind identifies the parsing stage a frame failed in.
type Kind int

const (
	KindDecode Kind = iota + 1
	KindMalformed
	KindMissingField
	KindNotNumeric
)

func (k Kind) String() string {
	switch k {
	case KindDecode:
		return "decode"
	case KindMalformed:
		return "malformed-json"
	case KindMissingField:
		return "missing-field"
	case KindNotNumeric:
		return "not-numeric"
	default:
		return "unknown"
	}
}

func (k Kind) sentinel() error {
	switch k {
	case KindDecode:
		return ErrDecode
	case KindMalformed:
		return ErrMalformed
	case KindMissingField:
		return ErrMissingField
	case KindNotNumeric:
		return ErrNotNumeric
	default:
		return nil
	}
}

// Error is returned by Parse for every rejected frame.
type Error struct {
	Kind  Kind
	Field string
	Err   error
}

func (e *Error) Error() string {
	msg := e.Kind.sentinel().Error()
	if e.Field != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Field)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() []error {
	errs := []error{e.Kind.sentinel()}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// KindOf returns the Kind of a Parse error, or 0 if err did not come from Parse.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return 0
}

// Parse decodes one line of serial output into a Reading.
func Parse(line []byte) (sensor.Reading, error) {
	if !utf8.Valid(line) {
		return sensor.Reading{}, &Error{Kind: KindDecode}
	}
	line = bytes.TrimSpace(line)
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(line, &fields); err != nil {
		return sensor.Reading{}, &Error{Kind: KindMalformed, Err: err}
	}
	// "null" unmarshals into a nil map without error
	if fields == nil {
		return sensor.Reading{}, &Error{Kind: KindMalformed, Err: errors.New("not an object")}
	}
	var (
		r   sensor.Reading
		err error
	)
	if r.Humidity, err = number(fields, FieldHumidity); err != nil {
		return sensor.Reading{}, err
	}
	if r.Temperature, err = number(fields, FieldTemperature); err != nil {
		return sensor.Reading{}, err
	}
	if r.Smoke, err = number(fields, FieldSmoke); err != nil {
		return sensor.Reading{}, err
	}
	r.Smoke /= SmokeScale
	return r, nil
}

func number(fields map[string]json.RawMessage, name string) (float64, error) {
	raw, ok := fields[name]
	if !ok {
		return 0, &Error{Kind: KindMissingField, Field: name}
	}
	// strings, booleans and null would otherwise be accepted or silently zeroed
	if len(raw) == 0 || (raw[0] != '-' && (raw[0] < '0' || raw[0] > '9')) {
		return 0, &Error{Kind: KindNotNumeric, Field: name}
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, &Error{Kind: KindNotNumeric, Field: name, Err: err}
	}
	return v, nil
}
