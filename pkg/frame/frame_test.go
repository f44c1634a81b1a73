package frame

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/niktheblak/esp32-sensor-api/pkg/sensor"
)

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		line string
		want sensor.Reading
	}{
		{"integers", `{"humidade": 55, "temperatura": 23.5, "fumaca": 120}`, sensor.Reading{Humidity: 55, Temperature: 23.5, Smoke: 12}},
		{"zero smoke", `{"humidade": 10, "temperatura": 20, "fumaca": 0}`, sensor.Reading{Humidity: 10, Temperature: 20}},
		{"field order", `{"fumaca": 5, "temperatura": -3.25, "humidade": 80.5}`, sensor.Reading{Humidity: 80.5, Temperature: -3.25, Smoke: 0.5}},
		{"surrounding whitespace", "  {\"humidade\":1,\"temperatura\":2,\"fumaca\":30}\r\n", sensor.Reading{Humidity: 1, Temperature: 2, Smoke: 3}},
		{"extra fields", `{"humidade":1,"temperatura":2,"fumaca":30,"rssi":-60}`, sensor.Reading{Humidity: 1, Temperature: 2, Smoke: 3}},
		{"exponent", `{"humidade":1e1,"temperatura":2,"fumaca":1.5e2}`, sensor.Reading{Humidity: 10, Temperature: 2, Smoke: 15}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r, err := Parse([]byte(tt.line))
			require.NoError(t, err)
			assert.InDelta(t, tt.want.Humidity, r.Humidity, 1e-9)
			assert.InDelta(t, tt.want.Temperature, r.Temperature, 1e-9)
			assert.InDelta(t, tt.want.Smoke, r.Smoke, 1e-9)
		})
	}
}

func TestParseErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		line     []byte
		kind     Kind
		sentinel error
		field    string
	}{
		{"invalid utf8", []byte{'{', 0xff, 0xfe, '}'}, KindDecode, ErrDecode, ""},
		{"empty", []byte(""), KindMalformed, ErrMalformed, ""},
		{"whitespace only", []byte(" \t\r\n"), KindMalformed, ErrMalformed, ""},
		{"not json", []byte("not json"), KindMalformed, ErrMalformed, ""},
		{"truncated", []byte(`{"humidade": 55, "temper`), KindMalformed, ErrMalformed, ""},
		{"array", []byte(`[1, 2, 3]`), KindMalformed, ErrMalformed, ""},
		{"number", []byte(`42`), KindMalformed, ErrMalformed, ""},
		{"null", []byte(`null`), KindMalformed, ErrMalformed, ""},
		{"missing humidity", []byte(`{"temperatura": 20, "fumaca": 0}`), KindMissingField, ErrMissingField, FieldHumidity},
		{"missing temperature", []byte(`{"humidade": 20, "fumaca": 0}`), KindMissingField, ErrMissingField, FieldTemperature},
		{"missing smoke", []byte(`{"humidade": 20, "temperatura": 0}`), KindMissingField, ErrMissingField, FieldSmoke},
		{"string smoke", []byte(`{"humidade": 1, "temperatura": 2, "fumaca": "high"}`), KindNotNumeric, ErrNotNumeric, FieldSmoke},
		{"quoted number smoke", []byte(`{"humidade": 1, "temperatura": 2, "fumaca": "120"}`), KindNotNumeric, ErrNotNumeric, FieldSmoke},
		{"null smoke", []byte(`{"humidade": 1, "temperatura": 2, "fumaca": null}`), KindNotNumeric, ErrNotNumeric, FieldSmoke},
		{"bool humidity", []byte(`{"humidade": true, "temperatura": 2, "fumaca": 1}`), KindNotNumeric, ErrNotNumeric, FieldHumidity},
		{"object temperature", []byte(`{"humidade": 1, "temperatura": {}, "fumaca": 1}`), KindNotNumeric, ErrNotNumeric, FieldTemperature},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r, err := Parse(tt.line)
			require.Error(t, err)
			assert.Equal(t, sensor.Reading{}, r)
			assert.ErrorIs(t, err, tt.sentinel)
			assert.Equal(t, tt.kind, KindOf(err))
			var fe *Error
			require.ErrorAs(t, err, &fe)
			assert.Equal(t, tt.field, fe.Field)
		})
	}
}

func TestKindOf(t *testing.T) {
	t.Parallel()

	assert.Equal(t, Kind(0), KindOf(nil))
	assert.Equal(t, Kind(0), KindOf(ErrMalformed))
	assert.Equal(t, "missing-field", KindMissingField.String())
	assert.Equal(t, "unknown", Kind(0).String())
}
