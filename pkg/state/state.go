// Package state holds the most recent sensor reading shared between the
// serial reader and the HTTP handlers.
package state

import (
	"sync/atomic"
	"time"

	"github.com/niktheblak/esp32-sensor-api/pkg/sensor"
)

type snapshot struct {
	reading sensor.Reading
	updated time.Time
}

// Holder is a single-slot, concurrency safe container for a sensor.Reading.
// Readers always see a complete value.
type Holder struct {
	current atomic.Pointer[snapshot]
}

// New returns a Holder containing the zero Reading.
func New() *Holder {
	h := new(Holder)
	h.current.Store(&snapshot{})
	return h
}

func (h *Holder) Load() sensor.Reading {
	return h.current.Load().reading
}

// Store replaces the current reading.
func (h *Holder) Store(r sensor.Reading) {
	h.current.Store(&snapshot{reading: r, updated: time.Now()})
}

// Updated returns the time of the last Store, or the zero time if no reading
// has been stored yet.
func (h *Holder) Updated() time.Time {
	return h.current.Load().updated
}
