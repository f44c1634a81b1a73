package publish

import (
	"context"
	"io"

	"github.com/niktheblak/esp32-sensor-api/pkg/sensor"
)

// Publisher receives every reading accepted from the device.
type Publisher interface {
	Publish(ctx context.Context, r sensor.Reading) error
	io.Closer
}
