// Package reader runs the loop that moves frames from the serial port into
// the shared state.
package reader

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/niktheblak/esp32-sensor-api/internal/publish"
	"github.com/niktheblak/esp32-sensor-api/pkg/frame"
	"github.com/niktheblak/esp32-sensor-api/pkg/state"
)

const DefaultPollInterval = 10 * time.Millisecond

// Source is a line oriented byte stream, usually a *serialport.Port.
type Source interface {
	BytesAvailable() (int, error)
	ReadLine() ([]byte, error)
}

type Loop struct {
	Source       Source
	State        *state.Holder
	Publishers   []publish.Publisher
	PollInterval time.Duration
	Logger       *slog.Logger
}

// Run polls Source until ctx is cancelled, storing every valid frame in State.
// Malformed frames are logged and dropped. Run only returns an error when
// Source itself fails; there is no reconnect.
func (l *Loop) Run(ctx context.Context) error {
	interval := l.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if ctx.Err() != nil {
			return nil
		}
		n, err := l.Source.BytesAvailable()
		if err != nil {
			return l.sourceFailed(ctx, err)
		}
		if n == 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}
			continue
		}
		line, err := l.Source.ReadLine()
		if err != nil {
			return l.sourceFailed(ctx, err)
		}
		l.Process(ctx, line)
	}
}

// Process handles a single frame. It reports whether the frame was accepted.
func (l *Loop) Process(ctx context.Context, line []byte) bool {
	logger := l.logger()
	reading, err := frame.Parse(line)
	if err != nil {
		attrs := []slog.Attr{
			slog.String("kind", frame.KindOf(err).String()),
			slog.Any("error", err),
		}
		if utf8.Valid(line) {
			attrs = append(attrs, slog.String("raw", string(line)))
		}
		logger.LogAttrs(ctx, slog.LevelWarn, "Discarding invalid frame", attrs...)
		return false
	}
	l.State.Store(reading)
	logger.LogAttrs(ctx, slog.LevelDebug, "New reading",
		slog.Float64("humidity", reading.Humidity),
		slog.Float64("temperature", reading.Temperature),
		slog.Float64("smoke", reading.Smoke),
	)
	for _, p := range l.Publishers {
		if err := p.Publish(ctx, reading); err != nil {
			logger.LogAttrs(ctx, slog.LevelError, "Failed to publish reading", slog.Any("error", err))
		}
	}
	return true
}

func (l *Loop) sourceFailed(ctx context.Context, err error) error {
	// a cancelled loop whose port was closed underneath it is a normal shutdown
	if ctx.Err() != nil {
		return nil
	}
	l.logger().LogAttrs(ctx, slog.LevelError, "Serial connection lost, serving last reading until restart",
		slog.Any("error", err),
		slog.Time("last_reading", l.State.Updated()),
	)
	return fmt.Errorf("reading serial port: %w", err)
}

func (l *Loop) logger() *slog.Logger {
	if l.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return l.Logger
}
