//go:build linux

// Package serialport is a minimal line-oriented Linux serial port for
// microcontrollers that reboot when the port is opened.
package serialport

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"
)

const (
	DefaultBaudRate   = 9600
	DefaultSettle     = 2 * time.Second
	DefaultResetPulse = 100 * time.Millisecond
)

var (
	ErrConnection = errors.New("serial connection failed")
	ErrClosed     = errors.New("serial port closed")
	ErrIO         = errors.New("serial read failed")
)

// Config holds configuration parameters for opening a serial port.
type Config struct {
	Device   string
	BaudRate int
	// Settle is how long Open waits for the device to finish rebooting.
	// Anything received during that window is discarded.
	Settle time.Duration
	// ResetPulse is how long DTR is held low by ResetAndClose.
	ResetPulse time.Duration
}

// Port is an open serial port. BytesAvailable and ReadLine must be called
// from a single goroutine; Interrupt and ResetAndClose may be called from any
// goroutine and unblock a pending ReadLine.
type Port struct {
	file      *os.File
	reader    *bufio.Reader
	config    Config
	closed    atomic.Bool
	closeOnce sync.Once
	// setDTR drives the DTR modem line; replaced in tests
	setDTR func(on bool) error
}

// Open opens the device in raw 8N1 mode and waits cfg.Settle before
// returning. All failures wrap ErrConnection.
func Open(ctx context.Context, cfg Config) (*Port, error) {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = DefaultBaudRate
	}
	if cfg.ResetPulse == 0 {
		cfg.ResetPulse = DefaultResetPulse
	}
	baud, err := baudToUnix(cfg.BaudRate)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnection, err)
	}
	fd, err := unix.Open(cfg.Device, unix.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrConnection, cfg.Device, err)
	}
	if err := configure(fd, baud); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("%w: configure %s: %w", ErrConnection, cfg.Device, err)
	}
	// fd stays non-blocking so reads go through the runtime poller and
	// Close can interrupt them
	p := &Port{
		file:   os.NewFile(uintptr(fd), cfg.Device),
		config: cfg,
	}
	p.reader = bufio.NewReader(p.file)
	p.setDTR = p.ioctlDTR
	if err := p.setDTR(true); err != nil && !noModemLines(err) {
		p.file.Close()
		return nil, fmt.Errorf("%w: assert DTR: %w", ErrConnection, err)
	}
	if cfg.Settle > 0 {
		timer := time.NewTimer(cfg.Settle)
		select {
		case <-ctx.Done():
			timer.Stop()
			p.file.Close()
			return nil, fmt.Errorf("%w: %w", ErrConnection, ctx.Err())
		case <-timer.C:
		}
	}
	if err := p.control(func(fd int) error {
		return unix.IoctlSetInt(fd, unix.TCFLSH, unix.TCIFLUSH)
	}); err != nil {
		p.file.Close()
		return nil, fmt.Errorf("%w: flush input: %w", ErrConnection, err)
	}
	return p, nil
}

// BytesAvailable returns the number of bytes that can be read without
// blocking. It never blocks.
func (p *Port) BytesAvailable() (int, error) {
	var n int
	err := p.control(func(fd int) (err error) {
		n, err = unix.IoctlGetInt(fd, unix.TIOCINQ)
		return err
	})
	if err != nil {
		if p.closed.Load() || errors.Is(err, os.ErrClosed) {
			return 0, ErrClosed
		}
		return 0, fmt.Errorf("%w: %w", ErrIO, err)
	}
	return p.reader.Buffered() + n, nil
}

// ReadLine blocks until a full newline terminated line has been received and
// returns it without the terminator.
func (p *Port) ReadLine() ([]byte, error) {
	line, err := p.reader.ReadBytes('\n')
	if err != nil {
		if p.closed.Load() || errors.Is(err, os.ErrClosed) {
			return nil, ErrClosed
		}
		return nil, fmt.Errorf("%w: %w", ErrIO, err)
	}
	line = line[:len(line)-1]
	return bytes.TrimSuffix(line, []byte{'\r'}), nil
}

// Interrupt makes a pending or future ReadLine return immediately with an
// error wrapping os.ErrDeadlineExceeded. The port stays open.
func (p *Port) Interrupt() error {
	return p.file.SetReadDeadline(time.Now())
}

// ResetAndClose pulses DTR low, which reboots the attached microcontroller,
// and closes the port. Only the first call has any effect.
func (p *Port) ResetAndClose() error {
	var err error
	p.closeOnce.Do(func() {
		var errs []error
		if dtrErr := p.setDTR(false); dtrErr == nil {
			time.Sleep(p.config.ResetPulse)
			if dtrErr := p.setDTR(true); dtrErr != nil {
				errs = append(errs, fmt.Errorf("assert DTR: %w", dtrErr))
			}
		} else if !noModemLines(dtrErr) {
			errs = append(errs, fmt.Errorf("deassert DTR: %w", dtrErr))
		}
		p.closed.Store(true)
		if closeErr := p.file.Close(); closeErr != nil {
			errs = append(errs, closeErr)
		}
		err = errors.Join(errs...)
	})
	return err
}

// Close implements io.Closer.
func (p *Port) Close() error {
	return p.ResetAndClose()
}

func (p *Port) ioctlDTR(on bool) error {
	req := uint(unix.TIOCMBIC)
	if on {
		req = unix.TIOCMBIS
	}
	return p.control(func(fd int) error {
		return unix.IoctlSetPointerInt(fd, req, unix.TIOCM_DTR)
	})
}

// control runs f on the file descriptor while the runtime guarantees it is
// not closed concurrently.
func (p *Port) control(f func(fd int) error) error {
	rc, err := p.file.SyscallConn()
	if err != nil {
		return err
	}
	var ferr error
	if err := rc.Control(func(fd uintptr) {
		ferr = f(int(fd))
	}); err != nil {
		return err
	}
	return ferr
}

func configure(fd int, baud uint32) error {
	termios, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return fmt.Errorf("get termios: %w", err)
	}

	// Raw mode
	termios.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP | unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON
	termios.Oflag &^= unix.OPOST
	termios.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	termios.Cflag &^= unix.CSIZE | unix.PARENB | unix.CSTOPB
	termios.Cflag |= unix.CS8 | unix.CREAD | unix.CLOCAL

	termios.Cflag &^= unix.CBAUD
	termios.Cflag |= baud
	termios.Ispeed = baud
	termios.Ospeed = baud

	termios.Cc[unix.VMIN] = 1
	termios.Cc[unix.VTIME] = 0

	if err := unix.IoctlSetTermios(fd, unix.TCSETS, termios); err != nil {
		return fmt.Errorf("set termios: %w", err)
	}
	return nil
}

// noModemLines reports whether err means the device has no modem control
// lines, as is the case for pseudo terminals.
func noModemLines(err error) bool {
	return errors.Is(err, unix.ENOTTY) || errors.Is(err, unix.EINVAL)
}

func baudToUnix(baud int) (uint32, error) {
	switch baud {
	case 9600:
		return unix.B9600, nil
	case 19200:
		return unix.B19200, nil
	case 38400:
		return unix.B38400, nil
	case 57600:
		return unix.B57600, nil
	case 115200:
		return unix.B115200, nil
	case 230400:
		return unix.B230400, nil
	default:
		return 0, fmt.Errorf("unsupported baud rate %d", baud)
	}
}
