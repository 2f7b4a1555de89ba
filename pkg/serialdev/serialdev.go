// Package serialdev provides the log-capturing serial endpoint a DUT is
// built on: one open serial port, a background listener goroutine that
// continuously drains device output into a capture buffer and log file,
// and the line-settings bookkeeping control sessions snapshot and restore.
//
// The listener and a control session are mutually exclusive owners of the
// port. This package only provides Stop/Start; enforcing the exclusion
// around control operations is the dut package's job.
package serialdev

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.bug.st/serial"
)

// listenPoll bounds how long a blocking read can delay listener shutdown.
const listenPoll = 100 * time.Millisecond

// DefaultBaudRate is the console baud rate used when none is configured.
const DefaultBaudRate = 115200

// Port is the subset of go.bug.st/serial.Port the harness uses. Fake
// ports in tests implement this instead of the full library interface.
type Port interface {
	io.ReadWriteCloser
	SetMode(mode *serial.Mode) error
	SetReadTimeout(t time.Duration) error
	ResetInputBuffer() error
}

// Config describes one serial endpoint.
type Config struct {
	// Name is the logical device name, used in log output.
	Name string

	// Port is the serial port path, e.g. /dev/ttyUSB0.
	Port string

	// BaudRate for the console. Zero means DefaultBaudRate.
	BaudRate int

	// LogPath, when non-empty, is a file all captured output is appended to.
	LogPath string

	// Tee, when non-nil, additionally receives all captured output as it
	// arrives. Used by interactive monitors.
	Tee io.Writer

	// Logger for listener lifecycle events. The zero value is usable.
	Logger zerolog.Logger
}

// Device is one log-capturing serial endpoint.
type Device struct {
	name string
	port Port
	log  zerolog.Logger

	logFile *os.File
	tee     io.Writer

	mu        sync.Mutex
	mode      serial.Mode // last applied line settings
	capture   bytes.Buffer
	notify    chan struct{} // closed and replaced whenever capture grows
	stop      chan struct{}
	done      chan struct{}
	listening bool
}

// Open opens the configured serial port and starts the listener.
func Open(cfg Config) (*Device, error) {
	mode := serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	if mode.BaudRate == 0 {
		mode.BaudRate = DefaultBaudRate
	}
	port, err := serial.Open(cfg.Port, &mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", cfg.Port, err)
	}
	// Drop whatever accumulated before this run started.
	if err := port.ResetInputBuffer(); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to reset input buffer on %s: %w", cfg.Port, err)
	}
	d, err := New(cfg, port, mode)
	if err != nil {
		port.Close()
		return nil, err
	}
	return d, nil
}

// New builds a Device around an already-open port and starts the
// listener. mode must be the line settings the port was opened with.
func New(cfg Config, port Port, mode serial.Mode) (*Device, error) {
	d := &Device{
		name:   cfg.Name,
		port:   port,
		log:    cfg.Logger.With().Str("device", cfg.Name).Logger(),
		tee:    cfg.Tee,
		mode:   mode,
		notify: make(chan struct{}),
	}
	if cfg.LogPath != "" {
		f, err := os.OpenFile(cfg.LogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open capture log: %w", err)
		}
		d.logFile = f
	}
	if err := d.StartListener(); err != nil {
		if d.logFile != nil {
			d.logFile.Close()
		}
		return nil, err
	}
	return d, nil
}

// Name returns the logical device name.
func (d *Device) Name() string { return d.name }

// Port exposes the underlying port for a control session. Callers must
// have stopped the listener first.
func (d *Device) Port() Port { return d.port }

// Settings returns a snapshot of the current line settings.
func (d *Device) Settings() serial.Mode {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mode
}

// ApplySettings applies line settings to the port and records them as
// current.
func (d *Device) ApplySettings(mode serial.Mode) error {
	if err := d.port.SetMode(&mode); err != nil {
		return fmt.Errorf("failed to apply serial settings: %w", err)
	}
	d.mu.Lock()
	d.mode = mode
	d.mu.Unlock()
	return nil
}

// StartListener launches the background capture goroutine. Starting an
// already-running listener is a no-op.
func (d *Device) StartListener() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.listening {
		return nil
	}
	// A short read timeout keeps the blocking read loop responsive to
	// StopListener.
	if err := d.port.SetReadTimeout(listenPoll); err != nil {
		return fmt.Errorf("failed to set read timeout: %w", err)
	}
	d.stop = make(chan struct{})
	d.done = make(chan struct{})
	d.listening = true
	go d.listen(d.stop, d.done)
	d.log.Debug().Msg("listener started")
	return nil
}

// StopListener stops the capture goroutine and waits for it to exit.
// Stopping an idle listener is a no-op.
func (d *Device) StopListener() {
	d.mu.Lock()
	if !d.listening {
		d.mu.Unlock()
		return
	}
	stop, done := d.stop, d.done
	d.listening = false
	d.mu.Unlock()

	close(stop)
	<-done
	d.log.Debug().Msg("listener stopped")
}

// Listening reports whether the capture goroutine is running.
func (d *Device) Listening() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.listening
}

func (d *Device) listen(stop, done chan struct{}) {
	defer close(done)
	buf := make([]byte, 4096)
	for {
		select {
		case <-stop:
			return
		default:
		}
		n, err := d.port.Read(buf)
		if n > 0 {
			d.record(buf[:n])
		}
		if err != nil {
			// The port read fails for good once the port is closed;
			// anything else is equally fatal for this listener run.
			select {
			case <-stop:
			default:
				d.log.Warn().Err(err).Msg("listener read failed")
			}
			return
		}
	}
}

func (d *Device) record(data []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.capture.Write(data)
	if d.logFile != nil {
		if _, err := d.logFile.Write(data); err != nil {
			d.log.Warn().Err(err).Msg("failed to append capture log")
		}
	}
	if d.tee != nil {
		d.tee.Write(data)
	}
	// Wake WaitFor callers last, so everything above is visible to them.
	close(d.notify)
	d.notify = make(chan struct{})
}

// Capture returns a copy of everything recorded so far.
func (d *Device) Capture() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]byte, d.capture.Len())
	copy(out, d.capture.Bytes())
	return out
}

// Write sends bytes to the device console.
func (d *Device) Write(data []byte) (int, error) {
	return d.port.Write(data)
}

// WaitFor blocks until the capture contains needle or the context is
// done. Data recorded before the call counts.
func (d *Device) WaitFor(ctx context.Context, needle string) error {
	for {
		d.mu.Lock()
		found := bytes.Contains(d.capture.Bytes(), []byte(needle))
		notify := d.notify
		d.mu.Unlock()
		if found {
			return nil
		}
		select {
		case <-notify:
		case <-ctx.Done():
			return fmt.Errorf("waiting for %q on %s: %w", needle, d.name, ctx.Err())
		}
	}
}

// Close stops the listener and releases the port and capture log.
func (d *Device) Close() error {
	d.StopListener()
	if d.logFile != nil {
		d.logFile.Close()
	}
	return d.port.Close()
}
