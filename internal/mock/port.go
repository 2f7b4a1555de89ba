package mock

import (
	"bytes"
	"io"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/openhil/dutkit/pkg/serialdev"
)

// Port is a scripted fake serial port. Read returns data queued with
// Feed; with nothing queued it behaves like a timed-out serial read,
// returning (0, nil) after a short pause.
type Port struct {
	mu       sync.Mutex
	pending  bytes.Buffer
	written  bytes.Buffer
	modes    []serial.Mode
	timeout  time.Duration
	closed   bool
	resetIns int
}

var _ serialdev.Port = (*Port)(nil)

// Feed queues bytes for subsequent reads, as if the device printed them.
func (p *Port) Feed(data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending.Write(data)
}

func (p *Port) Read(buf []byte) (int, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return 0, io.EOF
	}
	if p.pending.Len() > 0 {
		n, _ := p.pending.Read(buf)
		p.mu.Unlock()
		return n, nil
	}
	p.mu.Unlock()

	// Nothing queued: emulate a read timeout.
	time.Sleep(time.Millisecond)
	return 0, nil
}

func (p *Port) Write(data []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, io.ErrClosedPipe
	}
	return p.written.Write(data)
}

// SetMode records the applied line settings.
func (p *Port) SetMode(mode *serial.Mode) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.modes = append(p.modes, *mode)
	return nil
}

// SetReadTimeout records the configured timeout.
func (p *Port) SetReadTimeout(t time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.timeout = t
	return nil
}

// ResetInputBuffer drops any queued bytes.
func (p *Port) ResetInputBuffer() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending.Reset()
	p.resetIns++
	return nil
}

func (p *Port) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// Written returns everything written to the port so far.
func (p *Port) Written() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]byte, p.written.Len())
	copy(out, p.written.Bytes())
	return out
}

// Modes returns the history of SetMode calls.
func (p *Port) Modes() []serial.Mode {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]serial.Mode, len(p.modes))
	copy(out, p.modes)
	return out
}

// Closed reports whether Close was called.
func (p *Port) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
