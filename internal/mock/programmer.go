// Package mock provides fake boot-ROM programmer and serial port
// implementations for testing the harness without hardware.
package mock

import (
	"fmt"
	"io"
	"sync"

	"github.com/openhil/dutkit/pkg/bootrom"
)

// WriteCall records one WriteRegion invocation.
type WriteCall struct {
	// Offset is the flash offset written to.
	Offset uint32

	// Data is everything read from the source.
	Data []byte

	// Baud is the speed negotiated at the time of the write.
	Baud int

	// Options are the transfer parameters of the call.
	Options bootrom.FlashOptions
}

// Programmer is a scriptable fake bootrom.Client.
type Programmer struct {
	// Identifier is returned by ReadIdentifier.
	Identifier string

	// ConnectErr fails Connect when set.
	ConnectErr error

	// StubErr fails LoadStub when set.
	StubErr error

	// SpeedErr, keyed by baud rate, fails ChangeSpeed for that rate.
	SpeedErr map[int]error

	// WriteErr, keyed by baud rate, fails the first WriteRegion after a
	// ChangeSpeed to that rate.
	WriteErr map[int]error

	// ReadData is returned by ReadRegion (truncated or repeated to size).
	ReadData []byte

	// ReadErr fails ReadRegion when set.
	ReadErr error

	mu           sync.Mutex
	connectCalls []bootrom.ResetMode
	stubLoaded   bool
	speedCalls   []int
	currentBaud  int
	writes       []WriteCall
	resetCalls   int
	closed       bool
}

var _ bootrom.Client = (*Programmer)(nil)

// Connect records the reset mode and returns ConnectErr.
func (p *Programmer) Connect(mode bootrom.ResetMode) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connectCalls = append(p.connectCalls, mode)
	return p.ConnectErr
}

// LoadStub marks the stub as loaded and returns the same programmer as
// the accelerated session.
func (p *Programmer) LoadStub() (bootrom.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.StubErr != nil {
		return nil, p.StubErr
	}
	p.stubLoaded = true
	return p, nil
}

// ChangeSpeed records the requested rate and returns the scripted error
// for it, if any.
func (p *Programmer) ChangeSpeed(baud int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.speedCalls = append(p.speedCalls, baud)
	if err := p.SpeedErr[baud]; err != nil {
		return err
	}
	p.currentBaud = baud
	return nil
}

// WriteRegion drains src and records the call.
func (p *Programmer) WriteRegion(offset uint32, src io.Reader, opts bootrom.FlashOptions) error {
	data, err := io.ReadAll(src)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.WriteErr[p.currentBaud]; err != nil {
		return err
	}
	p.writes = append(p.writes, WriteCall{
		Offset:  offset,
		Data:    data,
		Baud:    p.currentBaud,
		Options: opts,
	})
	return nil
}

// ReadRegion returns size bytes of ReadData.
func (p *Programmer) ReadRegion(offset, size uint32) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ReadErr != nil {
		return nil, p.ReadErr
	}
	out := make([]byte, size)
	for i := range out {
		if len(p.ReadData) == 0 {
			break
		}
		out[i] = p.ReadData[i%len(p.ReadData)]
	}
	return out, nil
}

// ReadIdentifier returns the scripted identifier, or an error when none
// is configured (a port with no device behind it).
func (p *Programmer) ReadIdentifier() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Identifier == "" {
		return "", fmt.Errorf("no response from device")
	}
	return p.Identifier, nil
}

// HardReset records the reset.
func (p *Programmer) HardReset() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resetCalls++
	return nil
}

// Close records that the programmer was released.
func (p *Programmer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// ConnectCalls returns the reset modes passed to Connect so far.
func (p *Programmer) ConnectCalls() []bootrom.ResetMode {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]bootrom.ResetMode, len(p.connectCalls))
	copy(out, p.connectCalls)
	return out
}

// StubLoaded reports whether LoadStub succeeded.
func (p *Programmer) StubLoaded() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stubLoaded
}

// SpeedCalls returns every baud rate requested via ChangeSpeed.
func (p *Programmer) SpeedCalls() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]int, len(p.speedCalls))
	copy(out, p.speedCalls)
	return out
}

// Writes returns the recorded WriteRegion calls.
func (p *Programmer) Writes() []WriteCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]WriteCall, len(p.writes))
	copy(out, p.writes)
	return out
}

// ResetCalls returns how many times HardReset ran.
func (p *Programmer) ResetCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.resetCalls
}

// Closed reports whether Close was called.
func (p *Programmer) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
