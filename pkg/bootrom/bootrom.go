// Package bootrom defines the capability surface of a boot-ROM
// programmer: the tool that talks the device's first-stage serial
// protocol to flash, read back and reset it. The harness only consumes
// this interface; concrete implementations (and their wire protocol)
// live outside this repository.
package bootrom

import (
	"errors"
	"io"

	"github.com/openhil/dutkit/pkg/serialdev"
)

// ResetMode selects how Connect coaxes the device into its boot ROM.
type ResetMode string

const (
	// ResetHard toggles the reset line before syncing. Used by control
	// sessions, which must take the device over from a running app.
	ResetHard ResetMode = "hard_reset"

	// ResetDefault is the implementation's standard entry sequence.
	ResetDefault ResetMode = "default_reset"
)

// ErrNegotiation marks handshake and transfer-speed negotiation
// failures. Implementations wrap it (errors.Is must match) so the flash
// path can distinguish "retry slower" from data and protocol errors,
// which are never retried.
var ErrNegotiation = errors.New("transfer speed negotiation failed")

// FlashOptions carries the per-transfer parameters of WriteRegion.
type FlashOptions struct {
	Size string // flash chip size, e.g. "4MB"
	Mode string // SPI mode, e.g. "dio"
	Freq string // SPI frequency, e.g. "40m"

	NoStub   bool
	Compress bool
	Verify   bool
	Encrypt  bool
}

// Client is one programmer bound to an open serial port.
//
// Close releases the programmer's own resources; it never closes the
// underlying port, which stays owned by whoever opened it.
type Client interface {
	// Connect establishes the boot-ROM control channel.
	Connect(mode ResetMode) error

	// LoadStub uploads the in-RAM accelerator and returns the session
	// speaking to it. Subsequent transfers should go through the
	// returned client.
	LoadStub() (Client, error)

	// ChangeSpeed renegotiates the transfer baud rate.
	ChangeSpeed(baud int) error

	// WriteRegion programs src at the given flash offset.
	WriteRegion(offset uint32, src io.Reader, opts FlashOptions) error

	// ReadRegion reads size bytes starting at offset.
	ReadRegion(offset, size uint32) ([]byte, error)

	// ReadIdentifier reads the hardware identifier (e.g. the base MAC).
	ReadIdentifier() (string, error)

	// HardReset reboots the device into its application.
	HardReset() error

	Close() error
}

// Factory binds a Client to an already-open serial port.
type Factory func(port serialdev.Port) Client
