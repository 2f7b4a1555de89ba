package dut

import (
	"github.com/google/uuid"

	"github.com/openhil/dutkit/pkg/bootrom"
)

// runExclusive wraps one control operation in an exclusive session over
// the serial resource: stop the capture listener, snapshot the line
// settings, bring up the boot-ROM client and its in-RAM stub, run op,
// then restore the settings and restart the listener.
//
// The teardown half is mandatory on every exit path, including handshake
// and stub-load failures: the listener must never be left stopped and
// the console settings never left at whatever baud the programmer last
// negotiated. Errors from op itself propagate to the caller after
// teardown; only handshake failures become ToolErrors here.
func (d *DUT) runExclusive(opName string, op func(p bootrom.Client) error) error {
	session := uuid.NewString()[:8]
	log := d.log.With().Str("session", session).Str("op", opName).Logger()

	d.dev.StopListener()
	defer func() {
		if err := d.dev.StartListener(); err != nil {
			log.Error().Err(err).Msg("failed to restart capture listener")
		}
	}()

	// Snapshot is owned by this session alone; defers run in reverse
	// registration order, so settings are restored before the listener
	// comes back.
	settings := d.dev.Settings()
	defer func() {
		if err := d.dev.ApplySettings(settings); err != nil {
			log.Error().Err(err).Msg("failed to restore serial settings")
		}
	}()

	log.Debug().Msg("control session starting")

	rom := d.newClient(d.dev.Port())
	defer rom.Close()
	if err := rom.Connect(bootrom.ResetHard); err != nil {
		return &ToolError{Op: "boot ROM handshake failed", Err: err}
	}
	client, err := rom.LoadStub()
	if err != nil {
		return &ToolError{Op: "stub load failed", Err: err}
	}

	if err := op(client); err != nil {
		log.Debug().Err(err).Msg("control session failed")
		return err
	}
	log.Debug().Msg("control session done")
	return nil
}
