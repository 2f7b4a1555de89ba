package dut

import (
	"fmt"
	"runtime"

	"github.com/rs/zerolog"
	"go.bug.st/serial"

	"github.com/openhil/dutkit/pkg/bootrom"
	"github.com/openhil/dutkit/pkg/serialdev"
)

// ProbeIdentity opens a short-lived, independent connection to the boot
// ROM at port and reads the hardware identifier. A device that does not
// answer, or a port hosting something else entirely, is a normal
// negative result during port scanning, so failures come back as
// ok == false rather than an error. The connection is released on every
// path.
func ProbeIdentity(portName string, factory bootrom.Factory) (id string, ok bool) {
	mode := serial.Mode{
		BaudRate: serialdev.DefaultBaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(portName, &mode)
	if err != nil {
		return "", false
	}
	defer port.Close()
	return probePort(port, factory)
}

// probePort drives the probe against an already-open port. Split out so
// tests can feed it a fake.
func probePort(port serialdev.Port, factory bootrom.Factory) (string, bool) {
	rom := factory(port)
	defer rom.Close()
	if err := rom.Connect(bootrom.ResetDefault); err != nil {
		return "", false
	}
	id, err := rom.ReadIdentifier()
	if err != nil {
		return "", false
	}
	return id, true
}

// DetectPort enumerates the host's serial ports, orders candidates with
// ResolvePorts, and returns the first one that answers an identity
// probe. When no candidate confirms, the device is considered not
// present: a ToolError, not something retried internally.
func DetectPort(hint string, factory bootrom.Factory, log zerolog.Logger) (string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return "", fmt.Errorf("failed to enumerate serial ports: %w", err)
	}
	probe := func(port string) (string, bool) {
		return ProbeIdentity(port, factory)
	}
	return detectPort(ports, hint, runtime.GOOS, probe, log)
}

func detectPort(ports []string, hint, platform string, probe func(string) (string, bool), log zerolog.Logger) (string, error) {
	for _, port := range ResolvePorts(ports, hint, platform) {
		id, ok := probe(port)
		if !ok {
			log.Debug().Str("port", port).Msg("no boot ROM answer, skipping")
			continue
		}
		log.Info().Str("port", port).Str("id", id).Msg("device confirmed")
		return port, nil
	}
	return "", &ToolError{Op: "device not found"}
}
