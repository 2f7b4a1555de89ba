// Package dut represents one physical embedded device on the test bench:
// its serial console with background log capture, and the exclusive
// control sessions used to flash, reset and read back its flash memory
// through a boot-ROM programmer.
package dut

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/openhil/dutkit/pkg/appdesc"
	"github.com/openhil/dutkit/pkg/bootrom"
	"github.com/openhil/dutkit/pkg/serialdev"
)

// Config describes one device under test.
type Config struct {
	// Name is the logical device name used in logs and capture files.
	Name string

	// Port is the serial port path. Empty means detect: enumerate host
	// ports, order them with ResolvePorts using Hint, and bind the first
	// candidate that answers an identity probe.
	Port string

	// Hint is an optional preferred port, typically from the DUTPORT
	// environment variable. Only consulted during detection.
	Hint string

	// App is the application descriptor for the firmware this device runs.
	App *appdesc.App

	// Programmer binds a boot-ROM client to the device's port.
	Programmer bootrom.Factory

	// BaudRate of the console. Zero means serialdev.DefaultBaudRate.
	BaudRate int

	// Logger for harness events. The zero value is usable.
	Logger zerolog.Logger
}

// DUT is one device under test. It composes the log-capturing serial
// endpoint with the control-channel machinery; the two sides never own
// the port at the same time.
type DUT struct {
	name string
	port string
	app  *appdesc.App
	dev  *serialdev.Device

	newClient bootrom.Factory
	log       zerolog.Logger
}

// Open binds a DUT: resolves the port if necessary, opens the console
// and starts the capture listener.
func Open(cfg Config) (*DUT, error) {
	if cfg.App == nil {
		return nil, fmt.Errorf("dut %s: app descriptor is required", cfg.Name)
	}
	if cfg.Programmer == nil {
		return nil, fmt.Errorf("dut %s: programmer factory is required", cfg.Name)
	}

	port := cfg.Port
	if port == "" {
		detected, err := DetectPort(cfg.Hint, cfg.Programmer, cfg.Logger)
		if err != nil {
			return nil, err
		}
		port = detected
	}

	logDir := cfg.App.LogFolder()
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log folder: %w", err)
	}
	dev, err := serialdev.Open(serialdev.Config{
		Name:     cfg.Name,
		Port:     port,
		BaudRate: cfg.BaudRate,
		LogPath:  filepath.Join(logDir, cfg.Name+".log"),
		Logger:   cfg.Logger,
	})
	if err != nil {
		return nil, err
	}
	return New(cfg, port, dev), nil
}

// New builds a DUT around an already-open serial endpoint. Used by Open
// and by tests that inject a fake port.
func New(cfg Config, port string, dev *serialdev.Device) *DUT {
	return &DUT{
		name:      cfg.Name,
		port:      port,
		app:       cfg.App,
		dev:       dev,
		newClient: cfg.Programmer,
		log:       cfg.Logger.With().Str("device", cfg.Name).Str("port", port).Logger(),
	}
}

// Name returns the logical device name.
func (d *DUT) Name() string { return d.name }

// PortName returns the bound serial port path.
func (d *DUT) PortName() string { return d.port }

// App returns the application descriptor.
func (d *DUT) App() *appdesc.App { return d.app }

// Device returns the underlying serial endpoint, for console-level
// interaction (capture, expect, writes) between control operations.
func (d *DUT) Device() *serialdev.Device { return d.dev }

// Reset hard-resets the device into its application.
func (d *DUT) Reset() error {
	return d.runExclusive("reset", func(p bootrom.Client) error {
		return p.HardReset()
	})
}

// Close stops the listener and releases the serial port.
func (d *DUT) Close() error {
	return d.dev.Close()
}
