package serialdev_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.bug.st/serial"

	"github.com/openhil/dutkit/internal/mock"
	"github.com/openhil/dutkit/pkg/serialdev"
)

func consoleMode() serial.Mode {
	return serial.Mode{
		BaudRate: serialdev.DefaultBaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
}

func newTestDevice(t *testing.T, port *mock.Port) *serialdev.Device {
	t.Helper()
	dev, err := serialdev.New(serialdev.Config{Name: "test"}, port, consoleMode())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { dev.Close() })
	return dev
}

func TestListenerCapturesOutput(t *testing.T) {
	port := &mock.Port{}
	dev := newTestDevice(t, port)

	port.Feed([]byte("boot: hello_world v1.2\r\n"))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := dev.WaitFor(ctx, "hello_world"); err != nil {
		t.Fatalf("WaitFor failed: %v", err)
	}
	if !bytes.Contains(dev.Capture(), []byte("boot: hello_world")) {
		t.Fatalf("capture missing fed data: %q", dev.Capture())
	}
}

func TestWaitFor_ContextExpires(t *testing.T) {
	dev := newTestDevice(t, &mock.Port{})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := dev.WaitFor(ctx, "never printed")
	if err == nil {
		t.Fatal("WaitFor succeeded, want timeout")
	}
}

func TestStopStartListener(t *testing.T) {
	port := &mock.Port{}
	dev := newTestDevice(t, port)

	if !dev.Listening() {
		t.Fatal("listener not running after New")
	}
	dev.StopListener()
	if dev.Listening() {
		t.Fatal("listener still running after StopListener")
	}
	// Stopping again is a no-op.
	dev.StopListener()

	// Data fed while stopped stays pending and is picked up on restart.
	port.Feed([]byte("late output\n"))
	if err := dev.StartListener(); err != nil {
		t.Fatalf("StartListener failed: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := dev.WaitFor(ctx, "late output"); err != nil {
		t.Fatalf("WaitFor after restart failed: %v", err)
	}
}

func TestSettingsSnapshotAndApply(t *testing.T) {
	port := &mock.Port{}
	dev := newTestDevice(t, port)

	before := dev.Settings()
	if before.BaudRate != serialdev.DefaultBaudRate {
		t.Fatalf("initial baud = %d, want %d", before.BaudRate, serialdev.DefaultBaudRate)
	}

	changed := before
	changed.BaudRate = 921600
	if err := dev.ApplySettings(changed); err != nil {
		t.Fatalf("ApplySettings failed: %v", err)
	}
	if got := dev.Settings().BaudRate; got != 921600 {
		t.Fatalf("settings not updated, baud = %d", got)
	}

	if err := dev.ApplySettings(before); err != nil {
		t.Fatalf("restore failed: %v", err)
	}
	modes := port.Modes()
	if len(modes) != 2 || modes[len(modes)-1].BaudRate != serialdev.DefaultBaudRate {
		t.Fatalf("port mode history = %v, want restore to %d", modes, serialdev.DefaultBaudRate)
	}
}

func TestWriteReachesPort(t *testing.T) {
	port := &mock.Port{}
	dev := newTestDevice(t, port)

	if _, err := dev.Write([]byte("reboot\r\n")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if got := string(port.Written()); got != "reboot\r\n" {
		t.Fatalf("port received %q", got)
	}
}

func TestCaptureLogFile(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "dut.log")
	port := &mock.Port{}
	dev, err := serialdev.New(serialdev.Config{Name: "test", LogPath: logPath}, port, consoleMode())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	port.Feed([]byte("persisted line\n"))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := dev.WaitFor(ctx, "persisted line"); err != nil {
		t.Fatalf("WaitFor failed: %v", err)
	}
	dev.Close()

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("reading capture log: %v", err)
	}
	if !bytes.Contains(data, []byte("persisted line")) {
		t.Fatalf("capture log missing output: %q", data)
	}
}

func TestTeeReceivesOutput(t *testing.T) {
	var tee bytes.Buffer
	port := &mock.Port{}
	dev, err := serialdev.New(serialdev.Config{Name: "test", Tee: &tee}, port, consoleMode())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer dev.Close()

	port.Feed([]byte("teed\n"))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := dev.WaitFor(ctx, "teed"); err != nil {
		t.Fatalf("WaitFor failed: %v", err)
	}
	if !bytes.Contains(tee.Bytes(), []byte("teed")) {
		t.Fatalf("tee missing output: %q", tee.Bytes())
	}
}

func TestCloseStopsListener(t *testing.T) {
	port := &mock.Port{}
	dev, err := serialdev.New(serialdev.Config{Name: "test"}, port, consoleMode())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := dev.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if dev.Listening() {
		t.Fatal("listener running after Close")
	}
	if !port.Closed() {
		t.Fatal("port not closed")
	}
}
