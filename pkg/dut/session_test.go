package dut

import (
	"errors"
	"testing"

	"github.com/openhil/dutkit/internal/mock"
	"github.com/openhil/dutkit/pkg/bootrom"
	"github.com/openhil/dutkit/pkg/serialdev"
)

func TestRunExclusive_Success(t *testing.T) {
	prog := &mock.Programmer{}
	d, port := newTestDUT(t, prog, testApp(t))

	var ranWithListenerStopped bool
	err := d.runExclusive("test-op", func(p bootrom.Client) error {
		ranWithListenerStopped = !d.Device().Listening()
		return nil
	})
	if err != nil {
		t.Fatalf("runExclusive failed: %v", err)
	}

	if !ranWithListenerStopped {
		t.Fatal("listener was running during the control operation")
	}
	if !d.Device().Listening() {
		t.Fatal("listener not restarted after the operation")
	}
	calls := prog.ConnectCalls()
	if len(calls) != 1 || calls[0] != bootrom.ResetHard {
		t.Fatalf("Connect calls = %v, want one hard reset", calls)
	}
	if !prog.StubLoaded() {
		t.Fatal("stub was not loaded")
	}
	if !prog.Closed() {
		t.Fatal("programmer not released")
	}

	modes := port.Modes()
	if len(modes) == 0 {
		t.Fatal("serial settings never restored")
	}
	if got := modes[len(modes)-1].BaudRate; got != serialdev.DefaultBaudRate {
		t.Fatalf("restored baud = %d, want %d", got, serialdev.DefaultBaudRate)
	}
}

func TestRunExclusive_OperationErrorStillCleansUp(t *testing.T) {
	prog := &mock.Programmer{}
	d, port := newTestDUT(t, prog, testApp(t))

	sentinel := errors.New("flash write failed")
	err := d.runExclusive("test-op", func(p bootrom.Client) error {
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("error = %v, want the operation's own error", err)
	}
	if IsToolError(err) {
		t.Fatal("operation error was rewrapped as a ToolError")
	}

	if !d.Device().Listening() {
		t.Fatal("listener not restarted after failed operation")
	}
	if len(port.Modes()) == 0 {
		t.Fatal("serial settings not restored after failed operation")
	}
	if !prog.Closed() {
		t.Fatal("programmer not released after failed operation")
	}
}

func TestRunExclusive_HandshakeFailure(t *testing.T) {
	prog := &mock.Programmer{ConnectErr: errors.New("no sync reply")}
	d, port := newTestDUT(t, prog, testApp(t))

	opRan := false
	err := d.runExclusive("test-op", func(p bootrom.Client) error {
		opRan = true
		return nil
	})
	if !IsToolError(err) {
		t.Fatalf("error = %v, want ToolError", err)
	}
	if opRan {
		t.Fatal("operation ran despite handshake failure")
	}
	if !d.Device().Listening() {
		t.Fatal("listener left stopped after handshake failure")
	}
	if len(port.Modes()) == 0 {
		t.Fatal("settings not restored after handshake failure")
	}
}

func TestRunExclusive_StubLoadFailure(t *testing.T) {
	prog := &mock.Programmer{StubErr: errors.New("stub upload rejected")}
	d, _ := newTestDUT(t, prog, testApp(t))

	err := d.runExclusive("test-op", func(p bootrom.Client) error {
		t.Fatal("operation ran despite stub failure")
		return nil
	})
	if !IsToolError(err) {
		t.Fatalf("error = %v, want ToolError", err)
	}
	if !d.Device().Listening() {
		t.Fatal("listener left stopped after stub failure")
	}
}
