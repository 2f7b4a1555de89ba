package dut

import "errors"

// ToolError marks harness-level failures: ambiguous port resolution,
// boot-ROM handshake failure, speed-negotiation exhaustion, invalid dump
// arguments. Errors from the programmer's own protocol propagate
// unchanged and are never wrapped in a ToolError.
type ToolError struct {
	Op  string // what the harness was doing, in plain words
	Err error  // underlying cause, may be nil
}

func (e *ToolError) Error() string {
	if e.Err == nil {
		return e.Op
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *ToolError) Unwrap() error { return e.Err }

// IsToolError reports whether err is (or wraps) a harness-level failure.
func IsToolError(err error) bool {
	var te *ToolError
	return errors.As(err, &te)
}
