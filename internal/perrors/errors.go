// Package perrors defines the structured error type shared across the
// page cache server, generalized from the teacher's root-level
// errors.go (*Error/UblkErrorCode) to the error categories spec.md §7
// names: provider fatal, allocation fatal, protocol fatal, missing
// key, transport bootstrap failure.
package perrors

import (
	"errors"
	"fmt"
)

// Code is a high-level error category, mirroring UblkErrorCode's role
// in the teacher.
type Code string

const (
	CodeProviderFatal  Code = "rdma provider fatal"
	CodeAllocationFatal Code = "allocation fatal"
	CodeProtocolFatal  Code = "protocol fatal"
	CodeMissingKey     Code = "missing key"
	CodeBootstrapFailed Code = "bootstrap failed"
	CodeIOError        Code = "I/O error"
)

// Error is a structured error with operation context, matching the
// teacher's *Error shape (Op/Code/Errno-equivalent/Msg/Inner).
type Error struct {
	Op     string // operation that failed, e.g. "WRITE_REQUEST", "BOOTSTRAP"
	NodeID uint8
	Pid    uint8
	Code   Code
	Msg    string
	Inner  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}
	if e.Op != "" {
		return fmt.Sprintf("pcache: %s op=%s node=%d pid=%d", msg, e.Op, e.NodeID, e.Pid)
	}
	return fmt.Sprintf("pcache: %s", msg)
}

func (e *Error) Unwrap() error { return e.Inner }

func (e *Error) Is(target error) bool {
	te, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == te.Code
}

// New creates a structured error for op/code with a formatted message.
func New(op string, nodeID, pid uint8, code Code, msg string) *Error {
	return &Error{Op: op, NodeID: nodeID, Pid: pid, Code: code, Msg: msg}
}

// Wrap wraps inner with op/code context, preserving it for errors.Unwrap.
func Wrap(op string, nodeID, pid uint8, code Code, inner error) *Error {
	if inner == nil {
		return nil
	}
	return &Error{Op: op, NodeID: nodeID, Pid: pid, Code: code, Msg: inner.Error(), Inner: inner}
}

// IsCode reports whether err (or any error it wraps) carries code.
func IsCode(err error, code Code) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code == code
	}
	return false
}
