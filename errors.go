package pcache

import "github.com/siisee11/pmdfc-go/internal/perrors"

// Re-export the structured error type for the public API.
type (
	Error = perrors.Error
	Code  = perrors.Code
)

const (
	CodeProviderFatal   = perrors.CodeProviderFatal
	CodeAllocationFatal = perrors.CodeAllocationFatal
	CodeProtocolFatal   = perrors.CodeProtocolFatal
	CodeMissingKey      = perrors.CodeMissingKey
	CodeBootstrapFailed = perrors.CodeBootstrapFailed
	CodeIOError         = perrors.CodeIOError
)

// NewError creates a new structured error.
func NewError(op string, nodeID, pid uint8, code Code, msg string) *Error {
	return perrors.New(op, nodeID, pid, code, msg)
}

// WrapError wraps inner with op/code context.
func WrapError(op string, nodeID, pid uint8, code Code, inner error) *Error {
	return perrors.Wrap(op, nodeID, pid, code, inner)
}

// IsCode reports whether err (or any error it wraps) carries code.
func IsCode(err error, code Code) bool {
	return perrors.IsCode(err, code)
}
