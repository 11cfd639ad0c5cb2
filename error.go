package kvcan

import (
	"errors"
	"fmt"

	"github.com/roffe/kvcan/pkg/protocol"
)

// ErrorCode is the numeric status of a failed channel operation.
type ErrorCode int

const (
	CodeOK                 ErrorCode = 0
	CodeQueueFull          ErrorCode = -20
	CodeQueueEmpty         ErrorCode = -30
	CodeTimeout            ErrorCode = -50
	CodeResourceExhausted  ErrorCode = -90
	CodeIllegalParameter   ErrorCode = -93
	CodeNullArgument       ErrorCode = -94
	CodeNotInitialized     ErrorCode = -95
	CodeAlreadyInitialized ErrorCode = -96
	CodeUnsupported        ErrorCode = -98
	CodeFatal              ErrorCode = -99
)

type Error struct {
	Code        ErrorCode
	Description string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%v (%v)", e.Description, e.Code)
}

var (
	ErrNullArgument       = &Error{CodeNullArgument, "null argument"}
	ErrNotInitialized     = &Error{CodeNotInitialized, "channel not initialized"}
	ErrAlreadyInitialized = &Error{CodeAlreadyInitialized, "channel already initialized"}
	ErrIllegalParameter   = &Error{CodeIllegalParameter, "illegal parameter"}
	ErrResourceExhausted  = &Error{CodeResourceExhausted, "resource exhausted"}
	ErrQueueFull          = &Error{CodeQueueFull, "transmit queue full"}
	ErrTimeout            = &Error{CodeTimeout, "timeout"}
	ErrRxEmpty            = &Error{CodeQueueEmpty, "receive queue empty"}
	ErrUnsupported        = &Error{CodeUnsupported, "not supported by this device"}
	ErrFatal              = &Error{CodeFatal, "fatal error"}
)

// Is makes a full transmit window and an empty receive queue match the broader
// ResourceExhausted and Timeout conditions.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	switch {
	case e.Code == t.Code:
		return true
	case e.Code == CodeQueueFull && t.Code == CodeResourceExhausted:
		return true
	case e.Code == CodeQueueEmpty && t.Code == CodeTimeout:
		return true
	}
	return false
}

// NewError maps a numeric status to its error. Codes >= 0 are not errors.
func NewError[T ~int | ~int32 | ~int64](code T) error {
	if code >= T(CodeOK) {
		return nil
	}
	switch ErrorCode(code) {
	case CodeQueueFull:
		return ErrQueueFull
	case CodeQueueEmpty:
		return ErrRxEmpty
	case CodeTimeout:
		return ErrTimeout
	case CodeResourceExhausted:
		return ErrResourceExhausted
	case CodeIllegalParameter:
		return ErrIllegalParameter
	case CodeNullArgument:
		return ErrNullArgument
	case CodeNotInitialized:
		return ErrNotInitialized
	case CodeAlreadyInitialized:
		return ErrAlreadyInitialized
	case CodeUnsupported:
		return ErrUnsupported
	case CodeFatal:
		return ErrFatal
	}
	if code <= -100 && code >= -100-protocol.FirmwareErrParameter {
		return &FirmwareError{Code: uint8(-100 - int(code))}
	}
	return &Error{Code: ErrorCode(code), Description: "unknown error"}
}

// FirmwareError is an error reported by the adapter in an ERROR_EVENT.
type FirmwareError struct {
	Code     uint8
	AddInfo1 uint16
	AddInfo2 uint16
}

var firmwareErrorNames = map[uint8]string{
	protocol.FirmwareErrCAN:         "CAN error",
	protocol.FirmwareErrNVRAM:       "NVRAM error",
	protocol.FirmwareErrNoPriv:      "no privilege",
	protocol.FirmwareErrIllegalAddr: "illegal address",
	protocol.FirmwareErrUnknownCmd:  "unknown command",
	protocol.FirmwareErrFatal:       "fatal firmware error",
	protocol.FirmwareErrChecksum:    "checksum error",
	protocol.FirmwareErrQueueLevel:  "queue level error",
	protocol.FirmwareErrParameter:   "parameter error",
}

func (e *FirmwareError) Error() string {
	name, ok := firmwareErrorNames[e.Code]
	if !ok {
		name = "firmware error"
	}
	return fmt.Sprintf("%s (%d, info 0x%04X 0x%04X)", name, e.StatusCode(), e.AddInfo1, e.AddInfo2)
}

// StatusCode returns the numeric status of the error, -100 minus the
// firmware code.
func (e *FirmwareError) StatusCode() ErrorCode {
	return ErrorCode(-100 - int(e.Code))
}

// Is lets a firmware parameter error match ErrIllegalParameter.
func (e *FirmwareError) Is(target error) bool {
	return e.Code == protocol.FirmwareErrParameter && target == ErrIllegalParameter
}

func newFirmwareError(r protocol.ErrorReport) error {
	return &FirmwareError{Code: r.Code, AddInfo1: r.AddInfo1, AddInfo2: r.AddInfo2}
}

type unrecoverableError struct {
	error
}

func (e unrecoverableError) Error() string {
	if e.error == nil {
		return "unrecoverable error"
	}
	return e.error.Error()
}

func (e unrecoverableError) Unwrap() error {
	return e.error
}

// Unrecoverable wraps an error in `unrecoverableError` struct
func Unrecoverable(err error) error {
	return unrecoverableError{err}
}

// IsRecoverable checks if error is an instance of `unrecoverableError`
func IsRecoverable(err error) bool {
	var u unrecoverableError
	if errors.As(err, &u) {
		return false
	}
	return !errors.Is(err, ErrFatal)
}

// IsRetryable reports whether repeating the operation may succeed. Only
// timeouts qualify; parameter and capability errors are fixed for a device.
func IsRetryable(err error) bool {
	return err != nil && errors.Is(err, ErrTimeout) && IsRecoverable(err)
}
