package dpa

import (
	"errors"
	"fmt"
)

// ErrorCode is the single transaction error taxonomy. Negative values are
// host-originated, 0 is success, positive values mirror the wire response
// codes (TErrorCodes in DPA.h).
type ErrorCode int

const (
	ErrIfaceExclusiveAccess ErrorCode = -8 // channel locked by another consumer
	ErrBadResponse          ErrorCode = -7
	ErrBadRequest           ErrorCode = -6
	ErrIfaceBusy            ErrorCode = -5 // transaction never started in time
	ErrIface                ErrorCode = -4 // transport failure during send
	ErrAborted              ErrorCode = -3
	ErrIfaceQueueFull       ErrorCode = -2
	ErrTimeout              ErrorCode = -1

	ErrOK ErrorCode = 0 // STATUS_NO_ERROR

	// Wire response codes
	ErrFail                    ErrorCode = 1
	ErrPcmd                    ErrorCode = 2
	ErrPnum                    ErrorCode = 3
	ErrAddr                    ErrorCode = 4
	ErrDataLen                 ErrorCode = 5
	ErrData                    ErrorCode = 6
	ErrHwpid                   ErrorCode = 7
	ErrNadr                    ErrorCode = 8
	ErrIfaceCustomHandler      ErrorCode = 9
	ErrMissingCustomDpaHandler ErrorCode = 10
	ErrUserFrom                ErrorCode = 0x20
	ErrUserTo                  ErrorCode = 0x3F
	ErrConfirmation            ErrorCode = 0xFF // STATUS_CONFIRMATION leaked into a result
)

var errorCodeNames = map[ErrorCode]string{
	ErrIfaceExclusiveAccess:    "ERROR_IFACE_EXCLUSIVE_ACCESS",
	ErrBadResponse:             "BAD_RESPONSE",
	ErrBadRequest:              "BAD_REQUEST",
	ErrIfaceBusy:               "ERROR_IFACE_BUSY",
	ErrIface:                   "ERROR_IFACE",
	ErrAborted:                 "ERROR_ABORTED",
	ErrIfaceQueueFull:          "ERROR_IFACE_QUEUE_FULL",
	ErrTimeout:                 "ERROR_TIMEOUT",
	ErrOK:                      "ok",
	ErrFail:                    "ERROR_FAIL",
	ErrPcmd:                    "ERROR_PCMD",
	ErrPnum:                    "ERROR_PNUM",
	ErrAddr:                    "ERROR_ADDR",
	ErrDataLen:                 "ERROR_DATA_LEN",
	ErrData:                    "ERROR_DATA",
	ErrHwpid:                   "ERROR_HWPID",
	ErrNadr:                    "ERROR_NADR",
	ErrIfaceCustomHandler:      "ERROR_IFACE_CUSTOM_HANDLER",
	ErrMissingCustomDpaHandler: "ERROR_MISSING_CUSTOM_DPA_HANDLER",
	ErrConfirmation:            "STATUS_CONFIRMATION",
}

// String returns the symbolic name of the code. User-defined wire codes in
// the [ErrUserFrom, ErrUserTo] range render with their hex value.
func (c ErrorCode) String() string {
	if name, ok := errorCodeNames[c]; ok {
		return name
	}
	if c >= ErrUserFrom && c <= ErrUserTo {
		return fmt.Sprintf("ERROR_USER_%02x", int(c))
	}
	return fmt.Sprintf("unknown error code (%d)", int(c))
}

// CodeFromResponse maps a wire ResponseCode byte to an ErrorCode.
func CodeFromResponse(responseCode uint8) ErrorCode {
	return ErrorCode(responseCode)
}

// DpaError is an error carrying an ErrorCode, optional context and an
// optional cause.
type DpaError struct {
	Code    ErrorCode
	Context string
	Cause   error
}

// Error implements the error interface
func (e *DpaError) Error() string {
	if e.Context != "" {
		if e.Cause != nil {
			return fmt.Sprintf("%s: %s: %v", e.Context, e.Code.String(), e.Cause)
		}
		return fmt.Sprintf("%s: %s", e.Context, e.Code.String())
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Code.String(), e.Cause)
	}
	return e.Code.String()
}

// Unwrap returns the underlying cause
func (e *DpaError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches a target code
func (e *DpaError) Is(target error) bool {
	var dpaErr *DpaError
	if errors.As(target, &dpaErr) {
		return e.Code == dpaErr.Code
	}
	return false
}

// NewError creates a new DpaError with the given code
func NewError(code ErrorCode, context string) *DpaError {
	return &DpaError{
		Code:    code,
		Context: context,
	}
}

// NewErrorWithCause creates a new DpaError with an underlying cause
func NewErrorWithCause(code ErrorCode, context string, cause error) *DpaError {
	return &DpaError{
		Code:    code,
		Context: context,
		Cause:   cause,
	}
}
