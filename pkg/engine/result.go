package engine

import (
	"time"

	"github.com/anthropics/purple-iqrf/pkg/dpa"
)

// Result carries the outcome of a completed transaction: the request, the
// optional confirmation and response frames, their timestamps, and the final
// error code. It is written by the engine while the transaction runs and
// becomes immutable once the transaction completes.
type Result struct {
	txn *Transaction // owner; guards the fields via its mutex

	request      dpa.Message
	confirmation dpa.Message
	response     dpa.Message
	confirmed    bool
	responded    bool

	requestTs      time.Time
	confirmationTs time.Time
	responseTs     time.Time

	errorCode  dpa.ErrorCode
	overridden bool
	completed  bool
}

// ErrorCode returns the transaction error code. ErrOK means the wire
// ResponseCode was STATUS_NO_ERROR; any positive value mirrors the wire
// response code.
func (r *Result) ErrorCode() dpa.ErrorCode {
	r.txn.mu.Lock()
	defer r.txn.mu.Unlock()
	return r.errorCode
}

// ErrorString returns the symbolic name of the error code.
func (r *Result) ErrorString() string {
	return r.ErrorCode().String()
}

// Request returns the request frame the transaction was built from.
func (r *Result) Request() *dpa.Message { return &r.request }

// IsConfirmed reports whether a confirmation was captured.
func (r *Result) IsConfirmed() bool {
	r.txn.mu.Lock()
	defer r.txn.mu.Unlock()
	return r.confirmed
}

// IsResponded reports whether a response was captured.
func (r *Result) IsResponded() bool {
	r.txn.mu.Lock()
	defer r.txn.mu.Unlock()
	return r.responded
}

// Confirmation returns the captured confirmation frame, or nil.
func (r *Result) Confirmation() *dpa.Message {
	r.txn.mu.Lock()
	defer r.txn.mu.Unlock()
	if !r.confirmed {
		return nil
	}
	c := r.confirmation
	return &c
}

// Response returns the captured response frame, or nil.
func (r *Result) Response() *dpa.Message {
	r.txn.mu.Lock()
	defer r.txn.mu.Unlock()
	if !r.responded {
		return nil
	}
	resp := r.response
	return &resp
}

// RequestTs returns the time the request was handed to the channel.
func (r *Result) RequestTs() time.Time {
	r.txn.mu.Lock()
	defer r.txn.mu.Unlock()
	return r.requestTs
}

// ConfirmationTs returns the time the confirmation arrived.
func (r *Result) ConfirmationTs() time.Time {
	r.txn.mu.Lock()
	defer r.txn.mu.Unlock()
	return r.confirmationTs
}

// ResponseTs returns the time the response arrived.
func (r *Result) ResponseTs() time.Time {
	r.txn.mu.Lock()
	defer r.txn.mu.Unlock()
	return r.responseTs
}

// callers hold txn.mu

func (r *Result) setConfirmation(m *dpa.Message, ts time.Time) {
	r.confirmation = *m
	r.confirmed = true
	r.confirmationTs = ts
}

func (r *Result) setResponse(m *dpa.Message, ts time.Time) {
	r.response = *m
	r.responded = true
	r.responseTs = ts
}
