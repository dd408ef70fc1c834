package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/anthropics/purple-iqrf/pkg/dpa"
)

// State is the transaction lifecycle state.
type State int

const (
	StateCreated State = iota
	StateSent
	StateSentCoordinator
	StateConfirmation
	StateConfirmationBroadcast
	StateReceivedResponse
	StateProcessed
	StateTimeout
	StateAborted
	StateInterfaceError
	StateDefaultError
)

var stateNames = map[State]string{
	StateCreated:               "created",
	StateSent:                  "sent",
	StateSentCoordinator:       "sent-coordinator",
	StateConfirmation:          "confirmation",
	StateConfirmationBroadcast: "confirmation-broadcast",
	StateReceivedResponse:      "received-response",
	StateProcessed:             "processed",
	StateTimeout:               "timeout",
	StateAborted:               "aborted",
	StateInterfaceError:        "interface-error",
	StateDefaultError:          "default-error",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("unknown state (%d)", int(s))
}

// Terminal reports whether the state ends the transaction.
func (s State) Terminal() bool {
	switch s {
	case StateProcessed, StateTimeout, StateAborted, StateInterfaceError, StateDefaultError:
		return true
	}
	return false
}

// sendFunc hands a request frame to the channel.
type sendFunc func(*dpa.Message) error

// Transaction is one in-flight DPA request with its deadline bookkeeping and
// completion signalling. It is shared between the submitter blocking in
// Get() and the dispatcher worker running execute(); one mutex covers the
// state, the expected duration, the finish flag and the result.
//
// The deadline model: userTimeout is what the transaction waits for before
// the first frame arrives. Once a confirmation is seen, expectedDuration is
// re-estimated from the mesh topology it carries, and optionally refined
// again from the response length. The engine never waits less than the user
// asked for.
type Transaction struct {
	id string

	mu     sync.Mutex
	state  State
	finish bool

	infinite         bool
	userTimeoutMs    int32
	expectedDuration int32
	defaultTimeoutMs int32

	mode         RfMode
	timing       TimingParams
	defaultError dpa.ErrorCode

	// captured from the confirmation, reused to refine the deadline from
	// the response length
	hops         uint8
	timeslot     uint8
	hopsResponse uint8

	send   sendFunc
	result *Result

	// notify wakes the execute loop on state changes; started and done
	// release Get.
	notify    chan struct{}
	started   chan struct{}
	startOnce sync.Once
	done      chan struct{}

	log *logrus.Entry
}

// whitelisted reports whether the request may use an infinite timeout:
// coordinator-addressed Discovery, SmartConnect, AuthorizeBond, FRC_Send or
// FRC_SendSelective.
func whitelisted(request *dpa.Message) bool {
	if !request.IsCoordinator() {
		return false
	}
	switch request.PCMD() {
	case dpa.CmdCoordinatorDiscovery, dpa.CmdCoordinatorSmartConnect, dpa.CmdCoordinatorAuthorizeBond:
		return request.PNUM() == dpa.PnumCoordinator
	case dpa.CmdFrcSend, dpa.CmdFrcSendSelective:
		return request.PNUM() == dpa.PnumFrc
	}
	return false
}

// newTransaction normalizes the user timeout and initializes the state
// machine. userTimeoutMs below zero means "use the default"; zero requests
// an infinite wait, granted only to the whitelist.
func newTransaction(id string, request *dpa.Message, mode RfMode, timing TimingParams,
	defaultTimeoutMs, userTimeoutMs int32, forceFrcTiming bool,
	send sendFunc, defaultError dpa.ErrorCode, log *logrus.Entry) *Transaction {

	t := &Transaction{
		id:               id,
		state:            StateCreated,
		mode:             mode,
		timing:           timing,
		defaultTimeoutMs: defaultTimeoutMs,
		defaultError:     defaultError,
		send:             send,
		notify:           make(chan struct{}, 1),
		started:          make(chan struct{}),
		done:             make(chan struct{}),
		log:              log,
	}
	t.result = &Result{txn: t, request: *request, errorCode: dpa.ErrIface}

	required := userTimeoutMs

	switch {
	case required < 0:
		if whitelisted(request) {
			log.Debug("infinite timeout forced for discovery, smart connect, authorize or FRC request")
			t.infinite = true
		}
		required = defaultTimeoutMs
	case required == InfiniteTimeout:
		if whitelisted(request) {
			t.infinite = true
		} else {
			log.WithField("timeout", required).Warnf("infinite timeout refused, forced to %d ms", defaultTimeoutMs)
		}
		required = defaultTimeoutMs
	case required < defaultTimeoutMs:
		log.WithField("timeout", required).Warnf("timeout too low, forced to %d ms", defaultTimeoutMs)
		required = defaultTimeoutMs
	}

	// no estimation yet, wait the default
	t.expectedDuration = defaultTimeoutMs

	if request.IsCoordinator() {
		if required > defaultTimeoutMs {
			t.expectedDuration = required
		}

		if forceFrcTiming && request.PNUM() == dpa.PnumFrc &&
			(request.PCMD() == dpa.CmdFrcSend || request.PCMD() == dpa.CmdFrcSendSelective) {
			required = FrcTimeout(mode, timing)
			t.expectedDuration = required
			t.infinite = false
			log.WithField("timeout", required).Debug("FRC timing forced")
		}

		// bonding runs much longer than any routed request
		if request.PNUM() == dpa.PnumCoordinator && request.PCMD() == dpa.CmdCoordinatorBondNode &&
			userTimeoutMs < 0 {
			required = BondTimeoutMs
			t.expectedDuration = required
		}
	}

	t.userTimeoutMs = required
	return t
}

// ID returns the transaction correlation id.
func (t *Transaction) ID() string { return t.id }

// State returns the current lifecycle state.
func (t *Transaction) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Abort transitions the transaction to Aborted and wakes both the execute
// loop and Get. Aborting a finished transaction is a no-op.
func (t *Transaction) Abort() {
	t.mu.Lock()
	if !t.finish {
		t.state = StateAborted
	}
	t.mu.Unlock()
	t.wake()
}

// OverrideErrorCode replaces the result error code. It is only valid before
// the transaction completes; afterwards the result is immutable and an error
// is returned.
func (t *Transaction) OverrideErrorCode(code dpa.ErrorCode) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.result.completed {
		return dpa.NewError(dpa.ErrBadRequest, "result is immutable after completion")
	}
	t.result.errorCode = code
	t.result.overridden = true
	return nil
}

// Get blocks until the transaction reaches a terminal state and returns the
// result. If the transaction is never started by the dispatcher within the
// user timeout, the result carries ERROR_IFACE_BUSY. With an infinite
// timeout Get waits for the start indefinitely.
func (t *Transaction) Get() *Result {
	if t.infinite {
		<-t.started
	} else {
		timer := time.NewTimer(time.Duration(t.userTimeoutMs) * time.Millisecond)
		select {
		case <-t.started:
			timer.Stop()
		case <-timer.C:
			t.mu.Lock()
			if t.state == StateCreated && !t.finish {
				t.log.Warn("transaction was not started in time")
				t.finishLocked(dpa.ErrIfaceBusy)
				t.mu.Unlock()
				return t.result
			}
			t.mu.Unlock()
		}
	}

	<-t.done
	return t.result
}

// wake nudges the execute loop; a pending nudge is enough.
func (t *Transaction) wake() {
	select {
	case t.notify <- struct{}{}:
	default:
	}
}

func (t *Transaction) signalStart() {
	t.startOnce.Do(func() { close(t.started) })
}

// terminate finishes a transaction that will never be executed, e.g. when
// the dispatcher shuts down with the transaction still queued.
func (t *Transaction) terminate(code dpa.ErrorCode) {
	t.mu.Lock()
	if !t.finish {
		t.state = StateAborted
		t.finishLocked(code)
	}
	t.mu.Unlock()
	t.signalStart()
}

// finishLocked seals the result. Caller holds t.mu. The error code set by an
// earlier OverrideErrorCode call wins over the state-derived one.
func (t *Transaction) finishLocked(code dpa.ErrorCode) {
	if t.finish {
		return
	}
	if !t.result.overridden {
		t.result.errorCode = code
	}
	t.finish = true
	t.result.completed = true
	close(t.done)
}

// execute runs the transaction to completion on the dispatcher worker: send
// the request, then wait out the expected duration, re-evaluating the state
// after every inbound frame until a terminal state is reached.
func (t *Transaction) execute() {
	t.mu.Lock()

	if t.finish {
		// Get gave up before we started
		t.mu.Unlock()
		t.signalStart()
		return
	}

	request := t.result.request

	switch {
	case t.state == StateAborted:
		// aborted while still queued
	case t.defaultError != dpa.ErrOK:
		t.state = StateDefaultError
		t.expectedDuration = 0
	default:
		if request.IsCoordinator() {
			t.state = StateSentCoordinator
		} else {
			t.state = StateSent
		}
		t.result.requestTs = time.Now()

		// the lock is dropped across the channel write; inbound frames
		// observe the post-send state either way
		t.mu.Unlock()
		err := t.send(&request)
		t.mu.Lock()

		if err != nil {
			t.log.WithError(err).Warn("send error occurred")
			t.expectedDuration = 0
			t.state = StateInterfaceError
		}
	}

	t.signalStart()

	errorCode := dpa.ErrIface

	for {
		finish := true
		expired := false

		if wait := t.expectedDuration; wait > 0 {
			t.mu.Unlock()
			timer := time.NewTimer(time.Duration(wait) * time.Millisecond)
			select {
			case <-t.notify:
				timer.Stop()
			case <-timer.C:
				expired = true
			}
			t.mu.Lock()
		}

		switch t.state {
		case StateSent, StateSentCoordinator, StateConfirmation:
			if expired {
				if !t.infinite {
					t.state = StateTimeout
					errorCode = dpa.ErrTimeout
				} else {
					finish = false
				}
			} else {
				finish = false
			}
		case StateConfirmationBroadcast:
			if expired {
				t.state = StateProcessed
				errorCode = dpa.ErrOK
			} else {
				finish = false
			}
		case StateReceivedResponse:
			// cooling-off: keep the air clear of broadcast follow-ups
			// before the next request goes out
			if expired {
				t.state = StateProcessed
				errorCode = dpa.ErrOK
			} else {
				finish = false
			}
		case StateProcessed:
			errorCode = dpa.ErrOK
		case StateTimeout:
			errorCode = dpa.ErrTimeout
		case StateAborted:
			errorCode = dpa.ErrAborted
		case StateInterfaceError:
			errorCode = dpa.ErrIface
		case StateDefaultError:
			errorCode = t.defaultError
		default:
			errorCode = dpa.ErrIface
		}

		if finish {
			break
		}
	}

	if errorCode == dpa.ErrOK && t.result.responded {
		// surface the wire response code
		errorCode = dpa.CodeFromResponse(t.result.response.ResponseCode())
	}

	t.log.WithFields(logrus.Fields{"state": t.state, "error": errorCode}).Debug("transaction finished")
	t.finishLocked(errorCode)
	t.mu.Unlock()
}

// processReceived routes an inbound solicited frame into the state machine.
// A frame whose header does not match the in-flight request is rejected with
// a non-nil reason and leaves the transaction untouched; the caller logs and
// drops it.
func (t *Transaction) processReceived(msg *dpa.Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.finish {
		return nil
	}

	kind := msg.Type()
	if kind != dpa.KindResponse && kind != dpa.KindConfirmation {
		return fmt.Errorf("unexpected %s frame, response or confirmation expected", kind)
	}
	request := &t.result.request
	if msg.NADR() != request.NADR() {
		return fmt.Errorf("node address 0x%04x does not match request 0x%04x", msg.NADR(), request.NADR())
	}
	if msg.PNUM() != request.PNUM() {
		return fmt.Errorf("peripheral 0x%02x does not match request 0x%02x", msg.PNUM(), request.PNUM())
	}
	if msg.PCMD()&^dpa.ResponseFlag != request.PCMD() {
		return fmt.Errorf("command 0x%02x does not match request 0x%02x", msg.PCMD(), request.PCMD())
	}

	now := time.Now()

	if kind == dpa.KindConfirmation {
		if msg.IsBroadcast() {
			t.state = StateConfirmationBroadcast
		} else {
			t.state = StateConfirmation
		}

		t.hops = msg.Hops()
		t.timeslot = msg.TimeSlotLength()
		t.hopsResponse = msg.HopsResponse()

		estimated := EstimateTimeout(t.mode, t.timing.OsVersion, t.hops, t.timeslot, t.hopsResponse, UnknownResponseLength)
		if estimated > 0 {
			if estimated >= t.userTimeoutMs {
				t.expectedDuration = estimated
			} else {
				// the user wants to wait longer, keep the wish
				t.expectedDuration = t.userTimeoutMs
			}
		}
		t.log.WithField("estimate", estimated).Debug("confirmation processed")

		t.result.setConfirmation(msg, now)
	} else {
		if t.state == StateSentCoordinator {
			// local request, no routing to wait out
			t.state = StateProcessed
		} else if !t.infinite {
			t.state = StateReceivedResponse
			responseDataLength := msg.Len() - (dpa.HeaderSize + 2)
			estimated := EstimateTimeout(t.mode, t.timing.OsVersion, t.hops, t.timeslot, t.hopsResponse, responseDataLength)
			t.log.WithField("estimate", estimated).Debug("response processed")
			t.expectedDuration = estimated
			if t.expectedDuration <= 0 {
				t.state = StateProcessed
			}
		} else {
			t.state = StateProcessed
		}

		t.result.setResponse(msg, now)
	}

	t.wake()
	return nil
}
