package engine

import (
	"sync"

	"github.com/rs/xid"
	"github.com/sirupsen/logrus"

	"github.com/anthropics/purple-iqrf/pkg/channel"
	"github.com/anthropics/purple-iqrf/pkg/dpa"
)

// QueueMaxLen bounds the number of submitted transactions waiting for the
// link. A submission past the bound fails immediately with
// ERROR_IFACE_QUEUE_FULL.
const QueueMaxLen = 16

// AsyncHandlerFunc consumes asynchronous messages: unsolicited requests from
// the mesh and responses flagged STATUS_ASYNC_RESPONSE.
type AsyncHandlerFunc func(msg *dpa.Message)

// Handler is the DPA dispatcher. It owns the single serial link, serializes
// submitted transactions so that at most one is in flight, and demultiplexes
// inbound frames between the in-flight transaction and the async sink.
type Handler struct {
	ch  channel.Channel
	log *logrus.Logger

	queue chan *Transaction
	stop  chan struct{}
	wg    sync.WaitGroup

	// mu guards the dispatcher configuration and the pending pointer
	mu             sync.Mutex
	pending        *Transaction
	defaultTimeout int32
	rfMode         RfMode
	timing         TimingParams
	forceFrcTiming bool
	closed         bool

	// asyncMu guards the async sink; registration and invocation are
	// mutually exclusive. Never held together with a transaction mutex.
	asyncMu      sync.Mutex
	asyncID      string
	asyncHandler AsyncHandlerFunc

	metrics *Metrics
}

// NewHandler creates a dispatcher bound to the given channel and starts its
// worker. The channel's receiver is registered immediately; inbound frames
// may arrive before the first submission.
func NewHandler(ch channel.Channel, log *logrus.Logger) (*Handler, error) {
	if ch == nil {
		return nil, dpa.NewError(dpa.ErrBadRequest, "channel must not be nil")
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	h := &Handler{
		ch:             ch,
		log:            log,
		queue:          make(chan *Transaction, QueueMaxLen),
		stop:           make(chan struct{}),
		defaultTimeout: DefaultTimeoutMs,
		rfMode:         RfModeStd,
		timing:         DefaultTimingParams(),
		metrics:        newMetrics(),
	}

	ch.RegisterReceiver(h.receiveFrame)

	h.wg.Add(1)
	go h.worker()

	return h, nil
}

// Submit constructs a transaction for the request, queues it and returns its
// handle. Submitting an empty request is a programming error and fails
// immediately. A non-OK defaultError makes the transaction finish with that
// code without touching the channel (upstream-enforced failure).
func (h *Handler) Submit(request *dpa.Message, timeoutMs int32, defaultError dpa.ErrorCode) (*Transaction, error) {
	if request == nil || request.Len() < dpa.HeaderSize {
		return nil, dpa.NewError(dpa.ErrBadRequest, "empty request, nothing to send")
	}

	h.mu.Lock()
	mode := h.rfMode
	timing := h.timing
	defaultTimeout := h.defaultTimeout
	forceFrc := h.forceFrcTiming
	closed := h.closed
	h.mu.Unlock()

	id := xid.New().String()
	log := h.log.WithFields(logrus.Fields{"transaction": id, "nadr": request.NADR(), "pnum": request.PNUM(), "pcmd": request.PCMD()})

	txn := newTransaction(id, request, mode, timing, defaultTimeout, timeoutMs, forceFrc,
		h.sendRequest, defaultError, log)

	if closed {
		txn.terminate(dpa.ErrAborted)
		return txn, nil
	}

	select {
	case h.queue <- txn:
	default:
		log.WithField("queue", QueueMaxLen).Error("transaction queue overload")
		// run to completion inline; the default-error path never touches
		// the channel
		txn.defaultError = dpa.ErrIfaceQueueFull
		txn.execute()
		h.metrics.observeResult(dpa.ErrIfaceQueueFull)
	}
	return txn, nil
}

// worker pops transactions one at a time; the popped transaction is the only
// one observable as in flight.
func (h *Handler) worker() {
	defer h.wg.Done()
	for {
		select {
		case <-h.stop:
			return
		default:
		}

		select {
		case <-h.stop:
			return
		case txn := <-h.queue:
			h.mu.Lock()
			h.pending = txn
			h.mu.Unlock()
			h.metrics.inflight.Set(1)

			txn.execute()

			h.metrics.inflight.Set(0)
			h.metrics.observeResult(txn.result.ErrorCode())
		}
	}
}

// receiveFrame is the channel receive callback; it may run on any transport
// goroutine and preempt the worker at any point.
func (h *Handler) receiveFrame(data []byte) {
	if len(data) == 0 {
		return
	}

	msg, err := dpa.Parse(data)
	if err != nil {
		h.log.WithError(err).Warn("dropping unparsable frame")
		h.metrics.framesDropped.Inc()
		return
	}

	kind := msg.Type()
	h.log.WithFields(logrus.Fields{"type": kind, "len": msg.Len()}).Debugf("received % x", msg.Bytes())
	h.metrics.framesReceived.WithLabelValues(kind.String()).Inc()

	switch kind {
	case dpa.KindRequest, dpa.KindAsyncResponse:
		// unsolicited traffic never touches transaction state
		h.processAsynchronousMessage(msg)
	default:
		h.mu.Lock()
		pending := h.pending
		h.mu.Unlock()

		if pending == nil {
			h.log.Warn("dropping solicited frame with no transaction in flight")
			h.metrics.framesDropped.Inc()
			return
		}
		if err := pending.processReceived(msg); err != nil {
			h.log.WithError(err).Warn("dropping mismatched frame")
			h.metrics.framesDropped.Inc()
		}
	}
}

func (h *Handler) processAsynchronousMessage(msg *dpa.Message) {
	h.asyncMu.Lock()
	defer h.asyncMu.Unlock()
	if h.asyncHandler != nil {
		h.asyncHandler(msg)
	}
}

func (h *Handler) sendRequest(request *dpa.Message) error {
	h.log.Debugf("sent to IQRF interface: % x", request.Bytes())
	return h.ch.Send(request.Bytes())
}

// Timeout returns the default per-transaction timeout in milliseconds.
func (h *Handler) Timeout() int32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.defaultTimeout
}

// SetTimeout sets the default timeout; values below MinimalTimeoutMs are
// raised to it.
func (h *Handler) SetTimeout(timeoutMs int32) {
	if timeoutMs < MinimalTimeoutMs {
		h.log.WithField("timeout", timeoutMs).Warnf("timeout too low, forced to %d ms", int32(MinimalTimeoutMs))
		timeoutMs = MinimalTimeoutMs
	}
	h.mu.Lock()
	h.defaultTimeout = timeoutMs
	h.mu.Unlock()
}

// RfMode returns the RF mode used for deadline estimation.
func (h *Handler) RfMode() RfMode {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rfMode
}

// SetRfMode selects the RF mode used for deadline estimation.
func (h *Handler) SetRfMode(mode RfMode) {
	h.mu.Lock()
	h.rfMode = mode
	h.mu.Unlock()
}

// TimingParams returns the current network timing parameters.
func (h *Handler) TimingParams() TimingParams {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.timing
}

// SetTimingParams replaces the network timing parameters.
func (h *Handler) SetTimingParams(params TimingParams) {
	h.mu.Lock()
	h.timing = params
	h.mu.Unlock()
}

// FrcResponseTime returns the configured FRC response time tier.
func (h *Handler) FrcResponseTime() FrcResponseTime {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.timing.FrcResponseTime
}

// SetFrcResponseTime sets the FRC response time tier.
func (h *Handler) SetFrcResponseTime(t FrcResponseTime) {
	h.mu.Lock()
	h.timing.FrcResponseTime = t
	h.mu.Unlock()
}

// SetForceFrcTiming opts FRC_Send and FRC_SendSelective submissions into the
// FRC deadline formula instead of the user timeout.
func (h *Handler) SetForceFrcTiming(force bool) {
	h.mu.Lock()
	h.forceFrcTiming = force
	h.mu.Unlock()
}

// RegisterAsyncHandler installs the async-message sink. The engine supports
// a single sink; registering replaces the previous one and serviceID is kept
// for bookkeeping only.
func (h *Handler) RegisterAsyncHandler(serviceID string, fn AsyncHandlerFunc) {
	h.asyncMu.Lock()
	defer h.asyncMu.Unlock()
	h.asyncID = serviceID
	h.asyncHandler = fn
}

// UnregisterAsyncHandler removes the async-message sink.
func (h *Handler) UnregisterAsyncHandler(serviceID string) {
	h.asyncMu.Lock()
	defer h.asyncMu.Unlock()
	h.asyncID = ""
	h.asyncHandler = nil
}

// Close aborts the in-flight transaction, drains the queue and stops the
// worker. Queued transactions finish with ERROR_ABORTED.
func (h *Handler) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	pending := h.pending
	h.mu.Unlock()

	close(h.stop)
	if pending != nil {
		pending.Abort()
	}
	h.wg.Wait()

	for {
		select {
		case txn := <-h.queue:
			txn.terminate(dpa.ErrAborted)
		default:
			return
		}
	}
}
