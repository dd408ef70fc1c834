// Package dpa implements the DPA frame codec: the fixed-layout message
// buffer, the wire constants from the published IQRF DPA specification, and
// the direction classification used to demultiplex inbound traffic.
package dpa

import "encoding/binary"

// Frame layout constants. A DPA frame is a 6-byte header followed by up to
// 58 bytes of payload; responses carry two extra status bytes before the
// payload. Matches TDpaIFaceHeader in DPA.h.
const (
	MaxMessageSize = 64 // MAX_DPA_BUFFER

	HeaderSize = 6 // NADR(2) + PNUM(1) + PCMD(1) + HWPID(2)

	nadrIndex         = 0
	pnumIndex         = 2
	pcmdIndex         = 3
	hwpidIndex        = 4
	responseCodeIndex = 6
	dpaValueIndex     = 7

	// Payload offset of a response frame (header + ResponseCode + DpaValue).
	ResponseDataIndex = 8
)

// MessageType classifies a frame by direction.
type MessageType int

const (
	// KindRequest is an outgoing request, or an unsolicited request
	// arriving from the mesh (always routed to the async sink).
	KindRequest MessageType = iota
	// KindConfirmation acknowledges mesh dispatch and carries routing
	// hops and time-slot length.
	KindConfirmation
	// KindResponse is a solicited response to the in-flight request.
	KindResponse
	// KindAsyncResponse is a response frame flagged STATUS_ASYNC_RESPONSE;
	// it is unrelated to any request.
	KindAsyncResponse
)

func (t MessageType) String() string {
	switch t {
	case KindRequest:
		return "request"
	case KindConfirmation:
		return "confirmation"
	case KindResponse:
		return "response"
	case KindAsyncResponse:
		return "async-response"
	}
	return "unknown"
}

// Message is a single DPA frame. The backing buffer is fixed at 64 bytes;
// only the first Len() bytes are meaningful. The zero value is an empty
// message.
type Message struct {
	buf    [MaxMessageSize]byte
	length int
}

// NewRequest builds a request frame from its logical fields. It fails with
// ErrBadRequest when the total length would exceed the 64-byte frame limit.
func NewRequest(nadr uint16, pnum, pcmd uint8, hwpid uint16, pdata []byte) (*Message, error) {
	if HeaderSize+len(pdata) > MaxMessageSize {
		return nil, NewError(ErrBadRequest, "request data too long")
	}
	var m Message
	binary.LittleEndian.PutUint16(m.buf[nadrIndex:], nadr)
	m.buf[pnumIndex] = pnum
	m.buf[pcmdIndex] = pcmd
	binary.LittleEndian.PutUint16(m.buf[hwpidIndex:], hwpid)
	copy(m.buf[HeaderSize:], pdata)
	m.length = HeaderSize + len(pdata)
	return &m, nil
}

// Parse stores a received frame verbatim. Zero-length input is rejected with
// ErrBadResponse; no structural validation happens beyond the length bounds.
func Parse(data []byte) (*Message, error) {
	if len(data) == 0 {
		return nil, NewError(ErrBadResponse, "empty frame")
	}
	if len(data) > MaxMessageSize {
		return nil, NewError(ErrBadResponse, "frame exceeds 64 bytes")
	}
	var m Message
	copy(m.buf[:], data)
	m.length = len(data)
	return &m, nil
}

// Len returns the number of meaningful bytes in the frame.
func (m *Message) Len() int { return m.length }

// Bytes returns the wire representation of the frame.
func (m *Message) Bytes() []byte { return m.buf[:m.length] }

// NADR returns the 16-bit little-endian node address.
func (m *Message) NADR() uint16 { return binary.LittleEndian.Uint16(m.buf[nadrIndex:]) }

// PNUM returns the peripheral number.
func (m *Message) PNUM() uint8 { return m.buf[pnumIndex] }

// PCMD returns the peripheral command including the response flag bit.
func (m *Message) PCMD() uint8 { return m.buf[pcmdIndex] }

// HWPID returns the hardware profile identifier.
func (m *Message) HWPID() uint16 { return binary.LittleEndian.Uint16(m.buf[hwpidIndex:]) }

// ResponseCode returns the status byte of a response frame. Reading it from
// a frame shorter than 7 bytes yields the zero fill of the backing buffer.
func (m *Message) ResponseCode() uint8 { return m.buf[responseCodeIndex] }

// DpaValue returns the DPA value byte of a response frame.
func (m *Message) DpaValue() uint8 { return m.buf[dpaValueIndex] }

// PData returns the peripheral payload: everything past the header for a
// request, everything past the two status bytes for a response.
func (m *Message) PData() []byte {
	start := HeaderSize
	if m.Type() != KindRequest {
		start = ResponseDataIndex
	}
	if m.length <= start {
		return nil
	}
	return m.buf[start:m.length]
}

// IsBroadcast reports whether the frame addresses the whole network.
func (m *Message) IsBroadcast() bool { return m.NADR()&BroadcastAddress == BroadcastAddress }

// IsCoordinator reports whether the frame addresses the local coordinator.
func (m *Message) IsCoordinator() bool { return m.NADR()&BroadcastAddress == CoordinatorAddress }

// Type classifies the frame per direction:
//
//   - frames too short to carry a command byte are requests
//   - PCMD bit 7 set with ResponseCode == STATUS_CONFIRMATION and length
//     over the header is a confirmation
//   - PCMD bit 7 set with the STATUS_ASYNC_RESPONSE flag in ResponseCode is
//     an asynchronous notification
//   - PCMD bit 7 set otherwise is a solicited response
//   - anything else is a request (unsolicited when received)
func (m *Message) Type() MessageType {
	if m.length <= pcmdIndex {
		return KindRequest
	}
	if m.buf[pcmdIndex]&ResponseFlag == 0 {
		return KindRequest
	}
	if m.length > responseCodeIndex && m.buf[responseCodeIndex] == StatusConfirmation {
		return KindConfirmation
	}
	if m.buf[responseCodeIndex]&StatusAsyncResponse != 0 {
		return KindAsyncResponse
	}
	return KindResponse
}

// Confirmation fields, valid only for KindConfirmation frames. The three
// payload bytes are {Hops, TimeSlotLength, HopsResponse} — the mesh topology
// snapshot used to estimate the transaction deadline. Matches
// TIFaceConfirmation in DPA.h.

// Hops returns the number of hops used to deliver the request.
func (m *Message) Hops() uint8 { return m.buf[ResponseDataIndex] }

// TimeSlotLength returns the routing time-slot length in 10 ms units.
func (m *Message) TimeSlotLength() uint8 { return m.buf[ResponseDataIndex+1] }

// HopsResponse returns the number of hops used to deliver the response.
func (m *Message) HopsResponse() uint8 { return m.buf[ResponseDataIndex+2] }

// IsEnumeration reports whether the frame is a peripheral enumeration
// (PNUM_ENUMERATION with CMD_GET_PER_INFO). Enumeration frames route the
// same way as any other frame; the predicate exists for callers that want
// to special-case them.
func (m *Message) IsEnumeration() bool {
	return m.PNUM() == PnumEnumeration && m.PCMD()&^ResponseFlag == CmdGetPerInfo
}
