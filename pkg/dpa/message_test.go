//go:build unit

package dpa

import (
	"bytes"
	"testing"
)

func TestNewRequestLayout(t *testing.T) {
	m, err := NewRequest(0x0001, PnumLedR, CmdLedPulse, HwpidDoNotCheck, nil)
	if err != nil {
		t.Fatalf("NewRequest failed: %v", err)
	}

	expected := []byte{0x01, 0x00, 0x06, 0x03, 0xFF, 0xFF}
	if !bytes.Equal(m.Bytes(), expected) {
		t.Errorf("frame = % x, expected % x", m.Bytes(), expected)
	}
	if m.NADR() != 0x0001 {
		t.Errorf("NADR = 0x%04x, expected 0x0001", m.NADR())
	}
	if m.PNUM() != PnumLedR || m.PCMD() != CmdLedPulse {
		t.Errorf("PNUM/PCMD = 0x%02x/0x%02x", m.PNUM(), m.PCMD())
	}
	if m.HWPID() != HwpidDoNotCheck {
		t.Errorf("HWPID = 0x%04x, expected 0xffff", m.HWPID())
	}
}

func TestNewRequestWithData(t *testing.T) {
	pdata := []byte{0x07, 0x01, 0x02}
	m, err := NewRequest(CoordinatorAddress, PnumIo, CmdIoSet, HwpidDefault, pdata)
	if err != nil {
		t.Fatalf("NewRequest failed: %v", err)
	}
	if m.Len() != HeaderSize+3 {
		t.Errorf("Len = %d, expected %d", m.Len(), HeaderSize+3)
	}
	if !bytes.Equal(m.PData(), pdata) {
		t.Errorf("PData = % x, expected % x", m.PData(), pdata)
	}
}

func TestNewRequestTooLong(t *testing.T) {
	_, err := NewRequest(0x0001, PnumRam, 0x00, HwpidDefault, make([]byte, 59))
	if err == nil {
		t.Fatal("expected error for oversized request")
	}
	dpaErr, ok := err.(*DpaError)
	if !ok || dpaErr.Code != ErrBadRequest {
		t.Errorf("expected BAD_REQUEST, got %v", err)
	}
}

func TestParseRejectsEmptyFrame(t *testing.T) {
	if _, err := Parse(nil); err == nil {
		t.Fatal("expected error for empty frame")
	}
	_, err := Parse([]byte{})
	dpaErr, ok := err.(*DpaError)
	if !ok || dpaErr.Code != ErrBadResponse {
		t.Errorf("expected BAD_RESPONSE, got %v", err)
	}
}

func TestParseRejectsOversizedFrame(t *testing.T) {
	if _, err := Parse(make([]byte, 65)); err == nil {
		t.Fatal("expected error for oversized frame")
	}
}

func TestRoundTrip(t *testing.T) {
	for size := HeaderSize; size <= MaxMessageSize; size++ {
		frame := make([]byte, size)
		for i := range frame {
			frame[i] = byte(i * 7)
		}
		m, err := Parse(frame)
		if err != nil {
			t.Fatalf("Parse(%d bytes) failed: %v", size, err)
		}
		if !bytes.Equal(m.Bytes(), frame) {
			t.Fatalf("round trip mismatch at size %d", size)
		}
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		frame    []byte
		expected MessageType
	}{
		{"short frame", []byte{0x01, 0x00}, KindRequest},
		{"request", []byte{0x01, 0x00, 0x06, 0x03, 0xFF, 0xFF}, KindRequest},
		{"async request from mesh", []byte{0x01, 0x00, 0x20, 0x0A, 0x00, 0x00, 0x05}, KindRequest},
		{"response", []byte{0x01, 0x00, 0x06, 0x83, 0xFF, 0xFF, 0x00, 0x07}, KindResponse},
		{"error response", []byte{0x01, 0x00, 0x06, 0x83, 0xFF, 0xFF, 0x04, 0x07}, KindResponse},
		{"confirmation", []byte{0x01, 0x00, 0x0A, 0x80, 0xFF, 0xFF, 0xFF, 0x30, 0x01, 0x06, 0x01}, KindConfirmation},
		{"async notification", []byte{0x01, 0x00, 0x02, 0x82, 0x00, 0x00, 0x80, 0x07}, KindAsyncResponse},
		{"response without status bytes", []byte{0x01, 0x00, 0x06, 0x83, 0xFF, 0xFF}, KindResponse},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m, err := Parse(tc.frame)
			if err != nil {
				t.Fatalf("Parse failed: %v", err)
			}
			if got := m.Type(); got != tc.expected {
				t.Errorf("Type() = %v, expected %v", got, tc.expected)
			}
		})
	}
}

func TestConfirmationFields(t *testing.T) {
	frame := []byte{0xFF, 0x00, 0x06, 0x83, 0xFF, 0xFF, 0xFF, 0x30, 0x02, 0x08, 0x03}
	m, err := Parse(frame)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if m.Type() != KindConfirmation {
		t.Fatalf("Type() = %v, expected confirmation", m.Type())
	}
	if m.Hops() != 2 || m.TimeSlotLength() != 8 || m.HopsResponse() != 3 {
		t.Errorf("topology = {%d %d %d}, expected {2 8 3}", m.Hops(), m.TimeSlotLength(), m.HopsResponse())
	}
	if !m.IsBroadcast() {
		t.Error("expected broadcast NADR")
	}
}

func TestResponsePData(t *testing.T) {
	frame := []byte{0x00, 0x00, 0x0A, 0x80, 0xFF, 0xFF, 0x00, 0x07, 0x18, 0x00, 0x85, 0x01}
	m, err := Parse(frame)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if m.ResponseCode() != StatusNoError || m.DpaValue() != 0x07 {
		t.Errorf("status bytes = %02x %02x", m.ResponseCode(), m.DpaValue())
	}
	if !bytes.Equal(m.PData(), []byte{0x18, 0x00, 0x85, 0x01}) {
		t.Errorf("PData = % x", m.PData())
	}
}

func TestIsEnumeration(t *testing.T) {
	m, err := Parse([]byte{0x01, 0x00, 0xFF, 0xBF, 0xFF, 0xFF, 0x00, 0x00})
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if !m.IsEnumeration() {
		t.Error("expected enumeration frame")
	}
}
