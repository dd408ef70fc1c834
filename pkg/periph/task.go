// Package periph provides typed request builders and response parsers for
// the standard DPA peripherals. Every task produces a dpa.Message ready for
// the engine and knows how to pick its values out of the matching response.
package periph

import (
	"github.com/anthropics/purple-iqrf/pkg/dpa"
)

// Task is the common part of a peripheral helper: the request under
// construction plus the captured confirmation and response.
type Task struct {
	name  string
	nadr  uint16
	pnum  uint8
	pcmd  uint8
	hwpid uint16
	pdata []byte

	confirmation *dpa.Message
	response     *dpa.Message
}

func newTask(name string, nadr uint16, pnum, pcmd uint8) Task {
	return Task{name: name, nadr: nadr, pnum: pnum, pcmd: pcmd, hwpid: dpa.HwpidDoNotCheck}
}

// Name returns the peripheral name used in logs.
func (t *Task) Name() string { return t.name }

// Address returns the target node address.
func (t *Task) Address() uint16 { return t.nadr }

// SetAddress retargets the request.
func (t *Task) SetAddress(nadr uint16) { t.nadr = nadr }

// Pcmd returns the peripheral command.
func (t *Task) Pcmd() uint8 { return t.pcmd }

// SetPcmd sets the peripheral command.
func (t *Task) SetPcmd(pcmd uint8) { t.pcmd = pcmd }

// SetHwpid sets the hardware profile filter; the default is do-not-check.
func (t *Task) SetHwpid(hwpid uint16) { t.hwpid = hwpid }

// Request assembles the request frame.
func (t *Task) Request() (*dpa.Message, error) {
	return dpa.NewRequest(t.nadr, t.pnum, t.pcmd, t.hwpid, t.pdata)
}

// HandleConfirmation stores the confirmation frame.
func (t *Task) HandleConfirmation(m *dpa.Message) { t.confirmation = m }

// Confirmation returns the stored confirmation, or nil.
func (t *Task) Confirmation() *dpa.Message { return t.confirmation }

// Response returns the stored response, or nil.
func (t *Task) Response() *dpa.Message { return t.response }

// storeResponse validates the wire status before the typed parse.
func (t *Task) storeResponse(m *dpa.Message) error {
	if code := m.ResponseCode(); code != dpa.StatusNoError {
		return dpa.NewError(dpa.CodeFromResponse(code), t.name)
	}
	t.response = m
	return nil
}
