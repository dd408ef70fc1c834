package periph

import (
	"encoding/binary"

	"github.com/anthropics/purple-iqrf/pkg/dpa"
)

// FRC user command ranges by collected data width.
const (
	FrcUserBitFrom   uint8 = 0x40
	FrcUserBitTo     uint8 = 0x7F
	FrcUserByteFrom  uint8 = 0x80
	FrcUserByteTo    uint8 = 0xDF
	FrcUser2ByteFrom uint8 = 0xE0
	FrcUser2ByteTo   uint8 = 0xFF
)

// MaxFrcNodes is the number of addressable FRC slots.
const MaxFrcNodes = 239

// Frc runs a Fast Response Command: a broadcast query whose per-node answers
// are aggregated by the coordinator into a bit or byte array.
type Frc struct {
	Task

	frcCommand uint8
	status     uint8
	data       []byte
}

// NewFrcSend creates an FRC send task. userData travels to every node with
// the command.
func NewFrcSend(frcCommand uint8, userData []byte) *Frc {
	f := &Frc{
		Task:       newTask("Frc", dpa.CoordinatorAddress, dpa.PnumFrc, dpa.CmdFrcSend),
		frcCommand: frcCommand,
	}
	f.pdata = append([]byte{frcCommand}, userData...)
	return f
}

// NewFrcSendSelective creates a selective FRC task addressing only the nodes
// set in the 30-byte selection bitmap.
func NewFrcSendSelective(frcCommand uint8, selectedNodes [30]byte, userData []byte) *Frc {
	f := &Frc{
		Task:       newTask("Frc", dpa.CoordinatorAddress, dpa.PnumFrc, dpa.CmdFrcSendSelective),
		frcCommand: frcCommand,
	}
	f.pdata = append([]byte{frcCommand}, selectedNodes[:]...)
	f.pdata = append(f.pdata, userData...)
	return f
}

// NewFrcExtraResult creates the follow-up task collecting the remainder of
// the FRC data that did not fit the first response.
func NewFrcExtraResult() *Frc {
	return &Frc{Task: newTask("Frc", dpa.CoordinatorAddress, dpa.PnumFrc, dpa.CmdFrcExtraResult)}
}

// ParseResponse captures the FRC status byte and the aggregated data block.
func (f *Frc) ParseResponse(m *dpa.Message) error {
	if err := f.storeResponse(m); err != nil {
		return err
	}
	pdata := m.PData()
	if f.Pcmd() == dpa.CmdFrcExtraResult {
		f.data = append(f.data, pdata...)
		return nil
	}
	if len(pdata) < 1 {
		return dpa.NewError(dpa.ErrBadResponse, "FRC response too short")
	}
	f.status = pdata[0]
	f.data = append([]byte(nil), pdata[1:]...)
	return nil
}

// Status returns the FRC status byte; values up to 0xEF are the number of
// answering nodes.
func (f *Frc) Status() uint8 { return f.status }

// Data returns the aggregated FRC data collected so far.
func (f *Frc) Data() []byte { return f.data }

// BitResult returns the 2-bit answer of the given node for bit-type FRC
// commands. Node addresses are 1-based.
func (f *Frc) BitResult(node uint8) uint8 {
	if node == 0 || node > MaxFrcNodes {
		return 0
	}
	idx := int(node) / 8
	bit := uint(node) % 8
	var result uint8
	if idx < len(f.data) && f.data[idx]&(1<<bit) != 0 {
		result |= 1
	}
	if 32+idx < len(f.data) && f.data[32+idx]&(1<<bit) != 0 {
		result |= 2
	}
	return result
}

// ByteResult returns the one-byte answer of the given node for byte-type
// FRC commands.
func (f *Frc) ByteResult(node uint8) uint8 {
	if node == 0 || int(node) > len(f.data) {
		return 0
	}
	return f.data[node-1]
}

// WordResult returns the two-byte answer of the given node for 2-byte FRC
// commands.
func (f *Frc) WordResult(node uint8) uint16 {
	if node == 0 || int(node)*2 > len(f.data) {
		return 0
	}
	return binary.LittleEndian.Uint16(f.data[(int(node)-1)*2:])
}
