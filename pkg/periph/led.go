package periph

import "github.com/anthropics/purple-iqrf/pkg/dpa"

// LedCmd selects the LED operation.
type LedCmd uint8

const (
	LedSetOff LedCmd = LedCmd(dpa.CmdLedSetOff)
	LedSetOn  LedCmd = LedCmd(dpa.CmdLedSetOn)
	LedGet    LedCmd = LedCmd(dpa.CmdLedGet)
	LedPulse  LedCmd = LedCmd(dpa.CmdLedPulse)
)

// Led drives the red or green LED peripheral of a node.
type Led struct {
	Task
	state int // -1 until a GET response is parsed
}

// NewLedR creates a red-LED task.
func NewLedR(nadr uint16, cmd LedCmd) *Led {
	return &Led{Task: newTask("LedR", nadr, dpa.PnumLedR, uint8(cmd)), state: -1}
}

// NewLedG creates a green-LED task.
func NewLedG(nadr uint16, cmd LedCmd) *Led {
	return &Led{Task: newTask("LedG", nadr, dpa.PnumLedG, uint8(cmd)), state: -1}
}

// ParseResponse captures the LED state for GET commands.
func (l *Led) ParseResponse(m *dpa.Message) error {
	if err := l.storeResponse(m); err != nil {
		return err
	}
	if l.Pcmd() == uint8(LedGet) && len(m.PData()) > 0 {
		l.state = int(m.PData()[0])
	} else {
		l.state = -1
	}
	return nil
}

// LedState returns 0 or 1 after a GET response, -1 otherwise.
func (l *Led) LedState() int { return l.state }
