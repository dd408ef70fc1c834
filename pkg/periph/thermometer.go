package periph

import (
	"encoding/binary"

	"github.com/anthropics/purple-iqrf/pkg/dpa"
)

// Thermometer reads the on-board temperature sensor of a node.
type Thermometer struct {
	Task

	// raw values from the response
	IntTemperature   int8   // whole degrees, sign in bit 7
	SixteenthValue   uint16 // signed 1/16 C resolution
	FloatTemperature float64
}

// NewThermometer creates a temperature-read task.
func NewThermometer(nadr uint16) *Thermometer {
	return &Thermometer{Task: newTask("Thermometer", nadr, dpa.PnumThermometer, dpa.CmdThermometerRead)}
}

// ParseResponse decodes the temperature pair: a sign-and-magnitude integer
// byte plus a sixteenth-degree value.
func (th *Thermometer) ParseResponse(m *dpa.Message) error {
	if err := th.storeResponse(m); err != nil {
		return err
	}
	pdata := m.PData()
	if len(pdata) < 4 {
		return dpa.NewError(dpa.ErrBadResponse, "thermometer response too short")
	}

	raw := pdata[0]
	if raw&0x80 != 0 {
		th.IntTemperature = -int8(raw & 0x7F)
	} else {
		th.IntTemperature = int8(raw)
	}

	th.SixteenthValue = binary.LittleEndian.Uint16(pdata[2:4])
	sixteenth := int(th.SixteenthValue)
	if th.SixteenthValue&0x8000 != 0 {
		sixteenth = -int(th.SixteenthValue & 0x7FFF)
	}
	th.FloatTemperature = float64(sixteenth) * 0.0625

	return nil
}
