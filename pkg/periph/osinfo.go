package periph

import (
	"encoding/binary"
	"fmt"

	"github.com/anthropics/purple-iqrf/pkg/dpa"
)

// OsInfo reads the OS peripheral of a node: module id, OS version and build,
// transceiver and MCU type.
type OsInfo struct {
	Task

	ModuleID  string
	OsVersion string // e.g. "4.02D"
	OsBuild   string
	TrType    string
	McuType   string
}

// NewOsRead creates an OS read task.
func NewOsRead(nadr uint16) *OsInfo {
	return &OsInfo{Task: newTask("std-per-os", nadr, dpa.PnumOs, dpa.CmdOsRead)}
}

// NewOsRestart creates an OS restart task.
func NewOsRestart(nadr uint16) *OsInfo {
	return &OsInfo{Task: newTask("std-per-os", nadr, dpa.PnumOs, dpa.CmdOsRestart)}
}

// ParseResponse decodes the OS read payload. Layout: ModuleId[4], OsVersion,
// McuType, OsBuild[2], Rssi, SupplyVoltage, Flags, SlotLimits.
func (o *OsInfo) ParseResponse(m *dpa.Message) error {
	if err := o.storeResponse(m); err != nil {
		return err
	}
	if o.Pcmd() != dpa.CmdOsRead {
		return nil
	}
	pdata := m.PData()
	if len(pdata) < 8 {
		return dpa.NewError(dpa.ErrBadResponse, "OS read response too short")
	}

	o.ModuleID = fmt.Sprintf("%02x%02x%02x%02x", pdata[3], pdata[2], pdata[1], pdata[0])

	osVersion := pdata[4]
	o.OsVersion = fmt.Sprintf("%x.%02xD", osVersion>>4, osVersion&0x0F)

	if pdata[3]&0x80 != 0 {
		o.TrType = "DCTR-"
	} else {
		o.TrType = "TR-"
	}
	switch pdata[5] >> 4 {
	case 0:
		o.TrType += "52D"
	case 1:
		o.TrType += "58D-RJ"
	case 2:
		o.TrType += "72D"
	case 3:
		o.TrType += "53D"
	case 8:
		o.TrType += "54D"
	case 9:
		o.TrType += "55D"
	case 10:
		o.TrType += "56D"
	case 11:
		o.TrType += "76D"
	default:
		o.TrType += "???"
	}

	switch pdata[5] & 0x07 {
	case 3:
		o.McuType = "PIC16F886"
	case 4:
		o.McuType = "PIC16F1938"
	default:
		o.McuType = "UNKNOWN"
	}

	o.OsBuild = fmt.Sprintf("%04x", binary.LittleEndian.Uint16(pdata[6:8]))

	return nil
}
