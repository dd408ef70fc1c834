package dpa

// Network addresses from DPA.h
const (
	CoordinatorAddress uint16 = 0x00 // COORDINATOR_ADDRESS
	LocalAddress       uint16 = 0xFC // LOCAL_ADDRESS (local device)
	TemporaryAddress   uint16 = 0xFE // TEMPORARY_ADDRESS
	BroadcastAddress   uint16 = 0xFF // BROADCAST_ADDRESS
	MaxNodeAddress     uint16 = 0xEF // highest bonded node address
)

// Hardware profile identifiers
const (
	HwpidDefault    uint16 = 0x0000 // HWPID_Default
	HwpidDoNotCheck uint16 = 0xFFFF // HWPID_DoNotCheck
)

// Peripheral numbers from the DPA specification (PNUM_*)
const (
	PnumCoordinator uint8 = 0x00
	PnumNode        uint8 = 0x01
	PnumOs          uint8 = 0x02
	PnumEeprom      uint8 = 0x03
	PnumRam         uint8 = 0x05
	PnumLedR        uint8 = 0x06
	PnumLedG        uint8 = 0x07
	PnumIo          uint8 = 0x09
	PnumThermometer uint8 = 0x0A
	PnumUart        uint8 = 0x0C
	PnumFrc         uint8 = 0x0D
	PnumEnumeration uint8 = 0xFF
)

// Coordinator peripheral commands (CMD_COORDINATOR_*)
const (
	CmdCoordinatorBondNode      uint8 = 4
	CmdCoordinatorDiscovery     uint8 = 7
	CmdCoordinatorAuthorizeBond uint8 = 13
	CmdCoordinatorSmartConnect  uint8 = 18
)

// OS peripheral commands (CMD_OS_*)
const (
	CmdOsRead    uint8 = 0
	CmdOsReset   uint8 = 1
	CmdOsReadCfg uint8 = 2
	CmdOsRestart uint8 = 8
)

// LED peripheral commands, shared by LEDR and LEDG (CMD_LED_*)
const (
	CmdLedSetOff   uint8 = 0
	CmdLedSetOn    uint8 = 1
	CmdLedGet      uint8 = 2
	CmdLedPulse    uint8 = 3
	CmdLedFlashing uint8 = 4
)

// IO peripheral commands (CMD_IO_*)
const (
	CmdIoDirection uint8 = 0
	CmdIoSet       uint8 = 1
	CmdIoGet       uint8 = 2
)

// Thermometer peripheral commands (CMD_THERMOMETER_*)
const (
	CmdThermometerRead uint8 = 0
)

// UART peripheral commands (CMD_UART_*)
const (
	CmdUartOpen           uint8 = 0
	CmdUartClose          uint8 = 1
	CmdUartWriteRead      uint8 = 2
	CmdUartClearWriteRead uint8 = 3
)

// FRC peripheral commands (CMD_FRC_*)
const (
	CmdFrcSend          uint8 = 0
	CmdFrcExtraResult   uint8 = 1
	CmdFrcSendSelective uint8 = 2
	CmdFrcSetParams     uint8 = 3
)

// CmdGetPerInfo together with PnumEnumeration identifies a peripheral
// enumeration frame (CMD_GET_PER_INFO, reserved PCMD value).
const CmdGetPerInfo uint8 = 0x3F

// ResponseFlag is bit 7 of PCMD; set in every response frame.
const ResponseFlag uint8 = 0x80

// Wire status codes carried in the ResponseCode byte of a response
// (TErrorCodes in DPA.h)
const (
	StatusNoError       uint8 = 0    // STATUS_NO_ERROR
	StatusAsyncResponse uint8 = 0x80 // STATUS_ASYNC_RESPONSE, flag bit
	StatusConfirmation  uint8 = 0xFF // STATUS_CONFIRMATION
)
