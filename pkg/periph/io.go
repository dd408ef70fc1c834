package periph

import "github.com/anthropics/purple-iqrf/pkg/dpa"

// Io drives the general-purpose I/O peripheral. Direction and Set requests
// carry (port, mask, value) triplets; Get returns the port registers.
type Io struct {
	Task
	ports []byte // raw port registers from a GET response
}

// IO port indexes from the DPA specification.
const (
	PortA uint8 = 0x00
	PortB uint8 = 0x01
	PortC uint8 = 0x02
	PortE uint8 = 0x04
)

// NewIoDirection creates a direction-configuration task. A set bit in mask
// selects the pin; the matching bit in value makes it an input when 1.
func NewIoDirection(nadr uint16, port, mask, value uint8) *Io {
	io := &Io{Task: newTask("Io", nadr, dpa.PnumIo, dpa.CmdIoDirection)}
	io.pdata = []byte{port, mask, value}
	return io
}

// NewIoSet creates an output-write task.
func NewIoSet(nadr uint16, port, mask, value uint8) *Io {
	io := &Io{Task: newTask("Io", nadr, dpa.PnumIo, dpa.CmdIoSet)}
	io.pdata = []byte{port, mask, value}
	return io
}

// NewIoGet creates a port-read task.
func NewIoGet(nadr uint16) *Io {
	return &Io{Task: newTask("Io", nadr, dpa.PnumIo, dpa.CmdIoGet)}
}

// ParseResponse keeps the raw port registers of a GET response.
func (io *Io) ParseResponse(m *dpa.Message) error {
	if err := io.storeResponse(m); err != nil {
		return err
	}
	if io.Pcmd() == dpa.CmdIoGet {
		io.ports = append([]byte(nil), m.PData()...)
	}
	return nil
}

// Ports returns the port registers read by GET.
func (io *Io) Ports() []byte { return io.ports }
