package periph

import "github.com/anthropics/purple-iqrf/pkg/dpa"

// Coordinator wraps the coordinator peripheral commands that manage the
// mesh: discovery and bonding.
type Coordinator struct {
	Task

	// discovery
	DiscoveredNodes uint8

	// bonding
	BondedAddress uint16
	BondedCount   uint8
}

// NewDiscovery creates a discovery task. txPower is 0..7; maxAddress bounds
// the discovered address space, 0 means no bound.
func NewDiscovery(txPower, maxAddress uint8) *Coordinator {
	c := &Coordinator{Task: newTask("Coordinator", dpa.CoordinatorAddress, dpa.PnumCoordinator, dpa.CmdCoordinatorDiscovery)}
	c.pdata = []byte{txPower, maxAddress}
	return c
}

// NewBondNode creates a bond-node task. reqAddress of zero lets the
// coordinator pick the first free address.
func NewBondNode(reqAddress, bondingMask uint8) *Coordinator {
	c := &Coordinator{Task: newTask("Coordinator", dpa.CoordinatorAddress, dpa.PnumCoordinator, dpa.CmdCoordinatorBondNode)}
	c.pdata = []byte{reqAddress, bondingMask}
	return c
}

// ParseResponse decodes the per-command payload.
func (c *Coordinator) ParseResponse(m *dpa.Message) error {
	if err := c.storeResponse(m); err != nil {
		return err
	}
	pdata := m.PData()
	switch c.Pcmd() {
	case dpa.CmdCoordinatorDiscovery:
		if len(pdata) < 1 {
			return dpa.NewError(dpa.ErrBadResponse, "discovery response too short")
		}
		c.DiscoveredNodes = pdata[0]
	case dpa.CmdCoordinatorBondNode:
		if len(pdata) < 2 {
			return dpa.NewError(dpa.ErrBadResponse, "bond response too short")
		}
		c.BondedAddress = uint16(pdata[0])
		c.BondedCount = pdata[1]
	}
	return nil
}
