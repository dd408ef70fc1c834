// Package engine implements the DPA transaction engine: the per-request
// state machine, the mesh timeout estimator and the single-link dispatcher.
package engine

// RfMode selects the RF timing profile of the network.
type RfMode int

const (
	// RfModeStd is the standard RF mode.
	RfModeStd RfMode = iota
	// RfModeLp is the low-power RF mode; it uses longer time slots and
	// longer response windows.
	RfModeLp
)

func (m RfMode) String() string {
	if m == RfModeLp {
		return "lp"
	}
	return "std"
}

// FrcResponseTime is the FRC response time tier configured on the
// coordinator. Values match the FRC params wire encoding.
type FrcResponseTime uint8

const (
	Frc40Ms    FrcResponseTime = 0x00
	Frc360Ms   FrcResponseTime = 0x10
	Frc680Ms   FrcResponseTime = 0x20
	Frc1320Ms  FrcResponseTime = 0x30
	Frc2600Ms  FrcResponseTime = 0x40
	Frc5160Ms  FrcResponseTime = 0x50
	Frc10280Ms FrcResponseTime = 0x60
	Frc20620Ms FrcResponseTime = 0x70
)

// Milliseconds returns the tier as a millisecond count. Unknown tiers fall
// back to 40 ms.
func (t FrcResponseTime) Milliseconds() int32 {
	switch t {
	case Frc360Ms:
		return 360
	case Frc680Ms:
		return 680
	case Frc1320Ms:
		return 1320
	case Frc2600Ms:
		return 2600
	case Frc5160Ms:
		return 5160
	case Frc10280Ms:
		return 10280
	case Frc20620Ms:
		return 20620
	default:
		return 40
	}
}

// TimingParams describes the network properties the estimator depends on.
type TimingParams struct {
	BondedNodes     uint8
	DiscoveredNodes uint8
	OsVersion       string // coordinator firmware, e.g. "4.02D"
	DpaVersion      uint16
	FrcResponseTime FrcResponseTime
}

// DefaultTimingParams returns the parameters assumed before the caller
// provides real network information.
func DefaultTimingParams() TimingParams {
	return TimingParams{
		BondedNodes:     1,
		DiscoveredNodes: 1,
		OsVersion:       "4.02D",
		DpaVersion:      0x0302,
		FrcResponseTime: Frc40Ms,
	}
}

// Timing constants in milliseconds.
const (
	// DefaultTimeoutMs applies when the caller does not choose a timeout.
	DefaultTimeoutMs = 500
	// MinimalTimeoutMs is the lowest default timeout the engine accepts.
	MinimalTimeoutMs = 200
	// InfiniteTimeout requests an unbounded wait; only a small command
	// whitelist may use it.
	InfiniteTimeout = 0
	// SafetyTimeoutMs pads every estimate derived from a confirmation.
	SafetyTimeoutMs = 40
	// BondTimeoutMs is forced for coordinator BondNode when the caller
	// did not pick a timeout.
	BondTimeoutMs = 11000
)

// UnknownResponseLength marks an estimate made from a confirmation alone,
// before the response length is known.
const UnknownResponseLength = -1

// EstimateTimeout computes the expected transaction duration from the
// confirmation topology fields. responseDataLength is the response PData
// length used to refine the estimate, or UnknownResponseLength when only the
// confirmation has arrived.
//
// The formula is
//
//	(hops+1)*timeslot*10 + (hopsResponse+1)*responseSlot + SAFETY
//
// where responseSlot depends on the RF mode, the time-slot length, the
// coordinator OS version and the response length.
func EstimateTimeout(mode RfMode, osVersion string, hops, timeslot, hopsResponse uint8, responseDataLength int) int32 {
	estimate := (int32(hops) + 1) * int32(timeslot) * 10

	var slot int32
	if mode == RfModeLp {
		slot = lpResponseSlot(osVersion, timeslot, responseDataLength)
	} else {
		slot = stdResponseSlot(osVersion, timeslot, responseDataLength)
	}

	estimate += (int32(hopsResponse)+1)*slot + SafetyTimeoutMs
	return estimate
}

func stdResponseSlot(osVersion string, timeslot uint8, responseDataLength int) int32 {
	if timeslot == 20 {
		return 200
	}
	if responseDataLength == UnknownResponseLength {
		// worst case
		return 60
	}
	if osVersion == "4.03D" {
		switch {
		case responseDataLength < 17:
			return 40
		case responseDataLength < 41:
			return 50
		default:
			return 60
		}
	}
	// OS 4.02D (default)
	switch {
	case responseDataLength < 16:
		return 40
	case responseDataLength < 40:
		return 50
	default:
		return 60
	}
}

func lpResponseSlot(osVersion string, timeslot uint8, responseDataLength int) int32 {
	if timeslot == 20 {
		return 200
	}
	if responseDataLength == UnknownResponseLength {
		// worst case
		return 110
	}
	if osVersion == "4.03D" {
		switch {
		case responseDataLength < 17:
			return 80
		case responseDataLength < 41:
			return 90
		default:
			return 100
		}
	}
	// OS 4.02D (default)
	switch {
	case responseDataLength < 11:
		return 80
	case responseDataLength < 34:
		return 90
	case responseDataLength < 57:
		return 100
	default:
		return 110
	}
}

// FrcTimeout computes the advanced FRC deadline from the network size and
// the configured response time tier.
func FrcTimeout(mode RfMode, params TimingParams) int32 {
	frc := params.FrcResponseTime.Milliseconds()
	if mode == RfModeStd {
		return int32(params.BondedNodes)*30 + (int32(params.DiscoveredNodes)+2)*110 + frc + 220
	}
	return int32(params.BondedNodes)*30 + (int32(params.DiscoveredNodes)+2)*160 + frc + 260
}
