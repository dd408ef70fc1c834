//go:build unit

package periph

import (
	"bytes"
	"testing"

	"github.com/anthropics/purple-iqrf/pkg/dpa"
	"github.com/anthropics/purple-iqrf/testutil"
)

func parse(t *testing.T, frame []byte) *dpa.Message {
	t.Helper()
	m, err := dpa.Parse(frame)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	return m
}

func TestLedRequest(t *testing.T) {
	led := NewLedR(0x0003, LedPulse)
	request, err := led.Request()
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if request.NADR() != 0x0003 || request.PNUM() != dpa.PnumLedR || request.PCMD() != dpa.CmdLedPulse {
		t.Errorf("header = %04x/%02x/%02x", request.NADR(), request.PNUM(), request.PCMD())
	}
	if request.HWPID() != dpa.HwpidDoNotCheck {
		t.Errorf("HWPID = %04x, expected do-not-check", request.HWPID())
	}
}

func TestLedGetState(t *testing.T) {
	led := NewLedG(0x0001, LedGet)
	response := parse(t, testutil.BuildResponse(0x0001, dpa.PnumLedG, dpa.CmdLedGet, dpa.HwpidDoNotCheck, 0x00, 0x00, 0x01))
	if err := led.ParseResponse(response); err != nil {
		t.Fatalf("ParseResponse failed: %v", err)
	}
	if led.LedState() != 1 {
		t.Errorf("LedState = %d, expected 1", led.LedState())
	}

	// non-GET commands report no state
	pulse := NewLedR(0x0001, LedPulse)
	response = parse(t, testutil.BuildResponse(0x0001, dpa.PnumLedR, dpa.CmdLedPulse, dpa.HwpidDoNotCheck, 0x00, 0x00))
	if err := pulse.ParseResponse(response); err != nil {
		t.Fatalf("ParseResponse failed: %v", err)
	}
	if pulse.LedState() != -1 {
		t.Errorf("LedState = %d, expected -1", pulse.LedState())
	}
}

func TestLedErrorResponse(t *testing.T) {
	led := NewLedR(0x0001, LedPulse)
	response := parse(t, testutil.BuildResponse(0x0001, dpa.PnumLedR, dpa.CmdLedPulse, dpa.HwpidDoNotCheck, 0x03, 0x00))
	err := led.ParseResponse(response)
	if err == nil {
		t.Fatal("expected error for PNUM wire status")
	}
	dpaErr, ok := err.(*dpa.DpaError)
	if !ok || dpaErr.Code != dpa.ErrPnum {
		t.Errorf("expected ERROR_PNUM, got %v", err)
	}
}

func TestThermometerParse(t *testing.T) {
	th := NewThermometer(0x0001)

	// 24.5 C: integer 0x18, sixteenths 0x0188 = 392 -> 24.5
	response := parse(t, testutil.BuildResponse(0x0001, dpa.PnumThermometer, dpa.CmdThermometerRead, dpa.HwpidDoNotCheck, 0x00, 0x07,
		0x18, 0x00, 0x88, 0x01))
	if err := th.ParseResponse(response); err != nil {
		t.Fatalf("ParseResponse failed: %v", err)
	}
	if th.IntTemperature != 24 {
		t.Errorf("IntTemperature = %d, expected 24", th.IntTemperature)
	}
	if th.FloatTemperature != 24.5 {
		t.Errorf("FloatTemperature = %v, expected 24.5", th.FloatTemperature)
	}
}

func TestThermometerNegative(t *testing.T) {
	th := NewThermometer(0x0001)

	// -5 C: sign bit in byte 0, sixteenths sign in bit 15 (0x8050 = -80/16)
	response := parse(t, testutil.BuildResponse(0x0001, dpa.PnumThermometer, dpa.CmdThermometerRead, dpa.HwpidDoNotCheck, 0x00, 0x07,
		0x85, 0x00, 0x50, 0x80))
	if err := th.ParseResponse(response); err != nil {
		t.Fatalf("ParseResponse failed: %v", err)
	}
	if th.IntTemperature != -5 {
		t.Errorf("IntTemperature = %d, expected -5", th.IntTemperature)
	}
	if th.FloatTemperature != -5.0 {
		t.Errorf("FloatTemperature = %v, expected -5.0", th.FloatTemperature)
	}
}

func TestOsReadParse(t *testing.T) {
	osInfo := NewOsRead(0x0000)

	response := parse(t, testutil.BuildResponse(0x0000, dpa.PnumOs, dpa.CmdOsRead, dpa.HwpidDoNotCheck, 0x00, 0x00,
		0x01, 0x23, 0x45, 0x81, // ModuleId, DCTR flag in top byte
		0x42,       // OsVersion 4.2
		0xA4,       // McuType: TR-56D, PIC16F1938
		0x34, 0x08, // OsBuild
		0x00, 0x00))
	if err := osInfo.ParseResponse(response); err != nil {
		t.Fatalf("ParseResponse failed: %v", err)
	}
	if osInfo.ModuleID != "81452301" {
		t.Errorf("ModuleID = %q", osInfo.ModuleID)
	}
	if osInfo.OsVersion != "4.02D" {
		t.Errorf("OsVersion = %q, expected 4.02D", osInfo.OsVersion)
	}
	if osInfo.TrType != "DCTR-56D" {
		t.Errorf("TrType = %q, expected DCTR-56D", osInfo.TrType)
	}
	if osInfo.McuType != "PIC16F1938" {
		t.Errorf("McuType = %q", osInfo.McuType)
	}
	if osInfo.OsBuild != "0834" {
		t.Errorf("OsBuild = %q, expected 0834", osInfo.OsBuild)
	}
}

func TestFrcSendRequest(t *testing.T) {
	frc := NewFrcSend(0x80, []byte{0x01, 0x02})
	request, err := frc.Request()
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if request.NADR() != dpa.CoordinatorAddress || request.PNUM() != dpa.PnumFrc || request.PCMD() != dpa.CmdFrcSend {
		t.Errorf("header = %04x/%02x/%02x", request.NADR(), request.PNUM(), request.PCMD())
	}
	if !bytes.Equal(request.PData(), []byte{0x80, 0x01, 0x02}) {
		t.Errorf("PData = % x", request.PData())
	}
}

func TestFrcByteResults(t *testing.T) {
	frc := NewFrcSend(0x80, nil)

	pdata := append([]byte{0x02}, 0x00, 0x11, 0x22) // status, then per-node bytes
	response := parse(t, testutil.BuildResponse(dpa.CoordinatorAddress, dpa.PnumFrc, dpa.CmdFrcSend, dpa.HwpidDoNotCheck, 0x00, 0x00, pdata...))
	if err := frc.ParseResponse(response); err != nil {
		t.Fatalf("ParseResponse failed: %v", err)
	}
	if frc.Status() != 2 {
		t.Errorf("Status = %d, expected 2", frc.Status())
	}
	if frc.ByteResult(2) != 0x11 {
		t.Errorf("ByteResult(2) = 0x%02x, expected 0x11", frc.ByteResult(2))
	}
	if frc.ByteResult(0) != 0 {
		t.Error("node 0 must yield nothing")
	}

	// extra result extends the data block
	extra := NewFrcExtraResult()
	request, err := extra.Request()
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if request.PCMD() != dpa.CmdFrcExtraResult {
		t.Errorf("PCMD = 0x%02x", request.PCMD())
	}
	frc.Task = extra.Task
	response = parse(t, testutil.BuildResponse(dpa.CoordinatorAddress, dpa.PnumFrc, dpa.CmdFrcExtraResult, dpa.HwpidDoNotCheck, 0x00, 0x00, 0x33, 0x44))
	if err := frc.ParseResponse(response); err != nil {
		t.Fatalf("ParseResponse failed: %v", err)
	}
	if frc.ByteResult(4) != 0x33 {
		t.Errorf("ByteResult(4) = 0x%02x, expected 0x33", frc.ByteResult(4))
	}
}

func TestFrcSelectiveRequest(t *testing.T) {
	var selected [30]byte
	selected[0] = 0x06 // nodes 1 and 2
	frc := NewFrcSendSelective(0x80, selected, []byte{0xAA})
	request, err := frc.Request()
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	pdata := request.PData()
	if len(pdata) != 1+30+1 {
		t.Fatalf("PData length = %d, expected 32", len(pdata))
	}
	if pdata[0] != 0x80 || pdata[1] != 0x06 || pdata[31] != 0xAA {
		t.Errorf("PData = % x", pdata)
	}
}

func TestCoordinatorDiscoveryParse(t *testing.T) {
	disc := NewDiscovery(7, 0)
	request, err := disc.Request()
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if !bytes.Equal(request.PData(), []byte{7, 0}) {
		t.Errorf("PData = % x", request.PData())
	}

	response := parse(t, testutil.BuildResponse(dpa.CoordinatorAddress, dpa.PnumCoordinator, dpa.CmdCoordinatorDiscovery, dpa.HwpidDoNotCheck, 0x00, 0x00, 0x05))
	if err := disc.ParseResponse(response); err != nil {
		t.Fatalf("ParseResponse failed: %v", err)
	}
	if disc.DiscoveredNodes != 5 {
		t.Errorf("DiscoveredNodes = %d, expected 5", disc.DiscoveredNodes)
	}
}

func TestBondNodeParse(t *testing.T) {
	bond := NewBondNode(0, 0)
	response := parse(t, testutil.BuildResponse(dpa.CoordinatorAddress, dpa.PnumCoordinator, dpa.CmdCoordinatorBondNode, dpa.HwpidDoNotCheck, 0x00, 0x00, 0x03, 0x07))
	if err := bond.ParseResponse(response); err != nil {
		t.Fatalf("ParseResponse failed: %v", err)
	}
	if bond.BondedAddress != 3 || bond.BondedCount != 7 {
		t.Errorf("bond = addr %d count %d", bond.BondedAddress, bond.BondedCount)
	}
}

func TestIoRequests(t *testing.T) {
	io := NewIoSet(0x0002, PortA, 0x04, 0x04)
	request, err := io.Request()
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if !bytes.Equal(request.PData(), []byte{PortA, 0x04, 0x04}) {
		t.Errorf("PData = % x", request.PData())
	}

	get := NewIoGet(0x0002)
	response := parse(t, testutil.BuildResponse(0x0002, dpa.PnumIo, dpa.CmdIoGet, dpa.HwpidDoNotCheck, 0x00, 0x00, 0x12, 0x34))
	if err := get.ParseResponse(response); err != nil {
		t.Fatalf("ParseResponse failed: %v", err)
	}
	if !bytes.Equal(get.Ports(), []byte{0x12, 0x34}) {
		t.Errorf("Ports = % x", get.Ports())
	}
}

func TestRawPassthrough(t *testing.T) {
	m, err := dpa.NewRequest(0x0001, dpa.PnumRam, 0x00, 0x1234, []byte{0x00, 0x05})
	if err != nil {
		t.Fatalf("NewRequest failed: %v", err)
	}
	raw := NewRaw(m)
	request, err := raw.Request()
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if !bytes.Equal(request.Bytes(), m.Bytes()) {
		t.Errorf("raw request = % x, expected % x", request.Bytes(), m.Bytes())
	}

	// raw accepts error statuses without failing
	response := parse(t, testutil.BuildResponse(0x0001, dpa.PnumRam, 0x00, 0x1234, 0x06, 0x00))
	if err := raw.ParseResponse(response); err != nil {
		t.Fatalf("ParseResponse failed: %v", err)
	}
	if raw.Response() == nil {
		t.Error("response should be stored")
	}
}
