package testutil

import "encoding/binary"

// BuildRequest assembles a raw request frame.
func BuildRequest(nadr uint16, pnum, pcmd uint8, hwpid uint16, pdata ...byte) []byte {
	frame := make([]byte, 6, 6+len(pdata))
	binary.LittleEndian.PutUint16(frame[0:], nadr)
	frame[2] = pnum
	frame[3] = pcmd
	binary.LittleEndian.PutUint16(frame[4:], hwpid)
	return append(frame, pdata...)
}

// BuildResponse assembles a raw response frame: the request header with the
// response flag set, the two status bytes and the payload.
func BuildResponse(nadr uint16, pnum, pcmd uint8, hwpid uint16, responseCode, dpaValue uint8, pdata ...byte) []byte {
	frame := make([]byte, 8, 8+len(pdata))
	binary.LittleEndian.PutUint16(frame[0:], nadr)
	frame[2] = pnum
	frame[3] = pcmd | 0x80
	binary.LittleEndian.PutUint16(frame[4:], hwpid)
	frame[6] = responseCode
	frame[7] = dpaValue
	return append(frame, pdata...)
}

// BuildConfirmation assembles a confirmation frame for the given request
// header, carrying the mesh topology triplet.
func BuildConfirmation(nadr uint16, pnum, pcmd uint8, hwpid uint16, hops, timeslot, hopsResponse uint8) []byte {
	frame := BuildResponse(nadr, pnum, pcmd, hwpid, 0xFF, 0)
	return append(frame, hops, timeslot, hopsResponse)
}
