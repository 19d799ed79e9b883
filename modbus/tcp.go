package modbus

import (
	"encoding/binary"
	"fmt"
)

// mbapHeaderLen is the size of the MBAP header preceding every Modbus TCP PDU.
const mbapHeaderLen = 7

// encodeTCP frames the PDU with an MBAP header: transaction ID, protocol ID 0,
// remaining length, and unit ID.
func encodeTCP(txn uint16, unit uint8, pdu PDU) []byte {
	frame := make([]byte, mbapHeaderLen, mbapHeaderLen+1+len(pdu.Data))
	binary.BigEndian.PutUint16(frame[0:2], txn)
	binary.BigEndian.PutUint16(frame[2:4], 0)
	binary.BigEndian.PutUint16(frame[4:6], uint16(2+len(pdu.Data))) //nolint:gosec
	frame[6] = unit
	frame = append(frame, byte(pdu.Function))
	frame = append(frame, pdu.Data...)

	return frame
}

// decodeMBAP validates an MBAP header and returns the transaction ID, the unit
// ID, and the number of bytes following the header.
func decodeMBAP(hdr []byte) (txn uint16, unit uint8, remaining int, err error) {
	if len(hdr) != mbapHeaderLen {
		return 0, 0, 0, fmt.Errorf("%w: mbap header of %d bytes", ErrFrame, len(hdr))
	}

	if proto := binary.BigEndian.Uint16(hdr[2:4]); proto != 0 {
		return 0, 0, 0, fmt.Errorf("%w: protocol id 0x%04x", ErrFrame, proto)
	}

	length := int(binary.BigEndian.Uint16(hdr[4:6]))
	if length < 2 {
		return 0, 0, 0, fmt.Errorf("%w: mbap length %d", ErrFrame, length)
	}

	return binary.BigEndian.Uint16(hdr[0:2]), hdr[6], length - 1, nil
}
