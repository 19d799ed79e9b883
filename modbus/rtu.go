package modbus

import "fmt"

// CRC16 computes the Modbus RTU checksum (polynomial 0xA001, init 0xFFFF) of data.
func CRC16(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc ^= uint16(b)
		for i := 0; i < 8; i++ {
			if crc&0x0001 != 0 {
				crc = (crc >> 1) ^ 0xA001
			} else {
				crc >>= 1
			}
		}
	}

	return crc
}

// encodeRTU frames the PDU for a serial line: unit, function, data, CRC-16.
// The CRC is transmitted low byte first.
func encodeRTU(unit uint8, pdu PDU) []byte {
	frame := make([]byte, 0, len(pdu.Data)+4)
	frame = append(frame, unit, byte(pdu.Function))
	frame = append(frame, pdu.Data...)

	crc := CRC16(frame)
	frame = append(frame, byte(crc&0xFF), byte(crc>>8))

	return frame
}

// decodeRTU validates the checksum of a serial frame and strips the addressing.
func decodeRTU(frame []byte) (uint8, PDU, error) {
	if len(frame) < 4 {
		return 0, PDU{}, fmt.Errorf("%w: rtu frame of %d bytes", ErrFrame, len(frame))
	}

	payload := frame[:len(frame)-2]
	got := uint16(frame[len(frame)-2]) | uint16(frame[len(frame)-1])<<8
	if want := CRC16(payload); got != want {
		return 0, PDU{}, fmt.Errorf("%w: got 0x%04x, want 0x%04x", ErrCRC, got, want)
	}

	return payload[0], PDU{Function: FunctionCode(payload[1]), Data: payload[2:]}, nil
}
