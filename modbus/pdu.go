package modbus

import (
	"errors"
	"fmt"
)

// FunctionCode identifies a Modbus function.
type FunctionCode uint8

// Standard data-access function codes.
const (
	FuncReadCoils              FunctionCode = 0x01
	FuncReadDiscreteInputs     FunctionCode = 0x02
	FuncReadHoldingRegisters   FunctionCode = 0x03
	FuncReadInputRegisters     FunctionCode = 0x04
	FuncWriteSingleCoil        FunctionCode = 0x05
	FuncWriteSingleRegister    FunctionCode = 0x06
	FuncWriteMultipleCoils     FunctionCode = 0x0F
	FuncWriteMultipleRegisters FunctionCode = 0x10
)

// exceptionFlag is set in the function code of an exception response.
const exceptionFlag = 0x80

// Protocol limits from the ModBus Application Protocol spec.
const (
	// MaxReadBits is the largest coil/discrete-input count of one read.
	MaxReadBits = 2000
	// MaxReadRegisters is the largest register count of one read.
	MaxReadRegisters = 125
	// MaxWriteBits is the largest coil count of one multiple write.
	MaxWriteBits = 1968
	// MaxWriteRegisters is the largest register count of one multiple write.
	MaxWriteRegisters = 123
)

// ExceptionCode is the reason carried by a Modbus exception response.
type ExceptionCode uint8

// Standard exception codes.
const (
	ExcIllegalFunction    ExceptionCode = 0x01
	ExcIllegalDataAddress ExceptionCode = 0x02
	ExcIllegalDataValue   ExceptionCode = 0x03
	ExcServerDeviceFail   ExceptionCode = 0x04
	ExcAcknowledge        ExceptionCode = 0x05
	ExcServerDeviceBusy   ExceptionCode = 0x06
	ExcGatewayPathFail    ExceptionCode = 0x0A
	ExcGatewayNoResponse  ExceptionCode = 0x0B
)

func (e ExceptionCode) String() string {
	switch e {
	case ExcIllegalFunction:
		return "illegal function"
	case ExcIllegalDataAddress:
		return "illegal data address"
	case ExcIllegalDataValue:
		return "illegal data value"
	case ExcServerDeviceFail:
		return "server device failure"
	case ExcAcknowledge:
		return "acknowledge"
	case ExcServerDeviceBusy:
		return "server device busy"
	case ExcGatewayPathFail:
		return "gateway path unavailable"
	case ExcGatewayNoResponse:
		return "gateway target device failed to respond"
	default:
		return fmt.Sprintf("exception 0x%02x", uint8(e))
	}
}

// ExceptionError is returned when the device answers with an exception response.
type ExceptionError struct {
	Function FunctionCode
	Code     ExceptionCode
}

func (e *ExceptionError) Error() string {
	return fmt.Sprintf("modbus exception for function 0x%02x: %s", uint8(e.Function), e.Code)
}

var (
	// ErrCRC indicates an RTU frame with a bad CRC-16 checksum.
	ErrCRC = errors.New("crc mismatch")

	// ErrFrame indicates a malformed or unexpected response frame.
	ErrFrame = errors.New("malformed modbus frame")

	// ErrRange indicates a request outside the protocol limits.
	ErrRange = errors.New("request out of range")
)

// PDU is a Modbus protocol data unit: a function code and its payload, without
// unit addressing or frame checksums.
type PDU struct {
	Function FunctionCode
	Data     []byte
}
