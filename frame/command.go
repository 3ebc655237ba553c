package frame

import (
	"errors"
	"fmt"
)

// CommandType tags the eight multiplexer control commands. The values are
// the type bits in their wire position (bits 2-7 of the type octet,
// GSM 07.10 Table 5), so the full type octet is the tag OR'd with the C/R
// and EA bits.
type CommandType uint8

const (
	TypeDLCParameterNegotiation CommandType = 0x80
	TypeTestCommand             CommandType = 0x20
	TypeFlowControlOn           CommandType = 0xA0
	TypeFlowControlOff          CommandType = 0x60
	TypeModemStatus             CommandType = 0xE0
	TypeNonSupportedCommand     CommandType = 0x10
	TypeRemotePortNegotiation   CommandType = 0x90
	TypeRemoteLineStatus        CommandType = 0x50

	commandTypeMask = 0xFC
)

func (t CommandType) String() string {
	switch t {
	case TypeDLCParameterNegotiation:
		return "PN"
	case TypeTestCommand:
		return "Test"
	case TypeFlowControlOn:
		return "FCon"
	case TypeFlowControlOff:
		return "FCoff"
	case TypeModemStatus:
		return "MSC"
	case TypeNonSupportedCommand:
		return "NSC"
	case TypeRemotePortNegotiation:
		return "RPN"
	case TypeRemoteLineStatus:
		return "RLS"
	}
	return fmt.Sprintf("type(%#02x)", uint8(t))
}

// MuxCommand is one multiplexer control command, carried in the
// information field of a UIH frame on DLCI 0.
type MuxCommand interface {
	// Type returns the command's fixed type tag.
	Type() CommandType

	// CommandResponse returns the C/R flag of the type octet
	// (GSM 07.10 5.4.6.2), independent of the session role.
	CommandResponse() CommandResponse

	// WrittenSize returns the exact number of octets Bytes will produce.
	WrittenSize() int

	// Bytes encodes the command: type octet, length field, values.
	Bytes() []byte

	String() string
}

var (
	_ MuxCommand = (*ParameterNegotiationCommand)(nil)
	_ MuxCommand = (*TestCommand)(nil)
	_ MuxCommand = (*FlowControlOnCommand)(nil)
	_ MuxCommand = (*FlowControlOffCommand)(nil)
	_ MuxCommand = (*ModemStatusCommand)(nil)
	_ MuxCommand = (*NonSupportedCommandResponse)(nil)
	_ MuxCommand = (*RemotePortNegotiationCommand)(nil)
	_ MuxCommand = (*RemoteLineStatusCommand)(nil)
)

// UnknownCommandTypeError reports a type octet carrying no known tag. The
// session answers these with a Non-Supported-Command response built from
// the offending octet.
type UnknownCommandTypeError struct {
	TypeOctet uint8
}

func (e UnknownCommandTypeError) Error() string {
	return fmt.Sprintf("rfcomm: unknown mux command type octet %#02x", e.TypeOctet)
}

// CommandLengthError reports a value-field length that the command type
// does not admit.
type CommandLengthError struct {
	Type   CommandType
	Length uint
}

func (e CommandLengthError) Error() string {
	return fmt.Sprintf("rfcomm: %v command with invalid length %d", e.Type, e.Length)
}

var errTruncatedCommand = errors.New("rfcomm: truncated mux command")

// validCommandLength checks the observed value-field length against the
// lengths GSM 07.10 fixes per command type. The Test command is the sole
// type admitting arbitrary lengths.
func validCommandLength(t CommandType, n uint) bool {
	switch t {
	case TypeDLCParameterNegotiation:
		return n == 8
	case TypeTestCommand:
		return true
	case TypeFlowControlOn, TypeFlowControlOff:
		return n == 0
	case TypeModemStatus:
		return n == 2 || n == 3
	case TypeNonSupportedCommand:
		return n == 1
	case TypeRemotePortNegotiation:
		return n == 1 || n == 8
	case TypeRemoteLineStatus:
		return n == 2
	}
	return false
}

// ParseCommand decodes a multiplexer control command from the information
// field of a UIH frame. The buffer must hold at least the type octet and
// one length octet.
func ParseCommand(buf []byte) (MuxCommand, error) {
	if len(buf) < 2 {
		return nil, errTruncatedCommand
	}

	typeOctet := buf[0]
	if typeOctet&eaBit == 0 {
		return nil, errors.New("rfcomm: extended mux command type octets not supported")
	}
	cr := Response
	if typeOctet&0x02 != 0 {
		cr = Command
	}

	ctype := CommandType(typeOctet & commandTypeMask)
	length, lengthOctets, err := decodeLength(buf[1:])
	if err != nil {
		return nil, err
	}
	values := buf[1+lengthOctets:]
	if uint(len(values)) != length {
		return nil, fmt.Errorf("rfcomm: mux command length field %d does not match %d value octets",
			length, len(values))
	}

	if !validCommandLength(ctype, length) {
		switch ctype {
		case TypeDLCParameterNegotiation, TypeTestCommand, TypeFlowControlOn,
			TypeFlowControlOff, TypeModemStatus, TypeNonSupportedCommand,
			TypeRemotePortNegotiation, TypeRemoteLineStatus:
			return nil, CommandLengthError{Type: ctype, Length: length}
		default:
			return nil, UnknownCommandTypeError{TypeOctet: typeOctet}
		}
	}

	switch ctype {
	case TypeDLCParameterNegotiation:
		return parseParameterNegotiation(cr, values)
	case TypeTestCommand:
		return parseTestCommand(cr, values)
	case TypeFlowControlOn:
		return &FlowControlOnCommand{cr: cr}, nil
	case TypeFlowControlOff:
		return &FlowControlOffCommand{cr: cr}, nil
	case TypeModemStatus:
		return parseModemStatus(cr, values)
	case TypeNonSupportedCommand:
		return parseNonSupportedCommand(cr, values)
	case TypeRemotePortNegotiation:
		return parseRemotePortNegotiation(cr, values)
	case TypeRemoteLineStatus:
		return parseRemoteLineStatus(cr, values)
	}
	return nil, UnknownCommandTypeError{TypeOctet: typeOctet}
}

// encodeCommand assembles a command's wire form: the type octet with C/R
// and EA bits, the EA length field, then the value octets.
func encodeCommand(t CommandType, cr CommandResponse, values []byte) []byte {
	typeOctet := uint8(t) | eaBit
	if cr == Command {
		typeOctet |= 0x02
	}
	buf := make([]byte, 0, commandWrittenSize(len(values)))
	buf = append(buf, typeOctet)
	buf = appendLength(buf, uint(len(values)))
	return append(buf, values...)
}

// commandWrittenSize is shared by every command's WrittenSize and by
// encodeCommand so the two can never disagree about the length-octet
// count.
func commandWrittenSize(valueOctets int) int {
	return 1 + numLengthOctets(uint(valueOctets)) + valueOctets
}
