package frame

import "fmt"

// CreditBasedFlowHandshake is the CL field of a DLC parameter negotiation
// command (RFCOMM 5.5.3). A command proposing credit-based flow carries
// 0xF; the accepting response carries 0xE; zero declines.
type CreditBasedFlowHandshake uint8

const (
	CreditFlowNone      CreditBasedFlowHandshake = 0x0
	CreditFlowInitiated CreditBasedFlowHandshake = 0xF
	CreditFlowAccepted  CreditBasedFlowHandshake = 0xE

	creditFlowFieldMask = 0x0F
)

// Supported reports whether the handshake value is one RFCOMM defines.
func (h CreditBasedFlowHandshake) Supported() bool {
	return h == CreditFlowNone || h == CreditFlowInitiated || h == CreditFlowAccepted
}

const (
	// MaxPriority is the largest DLC priority (6 bits, GSM Table 6).
	MaxPriority = 63
	// MaxInitialCredits is the largest credit count a PN exchange can
	// grant (3-bit K field, RFCOMM 5.5.3).
	MaxInitialCredits = 7
)

// ParameterNegotiationCommand is the DLC Parameter Negotiation (PN)
// command, exchanged before a DLC is established to settle its priority,
// maximum frame size and the session's flow control scheme (GSM 07.10
// 5.4.6.3.1, Table 6; RFCOMM 5.5.3).
type ParameterNegotiationCommand struct {
	cr               CommandResponse
	DLCIField        DLCI
	Handshake        CreditBasedFlowHandshake
	Priority         uint8
	MaximumFrameSize uint16
	InitialCredits   uint8
}

func NewParameterNegotiationCommand(cr CommandResponse, dlci DLCI,
	handshake CreditBasedFlowHandshake, priority uint8, maxFrameSize uint16,
	initialCredits uint8) *ParameterNegotiationCommand {
	return &ParameterNegotiationCommand{
		cr:               cr,
		DLCIField:        dlci,
		Handshake:        handshake,
		Priority:         priority,
		MaximumFrameSize: maxFrameSize,
		InitialCredits:   initialCredits,
	}
}

func parseParameterNegotiation(cr CommandResponse, v []byte) (MuxCommand, error) {
	// Length 8 was validated by the caller. Octet layout per GSM Table 6;
	// T1 (octet 3) and N2 (octet 6) are unused in RFCOMM and ignored.
	return &ParameterNegotiationCommand{
		cr:               cr,
		DLCIField:        DLCI(v[0] & 0x3F),
		Handshake:        CreditBasedFlowHandshake(v[1] >> 4),
		Priority:         v[2] & 0x3F,
		MaximumFrameSize: uint16(v[4]) | uint16(v[5])<<8,
		InitialCredits:   v[7] & 0x07,
	}, nil
}

func (c *ParameterNegotiationCommand) Type() CommandType { return TypeDLCParameterNegotiation }

func (c *ParameterNegotiationCommand) CommandResponse() CommandResponse { return c.cr }

func (c *ParameterNegotiationCommand) WrittenSize() int { return commandWrittenSize(8) }

func (c *ParameterNegotiationCommand) Bytes() []byte {
	v := [8]byte{
		uint8(c.DLCIField) & 0x3F,
		uint8(c.Handshake&creditFlowFieldMask) << 4,
		c.Priority & 0x3F,
		0, // T1 acknowledgement timer: not negotiable in RFCOMM
		uint8(c.MaximumFrameSize),
		uint8(c.MaximumFrameSize >> 8),
		0, // N2 retransmission count: always 0 in RFCOMM
		c.InitialCredits & 0x07,
	}
	return encodeCommand(TypeDLCParameterNegotiation, c.cr, v[:])
}

func (c *ParameterNegotiationCommand) String() string {
	return fmt.Sprintf("{PN %s DLCI:%d CL:%#x Priority:%d N1:%d K:%d}",
		c.cr, c.DLCIField, uint8(c.Handshake), c.Priority, c.MaximumFrameSize, c.InitialCredits)
}
