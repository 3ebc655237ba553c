// Package frame implements encoding and decoding of RFCOMM (GSM 07.10)
// frames and multiplexer control commands.
package frame

import (
	"errors"
	"fmt"
	"io"
)

var (
	// Debug can be set to get frames as they're encoded and decoded.
	Debug io.Writer
)

// Control octet values with the P/F bit cleared (GSM 07.10 Table 2).
const (
	controlSABM = 0x2F // Set Asynchronous Balanced Mode
	controlDISC = 0x43 // Disconnect
	controlUA   = 0x63 // Unnumbered Acknowledgement
	controlDM   = 0x0F // Disconnected Mode
	controlUIH  = 0xEF // Unnumbered Information with Header check

	pfBit = 0x10
)

const (
	// eaBit marks the final octet of an extensible field.
	eaBit = 0x01
	// addressCRBit is the C/R bit within the address octet.
	addressCRBit = 0x02
	// addressDLCIShift positions the DLCI in the address octet.
	addressDLCIShift = 2
)

// minimum parseable frame: address, control, one length octet, FCS.
const minFrameSize = 4

var (
	ErrTruncatedFrame = errors.New("rfcomm: truncated frame")
	ErrBadFCS         = errors.New("rfcomm: frame check sequence mismatch")
)

// UnknownFrameTypeError reports a control octet naming no known frame type.
type UnknownFrameTypeError struct {
	Control uint8
}

func (e UnknownFrameTypeError) Error() string {
	return fmt.Sprintf("rfcomm: unknown frame type %#02x", e.Control)
}

// Frame is one RFCOMM frame. The concrete types are SABM, Disconnect,
// UnnumberedAck, DisconnectedMode, UserDataFrame and MuxCommandFrame;
// consumers switch over them rather than inspecting control octets.
type Frame interface {
	// DLCI returns the channel the frame addresses.
	DLCI() DLCI

	// CommandResponse reports whether the frame is a command or a
	// response, already normalized for the sender's role.
	CommandResponse() CommandResponse

	// PollFinal returns the P/F bit.
	PollFinal() bool

	// WrittenSize returns the exact number of octets Bytes will produce.
	WrittenSize() int

	// Bytes encodes the frame, including its FCS octet.
	Bytes() []byte

	String() string
}

// header carries the fields common to every frame type. The role is the
// sender's, fixed at construction; it determines the wire C/R bit.
type header struct {
	role      Role
	cr        CommandResponse
	dlci      DLCI
	pollFinal bool
}

func (h header) DLCI() DLCI                       { return h.dlci }
func (h header) CommandResponse() CommandResponse { return h.cr }
func (h header) PollFinal() bool                  { return h.pollFinal }

func (h header) addressOctet() uint8 {
	return eaBit | crBit(h.role, h.cr)<<1 | uint8(h.dlci)<<addressDLCIShift
}

func (h header) controlOctet(control uint8) uint8 {
	if h.pollFinal {
		control |= pfBit
	}
	return control
}

// Parse decodes a single frame received from the peer. creditFlow states
// whether credit-based flow control is in effect for the session, which
// changes the UIH layout; localRole is our own role, used to interpret
// the C/R bit formed by the peer. Malformed input yields an error, never
// a panic, and the caller is expected to drop the frame.
func Parse(buf []byte, creditFlow bool, localRole Role) (Frame, error) {
	if len(buf) < minFrameSize {
		return nil, ErrTruncatedFrame
	}

	address := buf[0]
	if address&eaBit == 0 {
		return nil, errors.New("rfcomm: extended address octets not supported")
	}
	dlci := DLCI(address >> addressDLCIShift)

	control := buf[1]
	pollFinal := control&pfBit != 0
	cr := commandResponseFromBit(address>>1&0x01, localRole, control)

	length, lengthOctets, err := decodeLength(buf[2:])
	if err != nil {
		return nil, err
	}
	pos := 2 + lengthOctets

	// The FCS never covers the information field (RFCOMM 5.1.1), so its
	// position is known before the body is read. Checking it here keeps
	// corrupted frames from being interpreted as commands or payload.
	body := int(length)
	if control&^pfBit == controlUIH && creditFlow && pollFinal && dlci != MuxControlDLCI {
		body++
	}
	fcsPos := pos + body
	if fcsPos >= len(buf) {
		return nil, ErrTruncatedFrame
	}
	if !verifyFCS(buf[:fcsCoverage(control&^pfBit, lengthOctets)], buf[fcsPos]) {
		return nil, ErrBadFCS
	}

	h := header{
		role:      localRole.Opposite(),
		cr:        cr,
		dlci:      dlci,
		pollFinal: pollFinal,
	}

	var f Frame
	switch control &^ pfBit {
	case controlSABM:
		f = &SABM{h}
	case controlDISC:
		f = &Disconnect{h}
	case controlUA:
		f = &UnnumberedAck{h}
	case controlDM:
		f = &DisconnectedMode{h}
	case controlUIH:
		f, err = parseUIH(buf, h, pos, length, creditFlow)
		if err != nil {
			return nil, err
		}
	default:
		return nil, UnknownFrameTypeError{Control: control &^ pfBit}
	}

	// Non-UIH frames carry no information field.
	if control&^pfBit != controlUIH {
		if length != 0 {
			return nil, fmt.Errorf("rfcomm: %s frame with nonzero length %d", f, length)
		}
	}

	if Debug != nil {
		fmt.Fprintln(Debug, ">>DEC", f)
	}
	return f, nil
}

// fcsCoverage returns how many leading octets the FCS covers: address,
// control and length for the control frames, address and control only
// for UIH (RFCOMM 5.1.1).
func fcsCoverage(control uint8, lengthOctets int) int {
	if control == controlUIH {
		return 2
	}
	return 2 + lengthOctets
}

// encode assembles a frame given its covered header octets and optional
// body (credits octet plus information field for UIH frames).
func encode(addr, control uint8, length uint, body []byte, uih bool) []byte {
	buf := make([]byte, 0, 4+len(body))
	buf = append(buf, addr, control)
	buf = appendLength(buf, length)
	covered := len(buf)
	if uih {
		covered = 2
	}
	fcs := calculateFCS(buf[:covered])
	buf = append(buf, body...)
	buf = append(buf, fcs)
	if Debug != nil {
		fmt.Fprintf(Debug, "<<ENC % x\n", buf)
	}
	return buf
}
