package frame

import (
	"errors"
	"fmt"
)

// uihFields holds the state shared by the two UIH specializations. The
// credits octet exists on the wire only while credit-based flow control is
// in effect and the value is nonzero; RFCOMM 6.5.2 couples its presence to
// the P/F bit.
type uihFields struct {
	header
	creditFlow bool
	credits    uint8
}

// SetCredits assigns the credits the frame will carry to the peer.
// Credits are assigned at send time, after the frame's other fields are
// fixed, so this is the only mutation allowed after construction. The P/F
// bit tracks the value: set exactly when credits are attached.
func (u *uihFields) SetCredits(n uint8) {
	u.credits = n
	u.pollFinal = n != 0
}

// Credits returns the credits carried by the frame.
func (u *uihFields) Credits() uint8 { return u.credits }

func (u *uihFields) creditOctets() []byte {
	if u.creditFlow && u.credits != 0 {
		return []byte{u.credits}
	}
	return nil
}

func (u *uihFields) overhead(infoLength uint) int {
	n := 2 + numLengthOctets(infoLength) + 1
	return n + len(u.creditOctets())
}

// UserDataFrame is a UIH frame carrying an opaque upper-layer payload.
// The frame owns its payload until TakePayload transfers it out.
type UserDataFrame struct {
	uihFields
	payload []byte
}

// NewUserDataFrame builds a user-data UIH frame to send from the given
// role. UIH frames are always formed as commands (RFCOMM 5.5.2).
func NewUserDataFrame(role Role, dlci DLCI, payload []byte, creditFlow bool) *UserDataFrame {
	return &UserDataFrame{
		uihFields: uihFields{
			header:     header{role: role, cr: Command, dlci: dlci},
			creditFlow: creditFlow,
		},
		payload: payload,
	}
}

// TakePayload transfers ownership of the payload to the caller. The frame
// is expected to be discarded afterwards.
func (f *UserDataFrame) TakePayload() []byte {
	p := f.payload
	f.payload = nil
	return p
}

// PayloadLength returns the information field length.
func (f *UserDataFrame) PayloadLength() int { return len(f.payload) }

func (f *UserDataFrame) WrittenSize() int {
	return f.overhead(uint(len(f.payload))) + len(f.payload)
}

func (f *UserDataFrame) Bytes() []byte {
	body := append(f.creditOctets(), f.payload...)
	return encode(f.addressOctet(), f.controlOctet(controlUIH), uint(len(f.payload)), body, true)
}

func (f *UserDataFrame) String() string {
	return fmt.Sprintf("{UIH DLCI:%d Length:%d Credits:%d}", f.dlci, len(f.payload), f.credits)
}

// MuxCommandFrame is a UIH frame on DLCI 0 wrapping exactly one
// multiplexer control command.
type MuxCommandFrame struct {
	uihFields
	cmd MuxCommand
}

func NewMuxCommandFrame(role Role, creditFlow bool, cmd MuxCommand) *MuxCommandFrame {
	return &MuxCommandFrame{
		uihFields: uihFields{
			header:     header{role: role, cr: Command, dlci: MuxControlDLCI},
			creditFlow: creditFlow,
		},
		cmd: cmd,
	}
}

// TakeCommand transfers ownership of the embedded command to the caller.
func (f *MuxCommandFrame) TakeCommand() MuxCommand {
	c := f.cmd
	f.cmd = nil
	return c
}

func (f *MuxCommandFrame) WrittenSize() int {
	n := f.cmd.WrittenSize()
	return f.overhead(uint(n)) + n
}

func (f *MuxCommandFrame) Bytes() []byte {
	info := f.cmd.Bytes()
	body := append(f.creditOctets(), info...)
	return encode(f.addressOctet(), f.controlOctet(controlUIH), uint(len(info)), body, true)
}

func (f *MuxCommandFrame) String() string {
	return fmt.Sprintf("{UIH DLCI:0 Mux:%v}", f.cmd)
}

// parseUIH decodes the body of a UIH frame starting at pos (just past the
// length field). The caller has already verified the FCS and bounds-checked
// the body through the FCS octet.
func parseUIH(buf []byte, h header, pos int, length uint, creditFlow bool) (Frame, error) {
	fields := uihFields{header: h, creditFlow: creditFlow}

	// Credit octets appear only on flow-controlled DLCs, never on the
	// multiplexer control channel (RFCOMM 6.5.2).
	if creditFlow && h.pollFinal && h.dlci != MuxControlDLCI {
		fields.credits = buf[pos]
		pos++
	}

	info := buf[pos : pos+int(length)]

	if h.dlci == MuxControlDLCI {
		cmd, err := ParseCommand(info)
		if err != nil {
			return nil, err
		}
		return &MuxCommandFrame{uihFields: fields, cmd: cmd}, nil
	}

	if !h.dlci.Valid() {
		return nil, errors.New("rfcomm: UIH frame on reserved DLCI")
	}

	// Copy the information field out of the transport buffer; the frame
	// owns its payload until TakePayload.
	payload := make([]byte, length)
	copy(payload, info)
	return &UserDataFrame{uihFields: fields, payload: payload}, nil
}
