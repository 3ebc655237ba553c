package frame

import "fmt"

// The four control frame kinds carry no information field and encode to
// exactly four octets: address, control, a zero length octet and the FCS.

// SABM is the Set Asynchronous Balanced Mode command, used to start the
// multiplexer (DLCI 0) and to establish individual DLCs.
type SABM struct {
	header
}

// NewSABM builds a SABM command to send from the given role. The P bit is
// always set on SABM (RFCOMM 5.2.1).
func NewSABM(role Role, dlci DLCI) *SABM {
	return &SABM{header{role: role, cr: Command, dlci: dlci, pollFinal: true}}
}

func (f *SABM) WrittenSize() int { return 4 }

func (f *SABM) Bytes() []byte {
	return encode(f.addressOctet(), f.controlOctet(controlSABM), 0, nil, false)
}

func (f *SABM) String() string {
	return fmt.Sprintf("{SABM DLCI:%d %s}", f.dlci, f.cr)
}

// Disconnect is the DISC command, closing a DLC or, on DLCI 0, the whole
// session.
type Disconnect struct {
	header
}

func NewDisconnect(role Role, dlci DLCI) *Disconnect {
	return &Disconnect{header{role: role, cr: Command, dlci: dlci, pollFinal: true}}
}

func (f *Disconnect) WrittenSize() int { return 4 }

func (f *Disconnect) Bytes() []byte {
	return encode(f.addressOctet(), f.controlOctet(controlDISC), 0, nil, false)
}

func (f *Disconnect) String() string {
	return fmt.Sprintf("{DISC DLCI:%d %s}", f.dlci, f.cr)
}

// UnnumberedAck is the UA response accepting a SABM or DISC.
type UnnumberedAck struct {
	header
}

func NewUnnumberedAck(role Role, dlci DLCI) *UnnumberedAck {
	return &UnnumberedAck{header{role: role, cr: Response, dlci: dlci, pollFinal: true}}
}

func (f *UnnumberedAck) WrittenSize() int { return 4 }

func (f *UnnumberedAck) Bytes() []byte {
	return encode(f.addressOctet(), f.controlOctet(controlUA), 0, nil, false)
}

func (f *UnnumberedAck) String() string {
	return fmt.Sprintf("{UA DLCI:%d %s}", f.dlci, f.cr)
}

// DisconnectedMode is the DM response refusing a command, in particular
// any command addressed to a DLCI with no open DLC (GSM 07.10 5.3.3).
type DisconnectedMode struct {
	header
}

func NewDisconnectedMode(role Role, dlci DLCI) *DisconnectedMode {
	return &DisconnectedMode{header{role: role, cr: Response, dlci: dlci, pollFinal: true}}
}

func (f *DisconnectedMode) WrittenSize() int { return 4 }

func (f *DisconnectedMode) Bytes() []byte {
	return encode(f.addressOctet(), f.controlOctet(controlDM), 0, nil, false)
}

func (f *DisconnectedMode) String() string {
	return fmt.Sprintf("{DM DLCI:%d %s}", f.dlci, f.cr)
}
