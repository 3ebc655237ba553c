package frame

import "fmt"

// DLCI is a Data Link Connection Identifier: a 6-bit channel number within
// an RFCOMM session. DLCI 0 carries multiplexer control commands and is
// never handed to upper layers.
type DLCI uint8

const (
	// MuxControlDLCI is the multiplexer control channel.
	MuxControlDLCI DLCI = 0

	// maxDLCI is the largest encodable DLCI (6 bits).
	maxDLCI DLCI = 63
)

// Valid reports whether d is usable within a session. DLCI 1 and DLCIs
// above 61 are reserved by RFCOMM 5.4; 0 is reserved for the multiplexer
// but still valid on the wire.
func (d DLCI) Valid() bool {
	if d == MuxControlDLCI {
		return true
	}
	return d >= 2 && d <= 61
}

// ValidAsUserChannel reports whether d may carry user data.
func (d DLCI) ValidAsUserChannel() bool {
	return d != MuxControlDLCI && d.Valid()
}

// ServerChannel returns the Server Channel number encoded in d.
func (d DLCI) ServerChannel() ServerChannel {
	return ServerChannel(d >> 1)
}

// DirectionBit returns the D bit of the DLCI (RFCOMM 5.4).
func (d DLCI) DirectionBit() uint8 {
	return uint8(d) & 0x01
}

// ServerChannel is an application-facing channel number offered for
// incoming connections. Valid values are [MinServerChannel,
// MaxServerChannel]; InvalidServerChannel is the sentinel for "none".
type ServerChannel uint8

const (
	InvalidServerChannel ServerChannel = 0
	MinServerChannel     ServerChannel = 1
	MaxServerChannel     ServerChannel = 30
)

// Valid reports whether sc is within the RFCOMM server channel range.
func (sc ServerChannel) Valid() bool {
	return sc >= MinServerChannel && sc <= MaxServerChannel
}

// ToDLCI maps a remote server channel to the DLCI used to address it,
// given the local session role. The direction bit is 1 when the server
// application resides on the session initiator's side (RFCOMM 5.4); when
// we open a channel the server is on the peer, so D is 1 exactly when the
// peer is the initiator.
func (sc ServerChannel) ToDLCI(localRole Role) (DLCI, error) {
	if !sc.Valid() {
		return 0, fmt.Errorf("rfcomm: invalid server channel %d", sc)
	}
	d := DLCI(sc) << 1
	if localRole == RoleResponder {
		d |= 1
	}
	return d, nil
}

// Role identifies which side of the multiplexer startup handshake this
// session took. The role fixes the interpretation of C/R bits and the
// direction bit of user DLCIs for the lifetime of the session.
type Role uint8

const (
	// RoleUnassigned means the startup handshake has not happened.
	RoleUnassigned Role = iota
	// RoleNegotiating means we sent SABM on DLCI 0 and await the reply.
	RoleNegotiating
	// RoleInitiator means we started the multiplexer.
	RoleInitiator
	// RoleResponder means the peer started the multiplexer.
	RoleResponder
)

// Assigned reports whether the startup handshake completed.
func (r Role) Assigned() bool {
	return r == RoleInitiator || r == RoleResponder
}

// Opposite returns the peer's role as seen from r.
func (r Role) Opposite() Role {
	switch r {
	case RoleInitiator:
		return RoleResponder
	case RoleResponder:
		return RoleInitiator
	default:
		return r
	}
}

func (r Role) String() string {
	switch r {
	case RoleUnassigned:
		return "unassigned"
	case RoleNegotiating:
		return "negotiating"
	case RoleInitiator:
		return "initiator"
	case RoleResponder:
		return "responder"
	}
	return fmt.Sprintf("role(%d)", uint8(r))
}

// CommandResponse distinguishes command frames from response frames
// (GSM 07.10 5.4.6.2). The wire encoding of the bit additionally depends
// on the sender's role; see crBit.
type CommandResponse uint8

const (
	Command CommandResponse = iota
	Response
)

func (cr CommandResponse) String() string {
	if cr == Command {
		return "command"
	}
	return "response"
}

// crBit returns the C/R bit value for a frame sent by a station with the
// given role. Commands from the initiator and responses from the responder
// carry C/R=1 (GSM 07.10 5.2.1.2). During multiplexer startup the sender
// of SABM acts as the prospective initiator and the sender of the reply as
// the prospective responder, so both directions carry C/R=1.
func crBit(role Role, cr CommandResponse) uint8 {
	if !role.Assigned() {
		return 1
	}
	if (cr == Command) == (role == RoleInitiator) {
		return 1
	}
	return 0
}

// commandResponseFromBit interprets a received C/R bit. The frame was
// formed by the peer, whose role is the opposite of ours. Before the
// startup handshake settles the roles, frames are classified by their
// control type instead: SABM, DISC and UIH are commands, UA and DM are
// responses.
func commandResponseFromBit(bit uint8, localRole Role, control uint8) CommandResponse {
	if !localRole.Assigned() {
		switch control &^ pfBit {
		case controlUA, controlDM:
			return Response
		default:
			return Command
		}
	}
	senderIsInitiator := localRole == RoleResponder
	if (bit == 1) == senderIsInitiator {
		return Command
	}
	return Response
}
