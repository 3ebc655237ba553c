package rfcomm

import "errors"

var (
	// ErrSessionClosed is returned when an operation hits a session whose
	// transport has gone away.
	ErrSessionClosed = errors.New("rfcomm: session closed")

	// ErrChannelNotEstablished is returned by Send before the DLC
	// establishment handshake completes or after the channel closes.
	ErrChannelNotEstablished = errors.New("rfcomm: channel not established")

	// ErrChannelActivated is returned by Activate when callbacks are
	// already registered.
	ErrChannelActivated = errors.New("rfcomm: channel already activated")

	// ErrDuplicateConnection is returned when a transport with an
	// already-registered connection ID is registered again.
	ErrDuplicateConnection = errors.New("rfcomm: connection already registered")

	// ErrInvalidServerChannel is returned for channel numbers outside
	// [1,30].
	ErrInvalidServerChannel = errors.New("rfcomm: invalid server channel")

	// ErrServerChannelInUse is returned when registering a server channel
	// that already has a registration.
	ErrServerChannelInUse = errors.New("rfcomm: server channel in use")
)
