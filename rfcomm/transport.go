package rfcomm

// ConnectionID names the underlying transport connection a session runs
// over. The engine only compares IDs; transports choose their own scheme
// (peer address, D-Bus device path, a generated id).
type ConnectionID string

// Transport is the ordered, reliable, closable byte pipe a session
// multiplexes. In a real stack this is an L2CAP channel; the adapters in
// the transport package provide pipes over TCP, WebSocket, QUIC and
// in-memory connections for development and tests.
//
// Each call to the receive handler must deliver exactly one RFCOMM frame;
// preserving frame boundaries is the transport's job.
type Transport interface {
	// ID identifies the underlying connection for duplicate-registration
	// checks.
	ID() ConnectionID

	// Send writes one frame to the peer.
	Send(p []byte) error

	// Activate installs the inbound handlers and starts delivery.
	// Handlers may be invoked from any goroutine; the session posts the
	// work to its own dispatcher.
	Activate(onReceive func(p []byte), onClosed func()) error

	// Close tears the connection down. onClosed is not invoked for a
	// local Close.
	Close() error
}
