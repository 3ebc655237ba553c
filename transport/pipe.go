package transport

import "net"

// Pipe returns two connected in-memory frame transports, one for each end
// of a synchronous net.Pipe. Useful for wiring two engines together in
// tests and local development.
func Pipe() (*Conn, *Conn) {
	a, b := net.Pipe()
	return New(a), New(b)
}
