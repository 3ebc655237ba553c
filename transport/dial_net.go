package transport

import (
	"net"

	"github.com/portmux/rfcomm-go/rfcomm"
)

func dialNet(proto, addr string) (*Conn, error) {
	conn, err := net.Dial(proto, addr)
	if err != nil {
		return nil, err
	}
	return NewWithID(conn, rfcomm.ConnectionID(proto+":"+addr)), nil
}

// DialTCP connects a frame transport over TCP.
func DialTCP(addr string) (*Conn, error) {
	return dialNet("tcp", addr)
}

// DialUnix connects a frame transport over a Unix domain socket.
func DialUnix(path string) (*Conn, error) {
	return dialNet("unix", path)
}
