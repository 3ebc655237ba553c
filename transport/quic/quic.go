// Package quic carries frame transports over a single QUIC stream per
// connection.
package quic

import (
	"context"
	"crypto/tls"
	"net"

	"github.com/quic-go/quic-go"

	"github.com/portmux/rfcomm-go/rfcomm"
	"github.com/portmux/rfcomm-go/transport"
)

const alpnProtocol = "rfcomm-mux"

// New wraps an established QUIC connection and its frame stream.
func New(conn quic.Connection, stream quic.Stream) *transport.Conn {
	return transport.NewWithID(&streamConn{conn: conn, stream: stream},
		rfcomm.ConnectionID("quic:"+conn.RemoteAddr().String()))
}

// Dial connects to addr and opens the frame stream. A nil tlsConf uses an
// insecure config suitable only for development.
func Dial(ctx context.Context, addr string, tlsConf *tls.Config) (*transport.Conn, error) {
	if tlsConf == nil {
		tlsConf = &tls.Config{InsecureSkipVerify: true}
	}
	if len(tlsConf.NextProtos) == 0 {
		tlsConf = tlsConf.Clone()
		tlsConf.NextProtos = []string{alpnProtocol}
	}
	conn, err := quic.DialAddr(ctx, addr, tlsConf, nil)
	if err != nil {
		return nil, err
	}
	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		conn.CloseWithError(0, "no stream")
		return nil, err
	}
	// A stream only reaches the peer once data flows on it.
	if _, err := stream.Write([]byte("!")); err != nil {
		conn.CloseWithError(0, "no stream")
		return nil, err
	}
	return New(conn, stream), nil
}

// Listener accepts QUIC connections and hands out their frame transports.
type Listener struct {
	ql *quic.Listener
}

// ListenAddr starts a QUIC listener at addr. tlsConf must carry a
// certificate.
func ListenAddr(addr string, tlsConf *tls.Config) (*Listener, error) {
	if len(tlsConf.NextProtos) == 0 {
		tlsConf = tlsConf.Clone()
		tlsConf.NextProtos = []string{alpnProtocol}
	}
	ql, err := quic.ListenAddr(addr, tlsConf, nil)
	if err != nil {
		return nil, err
	}
	return &Listener{ql: ql}, nil
}

// Accept waits for the next connection and its frame stream.
func (l *Listener) Accept(ctx context.Context) (*transport.Conn, error) {
	conn, err := l.ql.Accept(ctx)
	if err != nil {
		return nil, err
	}
	stream, err := conn.AcceptStream(ctx)
	if err != nil {
		conn.CloseWithError(0, "no stream")
		return nil, err
	}
	// Consume the dialer's stream-open preamble.
	header := make([]byte, 1)
	if _, err := stream.Read(header); err != nil {
		conn.CloseWithError(0, "no stream")
		return nil, err
	}
	return New(conn, stream), nil
}

func (l *Listener) Addr() net.Addr { return l.ql.Addr() }

func (l *Listener) Close() error { return l.ql.Close() }

// streamConn binds a stream's lifetime to its connection so closing the
// transport closes both.
type streamConn struct {
	conn   quic.Connection
	stream quic.Stream
}

func (c *streamConn) Read(p []byte) (int, error)  { return c.stream.Read(p) }
func (c *streamConn) Write(p []byte) (int, error) { return c.stream.Write(p) }

func (c *streamConn) Close() error {
	c.stream.CancelRead(0)
	c.stream.Close()
	return c.conn.CloseWithError(0, "close connection")
}
