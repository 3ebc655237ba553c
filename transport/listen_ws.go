package transport

import (
	"net"
	"net/http"

	"golang.org/x/net/websocket"
)

// HandleWS takes a WebSocket connection, wraps it as a frame transport,
// and sends it to a NetListener to be accepted. The call blocks until the
// connection closes, per the websocket.Handler contract.
func HandleWS(l *NetListener, ws *websocket.Conn) {
	ws.PayloadType = websocket.BinaryFrame
	conn := New(ws)
	l.accepted <- conn
	// Returning would close ws underneath the transport, so hold the
	// handler until the transport is done with it.
	<-ws.Request().Context().Done()
}

// ListenWS takes a TCP address and returns a NetListener with an
// HTTP+WebSocket server listening on the given address.
func ListenWS(addr string) (*NetListener, error) {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	nl := &NetListener{
		Listener: l,
		accepted: make(chan *Conn),
		errs:     make(chan error, 2),
		closer:   make(chan bool, 1),
	}
	s := &http.Server{
		Addr: addr,
		Handler: websocket.Handler(func(ws *websocket.Conn) {
			HandleWS(nl, ws)
		}),
	}
	go func() {
		nl.errs <- s.Serve(l)
	}()
	return nl, nil
}
