package transport

import (
	"fmt"

	"golang.org/x/net/websocket"

	"github.com/portmux/rfcomm-go/rfcomm"
)

// DialWS connects a frame transport via WebSocket. The address must be a
// host and port; opening a connection at a particular path is not
// supported.
func DialWS(addr string) (*Conn, error) {
	ws, err := websocket.Dial(fmt.Sprintf("ws://%s/", addr), "", fmt.Sprintf("http://%s/", addr))
	if err != nil {
		return nil, err
	}
	ws.PayloadType = websocket.BinaryFrame
	return NewWithID(ws, rfcomm.ConnectionID("ws:"+addr)), nil
}
