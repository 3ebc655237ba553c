// Package transport adapts ordered byte streams into the frame-boundary
// preserving pipes the rfcomm engine multiplexes. Adapters exist for TCP,
// Unix sockets, WebSocket, stdio and in-memory pipes; frames travel with
// a little-endian 16-bit length prefix so stream transports keep the
// boundaries an L2CAP channel would give for free.
package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/rs/xid"

	"github.com/portmux/rfcomm-go/rfcomm"
)

const lengthPrefixSize = 2

var (
	// ErrFrameTooLarge is returned by Send for frames that do not fit
	// the 16-bit length prefix.
	ErrFrameTooLarge = errors.New("transport: frame exceeds 64 KiB")

	errAlreadyActivated = errors.New("transport: already activated")
)

// Conn adapts an io.ReadWriteCloser into an rfcomm.Transport, delivering
// exactly one frame per receive callback.
type Conn struct {
	id  rfcomm.ConnectionID
	rwc io.ReadWriteCloser

	writeMu sync.Mutex

	mu        sync.Mutex
	activated bool
	closed    bool
}

// New wraps rwc under a generated connection ID.
func New(rwc io.ReadWriteCloser) *Conn {
	return NewWithID(rwc, rfcomm.ConnectionID(xid.New().String()))
}

// NewWithID wraps rwc under a caller-chosen connection ID, so transports
// that know the peer address get meaningful duplicate detection.
func NewWithID(rwc io.ReadWriteCloser, id rfcomm.ConnectionID) *Conn {
	return &Conn{id: id, rwc: rwc}
}

func (c *Conn) ID() rfcomm.ConnectionID { return c.id }

// Send writes one length-prefixed frame. Safe for concurrent use.
func (c *Conn) Send(p []byte) error {
	if len(p) > 0xFFFF {
		return ErrFrameTooLarge
	}
	buf := make([]byte, lengthPrefixSize+len(p))
	binary.LittleEndian.PutUint16(buf, uint16(len(p)))
	copy(buf[lengthPrefixSize:], p)

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.rwc.Write(buf); err != nil {
		return fmt.Errorf("transport: write frame: %w", err)
	}
	return nil
}

// Activate starts the read loop. onClosed fires when the peer closes the
// stream or a read fails, but not after a local Close.
func (c *Conn) Activate(onReceive func(p []byte), onClosed func()) error {
	c.mu.Lock()
	if c.activated {
		c.mu.Unlock()
		return errAlreadyActivated
	}
	c.activated = true
	c.mu.Unlock()

	go c.readLoop(onReceive, onClosed)
	return nil
}

func (c *Conn) readLoop(onReceive func([]byte), onClosed func()) {
	var hdr [lengthPrefixSize]byte
	for {
		if _, err := io.ReadFull(c.rwc, hdr[:]); err != nil {
			c.readFailed(onClosed)
			return
		}
		buf := make([]byte, binary.LittleEndian.Uint16(hdr[:]))
		if _, err := io.ReadFull(c.rwc, buf); err != nil {
			c.readFailed(onClosed)
			return
		}
		onReceive(buf)
	}
}

func (c *Conn) readFailed(onClosed func()) {
	c.mu.Lock()
	wasClosed := c.closed
	c.closed = true
	c.mu.Unlock()
	if !wasClosed {
		c.rwc.Close()
		onClosed()
	}
}

// Close shuts the underlying stream down, unblocking the read loop.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	return c.rwc.Close()
}
