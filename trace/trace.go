// Package trace captures per-frame protocol activity as a stream of
// encoded records, one per frame sent or received, for offline debugging
// of multiplexer sessions.
package trace

import (
	"io"
	"sync"
	"time"
)

// Direction of a traced frame relative to the local session.
type Direction string

const (
	DirSend    Direction = "send"
	DirReceive Direction = "recv"
)

// Record describes one frame on the wire.
type Record struct {
	Time      time.Time `json:"time" cbor:"1,keyasint"`
	Session   string    `json:"session" cbor:"2,keyasint"`
	Dir       Direction `json:"dir" cbor:"3,keyasint"`
	DLCI      uint8     `json:"dlci" cbor:"4,keyasint"`
	Kind      string    `json:"kind" cbor:"5,keyasint"`
	PollFinal bool      `json:"poll_final,omitempty" cbor:"6,keyasint,omitempty"`
	Length    int       `json:"length,omitempty" cbor:"7,keyasint,omitempty"`
	Credits   uint8     `json:"credits,omitempty" cbor:"9,keyasint,omitempty"`

	// Detail is the frame's string form, including mux command contents.
	Detail string `json:"detail,omitempty" cbor:"8,keyasint,omitempty"`
}

// Writer encodes records onto an output stream. Safe for concurrent use.
type Writer struct {
	mu  sync.Mutex
	enc Encoder

	// now is replaced in tests.
	now func() time.Time
}

// NewWriter traces onto w using codec. Pass JSONCodec for readable
// output or CBORCodec for compact captures.
func NewWriter(w io.Writer, codec Codec) *Writer {
	return &Writer{enc: codec.Encoder(w), now: time.Now}
}

// Record stamps and writes one record.
func (w *Writer) Record(rec Record) error {
	if rec.Time.IsZero() {
		rec.Time = w.now()
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.enc.Encode(rec)
}

// Reader decodes records from a captured stream.
type Reader struct {
	dec Decoder
}

// NewReader reads records from r. The codec must match the one the
// capture was written with.
func NewReader(r io.Reader, codec Codec) *Reader {
	return &Reader{dec: codec.Decoder(r)}
}

// Next returns the next record, or io.EOF at end of capture.
func (r *Reader) Next() (Record, error) {
	var rec Record
	err := r.dec.Decode(&rec)
	return rec, err
}
