package trace

import (
	"encoding/json"
	"io"

	"github.com/fxamacker/cbor/v2"
)

type Encoder interface {
	// Encode writes an encoding of v to its Writer.
	Encode(v interface{}) error
}

type Decoder interface {
	// Decode reads the next encoded value from its Reader and stores it in
	// the value pointed to by v.
	Decode(v interface{}) error
}

// Codec returns an Encoder or Decoder given a Writer or Reader.
type Codec interface {
	Encoder(w io.Writer) Encoder
	Decoder(r io.Reader) Decoder
}

// JSONCodec emits one JSON object per record, newline delimited, which
// keeps trace files greppable.
type JSONCodec struct{}

func (c JSONCodec) Encoder(w io.Writer) Encoder {
	return json.NewEncoder(w)
}

func (c JSONCodec) Decoder(r io.Reader) Decoder {
	return json.NewDecoder(r)
}

// CBORCodec emits compact binary records for long captures.
type CBORCodec struct{}

func (c CBORCodec) Encoder(w io.Writer) Encoder {
	return cbor.NewEncoder(w)
}

func (c CBORCodec) Decoder(r io.Reader) Decoder {
	return cbor.NewDecoder(r)
}
