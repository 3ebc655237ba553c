package transport

import (
	"io"
	"os"

	"github.com/portmux/rfcomm-go/rfcomm"
)

type ioduplex struct {
	io.WriteCloser
	io.ReadCloser
}

func (d *ioduplex) Close() error {
	werr := d.WriteCloser.Close()
	rerr := d.ReadCloser.Close()
	if werr != nil {
		return werr
	}
	return rerr
}

// DialIO builds a frame transport from a WriteCloser and ReadCloser pair.
func DialIO(out io.WriteCloser, in io.ReadCloser) *Conn {
	return New(&ioduplex{out, in})
}

// DialStdio builds a frame transport over Stdout and Stdin.
func DialStdio() *Conn {
	return NewWithID(&ioduplex{os.Stdout, os.Stdin}, rfcomm.ConnectionID("stdio"))
}
