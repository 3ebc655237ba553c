package frame

import "fmt"

// LineError names the error bits of a Remote Line Status octet
// (GSM 07.10 Table 14).
type LineError uint8

const (
	LineErrorOverrun LineError = 0x1
	LineErrorParity  LineError = 0x2
	LineErrorFraming LineError = 0x4
)

func (e LineError) String() string {
	switch e {
	case LineErrorOverrun:
		return "overrun"
	case LineErrorParity:
		return "parity"
	case LineErrorFraming:
		return "framing"
	}
	return fmt.Sprintf("line-error(%#x)", uint8(e))
}

// RemoteLineStatusCommand (RLS) reports a line error on a DLC
// (GSM 07.10 5.4.6.3.10).
type RemoteLineStatusCommand struct {
	cr        CommandResponse
	DLCIField DLCI

	// ErrorOccurred is the L1 bit; Error is meaningful only when it is
	// set.
	ErrorOccurred bool
	Error         LineError
}

func NewRemoteLineStatusCommand(cr CommandResponse, dlci DLCI, occurred bool, lineErr LineError) *RemoteLineStatusCommand {
	return &RemoteLineStatusCommand{
		cr:            cr,
		DLCIField:     dlci,
		ErrorOccurred: occurred,
		Error:         lineErr,
	}
}

func parseRemoteLineStatus(cr CommandResponse, v []byte) (MuxCommand, error) {
	return &RemoteLineStatusCommand{
		cr:            cr,
		DLCIField:     DLCI(v[0] >> 2),
		ErrorOccurred: v[1]&0x01 != 0,
		Error:         LineError(v[1] >> 1 & 0x07),
	}, nil
}

func (c *RemoteLineStatusCommand) Type() CommandType                { return TypeRemoteLineStatus }
func (c *RemoteLineStatusCommand) CommandResponse() CommandResponse { return c.cr }
func (c *RemoteLineStatusCommand) WrittenSize() int                 { return commandWrittenSize(2) }

func (c *RemoteLineStatusCommand) Bytes() []byte {
	var status uint8
	if c.ErrorOccurred {
		status = 0x01 | uint8(c.Error&0x07)<<1
	}
	v := [2]byte{eaBit | 0x02 | uint8(c.DLCIField)<<2, status}
	return encodeCommand(TypeRemoteLineStatus, c.cr, v[:])
}

func (c *RemoteLineStatusCommand) String() string {
	return fmt.Sprintf("{RLS %s DLCI:%d Occurred:%v Error:%v}",
		c.cr, c.DLCIField, c.ErrorOccurred, c.Error)
}
