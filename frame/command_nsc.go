package frame

import "fmt"

// NonSupportedCommandResponse (NSC) tells the peer that a command it sent
// is not supported (GSM 07.10 5.4.6.3.8). Its single value octet repeats
// the offending command's type octet, C/R bit included.
type NonSupportedCommandResponse struct {
	cr CommandResponse

	// NonSupportedOctet is the type octet of the rejected command.
	NonSupportedOctet uint8
}

// NewNonSupportedCommandResponse builds the NSC reply for the command
// type octet that could not be handled. NSC only ever exists as a
// response (GSM Table 9).
func NewNonSupportedCommandResponse(typeOctet uint8) *NonSupportedCommandResponse {
	return &NonSupportedCommandResponse{cr: Response, NonSupportedOctet: typeOctet | eaBit}
}

func parseNonSupportedCommand(cr CommandResponse, v []byte) (MuxCommand, error) {
	return &NonSupportedCommandResponse{cr: cr, NonSupportedOctet: v[0]}, nil
}

// NonSupportedType returns the command type tag of the rejected command.
func (c *NonSupportedCommandResponse) NonSupportedType() CommandType {
	return CommandType(c.NonSupportedOctet & commandTypeMask)
}

func (c *NonSupportedCommandResponse) Type() CommandType                { return TypeNonSupportedCommand }
func (c *NonSupportedCommandResponse) CommandResponse() CommandResponse { return c.cr }
func (c *NonSupportedCommandResponse) WrittenSize() int                 { return commandWrittenSize(1) }

func (c *NonSupportedCommandResponse) Bytes() []byte {
	return encodeCommand(TypeNonSupportedCommand, c.cr, []byte{c.NonSupportedOctet})
}

func (c *NonSupportedCommandResponse) String() string {
	return fmt.Sprintf("{NSC %s NonSupported:%#02x}", c.cr, c.NonSupportedOctet)
}
