package frame

import "fmt"

// PortSettings are the RS-232 port values negotiated by a Remote Port
// Negotiation command (GSM 07.10 Table 11). Field encodings follow the
// tables exactly; the zero value of each field is the GSM default except
// BaudRate, so use DefaultPortSettings for a fresh port.
type PortSettings struct {
	BaudRate      uint8  `mapstructure:"baud"`
	DataBits      uint8  `mapstructure:"databits"`
	StopBits      uint8  `mapstructure:"stopbits"`
	Parity        uint8  `mapstructure:"parity"`
	ParityType    uint8  `mapstructure:"paritytype"`
	FlowControl   uint8  `mapstructure:"flowcontrol"`
	XONCharacter  uint8  `mapstructure:"xon"`
	XOFFCharacter uint8  `mapstructure:"xoff"`
	ParameterMask uint16 `mapstructure:"mask"`
}

// Baud rate values per GSM 07.10 Table 12.
const (
	Baud2400   uint8 = 0x00
	Baud4800   uint8 = 0x01
	Baud7200   uint8 = 0x02
	Baud9600   uint8 = 0x03
	Baud19200  uint8 = 0x04
	Baud38400  uint8 = 0x05
	Baud57600  uint8 = 0x06
	Baud115200 uint8 = 0x07
	Baud230400 uint8 = 0x08
)

// DefaultPortSettings returns the GSM 07.10 default port state:
// 9600 baud, 8 data bits, 1 stop bit, no parity.
func DefaultPortSettings() PortSettings {
	return PortSettings{
		BaudRate:      Baud9600,
		DataBits:      0x03, // 8 bits
		XONCharacter:  0x11, // DC1
		XOFFCharacter: 0x13, // DC3
	}
}

// RemotePortNegotiationCommand (RPN) queries or sets the port settings of
// a DLC (GSM 07.10 5.4.6.3.9). A one-octet value field is a query; an
// eight-octet field carries proposed settings with a mask naming the
// parameters being negotiated.
type RemotePortNegotiationCommand struct {
	cr        CommandResponse
	DLCIField DLCI

	hasSettings bool
	settings    PortSettings
}

// NewRemotePortNegotiationQuery builds the short, settings-less RPN form.
func NewRemotePortNegotiationQuery(cr CommandResponse, dlci DLCI) *RemotePortNegotiationCommand {
	return &RemotePortNegotiationCommand{cr: cr, DLCIField: dlci}
}

func NewRemotePortNegotiationCommand(cr CommandResponse, dlci DLCI, settings PortSettings) *RemotePortNegotiationCommand {
	return &RemotePortNegotiationCommand{
		cr:          cr,
		DLCIField:   dlci,
		hasSettings: true,
		settings:    settings,
	}
}

func parseRemotePortNegotiation(cr CommandResponse, v []byte) (MuxCommand, error) {
	c := &RemotePortNegotiationCommand{
		cr:        cr,
		DLCIField: DLCI(v[0] >> 2),
	}
	if len(v) == 1 {
		return c, nil
	}
	c.hasSettings = true
	c.settings = PortSettings{
		BaudRate:      v[1],
		DataBits:      v[2] & 0x03,
		StopBits:      v[2] >> 2 & 0x01,
		Parity:        v[2] >> 3 & 0x01,
		ParityType:    v[2] >> 4 & 0x03,
		FlowControl:   v[3] & 0x3F,
		XONCharacter:  v[4],
		XOFFCharacter: v[5],
		ParameterMask: uint16(v[6]) | uint16(v[7])<<8,
	}
	return c, nil
}

// HasSettings reports whether the command carries port values; a bare
// query does not.
func (c *RemotePortNegotiationCommand) HasSettings() bool { return c.hasSettings }

// Settings returns the carried port values; meaningful only when
// HasSettings is true.
func (c *RemotePortNegotiationCommand) Settings() PortSettings { return c.settings }

func (c *RemotePortNegotiationCommand) Type() CommandType                { return TypeRemotePortNegotiation }
func (c *RemotePortNegotiationCommand) CommandResponse() CommandResponse { return c.cr }

func (c *RemotePortNegotiationCommand) valueOctets() int {
	if c.hasSettings {
		return 8
	}
	return 1
}

func (c *RemotePortNegotiationCommand) WrittenSize() int { return commandWrittenSize(c.valueOctets()) }

func (c *RemotePortNegotiationCommand) Bytes() []byte {
	dlciOctet := eaBit | 0x02 | uint8(c.DLCIField)<<2
	if !c.hasSettings {
		return encodeCommand(TypeRemotePortNegotiation, c.cr, []byte{dlciOctet})
	}
	s := c.settings
	v := [8]byte{
		dlciOctet,
		s.BaudRate,
		s.DataBits&0x03 | (s.StopBits&0x01)<<2 | (s.Parity&0x01)<<3 | (s.ParityType&0x03)<<4,
		s.FlowControl & 0x3F,
		s.XONCharacter,
		s.XOFFCharacter,
		uint8(s.ParameterMask),
		uint8(s.ParameterMask >> 8),
	}
	return encodeCommand(TypeRemotePortNegotiation, c.cr, v[:])
}

func (c *RemotePortNegotiationCommand) String() string {
	if !c.hasSettings {
		return fmt.Sprintf("{RPN %s DLCI:%d query}", c.cr, c.DLCIField)
	}
	return fmt.Sprintf("{RPN %s DLCI:%d %+v}", c.cr, c.DLCIField, c.settings)
}
