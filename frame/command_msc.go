package frame

import "fmt"

// ModemSignals are the V.24 signal bits carried by a Modem Status command
// (GSM 07.10 Table 7).
type ModemSignals struct {
	FlowControl        bool // FC: sender cannot accept frames
	ReadyToCommunicate bool // RTC
	ReadyToReceive     bool // RTR
	IncomingCall       bool // IC
	DataValid          bool // DV
}

// MaxBreakValue is the largest break interval (4 bits of 200ms units).
const MaxBreakValue = 15

// ModemStatusCommand (MSC) conveys the virtual V.24 signal state of a DLC
// and optionally a break signal (GSM 07.10 5.4.6.3.7, Tables 7 and 8).
type ModemStatusCommand struct {
	cr        CommandResponse
	DLCIField DLCI
	Signals   ModemSignals

	hasBreak   bool
	breakValue uint8
}

// NewModemStatusCommand builds an MSC without a break signal.
func NewModemStatusCommand(cr CommandResponse, dlci DLCI, signals ModemSignals) *ModemStatusCommand {
	return &ModemStatusCommand{cr: cr, DLCIField: dlci, Signals: signals}
}

// NewModemStatusCommandWithBreak builds an MSC carrying a break signal of
// the given length in units of 200ms (0-15).
func NewModemStatusCommandWithBreak(cr CommandResponse, dlci DLCI, signals ModemSignals, breakValue uint8) *ModemStatusCommand {
	return &ModemStatusCommand{
		cr:         cr,
		DLCIField:  dlci,
		Signals:    signals,
		hasBreak:   true,
		breakValue: breakValue & 0x0F,
	}
}

func parseModemStatus(cr CommandResponse, v []byte) (MuxCommand, error) {
	// Lengths 2 and 3 were validated by the caller.
	c := &ModemStatusCommand{
		cr:        cr,
		DLCIField: DLCI(v[0] >> 2),
	}
	signals := v[1]
	c.Signals = ModemSignals{
		FlowControl:        signals&0x02 != 0,
		ReadyToCommunicate: signals&0x04 != 0,
		ReadyToReceive:     signals&0x08 != 0,
		IncomingCall:       signals&0x40 != 0,
		DataValid:          signals&0x80 != 0,
	}
	// The EA bit of the signal octet is clear when a break octet follows.
	if signals&eaBit == 0 {
		if len(v) != 3 {
			return nil, CommandLengthError{Type: TypeModemStatus, Length: uint(len(v))}
		}
		c.hasBreak = v[2]&0x02 != 0
		c.breakValue = v[2] >> 4
	} else if len(v) != 2 {
		return nil, CommandLengthError{Type: TypeModemStatus, Length: uint(len(v))}
	}
	return c, nil
}

// HasBreakSignal reports whether a break signal is present.
func (c *ModemStatusCommand) HasBreakSignal() bool { return c.hasBreak }

// BreakValue returns the break interval in 200ms units; meaningful only
// when HasBreakSignal is true.
func (c *ModemStatusCommand) BreakValue() uint8 { return c.breakValue }

func (c *ModemStatusCommand) Type() CommandType                { return TypeModemStatus }
func (c *ModemStatusCommand) CommandResponse() CommandResponse { return c.cr }

func (c *ModemStatusCommand) valueOctets() int {
	if c.hasBreak {
		return 3
	}
	return 2
}

func (c *ModemStatusCommand) WrittenSize() int { return commandWrittenSize(c.valueOctets()) }

func (c *ModemStatusCommand) Bytes() []byte {
	v := make([]byte, 0, 3)
	// The DLCI octet of an MSC always has bit 1 set (GSM Table 7).
	v = append(v, eaBit|0x02|uint8(c.DLCIField)<<2)

	var signals uint8
	if !c.hasBreak {
		signals |= eaBit
	}
	if c.Signals.FlowControl {
		signals |= 0x02
	}
	if c.Signals.ReadyToCommunicate {
		signals |= 0x04
	}
	if c.Signals.ReadyToReceive {
		signals |= 0x08
	}
	if c.Signals.IncomingCall {
		signals |= 0x40
	}
	if c.Signals.DataValid {
		signals |= 0x80
	}
	v = append(v, signals)

	if c.hasBreak {
		v = append(v, eaBit|0x02|c.breakValue<<4)
	}
	return encodeCommand(TypeModemStatus, c.cr, v)
}

func (c *ModemStatusCommand) String() string {
	return fmt.Sprintf("{MSC %s DLCI:%d Signals:%+v Break:%v}",
		c.cr, c.DLCIField, c.Signals, c.hasBreak)
}
