package frame

import (
	"bytes"
	"errors"
	"reflect"
	"testing"
)

func TestCommandRoundTrip(t *testing.T) {
	tests := []MuxCommand{
		NewParameterNegotiationCommand(Command, 6, CreditFlowInitiated, 61, 672, 7),
		NewParameterNegotiationCommand(Response, 6, CreditFlowAccepted, 0, 127, 0),
		NewTestCommand(Command, []byte{0x01, 0x02, 0x03}),
		NewTestCommand(Response, nil),
		NewFlowControlOnCommand(Command),
		NewFlowControlOffCommand(Response),
		NewModemStatusCommand(Command, 10, ModemSignals{ReadyToCommunicate: true, ReadyToReceive: true, DataValid: true}),
		NewModemStatusCommandWithBreak(Command, 10, ModemSignals{}, 12),
		NewNonSupportedCommandResponse(0x87),
		NewRemotePortNegotiationQuery(Command, 6),
		NewRemotePortNegotiationCommand(Response, 6, PortSettings{
			BaudRate:      Baud115200,
			DataBits:      0x03,
			StopBits:      0x01,
			Parity:        0x01,
			ParityType:    0x02,
			FlowControl:   0x3F,
			XONCharacter:  0x11,
			XOFFCharacter: 0x13,
			ParameterMask: 0x3F7F,
		}),
		NewRemoteLineStatusCommand(Command, 6, true, LineErrorFraming),
		NewRemoteLineStatusCommand(Response, 6, false, 0),
	}
	for _, in := range tests {
		encoded := in.Bytes()
		if len(encoded) != in.WrittenSize() {
			t.Errorf("%v: encoded %d octets, WrittenSize says %d", in, len(encoded), in.WrittenSize())
		}
		out, err := ParseCommand(encoded)
		if err != nil {
			t.Fatalf("ParseCommand(%v): %v", in, err)
		}
		if !reflect.DeepEqual(in, out) {
			t.Errorf("round trip mismatch:\n in: %#v\nout: %#v", in, out)
		}
		if out.String() == "" {
			t.Errorf("%v: empty string representation", in)
		}
	}
}

func TestCommandTypeTags(t *testing.T) {
	tests := []struct {
		cmd  MuxCommand
		want CommandType
	}{
		{NewParameterNegotiationCommand(Command, 2, CreditFlowNone, 0, 127, 0), TypeDLCParameterNegotiation},
		{NewTestCommand(Command, nil), TypeTestCommand},
		{NewFlowControlOnCommand(Command), TypeFlowControlOn},
		{NewFlowControlOffCommand(Command), TypeFlowControlOff},
		{NewModemStatusCommand(Command, 2, ModemSignals{}), TypeModemStatus},
		{NewNonSupportedCommandResponse(0x01), TypeNonSupportedCommand},
		{NewRemotePortNegotiationQuery(Command, 2), TypeRemotePortNegotiation},
		{NewRemoteLineStatusCommand(Command, 2, false, 0), TypeRemoteLineStatus},
	}
	for _, test := range tests {
		if test.cmd.Type() != test.want {
			t.Errorf("%v: type %v, want %v", test.cmd, test.cmd.Type(), test.want)
		}
		if got := CommandType(test.cmd.Bytes()[0] & commandTypeMask); got != test.want {
			t.Errorf("%v: wire tag %v, want %v", test.cmd, got, test.want)
		}
	}
}

// A PN command must carry exactly eight value octets; any other claimed
// length is a decode error rather than a different command.
func TestParameterNegotiationLengthEnforced(t *testing.T) {
	for _, n := range []int{0, 7, 9} {
		buf := []byte{uint8(TypeDLCParameterNegotiation) | 0x02 | eaBit}
		buf = appendLength(buf, uint(n))
		buf = append(buf, make([]byte, n)...)

		_, err := ParseCommand(buf)
		var lenErr CommandLengthError
		if !errors.As(err, &lenErr) {
			t.Errorf("PN with length %d: got %v, want CommandLengthError", n, err)
		}
	}
}

// The Test command accepts any pattern length, including zero.
func TestTestCommandAnyLength(t *testing.T) {
	for _, n := range []int{0, 1, 127, 128, 300} {
		pattern := bytes.Repeat([]byte{0x5A}, n)
		out, err := ParseCommand(NewTestCommand(Command, pattern).Bytes())
		if err != nil {
			t.Fatalf("Test command of length %d rejected: %v", n, err)
		}
		if got := out.(*TestCommand).Pattern(); !bytes.Equal(got, pattern) {
			t.Errorf("pattern of length %d corrupted (got %d octets)", n, len(got))
		}
	}
}

// Modem-Status scenario: dlci=5, all signals false, no break.
func TestModemStatusNoBreak(t *testing.T) {
	in := NewModemStatusCommand(Command, 5, ModemSignals{})
	out, err := ParseCommand(in.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	msc, ok := out.(*ModemStatusCommand)
	if !ok {
		t.Fatalf("parsed %T, want *ModemStatusCommand", out)
	}
	if msc.DLCIField != 5 {
		t.Errorf("DLCI = %d, want 5", msc.DLCIField)
	}
	if msc.Signals != (ModemSignals{}) {
		t.Errorf("signals = %+v, want all false", msc.Signals)
	}
	if msc.HasBreakSignal() {
		t.Error("HasBreakSignal() = true, want false")
	}
}

func TestModemStatusBreakValue(t *testing.T) {
	in := NewModemStatusCommandWithBreak(Command, 5, ModemSignals{}, 9)
	out, err := ParseCommand(in.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	msc := out.(*ModemStatusCommand)
	if !msc.HasBreakSignal() || msc.BreakValue() != 9 {
		t.Errorf("break = (%v, %d), want (true, 9)", msc.HasBreakSignal(), msc.BreakValue())
	}
}

func TestParseCommandRejectsMalformedInput(t *testing.T) {
	tests := []struct {
		name string
		buf  []byte
	}{
		{"empty", nil},
		{"type octet only", []byte{0x83}},
		{"length exceeds buffer", []byte{0x83, 0x11, 0x00}},
		{"value octets beyond length", []byte{0x21, 0x01, 0xAA}},
	}
	for _, test := range tests {
		if _, err := ParseCommand(test.buf); err == nil {
			t.Errorf("%s: ParseCommand accepted % x", test.name, test.buf)
		}
	}
}

func TestParseCommandUnknownType(t *testing.T) {
	// 0x0C is no defined command tag.
	buf := []byte{0x0C | 0x02 | eaBit, 0x01}
	_, err := ParseCommand(buf)
	var unknown UnknownCommandTypeError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected UnknownCommandTypeError, got %v", err)
	}
	if unknown.TypeOctet != buf[0] {
		t.Errorf("reported octet %#02x, want %#02x", unknown.TypeOctet, buf[0])
	}
}
