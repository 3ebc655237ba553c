package frame

import (
	"bytes"
	"errors"
	"testing"
)

func TestEncodeDecodeControlFrames(t *testing.T) {
	tests := []struct {
		in   Frame
		dlci DLCI
		cr   CommandResponse
	}{
		{in: NewSABM(RoleInitiator, 6), dlci: 6, cr: Command},
		{in: NewDisconnect(RoleInitiator, 6), dlci: 6, cr: Command},
		{in: NewUnnumberedAck(RoleInitiator, 6), dlci: 6, cr: Response},
		{in: NewDisconnectedMode(RoleInitiator, 9), dlci: 9, cr: Response},
	}
	for _, test := range tests {
		encoded := test.in.Bytes()
		if len(encoded) != test.in.WrittenSize() {
			t.Errorf("%v: encoded %d octets, WrittenSize says %d", test.in, len(encoded), test.in.WrittenSize())
		}
		// The peer parses with the opposite role.
		f, err := Parse(encoded, false, RoleResponder)
		if err != nil {
			t.Fatalf("Parse(%v bytes): %v", test.in, err)
		}
		if f.DLCI() != test.dlci {
			t.Errorf("%v: parsed DLCI %d, want %d", test.in, f.DLCI(), test.dlci)
		}
		if f.CommandResponse() != test.cr {
			t.Errorf("%v: parsed %v, want %v", test.in, f.CommandResponse(), test.cr)
		}
		if f.String() == "" {
			t.Errorf("%v: empty string representation", test.in)
		}
	}
}

// A mux startup SABM must produce the canonical GSM 07.10 octets:
// address 0x03 (EA, C/R=1, DLCI 0), control 0x3F (SABM with P=1), and a
// zero length octet.
func TestSABMStartupWireFormat(t *testing.T) {
	encoded := NewSABM(RoleUnassigned, MuxControlDLCI).Bytes()
	if len(encoded) != 4 {
		t.Fatalf("SABM encoded to %d octets, want 4", len(encoded))
	}
	if !bytes.Equal(encoded[:3], []byte{0x03, 0x3F, 0x01}) {
		t.Fatalf("SABM header = % x, want 03 3f 01", encoded[:3])
	}

	f, err := Parse(encoded, false, RoleUnassigned)
	if err != nil {
		t.Fatal(err)
	}
	sabm, ok := f.(*SABM)
	if !ok {
		t.Fatalf("parsed %T, want *SABM", f)
	}
	if sabm.DLCI() != 0 {
		t.Errorf("parsed DLCI %d, want 0", sabm.DLCI())
	}
	if !sabm.PollFinal() {
		t.Error("SABM poll bit not set")
	}
}

func TestUserDataRoundTrip(t *testing.T) {
	payload := []byte("hello rfcomm")
	in := NewUserDataFrame(RoleInitiator, 8, payload, true)
	in.SetCredits(3)

	f, err := Parse(in.Bytes(), true, RoleResponder)
	if err != nil {
		t.Fatal(err)
	}
	out, ok := f.(*UserDataFrame)
	if !ok {
		t.Fatalf("parsed %T, want *UserDataFrame", f)
	}
	if out.DLCI() != 8 {
		t.Errorf("DLCI = %d, want 8", out.DLCI())
	}
	if out.Credits() != 3 {
		t.Errorf("credits = %d, want 3", out.Credits())
	}
	if got := out.TakePayload(); !bytes.Equal(got, payload) {
		t.Errorf("payload = %q, want %q", got, payload)
	}
	if out.TakePayload() != nil {
		t.Error("second TakePayload returned a payload")
	}
}

func TestCreditsPollFinalCoupling(t *testing.T) {
	f := NewUserDataFrame(RoleInitiator, 8, []byte{1, 2, 3}, true)
	if f.PollFinal() {
		t.Error("fresh frame has P/F set")
	}
	f.SetCredits(7)
	if !f.PollFinal() {
		t.Error("SetCredits(7) left P/F clear")
	}
	f.SetCredits(0)
	if f.PollFinal() {
		t.Error("SetCredits(0) left P/F set")
	}
}

// The credits octet appears exactly when flow control is on and the value
// is nonzero.
func TestCreditsOctetPresence(t *testing.T) {
	base := len(NewUserDataFrame(RoleInitiator, 8, []byte{1, 2}, false).Bytes())

	withCredits := NewUserDataFrame(RoleInitiator, 8, []byte{1, 2}, true)
	withCredits.SetCredits(5)
	if got := len(withCredits.Bytes()); got != base+1 {
		t.Errorf("credit-bearing frame is %d octets, want %d", got, base+1)
	}

	zeroCredits := NewUserDataFrame(RoleInitiator, 8, []byte{1, 2}, true)
	if got := len(zeroCredits.Bytes()); got != base {
		t.Errorf("zero-credit frame is %d octets, want %d", got, base)
	}
}

func TestMuxCommandFrameRoundTrip(t *testing.T) {
	cmd := NewTestCommand(Command, []byte{0xDE, 0xAD})
	in := NewMuxCommandFrame(RoleInitiator, true, cmd)

	f, err := Parse(in.Bytes(), true, RoleResponder)
	if err != nil {
		t.Fatal(err)
	}
	mcf, ok := f.(*MuxCommandFrame)
	if !ok {
		t.Fatalf("parsed %T, want *MuxCommandFrame", f)
	}
	if mcf.DLCI() != MuxControlDLCI {
		t.Errorf("DLCI = %d, want 0", mcf.DLCI())
	}
	out, ok := mcf.TakeCommand().(*TestCommand)
	if !ok {
		t.Fatal("embedded command is not a TestCommand")
	}
	if !bytes.Equal(out.Pattern(), []byte{0xDE, 0xAD}) {
		t.Errorf("pattern = % x", out.Pattern())
	}
}

func TestParseRejectsMalformedInput(t *testing.T) {
	valid := NewSABM(RoleInitiator, 6).Bytes()

	tests := []struct {
		name string
		buf  []byte
	}{
		{"empty", nil},
		{"truncated", valid[:2]},
		{"missing FCS", valid[:len(valid)-1]},
		{"corrupt FCS", append(append([]byte{}, valid[:len(valid)-1]...), valid[len(valid)-1]^0xFF)},
		{"unknown control octet", buildRaw(0x1B, 0x85, nil)},
		{"control frame with payload", buildRaw(0x1B, 0x3F, []byte{0xAA})},
	}
	for _, test := range tests {
		if _, err := Parse(test.buf, false, RoleResponder); err == nil {
			t.Errorf("%s: Parse accepted % x", test.name, test.buf)
		}
	}
}

// A frame failing its checksum is dropped before the information field is
// interpreted, even when the garbage would decode as an unknown command.
func TestBadFCSCheckedBeforeInformationField(t *testing.T) {
	raw := NewMuxCommandFrame(RoleInitiator, false, NewTestCommand(Command, nil)).Bytes()
	raw[3] = 0x33
	raw[len(raw)-1] ^= 0xFF

	_, err := Parse(raw, false, RoleResponder)
	if !errors.Is(err, ErrBadFCS) {
		t.Fatalf("expected ErrBadFCS, got %v", err)
	}
}

func TestParseReportsUnknownFrameType(t *testing.T) {
	_, err := Parse(buildRaw(0x1B, 0x85, nil), false, RoleResponder)
	var unknown UnknownFrameTypeError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected UnknownFrameTypeError, got %v", err)
	}
	if unknown.Control != 0x85 {
		t.Errorf("reported control %#02x, want 0x85", unknown.Control)
	}
}

// buildRaw assembles a wire frame with a correct FCS so that parse tests
// exercise the layer under test rather than the checksum.
func buildRaw(addr, control uint8, payload []byte) []byte {
	buf := []byte{addr, control}
	buf = appendLength(buf, uint(len(payload)))
	fcs := calculateFCS(buf)
	if control&^pfBit == controlUIH {
		fcs = calculateFCS(buf[:2])
	}
	buf = append(buf, payload...)
	return append(buf, fcs)
}
