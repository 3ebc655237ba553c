package rfcomm

import (
	"testing"

	"github.com/portmux/rfcomm-go/frame"
)

func TestAllocateLocalChannelExhaustion(t *testing.T) {
	disp := &testDispatcher{}
	mgr := NewChannelManager(disp, nil, WithLogger(discardLogger()))

	seen := make(map[frame.ServerChannel]bool)
	for i := 0; i < 30; i++ {
		sc := mgr.AllocateLocalChannel(func(*Channel) {}, disp)
		if !sc.Valid() {
			t.Fatalf("allocation %d returned invalid channel", i)
		}
		if seen[sc] {
			t.Fatalf("channel %d allocated twice", sc)
		}
		seen[sc] = true
	}

	if sc := mgr.AllocateLocalChannel(func(*Channel) {}, disp); sc != frame.InvalidServerChannel {
		t.Errorf("31st allocation = %d, want InvalidServerChannel", sc)
	}

	mgr.ReleaseLocalChannel(17)
	if sc := mgr.AllocateLocalChannel(func(*Channel) {}, disp); sc != 17 {
		t.Errorf("reallocation = %d, want the released 17", sc)
	}
}

func TestRegisterLocalChannel(t *testing.T) {
	disp := &testDispatcher{}
	mgr := NewChannelManager(disp, nil, WithLogger(discardLogger()))

	if err := mgr.RegisterLocalChannel(22, func(*Channel) {}, disp); err != nil {
		t.Fatalf("RegisterLocalChannel: %v", err)
	}
	if err := mgr.RegisterLocalChannel(22, func(*Channel) {}, disp); err != ErrServerChannelInUse {
		t.Errorf("duplicate registration = %v, want ErrServerChannelInUse", err)
	}
	if err := mgr.RegisterLocalChannel(31, func(*Channel) {}, disp); err != ErrInvalidServerChannel {
		t.Errorf("out of range = %v, want ErrInvalidServerChannel", err)
	}
	if sc := mgr.AllocateLocalChannel(func(*Channel) {}, disp); sc != 1 {
		t.Errorf("allocation = %d, want 1 to skip nothing below the reserved 22", sc)
	}
}

func TestRegisterTransportRejectsDuplicates(t *testing.T) {
	disp := &testDispatcher{}
	mgr := NewChannelManager(disp, nil, WithLogger(discardLogger()))

	if err := mgr.RegisterTransport(&fakeTransport{id: "dup"}); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := mgr.RegisterTransport(&fakeTransport{id: "dup"}); err != ErrDuplicateConnection {
		t.Errorf("second register = %v, want ErrDuplicateConnection", err)
	}
}

func TestOpenRemoteChannelConnectsTransport(t *testing.T) {
	disp := &testDispatcher{}
	tr := &fakeTransport{id: "peer-9"}

	var dialed ConnectionID
	mgr := NewChannelManager(disp, func(id ConnectionID, done func(Transport)) {
		dialed = id
		done(tr)
	}, WithLogger(discardLogger()))

	called := false
	mgr.OpenRemoteChannel("peer-9", 3, func(*Channel) { called = true }, disp)
	disp.run()

	if dialed != "peer-9" {
		t.Fatalf("dialed %q, want peer-9", dialed)
	}
	if _, ok := mgr.Session("peer-9"); !ok {
		t.Fatal("no session after connect")
	}
	// The handshake starts over the fresh transport.
	fs := tr.takeSent()
	if len(fs) != 1 {
		t.Fatalf("sent %d frames, want the startup SABM", len(fs))
	}
	f, err := frame.Parse(fs[0], false, frame.RoleUnassigned)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if _, ok := f.(*frame.SABM); !ok || f.DLCI() != frame.MuxControlDLCI {
		t.Fatalf("expected SABM on DLCI 0, got %v", f)
	}
	if called {
		t.Error("open callback must not run before the handshake completes")
	}
}

func TestOpenRemoteChannelFailsWhenConnectFails(t *testing.T) {
	disp := &testDispatcher{}
	mgr := NewChannelManager(disp, func(id ConnectionID, done func(Transport)) {
		done(nil)
	}, WithLogger(discardLogger()))

	var got *Channel = &Channel{}
	mgr.OpenRemoteChannel("gone", 3, func(ch *Channel) { got = ch }, disp)
	disp.run()

	if got != nil {
		t.Error("expected nil channel when connect fails")
	}
}

func TestOpenRemoteChannelWithoutConnectFunc(t *testing.T) {
	disp := &testDispatcher{}
	mgr := NewChannelManager(disp, nil, WithLogger(discardLogger()))

	var got *Channel = &Channel{}
	mgr.OpenRemoteChannel("nowhere", 3, func(ch *Channel) { got = ch }, disp)
	disp.run()

	if got != nil {
		t.Error("expected nil channel with no way to connect")
	}
}
