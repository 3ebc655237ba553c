package rfcomm

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/portmux/rfcomm-go/frame"
)

// testDispatcher queues tasks and runs them only when the test pumps it,
// keeping every scenario deterministic.
type testDispatcher struct {
	queue []func()
}

func (d *testDispatcher) Post(task func()) {
	d.queue = append(d.queue, task)
}

// run executes queued tasks, including ones they post, until the queue is
// empty.
func (d *testDispatcher) run() {
	for len(d.queue) > 0 {
		task := d.queue[0]
		d.queue = d.queue[1:]
		task()
	}
}

// fakeTransport records outbound frames and lets the test inject inbound
// ones.
type fakeTransport struct {
	id        ConnectionID
	sent      [][]byte
	onReceive func([]byte)
	onClosed  func()
	closed    bool
}

func (t *fakeTransport) ID() ConnectionID { return t.id }

func (t *fakeTransport) Send(p []byte) error {
	if t.closed {
		return errors.New("transport closed")
	}
	t.sent = append(t.sent, append([]byte(nil), p...))
	return nil
}

func (t *fakeTransport) Activate(onReceive func([]byte), onClosed func()) error {
	t.onReceive = onReceive
	t.onClosed = onClosed
	return nil
}

func (t *fakeTransport) Close() error {
	t.closed = true
	return nil
}

func (t *fakeTransport) takeSent() [][]byte {
	s := t.sent
	t.sent = nil
	return s
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type harness struct {
	t    *testing.T
	disp *testDispatcher
	mgr  *ChannelManager
	tr   *fakeTransport
	sess *Session
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	disp := &testDispatcher{}
	mgr := NewChannelManager(disp, nil, WithLogger(discardLogger()))
	tr := &fakeTransport{id: "conn-1"}
	if err := mgr.RegisterTransport(tr); err != nil {
		t.Fatalf("RegisterTransport: %v", err)
	}
	sess, ok := mgr.Session(tr.id)
	if !ok {
		t.Fatal("session not registered")
	}
	return &harness{t: t, disp: disp, mgr: mgr, tr: tr, sess: sess}
}

// deliver feeds one peer frame into the session and pumps the dispatcher.
func (h *harness) deliver(f frame.Frame) {
	h.t.Helper()
	h.tr.onReceive(f.Bytes())
	h.disp.run()
}

// takeSent parses everything the session wrote since the last call, from
// the peer's point of view.
func (h *harness) takeSent() []frame.Frame {
	h.t.Helper()
	peer := frame.RoleUnassigned
	switch h.sess.role {
	case frame.RoleInitiator:
		peer = frame.RoleResponder
	case frame.RoleResponder:
		peer = frame.RoleInitiator
	}
	var out []frame.Frame
	for _, b := range h.tr.takeSent() {
		f, err := frame.Parse(b, h.sess.creditFlowOn(), peer)
		if err != nil {
			h.t.Fatalf("peer could not parse sent frame % X: %v", b, err)
		}
		out = append(out, f)
	}
	return out
}

func (h *harness) expectOneSent(kind string) frame.Frame {
	h.t.Helper()
	fs := h.takeSent()
	if len(fs) != 1 {
		h.t.Fatalf("sent %d frames, want 1 (%s): %v", len(fs), kind, fs)
	}
	return fs[0]
}

func muxCommand(t *testing.T, f frame.Frame) frame.MuxCommand {
	t.Helper()
	mcf, ok := f.(*frame.MuxCommandFrame)
	if !ok {
		t.Fatalf("frame %v is not a mux command frame", f)
	}
	return mcf.TakeCommand()
}

// openInitiator drives the full initiator-side handshake and returns the
// established channel. accept controls the peer's answer to the credit
// flow handshake; peerCredits is the K value of its PN response.
func (h *harness) openInitiator(sc frame.ServerChannel, accept bool, peerCredits uint8) *Channel {
	h.t.Helper()

	var got *Channel
	called := false
	h.mgr.OpenRemoteChannel(h.tr.id, sc, func(ch *Channel) {
		got = ch
		called = true
	}, h.disp)
	h.disp.run()

	sabm0 := h.expectOneSent("SABM on DLCI 0")
	if _, ok := sabm0.(*frame.SABM); !ok || sabm0.DLCI() != frame.MuxControlDLCI {
		h.t.Fatalf("expected SABM on DLCI 0, got %v", sabm0)
	}
	h.deliver(frame.NewUnnumberedAck(frame.RoleResponder, frame.MuxControlDLCI))

	pn, ok := muxCommand(h.t, h.expectOneSent("PN command")).(*frame.ParameterNegotiationCommand)
	if !ok {
		h.t.Fatal("expected a PN command after mux startup")
	}
	handshake := frame.CreditFlowNone
	if accept {
		handshake = frame.CreditFlowAccepted
	}
	h.deliver(frame.NewMuxCommandFrame(frame.RoleResponder, false,
		frame.NewParameterNegotiationCommand(frame.Response, pn.DLCIField,
			handshake, pn.Priority, pn.MaximumFrameSize, peerCredits)))

	sabm := h.expectOneSent("SABM for the DLC")
	if _, ok := sabm.(*frame.SABM); !ok || sabm.DLCI() != pn.DLCIField {
		h.t.Fatalf("expected SABM on DLCI %d, got %v", pn.DLCIField, sabm)
	}
	h.deliver(frame.NewUnnumberedAck(frame.RoleResponder, pn.DLCIField))

	msc := h.expectOneSent("MSC after establishment")
	if _, ok := muxCommand(h.t, msc).(*frame.ModemStatusCommand); !ok {
		h.t.Fatalf("expected MSC after establishment, got %v", msc)
	}

	if !called {
		h.t.Fatal("open callback never ran")
	}
	if got == nil {
		h.t.Fatal("open callback received nil channel")
	}
	return got
}
