package rfcomm

import (
	"errors"
	"log/slog"
	"time"

	"github.com/rs/xid"

	"github.com/portmux/rfcomm-go/frame"
	"github.com/portmux/rfcomm-go/trace"
)

const (
	// defaultMaxFrameSize is the N1 we propose during parameter
	// negotiation, sized for the default L2CAP MTU.
	defaultMaxFrameSize uint16 = 672

	// defaultInitialCredits is the K value of our PN exchanges; the
	// 3-bit field caps it at 7.
	defaultInitialCredits uint8 = frame.MaxInitialCredits
)

// commandTimeout bounds how long we wait for the peer to answer a SABM,
// DISC or PN exchange. A var so tests can shorten it.
var commandTimeout = 10 * time.Second

type creditFlowState uint8

const (
	creditFlowUnknown creditFlowState = iota
	creditFlowOn
	creditFlowOff
)

// pendingCommand tracks an outstanding SABM or DISC awaiting UA or DM.
type pendingCommand struct {
	onUA  func()
	onDM  func()
	timer *time.Timer
}

// pendingNegotiation tracks an outstanding PN command. The callback
// receives nil on timeout or session teardown.
type pendingNegotiation struct {
	onResponse func(resp *frame.ParameterNegotiationCommand)
	timer      *time.Timer
}

// Session owns the multiplexer over one transport connection: the DLCI 0
// control channel, the DLC arena keyed by DLCI, and the establishment and
// teardown handshakes. Sessions are single-threaded; every state change
// runs on the manager's dispatcher.
type Session struct {
	id        string
	transport Transport
	disp      Dispatcher
	logger    *slog.Logger
	tracer    *trace.Writer
	manager   *ChannelManager

	role            frame.Role
	creditFlow      creditFlowState
	maxFrameSize    uint16
	aggregateFlowOn bool

	channels  map[frame.DLCI]*Channel
	pending   map[frame.DLCI]*pendingCommand
	pendingPN map[frame.DLCI]*pendingNegotiation

	// startupWaiters are open requests parked while the SABM on DLCI 0
	// is outstanding.
	startupWaiters []func(ok bool)

	closed bool
}

func newSession(m *ChannelManager, t Transport) *Session {
	id := xid.New().String()
	return &Session{
		id:        id,
		transport: t,
		disp:      m.disp,
		logger: m.logger.With(
			slog.String("session", id),
			slog.String("conn", string(t.ID()))),
		tracer:          m.tracer,
		manager:         m,
		role:            frame.RoleUnassigned,
		creditFlow:      creditFlowUnknown,
		maxFrameSize:    defaultMaxFrameSize,
		aggregateFlowOn: true,
		channels:        make(map[frame.DLCI]*Channel),
		pending:         make(map[frame.DLCI]*pendingCommand),
		pendingPN:       make(map[frame.DLCI]*pendingNegotiation),
	}
}

// start hooks the session into its transport. Inbound buffers and the
// closure notification are posted to the session dispatcher; the
// transport may deliver them from any goroutine.
func (s *Session) start() error {
	return s.transport.Activate(
		func(p []byte) { s.disp.Post(func() { s.handleBytes(p) }) },
		func() { s.disp.Post(func() { s.teardown() }) },
	)
}

// ID returns the session's generated identifier, used in logs and traces.
func (s *Session) ID() string { return s.id }

// Role returns the session's multiplexer role.
func (s *Session) Role() frame.Role { return s.role }

func (s *Session) creditFlowOn() bool { return s.creditFlow == creditFlowOn }

// Close sends a DISC on the control channel and tears the session down.
// Queued channel sends are dropped.
func (s *Session) Close() {
	if s.closed {
		return
	}
	s.writeFrame(frame.NewDisconnect(s.role, frame.MuxControlDLCI))
	s.teardown()
}

// OpenChannel establishes a DLC to the given server channel on the peer,
// driving the mux startup, parameter negotiation and SABM handshakes as
// needed. cb receives the established channel, or nil on failure, on
// userDisp.
func (s *Session) OpenChannel(sc frame.ServerChannel, cb func(*Channel), userDisp Dispatcher) {
	deliver := func(ch *Channel) { userDisp.Post(func() { cb(ch) }) }
	if s.closed {
		deliver(nil)
		return
	}
	s.ensureStarted(func(ok bool) {
		if !ok || s.closed {
			deliver(nil)
			return
		}
		dlci, err := sc.ToDLCI(s.role)
		if err != nil {
			s.logger.Warn("open request for invalid server channel",
				slog.Int("server_channel", int(sc)))
			deliver(nil)
			return
		}
		if _, exists := s.channels[dlci]; exists {
			s.logger.Warn("open request for DLCI already in use",
				slog.Int("dlci", int(dlci)))
			deliver(nil)
			return
		}
		ch := s.ensureChannel(dlci)
		s.negotiateParams(ch, func(ok bool) {
			if !ok || s.closed {
				s.removeChannel(dlci)
				deliver(nil)
				return
			}
			s.establishDLC(ch, func(ok bool) {
				if !ok {
					s.removeChannel(dlci)
					deliver(nil)
					return
				}
				s.sendModemStatus(ch)
				deliver(ch)
			})
		})
	})
}

// ensureStarted runs cb(true) once the multiplexer startup handshake has
// completed, sending the SABM on DLCI 0 if nobody has yet.
func (s *Session) ensureStarted(cb func(ok bool)) {
	switch s.role {
	case frame.RoleInitiator, frame.RoleResponder:
		cb(true)
	case frame.RoleNegotiating:
		s.startupWaiters = append(s.startupWaiters, cb)
	default:
		s.role = frame.RoleNegotiating
		s.startupWaiters = append(s.startupWaiters, cb)
		s.awaitResponse(frame.MuxControlDLCI,
			func() {
				s.role = frame.RoleInitiator
				s.flushStartupWaiters(true)
			},
			func() {
				s.role = frame.RoleUnassigned
				s.flushStartupWaiters(false)
			})
		s.writeFrame(frame.NewSABM(s.role, frame.MuxControlDLCI))
	}
}

func (s *Session) flushStartupWaiters(ok bool) {
	waiters := s.startupWaiters
	s.startupWaiters = nil
	for _, w := range waiters {
		w(ok)
	}
}

// negotiateParams runs the PN exchange for a channel about to be opened.
// The first exchange on a session settles the credit-based flow decision
// (RFCOMM 5.5.3); later exchanges only confirm frame size.
func (s *Session) negotiateParams(ch *Channel, cb func(ok bool)) {
	if ch.negotiation == negotiationComplete {
		cb(true)
		return
	}
	ch.negotiation = negotiationInProgress

	handshake := frame.CreditFlowNone
	var credits uint8
	if s.creditFlow == creditFlowUnknown {
		handshake = frame.CreditFlowInitiated
		credits = defaultInitialCredits
	}

	p := &pendingNegotiation{
		onResponse: func(resp *frame.ParameterNegotiationCommand) {
			if resp == nil {
				cb(false)
				return
			}
			if s.creditFlow == creditFlowUnknown {
				if resp.Handshake == frame.CreditFlowAccepted {
					s.creditFlow = creditFlowOn
				} else {
					s.creditFlow = creditFlowOff
				}
			}
			if resp.MaximumFrameSize > 0 && resp.MaximumFrameSize < s.maxFrameSize {
				s.maxFrameSize = resp.MaximumFrameSize
			}
			if s.creditFlowOn() {
				ch.remoteCredits = resp.InitialCredits
				ch.localCredits = credits
			}
			ch.negotiation = negotiationComplete
			cb(true)
		},
	}
	p.timer = time.AfterFunc(commandTimeout, func() {
		s.disp.Post(func() { s.timeoutNegotiation(ch.dlci) })
	})
	s.pendingPN[ch.dlci] = p

	s.writeMuxCommand(frame.NewParameterNegotiationCommand(
		frame.Command, ch.dlci, handshake, defaultPriority(ch.dlci), s.maxFrameSize, credits))
}

// establishDLC sends the SABM for a negotiated channel and completes it
// on UA.
func (s *Session) establishDLC(ch *Channel, cb func(ok bool)) {
	s.awaitResponse(ch.dlci,
		func() {
			ch.established = true
			cb(true)
		},
		func() { cb(false) })
	s.writeFrame(frame.NewSABM(s.role, ch.dlci))
}

// closeDLC runs the DISC/UA exchange for a channel the upper layer is
// done with.
func (s *Session) closeDLC(ch *Channel) {
	if ch.closed {
		return
	}
	finish := func() {
		ch.close(true)
		s.removeChannel(ch.dlci)
	}
	s.awaitResponse(ch.dlci, finish, finish)
	s.writeFrame(frame.NewDisconnect(s.role, ch.dlci))
}

// awaitResponse arms the UA/DM tracking for a command we are about to
// send on dlci, with a timeout that counts as DM.
func (s *Session) awaitResponse(dlci frame.DLCI, onUA, onDM func()) {
	p := &pendingCommand{onUA: onUA, onDM: onDM}
	p.timer = time.AfterFunc(commandTimeout, func() {
		s.disp.Post(func() { s.timeoutPending(dlci) })
	})
	s.pending[dlci] = p
}

func (s *Session) timeoutPending(dlci frame.DLCI) {
	p, ok := s.pending[dlci]
	if !ok {
		return
	}
	delete(s.pending, dlci)
	s.logger.Warn("peer did not answer command", slog.Int("dlci", int(dlci)))
	p.onDM()
}

func (s *Session) timeoutNegotiation(dlci frame.DLCI) {
	p, ok := s.pendingPN[dlci]
	if !ok {
		return
	}
	delete(s.pendingPN, dlci)
	s.logger.Warn("peer did not answer parameter negotiation", slog.Int("dlci", int(dlci)))
	p.onResponse(nil)
}

func (s *Session) resolvePending(dlci frame.DLCI, ua bool) bool {
	p, ok := s.pending[dlci]
	if !ok {
		return false
	}
	delete(s.pending, dlci)
	p.timer.Stop()
	if ua {
		p.onUA()
	} else {
		p.onDM()
	}
	return true
}

// ensureChannel returns the channel for dlci, creating it in the arena if
// needed.
func (s *Session) ensureChannel(dlci frame.DLCI) *Channel {
	if ch, ok := s.channels[dlci]; ok {
		return ch
	}
	ch := newChannel(s, dlci)
	s.channels[dlci] = ch
	return ch
}

func (s *Session) removeChannel(dlci frame.DLCI) {
	delete(s.channels, dlci)
}

// handleBytes parses one inbound buffer as a frame and dispatches it.
// Malformed input is logged and dropped; an unrecognized mux command type
// is answered with an NSC response per GSM 07.10 5.4.6.3.8.
func (s *Session) handleBytes(p []byte) {
	if s.closed {
		return
	}
	f, err := frame.Parse(p, s.creditFlowOn(), s.role)
	if err != nil {
		var unknownCmd frame.UnknownCommandTypeError
		if errors.As(err, &unknownCmd) {
			s.logger.Info("rejecting unsupported mux command", slog.Any("error", err))
			s.writeMuxCommand(frame.NewNonSupportedCommandResponse(unknownCmd.TypeOctet))
			return
		}
		s.logger.Warn("dropping malformed frame",
			slog.Int("bytes", len(p)), slog.Any("error", err))
		return
	}
	s.traceFrame(trace.DirReceive, f)
	s.handleFrame(f)
}

func (s *Session) handleFrame(f frame.Frame) {
	switch f := f.(type) {
	case *frame.SABM:
		s.handleSABM(f)
	case *frame.UnnumberedAck:
		if !s.resolvePending(f.DLCI(), true) {
			s.logger.Debug("unsolicited UA", slog.Int("dlci", int(f.DLCI())))
		}
	case *frame.DisconnectedMode:
		if s.resolvePending(f.DLCI(), false) {
			return
		}
		// An unsolicited DM closes the addressed DLC (GSM 07.10 5.3.3).
		if ch, ok := s.channels[f.DLCI()]; ok {
			ch.close(true)
			s.removeChannel(f.DLCI())
		}
	case *frame.Disconnect:
		s.handleDisconnect(f)
	case *frame.MuxCommandFrame:
		s.handleMuxCommand(f.TakeCommand())
	case *frame.UserDataFrame:
		s.handleUserData(f)
	}
}

func (s *Session) handleSABM(f *frame.SABM) {
	dlci := f.DLCI()
	if dlci == frame.MuxControlDLCI {
		switch s.role {
		case frame.RoleUnassigned:
			s.role = frame.RoleResponder
			s.writeFrame(frame.NewUnnumberedAck(s.role, dlci))
		case frame.RoleNegotiating:
			// Startup collision: decline the peer and let our own SABM
			// settle the roles.
			s.writeFrame(frame.NewDisconnectedMode(s.role, dlci))
		default:
			s.logger.Warn("SABM on control channel after startup")
			s.writeFrame(frame.NewUnnumberedAck(s.role, dlci))
		}
		return
	}

	if !s.role.Assigned() || !dlci.ValidAsUserChannel() {
		s.writeFrame(frame.NewDisconnectedMode(s.role, dlci))
		return
	}
	// The peer may only open DLCIs whose direction bit points at us
	// (RFCOMM 5.4).
	var want uint8
	if s.role == frame.RoleInitiator {
		want = 1
	}
	if dlci.DirectionBit() != want {
		s.writeFrame(frame.NewDisconnectedMode(s.role, dlci))
		return
	}

	if ch, ok := s.channels[dlci]; ok && ch.established {
		// SABM retransmission; acknowledge again.
		s.writeFrame(frame.NewUnnumberedAck(s.role, dlci))
		return
	}

	reg, ok := s.manager.lookupRegistration(dlci.ServerChannel())
	if !ok {
		s.logger.Info("SABM for unregistered server channel",
			slog.Int("server_channel", int(dlci.ServerChannel())))
		s.removeChannel(dlci)
		s.writeFrame(frame.NewDisconnectedMode(s.role, dlci))
		return
	}

	ch := s.ensureChannel(dlci)
	ch.negotiation = negotiationComplete
	ch.established = true
	s.writeFrame(frame.NewUnnumberedAck(s.role, dlci))
	s.sendModemStatus(ch)
	// Without a PN exchange the peer starts with zero credits
	// (RFCOMM 6.5.1); grant an initial quota right away.
	ch.maybeReplenish()

	reg.disp.Post(func() { reg.cb(ch) })
}

func (s *Session) handleDisconnect(f *frame.Disconnect) {
	dlci := f.DLCI()
	if dlci == frame.MuxControlDLCI {
		s.writeFrame(frame.NewUnnumberedAck(s.role, dlci))
		s.teardown()
		return
	}
	ch, ok := s.channels[dlci]
	if !ok {
		s.writeFrame(frame.NewDisconnectedMode(s.role, dlci))
		return
	}
	s.writeFrame(frame.NewUnnumberedAck(s.role, dlci))
	ch.close(true)
	s.removeChannel(dlci)
}

func (s *Session) handleUserData(f *frame.UserDataFrame) {
	ch, ok := s.channels[f.DLCI()]
	if !ok || !ch.established {
		// Data on an unknown or closed DLC draws DM (GSM 07.10 5.3.3).
		s.writeFrame(frame.NewDisconnectedMode(s.role, f.DLCI()))
		return
	}
	ch.handleInbound(f.Credits(), f.TakePayload())
}

func (s *Session) handleMuxCommand(cmd frame.MuxCommand) {
	if cmd.CommandResponse() == frame.Response {
		s.handleMuxResponse(cmd)
		return
	}
	switch c := cmd.(type) {
	case *frame.ParameterNegotiationCommand:
		s.handlePNCommand(c)
	case *frame.TestCommand:
		s.writeMuxCommand(frame.NewTestCommand(frame.Response, c.TakePattern()))
	case *frame.FlowControlOnCommand:
		s.aggregateFlowOn = true
		s.writeMuxCommand(frame.NewFlowControlOnCommand(frame.Response))
		for _, ch := range s.channels {
			ch.drainWaitQueue()
		}
	case *frame.FlowControlOffCommand:
		s.aggregateFlowOn = false
		s.writeMuxCommand(frame.NewFlowControlOffCommand(frame.Response))
	case *frame.ModemStatusCommand:
		if ch, ok := s.channels[c.DLCIField]; ok {
			ch.signals = c.Signals
		}
		echo := frame.NewModemStatusCommand(frame.Response, c.DLCIField, c.Signals)
		if c.HasBreakSignal() {
			echo = frame.NewModemStatusCommandWithBreak(frame.Response, c.DLCIField, c.Signals, c.BreakValue())
		}
		s.writeMuxCommand(echo)
	case *frame.RemotePortNegotiationCommand:
		s.handleRPNCommand(c)
	case *frame.RemoteLineStatusCommand:
		s.logger.Info("peer reported line status",
			slog.Int("dlci", int(c.DLCIField)),
			slog.Bool("error", c.ErrorOccurred),
			slog.String("kind", c.Error.String()))
		s.writeMuxCommand(frame.NewRemoteLineStatusCommand(
			frame.Response, c.DLCIField, c.ErrorOccurred, c.Error))
	default:
		s.logger.Warn("unexpected mux command", slog.String("command", cmd.String()))
	}
}

func (s *Session) handleMuxResponse(cmd frame.MuxCommand) {
	switch c := cmd.(type) {
	case *frame.ParameterNegotiationCommand:
		if p, ok := s.pendingPN[c.DLCIField]; ok {
			delete(s.pendingPN, c.DLCIField)
			p.timer.Stop()
			p.onResponse(c)
		}
	case *frame.NonSupportedCommandResponse:
		s.logger.Warn("peer does not support command",
			slog.String("type", c.NonSupportedType().String()))
	case *frame.ModemStatusCommand, *frame.TestCommand,
		*frame.FlowControlOnCommand, *frame.FlowControlOffCommand,
		*frame.RemotePortNegotiationCommand, *frame.RemoteLineStatusCommand:
		s.logger.Debug("mux command acknowledged", slog.String("command", cmd.String()))
	default:
		s.logger.Warn("unexpected mux response", slog.String("command", cmd.String()))
	}
}

// handlePNCommand answers a peer-initiated parameter negotiation,
// settling the session's credit flow decision on the first exchange.
func (s *Session) handlePNCommand(c *frame.ParameterNegotiationCommand) {
	if !c.DLCIField.ValidAsUserChannel() {
		s.logger.Warn("PN for invalid DLCI", slog.Int("dlci", int(c.DLCIField)))
		return
	}

	handshake := frame.CreditFlowNone
	switch s.creditFlow {
	case creditFlowUnknown:
		if c.Handshake == frame.CreditFlowInitiated {
			s.creditFlow = creditFlowOn
			handshake = frame.CreditFlowAccepted
		} else {
			s.creditFlow = creditFlowOff
		}
	case creditFlowOn:
		if c.Handshake == frame.CreditFlowInitiated {
			handshake = frame.CreditFlowAccepted
		}
	}

	if c.MaximumFrameSize > 0 && c.MaximumFrameSize < s.maxFrameSize {
		s.maxFrameSize = c.MaximumFrameSize
	}

	ch := s.ensureChannel(c.DLCIField)
	var credits uint8
	if s.creditFlowOn() {
		ch.remoteCredits = saturatingAdd(ch.remoteCredits, c.InitialCredits)
		credits = defaultInitialCredits
		ch.localCredits = credits
	}
	ch.negotiation = negotiationComplete

	s.writeMuxCommand(frame.NewParameterNegotiationCommand(
		frame.Response, c.DLCIField, handshake, c.Priority, s.maxFrameSize, credits))
}

func (s *Session) handleRPNCommand(c *frame.RemotePortNegotiationCommand) {
	ch, ok := s.channels[c.DLCIField]
	settings := frame.DefaultPortSettings()
	if ok {
		if c.HasSettings() {
			ch.port = c.Settings()
		}
		settings = ch.port
	} else if c.HasSettings() {
		settings = c.Settings()
	}
	s.writeMuxCommand(frame.NewRemotePortNegotiationCommand(frame.Response, c.DLCIField, settings))
}

// sendModemStatus advertises the ready-to-communicate signal set for a
// freshly established DLC.
func (s *Session) sendModemStatus(ch *Channel) {
	s.writeMuxCommand(frame.NewModemStatusCommand(frame.Command, ch.dlci, frame.ModemSignals{
		ReadyToCommunicate: true,
		ReadyToReceive:     true,
		DataValid:          true,
	}))
}

func (s *Session) writeMuxCommand(cmd frame.MuxCommand) {
	s.writeFrame(frame.NewMuxCommandFrame(s.role, s.creditFlowOn(), cmd))
}

func (s *Session) writeFrame(f frame.Frame) {
	if s.closed {
		return
	}
	s.traceFrame(trace.DirSend, f)
	if err := s.transport.Send(f.Bytes()); err != nil {
		s.logger.Error("transport send failed", slog.Any("error", err))
		s.teardown()
	}
}

func (s *Session) traceFrame(dir trace.Direction, f frame.Frame) {
	if s.tracer == nil {
		return
	}
	rec := trace.Record{
		Session:   s.id,
		Dir:       dir,
		DLCI:      uint8(f.DLCI()),
		PollFinal: f.PollFinal(),
		Detail:    f.String(),
	}
	switch f := f.(type) {
	case *frame.SABM:
		rec.Kind = "SABM"
	case *frame.UnnumberedAck:
		rec.Kind = "UA"
	case *frame.DisconnectedMode:
		rec.Kind = "DM"
	case *frame.Disconnect:
		rec.Kind = "DISC"
	case *frame.UserDataFrame:
		rec.Kind = "UIH"
		rec.Length = f.PayloadLength()
		rec.Credits = f.Credits()
	case *frame.MuxCommandFrame:
		rec.Kind = "UIH-MUX"
	}
	if err := s.tracer.Record(rec); err != nil {
		s.logger.Debug("trace write failed", slog.Any("error", err))
	}
}

// teardown closes every channel and detaches the session from its
// manager. Wait-queue completions are dropped, not invoked.
func (s *Session) teardown() {
	if s.closed {
		return
	}
	s.closed = true

	for dlci, ch := range s.channels {
		ch.close(true)
		delete(s.channels, dlci)
	}
	for dlci, p := range s.pending {
		delete(s.pending, dlci)
		p.timer.Stop()
		p.onDM()
	}
	for dlci, p := range s.pendingPN {
		delete(s.pendingPN, dlci)
		p.timer.Stop()
		p.onResponse(nil)
	}
	s.flushStartupWaiters(false)

	if err := s.transport.Close(); err != nil {
		s.logger.Debug("transport close", slog.Any("error", err))
	}
	s.manager.removeSession(s)
	s.logger.Info("session closed")
}

// defaultPriority returns the GSM 07.10 5.6 default priority band for a
// DLCI.
func defaultPriority(d frame.DLCI) uint8 {
	band := (uint8(d)/8)*8 + 7
	if band > 61 {
		band = 61
	}
	return band
}
