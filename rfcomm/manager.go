package rfcomm

import (
	"log/slog"

	"github.com/portmux/rfcomm-go/frame"
	"github.com/portmux/rfcomm-go/trace"
)

// NewChannelFunc delivers a channel the peer opened to a registered
// server channel.
type NewChannelFunc func(ch *Channel)

// ChannelOpenedFunc delivers the result of OpenRemoteChannel; ch is nil
// when establishment failed.
type ChannelOpenedFunc func(ch *Channel)

// ConnectFunc opens a transport to a peer that has no session yet. done
// must be called exactly once, with nil if the connection could not be
// made; it may be called from any goroutine.
type ConnectFunc func(id ConnectionID, done func(Transport))

type serverChannelRegistration struct {
	cb   NewChannelFunc
	disp Dispatcher
}

// ChannelManager is the top-level entry point: it owns one session per
// transport connection and the server channel registry shared by all of
// them. All manager and session state runs on a single dispatcher.
type ChannelManager struct {
	disp    Dispatcher
	logger  *slog.Logger
	tracer  *trace.Writer
	connect ConnectFunc

	sessions      map[ConnectionID]*Session
	registrations map[frame.ServerChannel]serverChannelRegistration
}

// ManagerOption configures a ChannelManager.
type ManagerOption func(*ChannelManager)

// WithLogger sets the logger sessions derive theirs from.
func WithLogger(l *slog.Logger) ManagerOption {
	return func(m *ChannelManager) { m.logger = l }
}

// WithTrace records every frame sent or received by any session.
func WithTrace(w *trace.Writer) ManagerOption {
	return func(m *ChannelManager) { m.tracer = w }
}

// NewChannelManager creates a manager whose engine runs on disp. connect
// is consulted when OpenRemoteChannel targets a peer without a session;
// it may be nil if the caller always registers transports itself.
func NewChannelManager(disp Dispatcher, connect ConnectFunc, opts ...ManagerOption) *ChannelManager {
	m := &ChannelManager{
		disp:          disp,
		logger:        slog.Default(),
		connect:       connect,
		sessions:      make(map[ConnectionID]*Session),
		registrations: make(map[frame.ServerChannel]serverChannelRegistration),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// RegisterTransport adopts a connected transport, creating a session for
// it. Returns ErrDuplicateConnection if the transport's ID is already in
// use.
func (m *ChannelManager) RegisterTransport(t Transport) error {
	if _, ok := m.sessions[t.ID()]; ok {
		return ErrDuplicateConnection
	}
	s := newSession(m, t)
	if err := s.start(); err != nil {
		return err
	}
	m.sessions[t.ID()] = s
	s.logger.Info("session registered")
	return nil
}

// Session returns the session bound to a connection, if any.
func (m *ChannelManager) Session(id ConnectionID) (*Session, bool) {
	s, ok := m.sessions[id]
	return s, ok
}

// OpenRemoteChannel establishes a DLC to a server channel on the peer
// identified by id, connecting a transport through the ConnectFunc if no
// session exists yet. cb runs on userDisp with the channel, or nil on
// failure.
func (m *ChannelManager) OpenRemoteChannel(id ConnectionID, sc frame.ServerChannel, cb ChannelOpenedFunc, userDisp Dispatcher) {
	m.openRemoteChannel(id, sc, cb, userDisp, false)
}

func (m *ChannelManager) openRemoteChannel(id ConnectionID, sc frame.ServerChannel, cb ChannelOpenedFunc, userDisp Dispatcher, retried bool) {
	if s, ok := m.sessions[id]; ok {
		s.OpenChannel(sc, cb, userDisp)
		return
	}
	if retried || m.connect == nil {
		userDisp.Post(func() { cb(nil) })
		return
	}
	m.connect(id, func(t Transport) {
		m.disp.Post(func() {
			if t != nil {
				if err := m.RegisterTransport(t); err != nil && err != ErrDuplicateConnection {
					m.logger.Warn("could not adopt connected transport",
						slog.String("conn", string(id)), slog.Any("error", err))
				}
			}
			// A session exists now, or this attempt fails for good.
			m.openRemoteChannel(id, sc, cb, userDisp, true)
		})
	})
}

// AllocateLocalChannel reserves the lowest free server channel and
// registers cb for inbound channels on it. Returns InvalidServerChannel
// when all 30 are taken.
func (m *ChannelManager) AllocateLocalChannel(cb NewChannelFunc, userDisp Dispatcher) frame.ServerChannel {
	for sc := frame.MinServerChannel; sc <= frame.MaxServerChannel; sc++ {
		if _, taken := m.registrations[sc]; taken {
			continue
		}
		m.registrations[sc] = serverChannelRegistration{cb: cb, disp: userDisp}
		return sc
	}
	return frame.InvalidServerChannel
}

// RegisterLocalChannel reserves a specific server channel.
func (m *ChannelManager) RegisterLocalChannel(sc frame.ServerChannel, cb NewChannelFunc, userDisp Dispatcher) error {
	if !sc.Valid() {
		return ErrInvalidServerChannel
	}
	if _, taken := m.registrations[sc]; taken {
		return ErrServerChannelInUse
	}
	m.registrations[sc] = serverChannelRegistration{cb: cb, disp: userDisp}
	return nil
}

// ReleaseLocalChannel frees a server channel reserved by
// AllocateLocalChannel. Channels already established on it are not
// affected.
func (m *ChannelManager) ReleaseLocalChannel(sc frame.ServerChannel) {
	delete(m.registrations, sc)
}

func (m *ChannelManager) lookupRegistration(sc frame.ServerChannel) (serverChannelRegistration, bool) {
	reg, ok := m.registrations[sc]
	return reg, ok
}

func (m *ChannelManager) removeSession(s *Session) {
	delete(m.sessions, s.transport.ID())
}

// Close tears down every session.
func (m *ChannelManager) Close() {
	for _, s := range m.sessions {
		s.Close()
	}
}
