package rfcomm

import (
	"log/slog"

	"github.com/portmux/rfcomm-go/frame"
)

const (
	// maxChannelCredits is the ceiling we keep the peer's send quota
	// topped up to.
	maxChannelCredits = 63

	// lowCreditWaterMark triggers a proactive credit refill via an empty
	// UIH frame when no outbound traffic is piggybacking grants.
	lowCreditWaterMark = 16
)

type negotiationState uint8

const (
	negotiationNone negotiationState = iota
	negotiationInProgress
	negotiationComplete
)

// queuedSend is one credit-blocked outbound frame. done may be nil; when
// the channel is torn down queued completions are dropped without being
// invoked.
type queuedSend struct {
	frame *frame.UserDataFrame
	done  func()
}

// Channel is one DLC. Channels are created and owned by their Session and
// handed to the upper layer once established; all methods must be called
// on the session's dispatcher.
type Channel struct {
	dlci frame.DLCI
	sess *Session

	established bool
	closed      bool
	negotiation negotiationState

	// localCredits is the send quota we have granted the peer;
	// remoteCredits is the quota the peer has granted us.
	localCredits  uint8
	remoteCredits uint8

	waitQueue []queuedSend
	pendingRx [][]byte

	activated bool
	onReceive func(payload []byte)
	onClosed  func()
	disp      Dispatcher

	// signals is the peer's last reported modem status; port holds the
	// negotiated RS-232 settings.
	signals frame.ModemSignals
	port    frame.PortSettings
}

func newChannel(sess *Session, dlci frame.DLCI) *Channel {
	return &Channel{
		dlci: dlci,
		sess: sess,
		port: frame.DefaultPortSettings(),
	}
}

// DLCI returns the channel's data link connection identifier.
func (c *Channel) DLCI() frame.DLCI { return c.dlci }

// ServerChannel returns the server channel number the DLCI encodes.
func (c *Channel) ServerChannel() frame.ServerChannel { return c.dlci.ServerChannel() }

// Established reports whether the DLC handshake has completed and the
// channel has not been closed.
func (c *Channel) Established() bool { return c.established }

// Signals returns the peer's last reported modem signals.
func (c *Channel) Signals() frame.ModemSignals { return c.signals }

// PortSettings returns the channel's current RS-232 settings.
func (c *Channel) PortSettings() frame.PortSettings { return c.port }

// Activate registers the receive and close callbacks, both invoked on
// disp. Payloads that arrived before activation are flushed to onReceive
// in arrival order.
func (c *Channel) Activate(onReceive func(payload []byte), onClosed func(), disp Dispatcher) error {
	if c.activated {
		return ErrChannelActivated
	}
	if c.closed {
		return ErrChannelNotEstablished
	}
	c.activated = true
	c.onReceive = onReceive
	c.onClosed = onClosed
	c.disp = disp

	for _, payload := range c.pendingRx {
		p := payload
		disp.Post(func() { onReceive(p) })
	}
	c.pendingRx = nil
	return nil
}

// Send transmits payload to the peer, splitting it into frames no larger
// than the session's negotiated maximum. Frames blocked on exhausted
// credit are queued and released in FIFO order as the peer replenishes
// the quota; queueing is not an error.
func (c *Channel) Send(payload []byte) error {
	if !c.established || c.closed {
		return ErrChannelNotEstablished
	}
	max := int(c.sess.maxFrameSize)
	for len(payload) > 0 {
		chunk := payload
		if len(chunk) > max {
			chunk = chunk[:max]
		}
		payload = payload[len(chunk):]
		c.sendFrame(frame.NewUserDataFrame(c.sess.role, c.dlci, chunk, c.sess.creditFlowOn()), nil)
	}
	return nil
}

// NegotiatePortSettings proposes RS-232 settings to the peer with an RPN
// command and adopts them locally.
func (c *Channel) NegotiatePortSettings(s frame.PortSettings) error {
	if !c.established || c.closed {
		return ErrChannelNotEstablished
	}
	c.port = s
	c.sess.writeMuxCommand(frame.NewRemotePortNegotiationCommand(frame.Command, c.dlci, s))
	return nil
}

// Close starts the DISC exchange for the channel. Queued sends are
// dropped; the onClosed callback fires once the exchange completes or
// times out.
func (c *Channel) Close() {
	c.sess.closeDLC(c)
}

// sendFrame transmits f immediately when flow control allows, otherwise
// appends it to the wait queue.
func (c *Channel) sendFrame(f *frame.UserDataFrame, done func()) {
	if c.sess.creditFlowOn() {
		if c.remoteCredits == 0 {
			c.waitQueue = append(c.waitQueue, queuedSend{frame: f, done: done})
			return
		}
		c.remoteCredits--
	} else if !c.sess.aggregateFlowOn {
		c.waitQueue = append(c.waitQueue, queuedSend{frame: f, done: done})
		return
	}
	c.transmit(f, done)
}

func (c *Channel) transmit(f *frame.UserDataFrame, done func()) {
	c.attachCreditGrant(f)
	c.sess.writeFrame(f)
	if done != nil {
		done()
	}
}

// attachCreditGrant piggybacks a refill of the peer's send quota onto an
// outbound frame.
func (c *Channel) attachCreditGrant(f *frame.UserDataFrame) {
	if !c.sess.creditFlowOn() || c.localCredits >= maxChannelCredits {
		return
	}
	delta := uint8(maxChannelCredits) - c.localCredits
	c.localCredits += delta
	f.SetCredits(delta)
}

// handleInbound processes one UIH frame addressed to the channel:
// replenishes our send quota from the credits octet, accounts the peer's
// spent credit, and surfaces the payload.
func (c *Channel) handleInbound(credits uint8, payload []byte) {
	if credits > 0 {
		c.remoteCredits = saturatingAdd(c.remoteCredits, credits)
		c.drainWaitQueue()
	}

	// Empty frames carry credits only and do not consume quota
	// (RFCOMM 6.5.3).
	if len(payload) == 0 {
		return
	}

	if c.sess.creditFlowOn() {
		if c.localCredits > 0 {
			c.localCredits--
		} else {
			c.sess.logger.Warn("peer sent data beyond its credit quota",
				slog.Int("dlci", int(c.dlci)))
		}
	}

	if c.activated {
		onReceive := c.onReceive
		c.disp.Post(func() { onReceive(payload) })
	} else {
		c.pendingRx = append(c.pendingRx, payload)
	}

	c.maybeReplenish()
}

// maybeReplenish tops the peer's quota back up with an empty UIH frame
// once it falls below the low water mark.
func (c *Channel) maybeReplenish() {
	if !c.sess.creditFlowOn() || c.localCredits >= lowCreditWaterMark {
		return
	}
	f := frame.NewUserDataFrame(c.sess.role, c.dlci, nil, true)
	c.attachCreditGrant(f)
	if f.Credits() > 0 {
		c.sess.writeFrame(f)
	}
}

// drainWaitQueue releases credit-blocked frames in FIFO order so a peer
// under sustained backpressure never observes reordering.
func (c *Channel) drainWaitQueue() {
	for len(c.waitQueue) > 0 {
		if c.sess.creditFlowOn() {
			if c.remoteCredits == 0 {
				return
			}
			c.remoteCredits--
		} else if !c.sess.aggregateFlowOn {
			return
		}
		next := c.waitQueue[0]
		c.waitQueue[0] = queuedSend{}
		c.waitQueue = c.waitQueue[1:]
		c.transmit(next.frame, next.done)
	}
}

// close tears the channel down. Queued sends are dropped and their
// completions never invoked; that is the documented failure contract.
func (c *Channel) close(notify bool) {
	if c.closed {
		return
	}
	c.closed = true
	c.established = false
	c.waitQueue = nil
	c.pendingRx = nil
	if notify && c.activated && c.onClosed != nil {
		onClosed := c.onClosed
		c.disp.Post(func() { onClosed() })
	}
}

func saturatingAdd(a, b uint8) uint8 {
	if sum := uint16(a) + uint16(b); sum <= 0xFF {
		return uint8(sum)
	}
	return 0xFF
}
