//go:build linux

// Package bluez sources engine transports from BlueZ. It registers an
// org.bluez.Profile1 object on the system bus; BlueZ hands every RFCOMM
// connection for the profile's UUID to NewConnection as a socket file
// descriptor, which is wrapped as a transport keyed by the device's
// D-Bus object path.
package bluez

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	dbus "github.com/godbus/dbus/v5"
	"github.com/rs/xid"

	"github.com/portmux/rfcomm-go/rfcomm"
	"github.com/portmux/rfcomm-go/transport"
)

// SPPUUID is the Serial Port Profile UUID.
const SPPUUID = "00001101-0000-1000-8000-00805f9b34fb"

const (
	bluezService        = "org.bluez"
	profileIface        = "org.bluez.Profile1"
	profileManagerIface = "org.bluez.ProfileManager1"
	deviceIface         = "org.bluez.Device1"
)

// ErrProfileClosed is returned by Accept after Close.
var ErrProfileClosed = errors.New("bluez: profile closed")

// Options configure the profile registration.
type Options struct {
	// UUID of the service; SPPUUID when empty.
	UUID string

	// Name is the SDP service name ("Name" registration option).
	Name string

	// Role restricts the profile to "server" or "client"; empty lets
	// BlueZ use it for both.
	Role string

	// Channel is the fixed RFCOMM server channel to advertise; zero lets
	// BlueZ pick one.
	Channel uint8
}

// Profile is a registered Profile1 object delivering connected
// transports.
type Profile struct {
	bus  *dbus.Conn
	path dbus.ObjectPath
	uuid string

	conns chan *transport.Conn
	done  chan struct{}

	mu     sync.Mutex
	closed bool
}

// Register connects to the system bus and registers the profile with
// BlueZ.
func Register(opts Options) (*Profile, error) {
	bus, err := dbus.SystemBus()
	if err != nil {
		return nil, fmt.Errorf("bluez: connect system bus: %w", err)
	}

	uuid := opts.UUID
	if uuid == "" {
		uuid = SPPUUID
	}
	p := &Profile{
		bus:   bus,
		path:  dbus.ObjectPath("/com/portmux/rfcomm/profile/" + xid.New().String()),
		uuid:  uuid,
		conns: make(chan *transport.Conn, 4),
		done:  make(chan struct{}),
	}
	if err := bus.Export(profileHandler{p}, p.path, profileIface); err != nil {
		return nil, fmt.Errorf("bluez: export profile: %w", err)
	}

	regOpts := map[string]dbus.Variant{}
	if opts.Name != "" {
		regOpts["Name"] = dbus.MakeVariant(opts.Name)
	}
	if opts.Role != "" {
		regOpts["Role"] = dbus.MakeVariant(opts.Role)
	}
	if opts.Channel != 0 {
		regOpts["Channel"] = dbus.MakeVariant(uint16(opts.Channel))
	}
	pm := bus.Object(bluezService, dbus.ObjectPath("/org/bluez"))
	if call := pm.Call(profileManagerIface+".RegisterProfile", 0, p.path, uuid, regOpts); call.Err != nil {
		_ = bus.Export(nil, p.path, profileIface)
		return nil, fmt.Errorf("bluez: RegisterProfile: %w", call.Err)
	}
	return p, nil
}

// Accept waits for the next connection BlueZ hands the profile.
func (p *Profile) Accept(ctx context.Context) (*transport.Conn, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.done:
		return nil, ErrProfileClosed
	case conn := <-p.conns:
		return conn, nil
	}
}

// ConnectDevice asks BlueZ to connect the profile's service on a device
// and waits for the resulting transport. devicePath is the Device1
// object path.
func (p *Profile) ConnectDevice(ctx context.Context, devicePath dbus.ObjectPath) (*transport.Conn, error) {
	dev := p.bus.Object(bluezService, devicePath)
	if call := dev.CallWithContext(ctx, deviceIface+".ConnectProfile", 0, p.uuid); call.Err != nil {
		return nil, fmt.Errorf("bluez: ConnectProfile: %w", call.Err)
	}
	return p.Accept(ctx)
}

// Connector adapts the profile to the channel manager's ConnectFunc,
// treating connection IDs as Device1 object paths.
func (p *Profile) Connector() rfcomm.ConnectFunc {
	return func(id rfcomm.ConnectionID, done func(rfcomm.Transport)) {
		go func() {
			conn, err := p.ConnectDevice(context.Background(), dbus.ObjectPath(id))
			if err != nil || conn == nil {
				done(nil)
				return
			}
			done(conn)
		}()
	}
}

// Close unregisters the profile. Connections already delivered stay open.
func (p *Profile) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	close(p.done)
	pm := p.bus.Object(bluezService, dbus.ObjectPath("/org/bluez"))
	err := pm.Call(profileManagerIface+".UnregisterProfile", 0, p.path).Err
	_ = p.bus.Export(nil, p.path, profileIface)
	return err
}

// profileHandler is the exported org.bluez.Profile1 implementation.
type profileHandler struct {
	p *Profile
}

// NewConnection receives the RFCOMM socket for a device. The fd is owned
// by the transport from here on.
func (h profileHandler) NewConnection(device dbus.ObjectPath, fd dbus.UnixFD, _ map[string]dbus.Variant) *dbus.Error {
	f := os.NewFile(uintptr(fd), "rfcomm")
	conn := transport.NewWithID(f, rfcomm.ConnectionID(device))

	select {
	case <-h.p.done:
		f.Close()
		return dbus.MakeFailedError(ErrProfileClosed)
	case h.p.conns <- conn:
		return nil
	default:
		f.Close()
		return dbus.MakeFailedError(errors.New("bluez: connection backlog full"))
	}
}

// RequestDisconnection is honored by closing nothing here; the engine
// notices the socket close.
func (h profileHandler) RequestDisconnection(_ dbus.ObjectPath) *dbus.Error { return nil }

func (h profileHandler) Release() *dbus.Error { return nil }

func (h profileHandler) Cancel() *dbus.Error { return nil }
