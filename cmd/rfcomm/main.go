// rfcomm bridges stdio to a multiplexed serial channel. One side listens
// for a transport connection and serves a channel; the other dials and
// opens it. Useful for exercising the engine over TCP, Unix sockets or
// WebSocket without a Bluetooth stack.
package main

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"os"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"

	"github.com/portmux/rfcomm-go/frame"
	"github.com/portmux/rfcomm-go/rfcomm"
	"github.com/portmux/rfcomm-go/trace"
	"github.com/portmux/rfcomm-go/transport"
	quictransport "github.com/portmux/rfcomm-go/transport/quic"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "rfcomm: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		listenAddr  string
		dialAddr    string
		kind        string
		channel     uint8
		tracePath   string
		traceFormat string
		portPairs   []string
		verbose     bool
	)

	flags := pflag.NewFlagSet("rfcomm", pflag.ContinueOnError)
	flags.StringVar(&listenAddr, "listen", "", "accept a transport connection at this address and serve a channel")
	flags.StringVar(&dialAddr, "dial", "", "connect to this address and open a channel on the peer")
	flags.StringVar(&kind, "transport", "tcp", "transport kind: tcp, unix, ws or quic")
	flags.Uint8Var(&channel, "channel", 1, "server channel number (1-30)")
	flags.StringVar(&tracePath, "trace", "", "write a frame trace to this file")
	flags.StringVar(&traceFormat, "trace-format", "json", "trace encoding: json or cbor")
	flags.StringArrayVar(&portPairs, "port", nil, "port setting key=value (baud, databits, stopbits, parity, ...)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if (listenAddr == "") == (dialAddr == "") {
		return errors.New("exactly one of --listen or --dial is required")
	}
	if !frame.ServerChannel(channel).Valid() {
		return fmt.Errorf("channel %d out of range [1,30]", channel)
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	opts := []rfcomm.ManagerOption{rfcomm.WithLogger(logger)}
	if tracePath != "" {
		tracer, err := openTrace(tracePath, traceFormat)
		if err != nil {
			return err
		}
		opts = append(opts, rfcomm.WithTrace(tracer))
	}

	disp := rfcomm.NewSerialDispatcher()
	defer disp.Close()
	mgr := rfcomm.NewChannelManager(disp, nil, opts...)

	settings, err := parsePortSettings(portPairs)
	if err != nil {
		return err
	}

	if listenAddr != "" {
		return serve(disp, mgr, kind, listenAddr, frame.ServerChannel(channel), logger)
	}
	return dial(disp, mgr, kind, dialAddr, frame.ServerChannel(channel), settings)
}

func openTrace(path, format string) (*trace.Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	switch format {
	case "json":
		return trace.NewWriter(f, trace.JSONCodec{}), nil
	case "cbor":
		return trace.NewWriter(f, trace.CBORCodec{}), nil
	default:
		return nil, fmt.Errorf("unknown trace format %q", format)
	}
}

// selfSignedTLS builds a throwaway certificate for the QUIC listener.
func selfSignedTLS() (*tls.Config, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	template := x509.Certificate{SerialNumber: big.NewInt(1)}
	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return nil, err
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return nil, err
	}
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER})
	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, err
	}
	return &tls.Config{Certificates: []tls.Certificate{cert}}, nil
}

// parsePortSettings decodes --port key=value pairs onto the GSM defaults.
func parsePortSettings(pairs []string) (*frame.PortSettings, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	values := map[string]string{}
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("malformed --port %q, want key=value", pair)
		}
		values[strings.ToLower(key)] = value
	}
	settings := frame.DefaultPortSettings()
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           &settings,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(values); err != nil {
		return nil, fmt.Errorf("invalid --port settings: %w", err)
	}
	return &settings, nil
}

func serve(disp *rfcomm.SerialDispatcher, mgr *rfcomm.ChannelManager, kind, addr string, sc frame.ServerChannel, logger *slog.Logger) error {
	var (
		accept func() (*transport.Conn, error)
		closer io.Closer
	)
	switch kind {
	case "tcp", "unix", "ws":
		var (
			l   *transport.NetListener
			err error
		)
		switch kind {
		case "tcp":
			l, err = transport.ListenTCP(addr)
		case "unix":
			l, err = transport.ListenUnix(addr)
		case "ws":
			l, err = transport.ListenWS(addr)
		}
		if err != nil {
			return err
		}
		accept, closer = l.Accept, l
	case "quic":
		tlsConf, err := selfSignedTLS()
		if err != nil {
			return err
		}
		l, err := quictransport.ListenAddr(addr, tlsConf)
		if err != nil {
			return err
		}
		accept = func() (*transport.Conn, error) { return l.Accept(context.Background()) }
		closer = l
	default:
		return fmt.Errorf("unknown transport %q", kind)
	}
	defer closer.Close()
	logger.Info("listening", slog.String("addr", addr), slog.Int("channel", int(sc)))

	channels := make(chan *rfcomm.Channel, 1)
	disp.Post(func() {
		err := mgr.RegisterLocalChannel(sc, func(ch *rfcomm.Channel) {
			select {
			case channels <- ch:
			default:
				// One bridge per process; turn extra opens away.
				ch.Close()
			}
		}, disp)
		if err != nil {
			logger.Error("register channel", slog.Any("error", err))
		}
	})

	go func() {
		for {
			conn, err := accept()
			if err != nil {
				return
			}
			disp.Post(func() {
				if err := mgr.RegisterTransport(conn); err != nil {
					logger.Warn("rejecting transport", slog.Any("error", err))
					conn.Close()
				}
			})
		}
	}()

	return bridge(disp, <-channels)
}

func dial(disp *rfcomm.SerialDispatcher, mgr *rfcomm.ChannelManager, kind, addr string, sc frame.ServerChannel, settings *frame.PortSettings) error {
	var (
		conn *transport.Conn
		err  error
	)
	switch kind {
	case "tcp":
		conn, err = transport.DialTCP(addr)
	case "unix":
		conn, err = transport.DialUnix(addr)
	case "ws":
		conn, err = transport.DialWS(addr)
	case "quic":
		conn, err = quictransport.Dial(context.Background(), addr, nil)
	default:
		return fmt.Errorf("unknown transport %q", kind)
	}
	if err != nil {
		return err
	}

	channels := make(chan *rfcomm.Channel, 1)
	disp.Post(func() {
		if err := mgr.RegisterTransport(conn); err != nil {
			channels <- nil
			return
		}
		mgr.OpenRemoteChannel(conn.ID(), sc, func(ch *rfcomm.Channel) {
			channels <- ch
		}, disp)
	})

	ch := <-channels
	if ch == nil {
		return fmt.Errorf("could not open channel %d on %s", sc, addr)
	}
	if settings != nil {
		s := *settings
		disp.Post(func() { ch.NegotiatePortSettings(s) })
	}
	return bridge(disp, ch)
}

// bridge pumps stdin into the channel and channel data onto stdout until
// either side closes.
func bridge(disp *rfcomm.SerialDispatcher, ch *rfcomm.Channel) error {
	done := make(chan struct{})
	disp.Post(func() {
		ch.Activate(func(p []byte) {
			os.Stdout.Write(p)
		}, func() {
			close(done)
		}, disp)
	})

	go func() {
		buf := make([]byte, 1024)
		for {
			n, err := os.Stdin.Read(buf)
			if n > 0 {
				data := append([]byte(nil), buf[:n]...)
				disp.Post(func() { ch.Send(data) })
			}
			if err != nil {
				if err != io.EOF {
					fmt.Fprintf(os.Stderr, "rfcomm: stdin: %v\n", err)
				}
				disp.Post(func() { ch.Close() })
				return
			}
		}
	}()

	<-done
	return nil
}
