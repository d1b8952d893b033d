// Package transport moves OSC messages between this process and the
// SuperCollider pair (scsynth for synthesis commands, sclang for code
// execution) over a single UDP socket. Outbound datagrams are written from
// the listen socket because both peers address their replies to the source
// port of whatever reached them.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"syscall"
	"time"

	"github.com/hypebeast/go-osc/osc"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/viktorkelemen/sc-repl-mcp/internal/config"
)

// Handler consumes one inbound message for a registered address.
type Handler func(msg *osc.Message)

type Conn struct {
	conn    *net.UDPConn
	scsynth *net.UDPAddr
	sclang  *net.UDPAddr
	log     *zap.Logger

	closeOnce sync.Once
	done      chan struct{}
}

// Dial binds the reply socket, registers the address table on a dispatcher,
// and starts the background listener. If the port is held by another
// process (usually an orphaned instance of this client), that process is
// terminated and the bind retried once; a second failure propagates.
func Dial(ctx context.Context, cfg config.Config, table map[string]Handler, log *zap.Logger) (*Conn, error) {
	scsynth, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", cfg.Host, cfg.ScsynthPort))
	if err != nil {
		return nil, fmt.Errorf("resolve scsynth addr: %w", err)
	}
	sclang, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", cfg.Host, cfg.SclangPort))
	if err != nil {
		return nil, fmt.Errorf("resolve sclang addr: %w", err)
	}

	listenAddr := fmt.Sprintf("%s:%d", cfg.Host, cfg.ReplyPort)
	udpConn, err := listenReuse(ctx, listenAddr)
	if errors.Is(err, syscall.EADDRINUSE) {
		log.Warn("reply port in use, terminating holder", zap.Int("port", cfg.ReplyPort))
		if killPortOwner(ctx, OSRunner{}, cfg.ReplyPort, log) {
			time.Sleep(cfg.PortReleaseDelay)
		}
		udpConn, err = listenReuse(ctx, listenAddr)
	}
	if err != nil {
		return nil, fmt.Errorf("bind reply port: %w", err)
	}

	dispatcher := osc.NewStandardDispatcher()
	for address, handler := range table {
		if err := dispatcher.AddMsgHandler(address, osc.HandlerFunc(handler)); err != nil {
			udpConn.Close()
			return nil, fmt.Errorf("register handler %s: %w", address, err)
		}
	}

	c := &Conn{
		conn:    udpConn,
		scsynth: scsynth,
		sclang:  sclang,
		log:     log,
		done:    make(chan struct{}),
	}

	server := &osc.Server{Dispatcher: dispatcher}
	go func() {
		defer close(c.done)
		// Serve returns once the socket is closed. Unregistered addresses
		// are dropped by the dispatcher without reaching us.
		if err := server.Serve(udpConn); err != nil {
			c.log.Debug("listener stopped", zap.Error(err))
		}
	}()

	log.Info("transport bound",
		zap.String("listen", udpConn.LocalAddr().String()),
		zap.String("scsynth", scsynth.String()),
		zap.String("sclang", sclang.String()))
	return c, nil
}

// Send writes one message to scsynth from the listen socket. Reports false
// on any serialization or I/O failure; never panics into the caller.
func (c *Conn) Send(address string, args ...interface{}) bool {
	if c == nil {
		return false
	}
	return c.sendTo(c.scsynth, address, args)
}

// SendInterp writes one message to the sclang interpreter.
func (c *Conn) SendInterp(address string, args ...interface{}) bool {
	if c == nil {
		return false
	}
	return c.sendTo(c.sclang, address, args)
}

func (c *Conn) sendTo(dst *net.UDPAddr, address string, args []interface{}) bool {
	if c == nil || c.conn == nil {
		return false
	}
	msg := osc.NewMessage(address)
	for _, arg := range args {
		msg.Append(arg)
	}
	data, err := msg.MarshalBinary()
	if err != nil {
		c.log.Debug("marshal failed", zap.String("address", address), zap.Error(err))
		return false
	}
	if _, err := c.conn.WriteToUDP(data, dst); err != nil {
		c.log.Debug("send failed", zap.String("address", address), zap.Error(err))
		return false
	}
	return true
}

// LocalPort reports the bound reply port (useful when configured as 0).
func (c *Conn) LocalPort() int {
	if addr, ok := c.conn.LocalAddr().(*net.UDPAddr); ok {
		return addr.Port
	}
	return 0
}

// Close stops the listener and releases the socket. Safe to call multiple
// times.
func (c *Conn) Close() {
	if c == nil {
		return
	}
	c.closeOnce.Do(func() {
		c.conn.Close()
		<-c.done
	})
}

// listenReuse binds a UDP socket with SO_REUSEADDR so a restarted client
// can reclaim the fixed reply port without waiting out the kernel.
func listenReuse(ctx context.Context, addr string) (*net.UDPConn, error) {
	lc := net.ListenConfig{
		Control: func(network, address string, raw syscall.RawConn) error {
			var ctrlErr error
			if err := raw.Control(func(fd uintptr) {
				ctrlErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
			}); err != nil {
				return err
			}
			return ctrlErr
		},
	}
	pc, err := lc.ListenPacket(ctx, "udp", addr)
	if err != nil {
		return nil, err
	}
	udpConn, ok := pc.(*net.UDPConn)
	if !ok {
		pc.Close()
		return nil, fmt.Errorf("unexpected packet conn type %T", pc)
	}
	return udpConn, nil
}
