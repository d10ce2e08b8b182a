// Package transport implements the UDP channel endpoints, the transport
// poller, and multicast group membership used by the sender and receiver
// agents (spec.md §4.5 "Channel endpoint", §6 "Wire protocol").
package transport

import (
	"fmt"
	"net"
	"net/netip"
	"sync/atomic"
	"time"

	"github.com/vishvananda/netlink"
	"go.uber.org/zap"
	"golang.org/x/net/ipv4"
	"golang.org/x/sys/unix"
)

// Option configures a Channel.
type Option func(*options)

// WithLog attaches a logger to the channel.
func WithLog(log *zap.SugaredLogger) Option {
	return func(o *options) { o.Log = log }
}

// WithTTL sets the outgoing multicast TTL (ignored for unicast channels).
func WithTTL(ttl int) Option {
	return func(o *options) { o.TTL = ttl }
}

type options struct {
	Log *zap.SugaredLogger
	TTL int
}

func newOptions() *options {
	return &options{Log: zap.NewNop().Sugar(), TTL: 1}
}

// Channel wraps a non-blocking UDP socket, reference-counted by the
// publications/images that multiplex over it (spec.md §3 "Channel
// endpoint").
type Channel struct {
	conn     *net.UDPConn
	local    netip.AddrPort
	refCount atomic.Int32
	log      *zap.SugaredLogger
}

// Open binds a UDP socket at localAddr (empty port picks an ephemeral one).
// The socket is created with SO_REUSEADDR so multiple driver instances can
// bind the same multicast group port (spec.md §4.5).
func Open(localAddr string, opt ...Option) (*Channel, error) {
	opts := newOptions()
	for _, o := range opt {
		o(opts)
	}

	addr, err := net.ResolveUDPAddr("udp", localAddr)
	if err != nil {
		return nil, fmt.Errorf("transport: resolve %q: %w", localAddr, err)
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: listen %q: %w", localAddr, err)
	}

	rawConn, err := conn.SyscallConn()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("transport: raw conn: %w", err)
	}
	var controlErr error
	if err := rawConn.Control(func(fd uintptr) {
		controlErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("transport: control: %w", err)
	}
	if controlErr != nil {
		conn.Close()
		return nil, fmt.Errorf("transport: setsockopt SO_REUSEADDR: %w", controlErr)
	}

	local, ok := netip.AddrFromSlice(conn.LocalAddr().(*net.UDPAddr).IP)
	if !ok {
		local = netip.IPv4Unspecified()
	}
	localPort := conn.LocalAddr().(*net.UDPAddr).Port

	ch := &Channel{
		conn:  conn,
		local: netip.AddrPortFrom(local, uint16(localPort)),
		log:   opts.Log,
	}
	return ch, nil
}

// JoinMulticast joins the multicast group addr on the network interface
// named ifaceName, using netlink to resolve the interface (spec.md §4.5;
// grounded on the teacher's netlink-based link discovery idiom).
func (c *Channel) JoinMulticast(ifaceName string, addr netip.Addr) error {
	link, err := netlink.LinkByName(ifaceName)
	if err != nil {
		return fmt.Errorf("transport: resolve interface %q: %w", ifaceName, err)
	}

	iface, err := net.InterfaceByIndex(link.Attrs().Index)
	if err != nil {
		return fmt.Errorf("transport: interface by index %d: %w", link.Attrs().Index, err)
	}

	p := ipv4.NewPacketConn(c.conn)

	group := &net.UDPAddr{IP: addr.AsSlice()}
	if err := p.JoinGroup(iface, group); err != nil {
		return fmt.Errorf("transport: join multicast group %s on %s: %w", addr, ifaceName, err)
	}

	c.log.Infow("joined multicast group", "group", addr.String(), "interface", ifaceName)
	return nil
}

// LocalAddr returns the channel's bound local address.
func (c *Channel) LocalAddr() netip.AddrPort { return c.local }

// WriteTo sends payload to dest. It never blocks: the socket is used in
// non-blocking fire-and-forget mode (spec.md §5 "Suspension points").
func (c *Channel) WriteTo(payload []byte, dest netip.AddrPort) (int, error) {
	return c.conn.WriteToUDPAddrPort(payload, dest)
}

// ReadFrom reads one datagram into buf. Callers only invoke this after the
// poller has reported readability.
func (c *Channel) ReadFrom(buf []byte) (int, netip.AddrPort, error) {
	return c.conn.ReadFromUDPAddrPort(buf)
}

// SetReadDeadline bounds the next ReadFrom call, mainly useful in tests;
// production code relies on the Poller for readiness instead of deadlines.
func (c *Channel) SetReadDeadline(deadline time.Time) error {
	return c.conn.SetReadDeadline(deadline)
}

// Fd returns the underlying file descriptor, for registration with a
// Poller.
func (c *Channel) Fd() (int, error) {
	rawConn, err := c.conn.SyscallConn()
	if err != nil {
		return -1, err
	}
	var fd int
	if err := rawConn.Control(func(f uintptr) { fd = int(f) }); err != nil {
		return -1, err
	}
	return fd, nil
}

// Acquire increments the channel's reference count.
func (c *Channel) Acquire() int32 { return c.refCount.Add(1) }

// Release decrements the channel's reference count, returning the new
// value; callers should Close the channel once it reaches zero.
func (c *Channel) Release() int32 { return c.refCount.Add(-1) }

// RefCount returns the current reference count.
func (c *Channel) RefCount() int32 { return c.refCount.Load() }

// Close closes the underlying socket.
func (c *Channel) Close() error {
	return c.conn.Close()
}
