// Package conductor implements the Conductor agent: the sole mutator of
// the publication/subscription/image registries, client command
// processing, timers, and the counters manager and distinct error log it
// owns (spec.md §4.7 "Conductor").
package conductor

import (
	"fmt"
	"net/netip"
	"time"

	"go.uber.org/zap"

	"github.com/yanet-platform/mediadriver/internal/channeluri"
	"github.com/yanet-platform/mediadriver/internal/congestioncontrol"
	"github.com/yanet-platform/mediadriver/internal/counters"
	"github.com/yanet-platform/mediadriver/internal/dispatcher"
	"github.com/yanet-platform/mediadriver/internal/errorlog"
	"github.com/yanet-platform/mediadriver/internal/flowcontrol"
	"github.com/yanet-platform/mediadriver/internal/logbuffer"
	"github.com/yanet-platform/mediadriver/internal/publication"
	"github.com/yanet-platform/mediadriver/internal/registry"
	"github.com/yanet-platform/mediadriver/internal/ringbuffer"
)

// Option configures a Conductor.
type Option func(*options)

// WithLog attaches a logger to the conductor.
func WithLog(log *zap.SugaredLogger) Option {
	return func(o *options) { o.Log = log }
}

// WithClientLivenessTimeout overrides the default client liveness timeout.
func WithClientLivenessTimeout(d time.Duration) Option {
	return func(o *options) { o.ClientLivenessTimeout = d }
}

// WithPublicationLingerTimeout overrides the default publication linger
// duration.
func WithPublicationLingerTimeout(d time.Duration) Option {
	return func(o *options) { o.PublicationLingerTimeout = d }
}

// LogFactory allocates the backing log buffer for a newly registered
// publication or image (spec.md §4.2 "Log buffer allocation"). The driver
// supplies one bound to its configured directory and term lengths; tests
// may leave it nil, in which case publications/images are created without
// a backing log (as before this option existed).
type LogFactory func(identity publication.Identity) (*logbuffer.MappedFile, error)

// WithNetworkLogFactory sets the factory used to allocate network
// publications' term buffers.
func WithNetworkLogFactory(f LogFactory) Option {
	return func(o *options) { o.NetworkLogFactory = f }
}

// WithIPCLogFactory sets the factory used to allocate IPC publications'
// term buffers.
func WithIPCLogFactory(f LogFactory) Option {
	return func(o *options) { o.IPCLogFactory = f }
}

// WithImageLogFactory sets the factory used to allocate subscription
// images' term buffers.
func WithImageLogFactory(f LogFactory) Option {
	return func(o *options) { o.ImageLogFactory = f }
}

// WithFlowControlFactory overrides the default flow-control strategy
// constructor used for newly created network publications.
func WithFlowControlFactory(f func() flowcontrol.Strategy) Option {
	return func(o *options) { o.FlowControlFactory = f }
}

// WithCongestionControlFactory overrides the default congestion-control
// strategy constructor used for newly created images.
func WithCongestionControlFactory(f func() congestioncontrol.Strategy) Option {
	return func(o *options) { o.CongestionControlFactory = f }
}

// PublicationListener is notified when a network publication becomes ready
// (added=true, with its resolved destination) or is torn down
// (added=false), so the driver can wire/unwire the Sender.
type PublicationListener func(key PublicationKey, pub *publication.NetworkPublication, dest netip.AddrPort, added bool)

// WithPublicationListener registers a PublicationListener.
func WithPublicationListener(f PublicationListener) Option {
	return func(o *options) { o.PublicationListener = f }
}

// ImageListener is notified when an image becomes available (added=true,
// with the source it was observed from) or is torn down (added=false), so
// the driver can wire/unwire the Receiver.
type ImageListener func(key dispatcher.StreamKey, img *publication.Image, source netip.AddrPort, added bool)

// WithImageListener registers an ImageListener.
func WithImageListener(f ImageListener) Option {
	return func(o *options) { o.ImageListener = f }
}

type options struct {
	Log                      *zap.SugaredLogger
	ClientLivenessTimeout    time.Duration
	PublicationLingerTimeout time.Duration

	NetworkLogFactory LogFactory
	IPCLogFactory     LogFactory
	ImageLogFactory   LogFactory

	FlowControlFactory       func() flowcontrol.Strategy
	CongestionControlFactory func() congestioncontrol.Strategy

	PublicationListener PublicationListener
	ImageListener       ImageListener
}

func newOptions() *options {
	return &options{
		Log:                      zap.NewNop().Sugar(),
		ClientLivenessTimeout:    10 * time.Second,
		PublicationLingerTimeout: 5 * time.Second,
		FlowControlFactory:       func() flowcontrol.Strategy { return flowcontrol.NewUnicastMax() },
		CongestionControlFactory: func() congestioncontrol.Strategy { return congestioncontrol.NewStaticWindow(2 * 1024 * 1024) },
	}
}

// PublicationKey identifies a registered publication by the tuple the
// Conductor deduplicates on (spec.md §4.7: "deduplicates by (channel,
// stream, session)").
type PublicationKey struct {
	ChannelURI string
	StreamID   int32
	SessionID  int32
}

type clientState struct {
	lastSeen      time.Time
	registrations map[int64]struct{}
}

// Conductor owns the publication/subscription/image registries and is the
// only agent that mutates them (spec.md §4.7, §9 "Ownership rules").
type Conductor struct {
	log *zap.SugaredLogger

	commandRing *ringbuffer.MPSC
	eventBus    *ringbuffer.Broadcast

	publications *registry.Registry[PublicationKey, *publication.NetworkPublication]
	ipcPubs      *registry.Registry[PublicationKey, *publication.IPCPublication]
	images       *registry.Registry[dispatcher.StreamKey, *publication.Image]

	counters *counters.Manager
	errors   *errorlog.Log

	clients map[int64]*clientState

	nextRegistrationID int64

	clientLivenessTimeout    time.Duration
	publicationLingerTimeout time.Duration

	networkLogFactory LogFactory
	ipcLogFactory     LogFactory
	imageLogFactory   LogFactory

	flowControlFactory       func() flowcontrol.Strategy
	congestionControlFactory func() congestioncontrol.Strategy

	publicationListener PublicationListener
	imageListener       ImageListener
}

// New creates a Conductor reading commands from commandRing and publishing
// events/responses on eventBus.
func New(commandRing *ringbuffer.MPSC, eventBus *ringbuffer.Broadcast, cm *counters.Manager, el *errorlog.Log, opt ...Option) *Conductor {
	opts := newOptions()
	for _, o := range opt {
		o(opts)
	}

	return &Conductor{
		log:                      opts.Log,
		commandRing:              commandRing,
		eventBus:                 eventBus,
		publications:             registry.New[PublicationKey, *publication.NetworkPublication](),
		ipcPubs:                  registry.New[PublicationKey, *publication.IPCPublication](),
		images:                   registry.New[dispatcher.StreamKey, *publication.Image](),
		counters:                 cm,
		errors:                   el,
		clients:                  make(map[int64]*clientState),
		clientLivenessTimeout:    opts.ClientLivenessTimeout,
		publicationLingerTimeout: opts.PublicationLingerTimeout,
		networkLogFactory:        opts.NetworkLogFactory,
		ipcLogFactory:            opts.IPCLogFactory,
		imageLogFactory:          opts.ImageLogFactory,
		flowControlFactory:       opts.FlowControlFactory,
		congestionControlFactory: opts.CongestionControlFactory,
		publicationListener:      opts.PublicationListener,
		imageListener:            opts.ImageListener,
	}
}

// DoWork drains pending commands and runs due timers, returning the number
// of commands processed (the agent loop's work count, spec.md §4.7, §5
// "Scheduling").
func (c *Conductor) DoWork(now time.Time) int {
	processed := 0
	c.commandRing.Read(func(msgType int32, payload []byte) {
		processed++
		c.handleCommand(CommandType(msgType), payload, now)
	})

	c.runTimers(now)
	return processed
}

func (c *Conductor) handleCommand(msgType CommandType, payload []byte, now time.Time) {
	cmd, err := DecodeCommand(payload)
	if err != nil {
		c.emitError(0, fmt.Sprintf("malformed command: %v", err), now)
		return
	}
	cmd.Type = msgType

	c.touchClient(cmd.ClientID, now)

	switch cmd.Type {
	case CommandAddPublication:
		c.handleAddPublication(cmd, now)
	case CommandRemovePublication:
		c.handleRemovePublication(cmd, now)
	case CommandClientKeepalive:
		// touchClient above already recorded liveness.
		c.publish(Event{Type: EventPublicationReady, CorrelationID: cmd.CorrelationID})
	default:
		c.emitError(cmd.CorrelationID, fmt.Sprintf("unsupported command type %d", cmd.Type), now)
	}
}

func (c *Conductor) handleAddPublication(cmd Command, now time.Time) {
	uri, err := channeluri.Parse(cmd.ChannelURI)
	if err != nil {
		c.errors.Record(1, "conductor.handleAddPublication", err.Error(), now.UnixNano())
		c.emitError(cmd.CorrelationID, err.Error(), now)
		return
	}

	key := PublicationKey{ChannelURI: cmd.ChannelURI, StreamID: cmd.StreamID, SessionID: cmd.SessionID}

	if uri.Media == channeluri.MediaIPC {
		if existing, ok := c.ipcPubs.Get(key); ok {
			existing.Acquire()
			c.publish(Event{Type: EventPublicationReady, CorrelationID: cmd.CorrelationID, RegistrationID: cmd.RegistrationID})
			return
		}
		regID := c.allocateRegistrationID()
		identity := publication.Identity{
			SessionID: cmd.SessionID, StreamID: cmd.StreamID, ChannelURI: cmd.ChannelURI, RegistrationID: regID,
		}
		var log *logbuffer.MappedFile
		if c.ipcLogFactory != nil {
			l, err := c.ipcLogFactory(identity)
			if err != nil {
				c.errors.Record(1, "conductor.handleAddPublication", err.Error(), now.UnixNano())
				c.emitError(cmd.CorrelationID, err.Error(), now)
				return
			}
			log = l
		}
		pub := publication.NewIPCPublication(identity, log)
		pub.Acquire()
		c.ipcPubs.Put(key, pub)
		c.publish(Event{Type: EventPublicationReady, CorrelationID: cmd.CorrelationID, RegistrationID: regID})
		return
	}

	if existing, ok := c.publications.Get(key); ok {
		existing.Acquire()
		c.publish(Event{Type: EventPublicationReady, CorrelationID: cmd.CorrelationID})
		return
	}

	dest, err := destinationOf(uri)
	if err != nil {
		c.errors.Record(1, "conductor.handleAddPublication", err.Error(), now.UnixNano())
		c.emitError(cmd.CorrelationID, err.Error(), now)
		return
	}

	regID := c.allocateRegistrationID()
	identity := publication.Identity{
		SessionID: cmd.SessionID, StreamID: cmd.StreamID, ChannelURI: cmd.ChannelURI, RegistrationID: regID,
	}
	var log *logbuffer.MappedFile
	if c.networkLogFactory != nil {
		l, err := c.networkLogFactory(identity)
		if err != nil {
			c.errors.Record(1, "conductor.handleAddPublication", err.Error(), now.UnixNano())
			c.emitError(cmd.CorrelationID, err.Error(), now)
			return
		}
		log = l
	}

	pub := publication.NewNetworkPublication(identity, log, c.flowControlFactory())
	pub.Acquire()
	c.publications.Put(key, pub)
	c.publish(Event{Type: EventPublicationReady, CorrelationID: cmd.CorrelationID, RegistrationID: regID})
	if c.publicationListener != nil {
		c.publicationListener(key, pub, dest, true)
	}
}

// destinationOf resolves the wire destination for a UDP channel URI from
// its "endpoint" parameter (spec.md §6 "Channel URI grammar").
func destinationOf(uri channeluri.URI) (netip.AddrPort, error) {
	endpoint, ok := uri.Get(channeluri.ParamEndpoint)
	if !ok {
		return netip.AddrPort{}, fmt.Errorf("channeluri: missing %q parameter in %q", channeluri.ParamEndpoint, uri.Raw)
	}
	dest, err := netip.ParseAddrPort(endpoint)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("channeluri: malformed endpoint %q: %w", endpoint, err)
	}
	return dest, nil
}

func (c *Conductor) handleRemovePublication(cmd Command, now time.Time) {
	key := PublicationKey{ChannelURI: cmd.ChannelURI, StreamID: cmd.StreamID, SessionID: cmd.SessionID}

	if pub, ok := c.publications.Get(key); ok {
		if pub.Release() <= 0 {
			pub.BeginDraining(now)
			if c.publicationListener != nil {
				c.publicationListener(key, pub, netip.AddrPort{}, false)
			}
		}
		return
	}
	if pub, ok := c.ipcPubs.Get(key); ok && pub.Release() <= 0 {
		c.ipcPubs.Delete(key)
	}
}

func (c *Conductor) allocateRegistrationID() int64 {
	c.nextRegistrationID++
	return c.nextRegistrationID
}

func (c *Conductor) touchClient(clientID int64, now time.Time) {
	if clientID == 0 {
		return
	}
	cs, ok := c.clients[clientID]
	if !ok {
		cs = &clientState{registrations: make(map[int64]struct{})}
		c.clients[clientID] = cs
	}
	cs.lastSeen = now
}

// runTimers evicts clients that have not been seen within the liveness
// timeout and advances publication/image linger (spec.md §4.7: "Runs
// timers: client liveness ..., publication linger and un-blocking, image
// liveness, untethered subscriber detection").
func (c *Conductor) runTimers(now time.Time) {
	for clientID, cs := range c.clients {
		if now.Sub(cs.lastSeen) > c.clientLivenessTimeout {
			delete(c.clients, clientID)
			c.publish(Event{Type: EventClientTimeout, ErrorCode: int32(clientID)})
		}
	}

	c.publications.Range(func(key PublicationKey, pub *publication.NetworkPublication) bool {
		if pub.State() == publication.StateDraining {
			pub.TransitionToLinger(now, c.publicationLingerTimeout)
		}
		if pub.MaybeClose(now) {
			c.publications.Delete(key)
		}
		return true
	})

	c.images.Range(func(key dispatcher.StreamKey, img *publication.Image) bool {
		if img.State() == publication.ImageDraining {
			img.TransitionToLinger(now, c.publicationLingerTimeout)
		}
		if img.MaybeClose(now) {
			c.images.Delete(key)
			c.publish(Event{Type: EventUnavailableImage})
			if c.imageListener != nil {
				c.imageListener(key, img, netip.AddrPort{}, false)
			}
		}
		return true
	})
}

// EnsureImage returns the image registered for key, creating one backed by
// the configured image log factory if none exists yet. It is driven by the
// driver's reconciliation loop consuming the Receiver's PendingImages
// (spec.md §4.6 "Data packet dispatcher", §4.7 "Conductor").
func (c *Conductor) EnsureImage(key dispatcher.StreamKey, initialTermID int32, source netip.AddrPort, now time.Time) (*publication.Image, bool) {
	if img, ok := c.images.Get(key); ok {
		return img, false
	}
	if c.imageLogFactory == nil {
		return nil, false
	}

	identity := publication.Identity{SessionID: key.SessionID, StreamID: key.StreamID, InitialTermID: initialTermID}
	log, err := c.imageLogFactory(identity)
	if err != nil {
		c.errors.Record(2, "conductor.EnsureImage", err.Error(), now.UnixNano())
		return nil, false
	}

	img := publication.NewImage(identity, log, c.congestionControlFactory())
	if err := img.Activate(); err != nil {
		c.errors.Record(2, "conductor.EnsureImage", err.Error(), now.UnixNano())
		return nil, false
	}

	c.images.Put(key, img)
	c.publish(Event{Type: EventAvailableImage})
	if c.imageListener != nil {
		c.imageListener(key, img, source, true)
	}
	return img, true
}

func (c *Conductor) emitError(correlationID int64, message string, now time.Time) {
	c.log.Warnw("conductor command error", "correlation_id", correlationID, "error", message)
	c.publish(Event{Type: EventError, CorrelationID: correlationID, Message: message})
}

func (c *Conductor) publish(ev Event) {
	c.eventBus.Transmit(int32(ev.Type), ev.Encode())
}

// Publications returns the network publication registry, for inspection by
// the admin API and the sender's proxy wiring.
func (c *Conductor) Publications() *registry.Registry[PublicationKey, *publication.NetworkPublication] {
	return c.publications
}

// Images returns the image registry, for inspection and receiver proxy
// wiring.
func (c *Conductor) Images() *registry.Registry[dispatcher.StreamKey, *publication.Image] {
	return c.images
}

// Counters returns the shared counters manager, for the admin API's
// counter-listing introspection method.
func (c *Conductor) Counters() *counters.Manager {
	return c.counters
}

// Errors returns the distinct error log, for the admin API's error-listing
// introspection method.
func (c *Conductor) Errors() *errorlog.Log {
	return c.errors
}
