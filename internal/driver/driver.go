// Package driver wires the Conductor, Sender and Receiver agents together
// under one of the configured threading modes and drives their duty
// cycles with pluggable idle strategies (spec.md §4 "Agents", §5
// "Scheduling"). It is the Go-native analogue of the teacher's
// coordinator.Coordinator: the single top-level component whose Run/Close
// the command-line entrypoint manages.
package driver

import (
	"context"
	"fmt"
	"net/netip"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/yanet-platform/mediadriver/internal/config"
	"github.com/yanet-platform/mediadriver/internal/conductor"
	"github.com/yanet-platform/mediadriver/internal/congestioncontrol"
	"github.com/yanet-platform/mediadriver/internal/counters"
	"github.com/yanet-platform/mediadriver/internal/dispatcher"
	"github.com/yanet-platform/mediadriver/internal/endpoint"
	"github.com/yanet-platform/mediadriver/internal/errorlog"
	"github.com/yanet-platform/mediadriver/internal/flowcontrol"
	"github.com/yanet-platform/mediadriver/internal/idlestrategy"
	"github.com/yanet-platform/mediadriver/internal/logbuffer"
	"github.com/yanet-platform/mediadriver/internal/publication"
	"github.com/yanet-platform/mediadriver/internal/receiver"
	"github.com/yanet-platform/mediadriver/internal/registry"
	"github.com/yanet-platform/mediadriver/internal/ringbuffer"
	"github.com/yanet-platform/mediadriver/internal/sender"
	"github.com/yanet-platform/mediadriver/internal/transport"
)

const (
	commandRingLength = 1 << 20
	eventRingLength   = 1 << 20
	countersCapacity  = 1024
	errorLogCapacity  = 256
)

// agentWork groups a named agent's DoWork and idle strategy so the
// scheduling loop can be expressed once regardless of threading mode.
type agentWork struct {
	name string
	idle idlestrategy.Strategy
	work func(now time.Time) int
}

// Driver owns the shared channels and agents of one media driver instance.
type Driver struct {
	log *zap.SugaredLogger
	cfg *config.Config

	conductor *conductor.Conductor
	sender    *sender.Sender
	receiver  *receiver.Receiver

	recvChannel *transport.Channel
	sendChannel *transport.Channel
	poller      *transport.Poller

	subscriptions *registry.Registry[dispatcher.StreamKey, struct{}]

	threadingMode config.ThreadingMode
	idleFor       map[string]idlestrategy.Strategy
}

// New constructs a Driver from cfg, binding its data-plane UDP channels at
// cfg.DataAddress (spec.md §4.5 "Channel endpoint").
func New(cfg *config.Config, log *zap.SugaredLogger) (*Driver, error) {
	if err := os.MkdirAll(cfg.DriverDirectory, 0o755); err != nil {
		return nil, fmt.Errorf("driver: create directory %q: %w", cfg.DriverDirectory, err)
	}

	recvCh, err := transport.Open(cfg.DataAddress, transport.WithLog(log))
	if err != nil {
		return nil, fmt.Errorf("driver: open receive channel: %w", err)
	}
	sendCh, err := transport.Open("0.0.0.0:0", transport.WithLog(log))
	if err != nil {
		recvCh.Close()
		return nil, fmt.Errorf("driver: open send channel: %w", err)
	}

	poller, err := transport.NewPoller()
	if err != nil {
		recvCh.Close()
		sendCh.Close()
		return nil, fmt.Errorf("driver: create poller: %w", err)
	}
	if err := poller.Add(recvCh); err != nil {
		poller.Close()
		recvCh.Close()
		sendCh.Close()
		return nil, fmt.Errorf("driver: register receive channel: %w", err)
	}

	cm, err := counters.NewManager(make([]byte, counters.PageAlign(counters.MetadataRecordLength*countersCapacity)), make([]byte, counters.ValueLength*countersCapacity))
	if err != nil {
		return nil, fmt.Errorf("driver: create counters manager: %w", err)
	}
	errors := errorlog.New(errorLogCapacity)

	commandRing, err := ringbuffer.NewMPSC(make([]byte, commandRingLength))
	if err != nil {
		return nil, fmt.Errorf("driver: create command ring: %w", err)
	}
	eventBus, err := ringbuffer.NewBroadcast(make([]byte, eventRingLength))
	if err != nil {
		return nil, fmt.Errorf("driver: create event broadcast: %w", err)
	}

	recvEndpoint := endpoint.NewReceiveChannelEndpoint(recvCh)
	sendEndpoint := endpoint.NewSendChannelEndpoint(sendCh)

	subscriptions := registry.New[dispatcher.StreamKey, struct{}]()

	d := &Driver{
		log:           log,
		cfg:           cfg,
		recvChannel:   recvCh,
		sendChannel:   sendCh,
		poller:        poller,
		subscriptions: subscriptions,
		threadingMode: cfg.ThreadingMode,
		idleFor:       make(map[string]idlestrategy.Strategy),
	}

	d.sender = sender.New(sendEndpoint,
		sender.WithLog(log),
		sender.WithHeartbeatInterval(cfg.HeartbeatTimeout),
		sender.WithRetransmitLimits(4, cfg.RetransmitUnicastDelay, cfg.RetransmitUnicastLinger),
	)

	d.receiver = receiver.New(recvEndpoint, sendEndpoint, poller,
		func(key dispatcher.StreamKey) bool { _, ok := subscriptions.Get(key); return ok },
		nil,
		receiver.WithLog(log),
		receiver.WithLossCheckDelay(cfg.NakUnicastDelay),
		receiver.WithSMInterval(cfg.StatusMessageTimeout),
	)

	d.conductor = conductor.New(commandRing, eventBus, cm, errors,
		conductor.WithLog(log),
		conductor.WithClientLivenessTimeout(cfg.ClientLivenessTimeout),
		conductor.WithPublicationLingerTimeout(cfg.PublicationLingerTimeout),
		conductor.WithNetworkLogFactory(d.termBufferFactory("pub", int32(cfg.TermBufferLength.Bytes()))),
		conductor.WithIPCLogFactory(d.termBufferFactory("ipc", int32(cfg.IPCTermBufferLength.Bytes()))),
		conductor.WithImageLogFactory(d.termBufferFactory("img", int32(cfg.TermBufferLength.Bytes()))),
		conductor.WithFlowControlFactory(d.flowControlFactory()),
		conductor.WithCongestionControlFactory(d.congestionControlFactory()),
		conductor.WithPublicationListener(d.onPublication),
		conductor.WithImageListener(d.onImage),
	)

	for name, strategyCfg := range cfg.IdleStrategies {
		d.idleFor[name] = newIdleStrategy(strategyCfg)
	}

	return d, nil
}

func (d *Driver) termBufferFactory(kind string, termLength int32) conductor.LogFactory {
	return func(identity publication.Identity) (*logbuffer.MappedFile, error) {
		path := filepath.Join(d.cfg.DriverDirectory,
			fmt.Sprintf("%s-%d-%d-%d.log", kind, identity.SessionID, identity.StreamID, identity.RegistrationID))
		return logbuffer.CreateLogFile(path, termLength)
	}
}

func (d *Driver) flowControlFactory() func() flowcontrol.Strategy {
	switch d.cfg.FlowControlStrategy {
	case config.FlowControlMulticastMin, config.FlowControlMulticastMinGroup:
		return func() flowcontrol.Strategy {
			return flowcontrol.NewMulticastMin(d.cfg.ImageLivenessTimeout, flowcontrol.EmptySetPolicy(0))
		}
	default:
		return func() flowcontrol.Strategy { return flowcontrol.NewUnicastMax() }
	}
}

func (d *Driver) congestionControlFactory() func() congestioncontrol.Strategy {
	window := int32(d.cfg.InitialWindowLength.Bytes())
	switch d.cfg.CongestionControlStrategy {
	case config.CongestionControlCubic:
		return func() congestioncontrol.Strategy { return congestioncontrol.NewCubic(window/4, window) }
	default:
		return func() congestioncontrol.Strategy { return congestioncontrol.NewStaticWindow(window) }
	}
}

// onPublication wires a newly ready network publication into the Sender,
// or tears it down, as the Conductor's registry changes (spec.md §4.7
// "proxy services to Sender/Receiver").
func (d *Driver) onPublication(key conductor.PublicationKey, pub *publication.NetworkPublication, dest netip.AddrPort, added bool) {
	epKey := endpoint.StreamKey{SessionID: key.SessionID, StreamID: key.StreamID}
	if added {
		d.sender.AddPublication(epKey, pub, dest, int32(d.cfg.MTULength.Bytes()))
		return
	}
	d.sender.RemovePublication(epKey)
}

// onImage wires a newly available image into the Receiver, or tears it
// down.
func (d *Driver) onImage(key dispatcher.StreamKey, img *publication.Image, source netip.AddrPort, added bool) {
	if added {
		d.receiver.AddImage(key, img, source)
		return
	}
	d.receiver.RemoveImage(key)
}

// AddSubscription marks key as having local subscriber interest, so the
// Receiver's dispatcher requests a SETUP for unsolicited data and the
// reconciliation loop allocates an image once one arrives.
func (d *Driver) AddSubscription(key dispatcher.StreamKey) {
	d.subscriptions.Put(key, struct{}{})
}

// RemoveSubscription clears subscriber interest for key.
func (d *Driver) RemoveSubscription(key dispatcher.StreamKey) {
	d.subscriptions.Delete(key)
}

// Conductor, Sender and Receiver expose the underlying agents, mainly for
// the admin API's read-only inspection.
func (d *Driver) Conductor() *conductor.Conductor {
	return d.conductor
}

func (d *Driver) Sender() *sender.Sender {
	return d.sender
}

func (d *Driver) Receiver() *receiver.Receiver {
	return d.receiver
}

// Config returns the driver's effective configuration, for the admin
// API's GetConfig introspection method.
func (d *Driver) Config() *config.Config {
	return d.cfg
}

// reconcileImages asks the Receiver for streams awaiting image allocation
// and has the Conductor allocate (or confirm) one for each, closing the
// loop between the receive path's dispatcher and the Conductor's registry
// ownership (spec.md §4.6, §4.7, §4.9).
func (d *Driver) reconcileImages(now time.Time) {
	for _, pending := range d.receiver.PendingImages() {
		img, created := d.conductor.EnsureImage(pending.Key, pending.InitialTermID, pending.Source, now)
		if created && img != nil {
			d.receiver.AddImage(pending.Key, img, pending.Source)
		}
	}
}

// Run drives the agents' duty cycles under the configured threading mode
// until ctx is canceled (spec.md §5 "Scheduling"). It mirrors the
// teacher's coordinator.Coordinator.Run(ctx) shape: an errgroup fans the
// agents out, and the first one to fail cancels the rest.
func (d *Driver) Run(ctx context.Context) error {
	conductorWork := agentWork{name: "conductor", idle: d.idleStrategyFor("conductor"), work: func(now time.Time) int {
		d.reconcileImages(now)
		return d.conductor.DoWork(now)
	}}
	senderWork := agentWork{name: "sender", idle: d.idleStrategyFor("sender"), work: d.sender.DoWork}
	receiverWork := agentWork{name: "receiver", idle: d.idleStrategyFor("receiver"), work: d.receiver.DoWork}

	wg, ctx := errgroup.WithContext(ctx)

	switch d.threadingMode {
	case config.ThreadingShared, config.ThreadingSharedNetwork, config.ThreadingInvoker:
		combined := combineAgents(d.threadingMode, conductorWork, senderWork, receiverWork)
		for _, group := range combined {
			group := group
			wg.Go(func() error { return runLoop(ctx, group...) })
		}
	default: // config.ThreadingDedicated
		for _, aw := range []agentWork{conductorWork, senderWork, receiverWork} {
			aw := aw
			wg.Go(func() error { return runLoop(ctx, aw) })
		}
	}

	return wg.Wait()
}

// combineAgents groups agents onto threads per the configured threading
// mode: "shared" runs all three on one thread, "shared-network" runs
// sender+receiver together with the conductor on its own, and "invoker"
// runs all three as a single group, the same grouping as "shared" (spec.md §5
// "Scheduling": dedicated/shared/shared-network/invoker).
func combineAgents(mode config.ThreadingMode, conductorWork, senderWork, receiverWork agentWork) [][]agentWork {
	switch mode {
	case config.ThreadingShared, config.ThreadingInvoker:
		return [][]agentWork{{conductorWork, senderWork, receiverWork}}
	case config.ThreadingSharedNetwork:
		return [][]agentWork{{conductorWork}, {senderWork, receiverWork}}
	default:
		return [][]agentWork{{conductorWork}, {senderWork}, {receiverWork}}
	}
}

// runLoop repeatedly runs every agent in group's DoWork, idling per agent
// when its round found no work, until ctx is canceled.
func runLoop(ctx context.Context, group ...agentWork) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		for _, aw := range group {
			n := aw.work(time.Now())
			aw.idle.Idle(n)
		}
	}
}

func (d *Driver) idleStrategyFor(name string) idlestrategy.Strategy {
	if s, ok := d.idleFor[name]; ok {
		return s
	}
	return idlestrategy.NewBusySpin()
}

func newIdleStrategy(cfg config.IdleStrategyConfig) idlestrategy.Strategy {
	switch cfg.Kind {
	case config.IdleYielding:
		return idlestrategy.NewYielding()
	case config.IdleSleepingBackoff:
		return idlestrategy.NewBackoff(cfg.MaxParkDuration)
	default:
		return idlestrategy.NewBusySpin()
	}
}

// Close drains the Receiver, then the Sender, then the Conductor, so
// in-flight frames are routed and acknowledged before agent state is torn
// down, then releases the data-plane channels (spec.md §4 "Agents":
// shutdown drains receive → send → control).
func (d *Driver) Close() error {
	now := time.Now()
	d.receiver.DoWork(now)
	d.sender.DoWork(now)
	d.conductor.DoWork(now)

	if err := d.poller.Close(); err != nil {
		return fmt.Errorf("driver: close poller: %w", err)
	}
	if err := d.recvChannel.Close(); err != nil {
		return fmt.Errorf("driver: close receive channel: %w", err)
	}
	if err := d.sendChannel.Close(); err != nil {
		return fmt.Errorf("driver: close send channel: %w", err)
	}
	return nil
}
