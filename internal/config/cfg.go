// Package config loads and defaults the media driver's configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/c2h5oh/datasize"
	"gopkg.in/yaml.v3"

	"github.com/yanet-platform/mediadriver/internal/logging"
)

// ThreadingMode selects how the Conductor, Sender and Receiver agents are
// scheduled onto OS threads (spec.md §5).
type ThreadingMode string

const (
	ThreadingDedicated     ThreadingMode = "dedicated"
	ThreadingShared        ThreadingMode = "shared"
	ThreadingSharedNetwork ThreadingMode = "shared-network"
	ThreadingInvoker       ThreadingMode = "invoker"
)

// FlowControlStrategy selects the flow-control policy for network
// publications (spec.md §4.3).
type FlowControlStrategy string

const (
	FlowControlUnicastMax         FlowControlStrategy = "unicast-max"
	FlowControlMulticastMin       FlowControlStrategy = "multicast-min"
	FlowControlMulticastMinGroup  FlowControlStrategy = "multicast-min-group"
)

// CongestionControlStrategy selects the congestion-control policy for
// publication images (spec.md §4.4).
type CongestionControlStrategy string

const (
	CongestionControlStatic CongestionControlStrategy = "static"
	CongestionControlCubic  CongestionControlStrategy = "cubic"
)

// IdleStrategyKind selects the idle-strategy implementation for an agent.
type IdleStrategyKind string

const (
	IdleBusySpin       IdleStrategyKind = "busy-spin"
	IdleYielding       IdleStrategyKind = "yielding"
	IdleSleepingBackoff IdleStrategyKind = "backoff"
)

// Config is the top-level media driver configuration.
type Config struct {
	// Logging configures the structured logging subsystem.
	Logging logging.Config `yaml:"logging"`

	// DriverDirectory is the path to the directory holding cnc.dat and the
	// per-publication/image log buffer files.
	DriverDirectory string `yaml:"driver_directory"`
	// DataAddress is the local UDP address the driver's send/receive
	// channels bind to.
	DataAddress string `yaml:"data_address"`

	// TermBufferLength is the default term buffer length for network
	// publications. Must be a power of two in [64KiB, 1GiB].
	TermBufferLength datasize.ByteSize `yaml:"term_buffer_length"`
	// IPCTermBufferLength is the default term buffer length for IPC
	// publications.
	IPCTermBufferLength datasize.ByteSize `yaml:"ipc_term_buffer_length"`
	// MTULength bounds the size of a single UDP datagram emitted by the
	// Sender.
	MTULength datasize.ByteSize `yaml:"mtu_length"`
	// InitialWindowLength is the initial flow-control receiver window.
	InitialWindowLength datasize.ByteSize `yaml:"initial_window_length"`
	// SocketRcvBuf / SocketSndBuf size the kernel socket buffers.
	SocketRcvBuf datasize.ByteSize `yaml:"socket_rcvbuf"`
	SocketSndBuf datasize.ByteSize `yaml:"socket_sndbuf"`

	// StatusMessageTimeout bounds how long an image waits before emitting an
	// unsolicited status message.
	StatusMessageTimeout time.Duration `yaml:"status_message_timeout"`
	// ClientLivenessTimeout is the keepalive timeout after which the
	// Conductor forgets a client and emits a client-timeout event. The
	// client's publications and subscriptions are not released by it.
	ClientLivenessTimeout time.Duration `yaml:"client_liveness_timeout"`
	// ImageLivenessTimeout is the inactivity timeout after which an image
	// with no progress is considered dead.
	ImageLivenessTimeout time.Duration `yaml:"image_liveness_timeout"`
	// PublicationLingerTimeout is how long a closed publication's resources
	// are retained so late subscribers can observe end-of-stream.
	PublicationLingerTimeout time.Duration `yaml:"publication_linger_timeout"`
	// PublicationUnblockTimeout is loaded with the rest of the configuration,
	// but no agent reads it: stalled publications are not force-unblocked on
	// a timer.
	PublicationUnblockTimeout time.Duration `yaml:"publication_unblock_timeout"`
	// HeartbeatTimeout bounds how long a publication can go without sending
	// data before the Sender emits a zero-length heartbeat frame.
	HeartbeatTimeout time.Duration `yaml:"heartbeat_timeout"`

	// FlowControlStrategy selects the default flow-control policy.
	FlowControlStrategy FlowControlStrategy `yaml:"flow_control_strategy"`
	// CongestionControlStrategy selects the default congestion-control
	// policy.
	CongestionControlStrategy CongestionControlStrategy `yaml:"congestion_control_strategy"`

	// NakUnicastDelay is the base delay before a unicast NAK is sent after a
	// gap is detected.
	NakUnicastDelay time.Duration `yaml:"nak_unicast_delay"`
	// NakMulticastGroupSize is used to scale multicast NAK backoff.
	NakMulticastGroupSize int `yaml:"nak_multicast_group_size"`
	// NakMulticastMaxBackoff bounds the exponential backoff applied to
	// multicast NAKs.
	NakMulticastMaxBackoff time.Duration `yaml:"nak_multicast_max_backoff"`

	// RetransmitUnicastDelay is the delay applied before servicing a NAK.
	RetransmitUnicastDelay time.Duration `yaml:"retransmit_unicast_delay"`
	// RetransmitUnicastLinger is how long a retransmit entry is kept after
	// completion to absorb duplicate NAKs.
	RetransmitUnicastLinger time.Duration `yaml:"retransmit_unicast_linger"`

	// ThreadingMode selects how agents are scheduled onto OS threads.
	ThreadingMode ThreadingMode `yaml:"threading_mode"`
	// IdleStrategies configures the idle strategy per agent, keyed by agent
	// name ("conductor", "sender", "receiver").
	IdleStrategies map[string]IdleStrategyConfig `yaml:"idle_strategies"`

	// AdminAPI configures the optional read-only gRPC introspection
	// service.
	AdminAPI AdminAPIConfig `yaml:"admin_api"`
}

// IdleStrategyConfig configures a single agent's idle strategy.
type IdleStrategyConfig struct {
	Kind            IdleStrategyKind `yaml:"kind"`
	MaxParkDuration time.Duration    `yaml:"max_park_duration"`
}

// AdminAPIConfig configures the optional admin/introspection gRPC service.
type AdminAPIConfig struct {
	// Enabled turns the admin API on. Disabled by default: it is an
	// operational side-channel, not part of the client data path.
	Enabled bool `yaml:"enabled"`
	// Endpoint is the listen address for the admin gRPC server.
	Endpoint string `yaml:"endpoint"`
}

// DefaultConfig returns the default media driver configuration.
func DefaultConfig() *Config {
	return &Config{
		Logging:                   logging.DefaultConfig(),
		DriverDirectory:           "/dev/shm/mediadriver",
		DataAddress:               "0.0.0.0:20121",
		TermBufferLength:          16 * datasize.MB,
		IPCTermBufferLength:       16 * datasize.MB,
		MTULength:                 1408 * datasize.B,
		InitialWindowLength:       2 * datasize.MB,
		SocketRcvBuf:              2 * datasize.MB,
		SocketSndBuf:              2 * datasize.MB,
		StatusMessageTimeout:      200 * time.Millisecond,
		ClientLivenessTimeout:     10 * time.Second,
		ImageLivenessTimeout:      10 * time.Second,
		PublicationLingerTimeout:  5 * time.Second,
		PublicationUnblockTimeout: 10 * time.Second,
		HeartbeatTimeout:          100 * time.Millisecond,
		FlowControlStrategy:       FlowControlUnicastMax,
		CongestionControlStrategy: CongestionControlStatic,
		NakUnicastDelay:           time.Millisecond,
		NakMulticastGroupSize:     10,
		NakMulticastMaxBackoff:    500 * time.Millisecond,
		RetransmitUnicastDelay:    time.Millisecond,
		RetransmitUnicastLinger:   60 * time.Millisecond,
		ThreadingMode:             ThreadingDedicated,
		IdleStrategies: map[string]IdleStrategyConfig{
			"conductor": {Kind: IdleSleepingBackoff, MaxParkDuration: time.Millisecond},
			"sender":    {Kind: IdleBusySpin},
			"receiver":  {Kind: IdleBusySpin},
		},
		AdminAPI: AdminAPIConfig{
			Enabled:  false,
			Endpoint: "[::1]:8101",
		},
	}
}

// LoadConfig loads configuration from a YAML file at the specified path,
// applying environment-variable overrides on top (spec.md §6).
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML configuration: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	return cfg, nil
}
