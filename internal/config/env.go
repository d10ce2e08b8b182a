package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/c2h5oh/datasize"
)

// Recognised environment variable names (spec.md §6 "Configuration
// environment variables").
const (
	envDriverDirectory           = "MEDIADRIVER_DIR"
	envTermBufferLength          = "MEDIADRIVER_TERM_BUFFER_LENGTH"
	envIPCTermBufferLength       = "MEDIADRIVER_IPC_TERM_BUFFER_LENGTH"
	envMTULength                 = "MEDIADRIVER_MTU_LENGTH"
	envInitialWindowLength       = "MEDIADRIVER_INITIAL_WINDOW_LENGTH"
	envSocketRcvBuf              = "MEDIADRIVER_SOCKET_RCVBUF"
	envSocketSndBuf              = "MEDIADRIVER_SOCKET_SNDBUF"
	envStatusMessageTimeout      = "MEDIADRIVER_STATUS_MESSAGE_TIMEOUT"
	envClientLivenessTimeout     = "MEDIADRIVER_CLIENT_LIVENESS_TIMEOUT"
	envImageLivenessTimeout      = "MEDIADRIVER_IMAGE_LIVENESS_TIMEOUT"
	envPublicationLingerTimeout  = "MEDIADRIVER_PUBLICATION_LINGER_TIMEOUT"
	envPublicationUnblockTimeout = "MEDIADRIVER_PUBLICATION_UNBLOCK_TIMEOUT"
	envFlowControlStrategy       = "MEDIADRIVER_FLOW_CONTROL_STRATEGY"
	envCongestionControlStrategy = "MEDIADRIVER_CONGESTION_CONTROL_STRATEGY"
	envNakUnicastDelay           = "MEDIADRIVER_NAK_UNICAST_DELAY"
	envNakMulticastGroupSize     = "MEDIADRIVER_NAK_MULTICAST_GROUP_SIZE"
	envNakMulticastMaxBackoff    = "MEDIADRIVER_NAK_MULTICAST_MAX_BACKOFF"
	envRetransmitUnicastDelay    = "MEDIADRIVER_RETRANSMIT_UNICAST_DELAY"
	envRetransmitUnicastLinger   = "MEDIADRIVER_RETRANSMIT_UNICAST_LINGER"
	envThreadingMode             = "MEDIADRIVER_THREADING_MODE"
)

// applyEnvOverrides overlays recognised environment variables onto cfg,
// taking precedence over the YAML file.
func applyEnvOverrides(cfg *Config) error {
	if v, ok := os.LookupEnv(envDriverDirectory); ok {
		cfg.DriverDirectory = v
	}
	if err := overrideByteSize(envTermBufferLength, &cfg.TermBufferLength); err != nil {
		return err
	}
	if err := overrideByteSize(envIPCTermBufferLength, &cfg.IPCTermBufferLength); err != nil {
		return err
	}
	if err := overrideByteSize(envMTULength, &cfg.MTULength); err != nil {
		return err
	}
	if err := overrideByteSize(envInitialWindowLength, &cfg.InitialWindowLength); err != nil {
		return err
	}
	if err := overrideByteSize(envSocketRcvBuf, &cfg.SocketRcvBuf); err != nil {
		return err
	}
	if err := overrideByteSize(envSocketSndBuf, &cfg.SocketSndBuf); err != nil {
		return err
	}
	if err := overrideDuration(envStatusMessageTimeout, &cfg.StatusMessageTimeout); err != nil {
		return err
	}
	if err := overrideDuration(envClientLivenessTimeout, &cfg.ClientLivenessTimeout); err != nil {
		return err
	}
	if err := overrideDuration(envImageLivenessTimeout, &cfg.ImageLivenessTimeout); err != nil {
		return err
	}
	if err := overrideDuration(envPublicationLingerTimeout, &cfg.PublicationLingerTimeout); err != nil {
		return err
	}
	if err := overrideDuration(envPublicationUnblockTimeout, &cfg.PublicationUnblockTimeout); err != nil {
		return err
	}
	if v, ok := os.LookupEnv(envFlowControlStrategy); ok {
		cfg.FlowControlStrategy = FlowControlStrategy(v)
	}
	if v, ok := os.LookupEnv(envCongestionControlStrategy); ok {
		cfg.CongestionControlStrategy = CongestionControlStrategy(v)
	}
	if err := overrideDuration(envNakUnicastDelay, &cfg.NakUnicastDelay); err != nil {
		return err
	}
	if v, ok := os.LookupEnv(envNakMulticastGroupSize); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", envNakMulticastGroupSize, err)
		}
		cfg.NakMulticastGroupSize = n
	}
	if err := overrideDuration(envNakMulticastMaxBackoff, &cfg.NakMulticastMaxBackoff); err != nil {
		return err
	}
	if err := overrideDuration(envRetransmitUnicastDelay, &cfg.RetransmitUnicastDelay); err != nil {
		return err
	}
	if err := overrideDuration(envRetransmitUnicastLinger, &cfg.RetransmitUnicastLinger); err != nil {
		return err
	}
	if v, ok := os.LookupEnv(envThreadingMode); ok {
		cfg.ThreadingMode = ThreadingMode(v)
	}

	return nil
}

func overrideByteSize(name string, dst *datasize.ByteSize) error {
	v, ok := os.LookupEnv(name)
	if !ok {
		return nil
	}

	var size datasize.ByteSize
	if err := size.UnmarshalText([]byte(v)); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}

	*dst = size
	return nil
}

func overrideDuration(name string, dst *time.Duration) error {
	v, ok := os.LookupEnv(name)
	if !ok {
		return nil
	}

	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}

	*dst = d
	return nil
}
