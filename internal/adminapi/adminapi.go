// Package adminapi exposes a read-only gRPC introspection service over a
// running driver.Driver: configuration, registered publications and
// images, shared counters, the distinct error log, and dynamic log-level
// control. It is an operational side-channel only — it never mutates
// driver state beyond the logger's level, mirroring the teacher's
// gateway.LoggingService but generalized to the whole driver.
package adminapi

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/yanet-platform/mediadriver/internal/adminapi/adminpb"
	"github.com/yanet-platform/mediadriver/internal/conductor"
	"github.com/yanet-platform/mediadriver/internal/counters"
	"github.com/yanet-platform/mediadriver/internal/dispatcher"
	"github.com/yanet-platform/mediadriver/internal/driver"
	"github.com/yanet-platform/mediadriver/internal/publication"
	"github.com/yanet-platform/mediadriver/internal/xgrpc"
)

type options struct {
	Log *zap.SugaredLogger
}

func newOptions() *options {
	return &options{Log: zap.NewNop().Sugar()}
}

// Option configures the admin API server.
type Option func(*options)

// WithLog sets the logger used for access logging and server lifecycle
// messages.
func WithLog(log *zap.SugaredLogger) Option {
	return func(o *options) { o.Log = log }
}

// AdminAPI is the read-only introspection gRPC service.
type AdminAPI struct {
	adminpb.UnimplementedAdminAPIServer

	drv    *driver.Driver
	level  zap.AtomicLevel
	log    *zap.SugaredLogger
	server *grpc.Server
}

// New creates an AdminAPI bound to drv, with level as the mutable logger
// level SetLogLevel updates.
func New(drv *driver.Driver, level zap.AtomicLevel, opt ...Option) *AdminAPI {
	opts := newOptions()
	for _, o := range opt {
		o(opts)
	}

	a := &AdminAPI{drv: drv, level: level, log: opts.Log}
	a.server = grpc.NewServer(grpc.UnaryInterceptor(xgrpc.AccessLogInterceptor(opts.Log)))
	adminpb.RegisterAdminAPIServer(a.server, a)
	return a
}

// Serve listens on endpoint and blocks serving the admin API until ctx is
// canceled.
func (a *AdminAPI) Serve(ctx context.Context, endpoint string) error {
	listener, err := net.Listen("tcp", endpoint)
	if err != nil {
		return fmt.Errorf("adminapi: listen on %q: %w", endpoint, err)
	}

	a.log.Infow("serving admin API", zap.Stringer("addr", listener.Addr()))

	errCh := make(chan error, 1)
	go func() { errCh <- a.server.Serve(listener) }()

	select {
	case <-ctx.Done():
		a.log.Infow("stopping admin API", zap.Stringer("addr", listener.Addr()))
		a.server.GracefulStop()
		return nil
	case err := <-errCh:
		return err
	}
}

// GetConfig returns the driver's effective configuration as a generic
// struct, for operators without access to the on-disk YAML file.
func (a *AdminAPI) GetConfig(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	cfg := a.drv.Config()
	fields := map[string]any{
		"driver_directory":            cfg.DriverDirectory,
		"data_address":                cfg.DataAddress,
		"term_buffer_length":          cfg.TermBufferLength.Bytes(),
		"ipc_term_buffer_length":      cfg.IPCTermBufferLength.Bytes(),
		"mtu_length":                  cfg.MTULength.Bytes(),
		"initial_window_length":       cfg.InitialWindowLength.Bytes(),
		"flow_control_strategy":       string(cfg.FlowControlStrategy),
		"congestion_control_strategy": string(cfg.CongestionControlStrategy),
		"threading_mode":              string(cfg.ThreadingMode),
		"admin_api_enabled":           cfg.AdminAPI.Enabled,
	}
	return structpb.NewStruct(fields)
}

// ListPublications lists every registered network publication.
func (a *AdminAPI) ListPublications(ctx context.Context, _ *emptypb.Empty) (*structpb.ListValue, error) {
	var out []any
	a.drv.Conductor().Publications().Range(func(key conductor.PublicationKey, pub *publication.NetworkPublication) bool {
		out = append(out, map[string]any{
			"channel_uri":     key.ChannelURI,
			"session_id":      key.SessionID,
			"stream_id":       key.StreamID,
			"state":           pub.State().String(),
			"sender_position": strconv.FormatInt(int64(pub.SenderPosition()), 10),
		})
		return true
	})
	return structpb.NewList(out)
}

// ListImages lists every registered subscription image.
func (a *AdminAPI) ListImages(ctx context.Context, _ *emptypb.Empty) (*structpb.ListValue, error) {
	var out []any
	a.drv.Conductor().Images().Range(func(key dispatcher.StreamKey, img *publication.Image) bool {
		out = append(out, map[string]any{
			"session_id":      key.SessionID,
			"stream_id":       key.StreamID,
			"state":           img.State().String(),
			"rebuild_pos":     strconv.FormatInt(int64(img.RebuildPosition()), 10),
			"high_water_mark": strconv.FormatInt(int64(img.HighWaterMark()), 10),
			"end_of_stream":   img.EndOfStream(),
		})
		return true
	})
	return structpb.NewList(out)
}

// ListCounters lists every currently allocated (non-freed) counter.
func (a *AdminAPI) ListCounters(ctx context.Context, _ *emptypb.Empty) (*structpb.ListValue, error) {
	cm := a.drv.Conductor().Counters()
	var out []any
	for id := counters.ID(0); int32(id) < cm.Capacity(); id++ {
		if cm.State(id) != counters.StateActive {
			continue
		}
		typeID, key, label := cm.Label(id)
		out = append(out, map[string]any{
			"id":      int32(id),
			"type_id": typeID,
			"key":     string(key),
			"label":   label,
			"value":   strconv.FormatInt(cm.Get(id), 10),
		})
	}
	return structpb.NewList(out)
}

// ListErrors lists every distinct entry in the driver's error log.
func (a *AdminAPI) ListErrors(ctx context.Context, _ *emptypb.Empty) (*structpb.ListValue, error) {
	entries := a.drv.Conductor().Errors().Entries()
	out := make([]any, 0, len(entries))
	for _, e := range entries {
		out = append(out, map[string]any{
			"code":              e.Code,
			"location":          e.Location,
			"message":           e.Message,
			"first_observed":    time.Unix(0, e.FirstObserved).Format(time.RFC3339Nano),
			"last_observed":     time.Unix(0, e.LastObserved).Format(time.RFC3339Nano),
			"observation_count": e.ObservationCount,
		})
	}
	return structpb.NewList(out)
}

// SetLogLevel updates the driver's minimum logging level at runtime
// (e.g. "debug", "info", "warn", "error").
func (a *AdminAPI) SetLogLevel(ctx context.Context, req *wrapperspb.StringValue) (*emptypb.Empty, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(req.GetValue())); err != nil {
		return nil, fmt.Errorf("adminapi: invalid log level %q: %w", req.GetValue(), err)
	}

	a.level.SetLevel(lvl)
	a.log.Infof("updated log level to %q", lvl)
	return &emptypb.Empty{}, nil
}
