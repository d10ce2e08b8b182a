package xgrpc

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

func newJSONLogger(buf *bytes.Buffer, level zapcore.Level) *zap.SugaredLogger {
	return zap.New(zapcore.NewCore(
		zapcore.NewJSONEncoder(zapcore.EncoderConfig{
			MessageKey:  "msg",
			LevelKey:    "level",
			EncodeLevel: zapcore.LowercaseLevelEncoder,
		}),
		zapcore.AddSync(buf),
		level,
	)).Sugar()
}

func TestAccessLogInterceptorLogsWellKnownProtoRequest(t *testing.T) {
	buf := new(bytes.Buffer)
	logger := newJSONLogger(buf, zap.DebugLevel)

	interceptor := AccessLogInterceptor(logger)
	info := &grpc.UnaryServerInfo{FullMethod: "/mediadriver.admin.AdminAPI/SetLogLevel"}

	_, err := interceptor(context.Background(), wrapperspb.String("debug"), info, func(ctx context.Context, req any) (any, error) {
		return nil, nil
	})
	require.NoError(t, err)
	_ = logger.Sync()

	require.Contains(t, buf.String(), `"value":"debug"`)
	require.Contains(t, buf.String(), "completed gRPC execution")
}

func TestAccessLogInterceptorLogsHandlerError(t *testing.T) {
	buf := new(bytes.Buffer)
	logger := newJSONLogger(buf, zap.InfoLevel)

	interceptor := AccessLogInterceptor(logger)
	info := &grpc.UnaryServerInfo{FullMethod: "/mediadriver.admin.AdminAPI/ListImages"}

	wantErr := errors.New("boom")
	_, err := interceptor(context.Background(), wrapperspb.String("n/a"), info, func(ctx context.Context, req any) (any, error) {
		return nil, wantErr
	})
	require.ErrorIs(t, err, wantErr)
	_ = logger.Sync()

	require.Contains(t, buf.String(), "failed to execute gRPC")
}
