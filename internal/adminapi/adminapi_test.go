package adminapi

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/yanet-platform/mediadriver/internal/config"
	"github.com/yanet-platform/mediadriver/internal/driver"
)

func newTestAdminAPI(t *testing.T) *AdminAPI {
	cfg := config.DefaultConfig()
	cfg.DriverDirectory = t.TempDir()
	cfg.DataAddress = "127.0.0.1:0"

	log := zap.NewNop().Sugar()
	drv, err := driver.New(cfg, log)
	require.NoError(t, err)
	t.Cleanup(func() { drv.Close() })

	level := zap.NewAtomicLevel()
	return New(drv, level, WithLog(log))
}

func TestGetConfigReflectsDriverConfig(t *testing.T) {
	a := newTestAdminAPI(t)

	st, err := a.GetConfig(context.Background(), &emptypb.Empty{})
	require.NoError(t, err)

	fields := st.GetFields()
	require.Equal(t, a.drv.Config().DriverDirectory, fields["driver_directory"].GetStringValue())
	require.Equal(t, string(a.drv.Config().ThreadingMode), fields["threading_mode"].GetStringValue())
}

func TestListPublicationsEmptyByDefault(t *testing.T) {
	a := newTestAdminAPI(t)

	list, err := a.ListPublications(context.Background(), &emptypb.Empty{})
	require.NoError(t, err)
	require.Empty(t, list.GetValues())
}

func TestListImagesEmptyByDefault(t *testing.T) {
	a := newTestAdminAPI(t)

	list, err := a.ListImages(context.Background(), &emptypb.Empty{})
	require.NoError(t, err)
	require.Empty(t, list.GetValues())
}

func TestListCountersEmptyByDefault(t *testing.T) {
	a := newTestAdminAPI(t)

	list, err := a.ListCounters(context.Background(), &emptypb.Empty{})
	require.NoError(t, err)
	require.Empty(t, list.GetValues())
}

func TestListErrorsEmptyByDefault(t *testing.T) {
	a := newTestAdminAPI(t)

	list, err := a.ListErrors(context.Background(), &emptypb.Empty{})
	require.NoError(t, err)
	require.Empty(t, list.GetValues())
}

func TestSetLogLevelUpdatesAtomicLevel(t *testing.T) {
	a := newTestAdminAPI(t)

	_, err := a.SetLogLevel(context.Background(), wrapperspb.String("error"))
	require.NoError(t, err)
	require.Equal(t, zap.ErrorLevel, a.level.Level())
}

func TestSetLogLevelRejectsGarbage(t *testing.T) {
	a := newTestAdminAPI(t)

	_, err := a.SetLogLevel(context.Background(), wrapperspb.String("not-a-level"))
	require.Error(t, err)
}
