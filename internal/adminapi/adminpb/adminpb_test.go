package adminpb

import (
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
)

type stubServer struct {
	UnimplementedAdminAPIServer
}

func TestServiceDescMatchesInterfaceMethods(t *testing.T) {
	require.Equal(t, "mediadriver.admin.AdminAPI", AdminAPI_ServiceDesc.ServiceName)
	require.Len(t, AdminAPI_ServiceDesc.Methods, 6)

	names := make(map[string]bool, len(AdminAPI_ServiceDesc.Methods))
	for _, m := range AdminAPI_ServiceDesc.Methods {
		names[m.MethodName] = true
	}
	for _, want := range []string{
		"GetConfig", "ListPublications", "ListImages",
		"ListCounters", "ListErrors", "SetLogLevel",
	} {
		require.True(t, names[want], "missing method %q in service desc", want)
	}
}

func TestRegisterAdminAPIServerDoesNotPanic(t *testing.T) {
	s := grpc.NewServer()
	require.NotPanics(t, func() {
		RegisterAdminAPIServer(s, &stubServer{})
	})
}
