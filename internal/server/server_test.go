package server_test

import (
	"context"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	reflectionpb "google.golang.org/grpc/reflection/grpc_reflection_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/descriptorpb"

	svcErr "github.com/oggyb/muzz-daily/internal/errors"
	"github.com/oggyb/muzz-daily/internal/logger"
	"github.com/oggyb/muzz-daily/internal/server"
)

type echoReq struct {
	Name  string `json:"name"`
	Fail  string `json:"fail,omitempty"`
	Limit int    `json:"limit,omitempty"`
}

type echoResp struct {
	Greeting  string `json:"greeting"`
	Limit     int    `json:"limit"`
	RequestID string `json:"requestId"`
}

func echoService() server.Registrar {
	b := server.NewService("muzz.test.v1.EchoService")
	server.Handle(b, "Echo", func(ctx context.Context, req *echoReq) (*echoResp, error) {
		switch req.Fail {
		case "quota":
			return nil, fmt.Errorf("%w: 1 of 1 used", svcErr.ErrQuotaExceeded)
		case "panic":
			panic("boom")
		}
		return &echoResp{Greeting: "hello " + req.Name, Limit: req.Limit}, nil
	})
	return server.RegistrarFunc(func(s *grpc.Server) { s.RegisterService(b.Desc(), nil) })
}

func dial(t *testing.T, regs ...server.Registrar) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := server.New(logger.Discard(), regs...)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

const echo = "/muzz.test.v1.EchoService/Echo"

func TestHandle_RoundTrip(t *testing.T) {
	conn := dial(t, echoService())

	var header metadata.MD
	resp, err := server.Invoke[echoResp](context.Background(), conn, echo,
		echoReq{Name: "ada", Limit: 7}, grpc.Header(&header))
	require.NoError(t, err)
	assert.Equal(t, "hello ada", resp.Greeting)
	assert.Equal(t, 7, resp.Limit)
	assert.NotEmpty(t, header.Get(server.RequestIDHeader))
}

func TestHandle_RequestIDIsEchoed(t *testing.T) {
	conn := dial(t, echoService())

	ctx := metadata.AppendToOutgoingContext(context.Background(), server.RequestIDHeader, "req-123")
	var header metadata.MD
	_, err := server.Invoke[echoResp](ctx, conn, echo, echoReq{Name: "x"}, grpc.Header(&header))
	require.NoError(t, err)
	assert.Equal(t, []string{"req-123"}, header.Get(server.RequestIDHeader))
}

func TestHandle_DomainErrorCarriesReason(t *testing.T) {
	conn := dial(t, echoService())

	_, err := server.Invoke[echoResp](context.Background(), conn, echo, echoReq{Fail: "quota"})
	require.Error(t, err)
	assert.Equal(t, codes.ResourceExhausted, status.Code(err))
	assert.Equal(t, svcErr.ReasonQuotaExceeded, svcErr.ReasonOf(err))
}

func TestHandle_UnknownFieldIsInvalidArgument(t *testing.T) {
	conn := dial(t, echoService())

	_, err := server.Invoke[echoResp](context.Background(), conn, echo, map[string]any{"nme": "typo"})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
	assert.Equal(t, svcErr.ReasonInvalidArgument, svcErr.ReasonOf(err))
}

func TestHandle_PanicIsInternal(t *testing.T) {
	conn := dial(t, echoService())

	_, err := server.Invoke[echoResp](context.Background(), conn, echo, echoReq{Fail: "panic"})
	assert.Equal(t, codes.Internal, status.Code(err))
}

func TestHealth_ServingPerService(t *testing.T) {
	conn := dial(t, echoService())

	resp, err := healthpb.NewHealthClient(conn).Check(context.Background(),
		&healthpb.HealthCheckRequest{Service: "muzz.test.v1.EchoService"})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}

func TestEncodeDecode(t *testing.T) {
	s, err := server.Encode(echoResp{Greeting: "hi", Limit: 3})
	require.NoError(t, err)
	assert.Equal(t, "hi", s.Fields["greeting"].GetStringValue())

	var out echoResp
	require.NoError(t, server.Decode(s, &out))
	assert.Equal(t, 3, out.Limit)

	empty, err := server.Encode(nil)
	require.NoError(t, err)
	assert.Empty(t, empty.Fields)

	_, err = server.Encode([]int{1, 2})
	assert.Error(t, err, "only objects are valid messages")

	assert.NoError(t, server.Decode(nil, &out))
}

func TestReflection_DescribesServiceMethods(t *testing.T) {
	conn := dial(t, echoService())
	stream, err := reflectionpb.NewServerReflectionClient(conn).ServerReflectionInfo(context.Background())
	require.NoError(t, err)
	defer func() { _ = stream.CloseSend() }()

	require.NoError(t, stream.Send(&reflectionpb.ServerReflectionRequest{
		MessageRequest: &reflectionpb.ServerReflectionRequest_ListServices{},
	}))
	resp, err := stream.Recv()
	require.NoError(t, err)
	var names []string
	for _, svc := range resp.GetListServicesResponse().GetService() {
		names = append(names, svc.GetName())
	}
	assert.Contains(t, names, "muzz.test.v1.EchoService")

	require.NoError(t, stream.Send(&reflectionpb.ServerReflectionRequest{
		MessageRequest: &reflectionpb.ServerReflectionRequest_FileContainingSymbol{
			FileContainingSymbol: "muzz.test.v1.EchoService",
		},
	}))
	resp, err = stream.Recv()
	require.NoError(t, err)
	require.Nil(t, resp.GetErrorResponse())
	files := resp.GetFileDescriptorResponse().GetFileDescriptorProto()
	require.NotEmpty(t, files)

	var fdp descriptorpb.FileDescriptorProto
	require.NoError(t, proto.Unmarshal(files[0], &fdp))
	assert.Equal(t, "muzz/test/v1/echoservice.proto", fdp.GetName())
	require.Len(t, fdp.GetService(), 1)
	methods := fdp.GetService()[0].GetMethod()
	require.Len(t, methods, 1)
	assert.Equal(t, "Echo", methods[0].GetName())
	assert.Equal(t, ".google.protobuf.Struct", methods[0].GetInputType())
	assert.Equal(t, ".google.protobuf.Struct", methods[0].GetOutputType())
}
