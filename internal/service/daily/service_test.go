package daily_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	svcErr "github.com/oggyb/muzz-daily/internal/errors"
	"github.com/oggyb/muzz-daily/internal/logger"
	"github.com/oggyb/muzz-daily/internal/server"
	"github.com/oggyb/muzz-daily/internal/service/daily"
	"github.com/oggyb/muzz-daily/internal/testutil"
)

// setupService wires a Daily service over sqlite + miniredis with users
// 1..4 seeded, 1 premium, 4 without a completed profile.
func setupService(t *testing.T) (*daily.Service, *testutil.App) {
	t.Helper()
	a := testutil.NewApp(t, "development")
	testutil.SeedUser(t, a.DB, 1, testutil.Premium())
	testutil.SeedUser(t, a.DB, 2)
	testutil.SeedUser(t, a.DB, 3)
	testutil.SeedUser(t, a.DB, 4, testutil.Incomplete())
	return daily.NewDailyService(a.AppContext), a
}

func TestGetSelection(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	resp, err := svc.GetSelection(ctx, &daily.UserRequest{UserID: "1"})
	require.NoError(t, err)
	assert.Equal(t, "2026-07-01", resp.SelectionDate)
	assert.Len(t, resp.Candidates, 2)
	assert.Equal(t, 3, resp.MaxChoicesAllowed)
	assert.Equal(t, 3, resp.Remaining)

	_, err = svc.GetSelection(ctx, &daily.UserRequest{UserID: "4"})
	assert.Equal(t, svcErr.ReasonProfileIncomplete, svcErr.ReasonOf(err))
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))

	_, err = svc.GetSelection(ctx, &daily.UserRequest{UserID: "abc"})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestChooseProfile_FlowAndQuota(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	_, err := svc.GetSelection(ctx, &daily.UserRequest{UserID: "2"})
	require.NoError(t, err)

	resp, err := svc.ChooseProfile(ctx, &daily.ChooseProfileRequest{UserID: "2", TargetUserID: "3", Choice: "like"})
	require.NoError(t, err)
	assert.True(t, resp.IsMatch)
	assert.True(t, resp.NewMatch)
	assert.NotEmpty(t, resp.MatchID)
	assert.Empty(t, resp.ConversationID)
	assert.Zero(t, resp.Remaining)

	_, err = svc.ChooseProfile(ctx, &daily.ChooseProfileRequest{UserID: "2", TargetUserID: "1", Choice: "pass"})
	assert.Equal(t, svcErr.ReasonQuotaExceeded, svcErr.ReasonOf(err))

	_, err = svc.ChooseProfile(ctx, &daily.ChooseProfileRequest{UserID: "2", TargetUserID: "4", Choice: "like"})
	assert.Equal(t, svcErr.ReasonNotInSelection, svcErr.ReasonOf(err))

	_, err = svc.ChooseProfile(ctx, &daily.ChooseProfileRequest{UserID: "2", TargetUserID: "1", Choice: "maybe"})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	history, err := svc.ListChoices(ctx, &daily.ListChoicesRequest{UserID: "2"})
	require.NoError(t, err)
	require.Len(t, history.Choices, 1)
	assert.Equal(t, "3", history.Choices[0].TargetUserID)
	assert.Equal(t, "like", history.Choices[0].Choice)
	assert.Nil(t, history.NextPaginationToken)

	count, err := svc.CountMatches(ctx, &daily.UserRequest{UserID: "3"})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count.Count)
}

func TestAcceptChatRequest_AndDeleteMatch(t *testing.T) {
	svc, a := setupService(t)
	ctx := context.Background()

	_, err := svc.GetSelection(ctx, &daily.UserRequest{UserID: "2"})
	require.NoError(t, err)
	liked, err := svc.ChooseProfile(ctx, &daily.ChooseProfileRequest{UserID: "2", TargetUserID: "3", Choice: "like"})
	require.NoError(t, err)

	_, err = svc.AcceptChatRequest(ctx, &daily.AcceptChatRequest{MatchID: liked.MatchID, UserID: "2", Accept: true})
	assert.Equal(t, svcErr.ReasonForbidden, svcErr.ReasonOf(err))

	accepted, err := svc.AcceptChatRequest(ctx, &daily.AcceptChatRequest{MatchID: liked.MatchID, UserID: "3", Accept: true})
	require.NoError(t, err)
	assert.Equal(t, "matched", accepted.Status)
	assert.NotEmpty(t, accepted.ConversationID)
	require.NotNil(t, accepted.ExpiresAt)
	assert.Equal(t, uint64(a.Clock.Now().Add(24*time.Hour).UnixMilli()), *accepted.ExpiresAt)

	_, err = svc.DeleteMatch(ctx, &daily.DeleteMatchRequest{UserID: "1", MatchID: liked.MatchID})
	assert.Equal(t, svcErr.ReasonForbidden, svcErr.ReasonOf(err))
	_, err = svc.DeleteMatch(ctx, &daily.DeleteMatchRequest{UserID: "3", MatchID: liked.MatchID})
	require.NoError(t, err)
	_, err = svc.DeleteMatch(ctx, &daily.DeleteMatchRequest{UserID: "3", MatchID: liked.MatchID})
	assert.Equal(t, svcErr.ReasonNotFound, svcErr.ReasonOf(err))

	count, err := svc.CountMatches(ctx, &daily.UserRequest{UserID: "3"})
	require.NoError(t, err)
	assert.Zero(t, count.Count)
}

func TestRegistrar_OverGRPC(t *testing.T) {
	_, a := setupService(t)

	lis := bufconn.Listen(1 << 20)
	srv := server.New(logger.Discard(), daily.NewRegistrar(a.AppContext))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	ctx := context.Background()
	sel, err := server.Invoke[daily.SelectionResponse](ctx, conn, "/"+daily.ServiceName+"/GetSelection", daily.UserRequest{UserID: "3"})
	require.NoError(t, err)
	assert.Len(t, sel.Candidates, 2)

	_, err = server.Invoke[daily.ChooseProfileResponse](ctx, conn, "/"+daily.ServiceName+"/ChooseProfile",
		daily.ChooseProfileRequest{UserID: "3", TargetUserID: "3", Choice: "like"})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}
