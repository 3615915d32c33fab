package daily

import (
	"context"
	"slices"

	"github.com/oggyb/muzz-daily/internal/app"
	"github.com/oggyb/muzz-daily/internal/db"
	svcErr "github.com/oggyb/muzz-daily/internal/errors"
	"github.com/oggyb/muzz-daily/internal/logger"
	"github.com/oggyb/muzz-daily/internal/service"
)

// Service implements the Daily gRPC API: today's selection, choices,
// matches and the chat request answer.
type Service struct {
	appCtx *app.AppContext
}

// NewDailyService creates a new Daily service with dependencies from AppContext.
func NewDailyService(appCtx *app.AppContext) *Service {
	return &Service{appCtx: appCtx}
}

// GetSelection returns today's selection, generating it on first access.
//
// Behavior:
//   - Candidates come back in rank order with a flag for the ones already chosen.
//   - Users without a completed profile get PROFILE_INCOMPLETE.
//   - Remaining is the number of choices left today.
//
// Example:
//
//	svc.GetSelection(ctx, &daily.UserRequest{UserID: "42"})
func (s *Service) GetSelection(ctx context.Context, req *UserRequest) (*SelectionResponse, error) {
	log := logger.FromContext(ctx, s.appCtx.Logger)
	log.Debug("GetSelection called", "user", req.UserID)

	userID, err := service.ParseID("user_id", req.UserID)
	if err != nil {
		return nil, err
	}

	sel, err := s.appCtx.Matching.GetDailySelection(ctx, userID)
	if err != nil {
		log.Debug("GetDailySelection failed", "err", err)
		return nil, svcErr.Map(err)
	}

	resp := &SelectionResponse{
		SelectionDate:     sel.Selection.SelectionDate,
		Candidates:        make([]Candidate, 0, len(sel.Candidates)),
		ChoicesUsed:       sel.Selection.ChoicesUsed,
		MaxChoicesAllowed: sel.Selection.MaxChoicesAllowed,
		Remaining:         sel.Remaining,
	}
	for _, u := range sel.Candidates {
		resp.Candidates = append(resp.Candidates, Candidate{
			UserID:   service.FormatID(u.ID),
			Username: u.Username,
			Gender:   u.Gender,
			Chosen:   slices.Contains(sel.Selection.ChosenIDs, u.ID),
		})
	}
	return resp, nil
}

// ChooseProfile likes or passes a profile from today's selection.
//
// Behavior:
//   - Check order: NOT_IN_SELECTION, QUOTA_EXCEEDED, ALREADY_CHOSEN.
//   - A like confirms a match at once; ConversationID is set when the
//     conversation opened in the same call.
//   - A pass only spends quota.
//
// Example:
//
//	svc.ChooseProfile(ctx, &daily.ChooseProfileRequest{UserID: "1", TargetUserID: "2", Choice: "like"})
func (s *Service) ChooseProfile(ctx context.Context, req *ChooseProfileRequest) (*ChooseProfileResponse, error) {
	log := logger.FromContext(ctx, s.appCtx.Logger)
	log.Debug("ChooseProfile called", "user", req.UserID, "target", req.TargetUserID, "choice", req.Choice)

	userID, err := service.ParseID("user_id", req.UserID)
	if err != nil {
		return nil, err
	}
	targetID, err := service.ParseID("target_user_id", req.TargetUserID)
	if err != nil {
		return nil, err
	}

	res, err := s.appCtx.Matching.RecordChoice(ctx, userID, targetID, db.ChoiceType(req.Choice))
	if err != nil {
		return nil, svcErr.Map(err)
	}

	resp := &ChooseProfileResponse{IsMatch: res.IsMatch, NewMatch: res.NewMatch}
	if res.Selection != nil {
		resp.Remaining = max(res.Selection.MaxChoicesAllowed-res.Selection.ChoicesUsed, 0)
	}
	if res.Match != nil {
		resp.MatchID = service.FormatID(res.Match.ID)
	}
	if res.Conversation != nil {
		resp.ConversationID = service.FormatID(res.Conversation.ID)
	}
	return resp, nil
}

// ListChoices pages through the caller's like/pass history, newest first.
func (s *Service) ListChoices(ctx context.Context, req *ListChoicesRequest) (*ListChoicesResponse, error) {
	userID, err := service.ParseID("user_id", req.UserID)
	if err != nil {
		return nil, err
	}

	choices, next, err := s.appCtx.Matching.ListChoices(ctx, userID, req.PaginationToken, req.Limit)
	if err != nil {
		return nil, svcErr.Map(err)
	}

	resp := &ListChoicesResponse{Choices: make([]ChoiceView, 0, len(choices)), NextPaginationToken: next}
	for _, c := range choices {
		resp.Choices = append(resp.Choices, ChoiceView{
			TargetUserID:  service.FormatID(c.TargetUserID),
			Choice:        string(c.ChoiceType),
			UnixTimestamp: service.UnixMilli(c.CreatedAt),
		})
	}
	return resp, nil
}

// AcceptChatRequest lets the invited side of a match open or decline the chat.
//
// Behavior:
//   - accept=true opens (or returns) the conversation, 24h after the match.
//   - accept=false rejects the match and archives the conversation.
//   - The initiator gets FORBIDDEN; a match past its window gets EXPIRED.
//
// Example:
//
//	svc.AcceptChatRequest(ctx, &daily.AcceptChatRequest{MatchID: "7", UserID: "2", Accept: true})
func (s *Service) AcceptChatRequest(ctx context.Context, req *AcceptChatRequest) (*AcceptChatResponse, error) {
	log := logger.FromContext(ctx, s.appCtx.Logger)
	log.Debug("AcceptChatRequest called", "match", req.MatchID, "user", req.UserID, "accept", req.Accept)

	matchID, err := service.ParseID("match_id", req.MatchID)
	if err != nil {
		return nil, err
	}
	userID, err := service.ParseID("user_id", req.UserID)
	if err != nil {
		return nil, err
	}

	res, err := s.appCtx.Conversations.AcceptChatRequest(ctx, matchID, userID, req.Accept)
	if err != nil {
		return nil, svcErr.Map(err)
	}

	resp := &AcceptChatResponse{MatchID: req.MatchID, Status: string(res.Match.Status)}
	if res.Conversation != nil {
		resp.ConversationID = service.FormatID(res.Conversation.ID)
		resp.ExpiresAt = service.OptionalUnixMilli(&res.Conversation.ExpiresAt)
	}
	return resp, nil
}

// CountMatches returns how many confirmed matches the user has. Cache-first.
func (s *Service) CountMatches(ctx context.Context, req *UserRequest) (*CountMatchesResponse, error) {
	userID, err := service.ParseID("user_id", req.UserID)
	if err != nil {
		return nil, err
	}
	n, err := s.appCtx.Matching.CountMatches(ctx, userID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return &CountMatchesResponse{Count: uint64(n)}, nil
}

// DeleteMatch removes a match together with its conversation and messages.
// Either participant may call it.
func (s *Service) DeleteMatch(ctx context.Context, req *DeleteMatchRequest) (*Empty, error) {
	userID, err := service.ParseID("user_id", req.UserID)
	if err != nil {
		return nil, err
	}
	matchID, err := service.ParseID("match_id", req.MatchID)
	if err != nil {
		return nil, err
	}
	if err := s.appCtx.Matching.DeleteMatch(ctx, userID, matchID); err != nil {
		return nil, svcErr.Map(err)
	}
	logger.FromContext(ctx, s.appCtx.Logger).Info("match deleted", "match_id", matchID, "by", userID)
	return &Empty{}, nil
}
