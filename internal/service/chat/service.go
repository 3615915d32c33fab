package chat

import (
	"context"

	"github.com/oggyb/muzz-daily/internal/app"
	"github.com/oggyb/muzz-daily/internal/db"
	svcErr "github.com/oggyb/muzz-daily/internal/errors"
	"github.com/oggyb/muzz-daily/internal/logger"
	"github.com/oggyb/muzz-daily/internal/service"
)

// Service implements the Chat gRPC API: messages inside the time-boxed
// conversation, extension, typing and presence.
type Service struct {
	appCtx *app.AppContext
}

func NewChatService(appCtx *app.AppContext) *Service {
	return &Service{appCtx: appCtx}
}

// ids parses the conversation and user ids every call carries.
func ids(conversationID, userID string) (uint64, uint64, error) {
	convID, err := service.ParseID("conversation_id", conversationID)
	if err != nil {
		return 0, 0, err
	}
	uid, err := service.ParseID("user_id", userID)
	if err != nil {
		return 0, 0, err
	}
	return convID, uid, nil
}

// GetConversation returns a conversation to one of its participants, in
// any state, with the other participant's online flag.
func (s *Service) GetConversation(ctx context.Context, req *ConversationRequest) (*ConversationView, error) {
	convID, userID, err := ids(req.ConversationID, req.UserID)
	if err != nil {
		return nil, err
	}
	conv, err := s.appCtx.Conversations.GetConversation(ctx, convID, userID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	view := toConversationView(conv, userID)
	view.OtherOnline = s.appCtx.Presence.Tracker().IsOnline(conv.Other(userID))
	return view, nil
}

// SendMessage appends a message to an open conversation.
//
// Behavior:
//   - Gated in order: FORBIDDEN for non-participants, EXPIRED past the
//     window (even before the sweep ran), INACTIVE when declined.
//   - Content is trimmed; empty or over 2000 characters is INVALID_ARGUMENT.
//   - Sending ends the sender's typing indicator.
//
// Example:
//
//	svc.SendMessage(ctx, &chat.SendMessageRequest{ConversationID: "9", UserID: "1", Content: "hi"})
func (s *Service) SendMessage(ctx context.Context, req *SendMessageRequest) (*MessageView, error) {
	log := logger.FromContext(ctx, s.appCtx.Logger)
	log.Debug("SendMessage called", "conversation", req.ConversationID, "user", req.UserID)

	convID, userID, err := ids(req.ConversationID, req.UserID)
	if err != nil {
		return nil, err
	}

	msg, err := s.appCtx.Conversations.SendMessage(ctx, convID, userID, req.Content)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	s.appCtx.Presence.StopTyping(ctx, userID, convID)
	s.appCtx.Presence.Heartbeat(ctx, userID)
	return toMessageView(msg), nil
}

// ListMessages pages through the history newest first. Participants can
// still read an expired or declined conversation.
func (s *Service) ListMessages(ctx context.Context, req *ListMessagesRequest) (*ListMessagesResponse, error) {
	convID, userID, err := ids(req.ConversationID, req.UserID)
	if err != nil {
		return nil, err
	}
	msgs, next, err := s.appCtx.Conversations.ListMessages(ctx, convID, userID, req.PaginationToken, req.Limit)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	resp := &ListMessagesResponse{Messages: make([]MessageView, 0, len(msgs)), NextPaginationToken: next}
	for i := range msgs {
		resp.Messages = append(resp.Messages, *toMessageView(&msgs[i]))
	}
	return resp, nil
}

// MarkRead marks one message, or every received message, as read.
func (s *Service) MarkRead(ctx context.Context, req *MarkReadRequest) (*MarkReadResponse, error) {
	convID, userID, err := ids(req.ConversationID, req.UserID)
	if err != nil {
		return nil, err
	}

	if req.MessageID == "" {
		n, err := s.appCtx.Conversations.MarkConversationRead(ctx, convID, userID)
		if err != nil {
			return nil, svcErr.Map(err)
		}
		return &MarkReadResponse{Updated: n}, nil
	}

	msgID, err := service.ParseID("message_id", req.MessageID)
	if err != nil {
		return nil, err
	}
	changed, err := s.appCtx.Conversations.MarkRead(ctx, convID, msgID, userID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	resp := &MarkReadResponse{}
	if changed {
		resp.Updated = 1
	}
	return resp, nil
}

// DeleteMessage removes one of the caller's own messages.
func (s *Service) DeleteMessage(ctx context.Context, req *MessageRequest) (*Empty, error) {
	convID, userID, err := ids(req.ConversationID, req.UserID)
	if err != nil {
		return nil, err
	}
	msgID, err := service.ParseID("message_id", req.MessageID)
	if err != nil {
		return nil, err
	}
	if err := s.appCtx.Conversations.DeleteMessage(ctx, convID, msgID, userID); err != nil {
		return nil, svcErr.Map(err)
	}
	return &Empty{}, nil
}

// ExtendConversation pushes the expiry to now+hours (1..168).
func (s *Service) ExtendConversation(ctx context.Context, req *ExtendRequest) (*ConversationView, error) {
	convID, userID, err := ids(req.ConversationID, req.UserID)
	if err != nil {
		return nil, err
	}
	conv, err := s.appCtx.Conversations.Extend(ctx, convID, userID, req.Hours)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return toConversationView(conv, userID), nil
}

// StartTyping arms the 5s typing indicator. Only allowed where the user
// could send a message.
func (s *Service) StartTyping(ctx context.Context, req *ConversationRequest) (*Empty, error) {
	convID, userID, err := ids(req.ConversationID, req.UserID)
	if err != nil {
		return nil, err
	}
	if _, err := s.appCtx.Conversations.Authorize(ctx, convID, userID); err != nil {
		return nil, svcErr.Map(err)
	}
	s.appCtx.Presence.StartTyping(ctx, userID, convID)
	return &Empty{}, nil
}

func (s *Service) StopTyping(ctx context.Context, req *ConversationRequest) (*Empty, error) {
	convID, userID, err := ids(req.ConversationID, req.UserID)
	if err != nil {
		return nil, err
	}
	s.appCtx.Presence.StopTyping(ctx, userID, convID)
	return &Empty{}, nil
}

// Connect is called by the socket gateway when a client attaches.
func (s *Service) Connect(ctx context.Context, req *UserRequest) (*PresenceResponse, error) {
	userID, err := service.ParseID("user_id", req.UserID)
	if err != nil {
		return nil, err
	}
	s.appCtx.Presence.Connect(ctx, userID)
	return s.presence(ctx, userID)
}

func (s *Service) Heartbeat(ctx context.Context, req *UserRequest) (*Empty, error) {
	userID, err := service.ParseID("user_id", req.UserID)
	if err != nil {
		return nil, err
	}
	s.appCtx.Presence.Heartbeat(ctx, userID)
	return &Empty{}, nil
}

func (s *Service) Disconnect(ctx context.Context, req *UserRequest) (*Empty, error) {
	userID, err := service.ParseID("user_id", req.UserID)
	if err != nil {
		return nil, err
	}
	s.appCtx.Presence.Disconnect(ctx, userID)
	return &Empty{}, nil
}

func (s *Service) GetPresence(ctx context.Context, req *UserRequest) (*PresenceResponse, error) {
	userID, err := service.ParseID("user_id", req.UserID)
	if err != nil {
		return nil, err
	}
	return s.presence(ctx, userID)
}

func (s *Service) presence(ctx context.Context, userID uint64) (*PresenceResponse, error) {
	st, err := s.appCtx.Presence.Tracker().Status(ctx, userID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return &PresenceResponse{
		UserID:   service.FormatID(userID),
		Online:   st.Online,
		LastSeen: service.OptionalUnixMilli(st.LastSeen),
	}, nil
}

func toConversationView(conv *db.Conversation, userID uint64) *ConversationView {
	return &ConversationView{
		ConversationID: service.FormatID(conv.ID),
		MatchID:        service.FormatID(conv.MatchID),
		OtherUserID:    service.FormatID(conv.Other(userID)),
		Status:         string(conv.Status),
		ExpiresAt:      service.UnixMilli(conv.ExpiresAt),
		LastMessageAt:  service.OptionalUnixMilli(conv.LastMessageAt),
		MessageCount:   conv.MessageCount,
	}
}

func toMessageView(m *db.Message) *MessageView {
	return &MessageView{
		MessageID:     service.FormatID(m.ID),
		SenderID:      service.FormatID(m.SenderID),
		Content:       m.Content,
		UnixTimestamp: service.UnixMilli(m.CreatedAt),
		ReadAt:        service.OptionalUnixMilli(m.ReadAt),
	}
}
