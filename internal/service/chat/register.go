package chat

import (
	"google.golang.org/grpc"

	"github.com/oggyb/muzz-daily/internal/app"
	"github.com/oggyb/muzz-daily/internal/server"
)

const ServiceName = "muzz.chat.v1.ChatService"

// Registrar ties the Chat service into the gRPC server
type Registrar struct {
	appCtx *app.AppContext
}

func NewRegistrar(appCtx *app.AppContext) *Registrar {
	return &Registrar{appCtx: appCtx}
}

// Register attaches the Chat service implementation to the gRPC server
func (r *Registrar) Register(s *grpc.Server) {
	svc := NewChatService(r.appCtx)
	s.RegisterService(Desc(svc), svc)
}

func Desc(svc *Service) *grpc.ServiceDesc {
	b := server.NewService(ServiceName)
	server.Handle(b, "GetConversation", svc.GetConversation)
	server.Handle(b, "SendMessage", svc.SendMessage)
	server.Handle(b, "ListMessages", svc.ListMessages)
	server.Handle(b, "MarkRead", svc.MarkRead)
	server.Handle(b, "DeleteMessage", svc.DeleteMessage)
	server.Handle(b, "ExtendConversation", svc.ExtendConversation)
	server.Handle(b, "StartTyping", svc.StartTyping)
	server.Handle(b, "StopTyping", svc.StopTyping)
	server.Handle(b, "Connect", svc.Connect)
	server.Handle(b, "Heartbeat", svc.Heartbeat)
	server.Handle(b, "Disconnect", svc.Disconnect)
	server.Handle(b, "GetPresence", svc.GetPresence)
	return b.Desc()
}
