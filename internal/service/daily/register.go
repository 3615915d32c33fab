package daily

import (
	"google.golang.org/grpc"

	"github.com/oggyb/muzz-daily/internal/app"
	"github.com/oggyb/muzz-daily/internal/server"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "muzz.daily.v1.DailyService"

// Registrar ties the Daily service into the gRPC server
type Registrar struct {
	appCtx *app.AppContext
}

// NewRegistrar creates a new Registrar for the Daily service
func NewRegistrar(appCtx *app.AppContext) *Registrar {
	return &Registrar{appCtx: appCtx}
}

// Register attaches the Daily service implementation to the gRPC server
func (r *Registrar) Register(s *grpc.Server) {
	svc := NewDailyService(r.appCtx)
	s.RegisterService(Desc(svc), svc)
}

// Desc describes the service methods.
func Desc(svc *Service) *grpc.ServiceDesc {
	b := server.NewService(ServiceName)
	server.Handle(b, "GetSelection", svc.GetSelection)
	server.Handle(b, "ChooseProfile", svc.ChooseProfile)
	server.Handle(b, "ListChoices", svc.ListChoices)
	server.Handle(b, "AcceptChatRequest", svc.AcceptChatRequest)
	server.Handle(b, "CountMatches", svc.CountMatches)
	server.Handle(b, "DeleteMatch", svc.DeleteMatch)
	return b.Desc()
}
