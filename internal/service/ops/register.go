package ops

import (
	"google.golang.org/grpc"

	"github.com/oggyb/muzz-daily/internal/app"
	"github.com/oggyb/muzz-daily/internal/server"
)

const ServiceName = "muzz.ops.v1.OpsService"

// Registrar ties the Ops service into the gRPC server
type Registrar struct {
	appCtx *app.AppContext
}

func NewRegistrar(appCtx *app.AppContext) *Registrar {
	return &Registrar{appCtx: appCtx}
}

func (r *Registrar) Register(s *grpc.Server) {
	svc := NewOpsService(r.appCtx)
	b := server.NewService(ServiceName)
	server.Handle(b, "ListJobs", svc.ListJobs)
	server.Handle(b, "TriggerJob", svc.TriggerJob)
	s.RegisterService(b.Desc(), svc)
}
