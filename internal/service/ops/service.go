package ops

import (
	"context"

	"github.com/oggyb/muzz-daily/internal/app"
	svcErr "github.com/oggyb/muzz-daily/internal/errors"
	"github.com/oggyb/muzz-daily/internal/logger"
	"github.com/oggyb/muzz-daily/internal/scheduler"
)

type Job struct {
	Name            string  `json:"name"`
	IntervalSeconds int64   `json:"intervalSeconds"`
	Running         bool    `json:"running"`
	LastRun         *uint64 `json:"lastRun,omitempty"`
	LastError       string  `json:"lastError,omitempty"`
}

type ListJobsRequest struct{}

type ListJobsResponse struct {
	Jobs []Job `json:"jobs"`
}

type TriggerJobRequest struct {
	Name string `json:"name"`
}

type TriggerJobResponse struct {
	Name   string           `json:"name"`
	Report scheduler.Report `json:"report"`
}

// Service implements the Ops gRPC API for operators.
type Service struct {
	appCtx *app.AppContext
}

func NewOpsService(appCtx *app.AppContext) *Service {
	return &Service{appCtx: appCtx}
}

// ListJobs describes every scheduled job.
func (s *Service) ListJobs(_ context.Context, _ *ListJobsRequest) (*ListJobsResponse, error) {
	resp := &ListJobsResponse{}
	for _, j := range s.appCtx.Scheduler.Jobs() {
		job := Job{
			Name:            j.Name,
			IntervalSeconds: int64(j.Interval.Seconds()),
			Running:         j.Running,
			LastError:       j.LastErr,
		}
		if j.LastRun != nil {
			ms := uint64(j.LastRun.UnixMilli())
			job.LastRun = &ms
		}
		resp.Jobs = append(resp.Jobs, job)
	}
	return resp, nil
}

// TriggerJob runs a job now and returns its report.
//
// Behavior:
//   - Refused with MANUAL_TRIGGER_FORBIDDEN when APP_ENV=production.
//   - Unknown job names are NOT_FOUND.
//   - A trigger landing on a running job waits for that run and shares its report.
func (s *Service) TriggerJob(ctx context.Context, req *TriggerJobRequest) (*TriggerJobResponse, error) {
	log := logger.FromContext(ctx, s.appCtx.Logger)
	if req.Name == "" {
		return nil, svcErr.InvalidArgument("name is required")
	}

	rep, err := s.appCtx.Scheduler.Trigger(ctx, req.Name)
	if err != nil {
		log.Warn("manual trigger refused", "job", req.Name, "err", err)
		return nil, svcErr.Map(err)
	}
	log.Info("job triggered manually", "job", req.Name, "processed", rep.Processed, "failed", rep.Failed)
	return &TriggerJobResponse{Name: req.Name, Report: rep}, nil
}
