package scoring

import (
	"context"
	"log/slog"
	"time"
)

// Fallback tries Primary under Timeout and falls back to Secondary on any
// failure. With a Local secondary it never returns an error.
type Fallback struct {
	Primary   Scorer
	Secondary Scorer
	Timeout   time.Duration
	Logger    *slog.Logger
}

// NewFallback composes primary over secondary.
func NewFallback(primary, secondary Scorer, timeout time.Duration, logger *slog.Logger) *Fallback {
	return &Fallback{Primary: primary, Secondary: secondary, Timeout: timeout, Logger: logger}
}

func (f *Fallback) Score(ctx context.Context, user Profile, candidates []Profile) ([]Result, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	if f.Primary != nil {
		pctx := ctx
		if f.Timeout > 0 {
			var cancel context.CancelFunc
			pctx, cancel = context.WithTimeout(ctx, f.Timeout)
			defer cancel()
		}

		results, err := f.Primary.Score(pctx, user, candidates)
		if err == nil {
			return results, nil
		}
		if f.Logger != nil {
			f.Logger.Warn("compatibility delegate failed, using local scoring",
				"user_id", user.UserID, "candidates", len(candidates), "err", err)
		}
	}

	return f.Secondary.Score(ctx, user, candidates)
}
