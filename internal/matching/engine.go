// Package matching owns the daily selection, the choice quota and the
// match detector.
package matching

import (
	"context"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"github.com/oggyb/muzz-daily/internal/cache"
	"github.com/oggyb/muzz-daily/internal/config"
	"github.com/oggyb/muzz-daily/internal/db"
	"github.com/oggyb/muzz-daily/internal/repository"
	"github.com/oggyb/muzz-daily/internal/scoring"
)

// DayLayout formats selection days.
const DayLayout = "2006-01-02"

// Settings sizes selections and quotas.
type Settings struct {
	SelectionSize  int
	PoolSize       int
	FreeChoices    int
	PremiumChoices int
	RetentionDays  int
}

// SettingsFromConfig reads the daily section of cfg.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		SelectionSize:  cfg.Daily.SelectionSize,
		PoolSize:       cfg.Daily.CandidatePoolSize,
		FreeChoices:    cfg.Daily.FreeChoices,
		PremiumChoices: cfg.Daily.PremiumChoices,
		RetentionDays:  cfg.Daily.RetentionDays,
	}
}

// DefaultSettings: 5 candidates from a pool of 50, free 1 and premium 3 choices.
func DefaultSettings() Settings {
	return Settings{SelectionSize: 5, PoolSize: 50, FreeChoices: 1, PremiumChoices: 3, RetentionDays: 30}
}

// QuotaForTier is the daily choice ceiling for a subscription tier.
// Unknown tiers get the free quota.
func (s Settings) QuotaForTier(tier db.Tier) int {
	if tier == db.TierPremium {
		return s.PremiumChoices
	}
	return s.FreeChoices
}

// ConversationOpener creates the conversation of a confirmed match inside
// the caller's transaction. It is idempotent and reports whether it created
// the row.
type ConversationOpener interface {
	OpenForMatch(ctx context.Context, tx *gorm.DB, m *db.Match) (*db.Conversation, bool, error)
}

// Kicker wakes the outbox relay after a commit.
type Kicker interface {
	Kick()
}

// Deps are the collaborators of an Engine. Cache, Kicker and Now are optional.
type Deps struct {
	DB     *gorm.DB
	Cache  *cache.RedisCache
	Scorer scoring.Scorer
	Opener ConversationOpener
	Kicker Kicker
	Logger *slog.Logger
	Now    func() time.Time
}

// Engine runs selection generation, quota enforcement and match detection.
type Engine struct {
	db         *gorm.DB
	users      *repository.UserRepository
	selections *repository.SelectionRepository
	choices    *repository.ChoiceRepository
	matches    *repository.MatchRepository
	scorer     scoring.Scorer
	opener     ConversationOpener
	cache      *cache.RedisCache
	kicker     Kicker
	settings   Settings
	logger     *slog.Logger
	now        func() time.Time
}

func NewEngine(d Deps, s Settings) *Engine {
	e := &Engine{
		db:         d.DB,
		users:      repository.NewUserRepository(d.DB),
		selections: repository.NewSelectionRepository(d.DB),
		choices:    repository.NewChoiceRepository(d.DB),
		matches:    repository.NewMatchRepository(d.DB),
		scorer:     d.Scorer,
		opener:     d.Opener,
		cache:      d.Cache,
		kicker:     d.Kicker,
		settings:   s,
		logger:     d.Logger,
		now:        d.Now,
	}
	if e.scorer == nil {
		e.scorer = scoring.NewLocal()
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.now == nil {
		e.now = func() time.Time { return time.Now().UTC() }
	}
	return e
}

// Settings returns the sizes the engine was built with.
func (e *Engine) Settings() Settings { return e.settings }

// Today is the current UTC day in DayLayout.
func (e *Engine) Today() string {
	return e.now().UTC().Format(DayLayout)
}

func (e *Engine) kick() {
	if e.kicker != nil {
		e.kicker.Kick()
	}
}
