// Package testutil builds throwaway infrastructure for package tests:
// in-memory SQLite with the production schema and a miniredis-backed cache.
package testutil

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/oggyb/muzz-daily/internal/cache"
	"github.com/oggyb/muzz-daily/internal/db"
)

// NewDB opens an in-memory SQLite database private to t.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_", "#", "_").Replace(t.Name())
	database, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{
		NowFunc: func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
		Logger:  logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := database.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.Migrate(database))
	return database
}

// NewCache starts miniredis for the duration of t.
func NewCache(t *testing.T) (*cache.RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return &cache.RedisCache{Client: client}, mr
}

// UserOpt tweaks a seeded user.
type UserOpt func(*db.User)

func Premium() UserOpt { return func(u *db.User) { u.Tier = db.TierPremium } }

func Incomplete() UserOpt { return func(u *db.User) { u.ProfileCompleted = false } }

func Inactive() UserOpt { return func(u *db.User) { u.Active = false } }

func WithAnswers(a db.Answers) UserOpt {
	return func(u *db.User) { u.Answers = datatypes.NewJSONType(a) }
}

func LastActive(at time.Time) UserOpt {
	return func(u *db.User) { u.LastActiveAt = &at }
}

// SeedUser inserts an active, complete, free-tier user with the given id.
func SeedUser(t *testing.T, gdb *gorm.DB, id uint64, opts ...UserOpt) db.User {
	t.Helper()
	u := db.User{
		ID:               id,
		Username:         fmt.Sprintf("user%d", id),
		Email:            fmt.Sprintf("u%d@test.com", id),
		PasswordHash:     "x",
		Gender:           "female",
		Active:           true,
		ProfileCompleted: true,
		Tier:             db.TierFree,
		Answers:          datatypes.NewJSONType(db.Answers{"q1": 3, "q2": 3}),
	}
	for _, o := range opts {
		o(&u)
	}
	active := u.Active
	require.NoError(t, gdb.Create(&u).Error)
	if !active {
		// Create omits a false Active and back-fills the column default
		require.NoError(t, gdb.Model(&u).Update("active", false).Error)
		u.Active = false
	}
	return u
}

// Clock is a settable time source.
type Clock struct {
	mu sync.Mutex
	t  time.Time
}

func NewClock(t time.Time) *Clock { return &Clock{t: t.UTC().Truncate(time.Millisecond)} }

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t.UTC().Truncate(time.Millisecond)
	c.mu.Unlock()
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}
