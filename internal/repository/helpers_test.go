package repository_test

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/oggyb/muzz-daily/internal/db"
)

// setupTestDB opens an isolated in-memory SQLite DB with the full schema.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
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

func seedUser(t *testing.T, gdb *gorm.DB, id uint64, completed bool) db.User {
	t.Helper()
	u := db.User{
		ID:               id,
		Username:         fmt.Sprintf("user%d", id),
		Email:            fmt.Sprintf("u%d@test.com", id),
		PasswordHash:     "x",
		Gender:           "female",
		Active:           true,
		ProfileCompleted: completed,
		Tier:             db.TierFree,
		Answers:          datatypes.NewJSONType(db.Answers{"q1": 3}),
	}
	require.NoError(t, gdb.Create(&u).Error)
	return u
}
