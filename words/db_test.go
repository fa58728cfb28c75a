package words

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/wfunc/hatgame/models"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("postgres container test skipped in short mode")
	}
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("words"),
		tcpostgres.WithUsername("hat"),
		tcpostgres.WithPassword("hat"),
		testcontainers.WithWaitStrategy(wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.GormWord{}))
	return db
}

func TestDBSource(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	src := NewDBSource(db)

	entries, err := ParseDictionary([]byte(sampleCSV))
	require.NoError(t, err)
	n, err := src.Import(ctx, entries)
	require.NoError(t, err)
	assert.EqualValues(t, 5, n)

	n, err = src.Import(ctx, entries[:2])
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)

	got, err := src.SelectWords(ctx, 2, models.WordFilters{Categories: []string{"техника"}})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"ракета, космическая", "самолёт"}, got)

	got, err = src.SelectWords(ctx, 3, models.WordFilters{Levels: []string{"unknown"}})
	require.NoError(t, err)
	assert.Len(t, got, 3)

	got, err = src.SelectWords(ctx, 50, models.WordFilters{})
	var short *InsufficientWordsError
	require.True(t, errors.As(err, &short))
	assert.Len(t, got, 5)
}
