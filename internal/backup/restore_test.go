package backup

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"findash/internal/cache"
	"findash/internal/core"
	"findash/internal/settings"
	"findash/internal/storage"
)

func TestRestoreRoundTripOnSQLite(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	h, err := storage.Open(ctx, filepath.Join(dir, "finance.db"), storage.WithLocation(time.UTC))
	require.NoError(t, err)
	defer h.Close()

	lookups := cache.NewLookups(h)
	who := cache.NewWhoCache(h, time.Minute)
	userSettings := settings.NewStore(filepath.Join(dir, "user-settings.json"), nil)
	lang := "ru"
	_, err = userSettings.Update("ann", settings.Patch{Language: &lang})
	require.NoError(t, err)

	_, err = h.CreateRecord(ctx, core.Expenses, core.RecordInput{Amount: 10, Who: "Ann"}, testNow)
	require.NoError(t, err)

	sink := newMemSink()
	configs := NewConfigStore(filepath.Join(dir, "backup-config.json"), "03:00", true, nil)
	svc := NewService(h, userSettings, configs, sink,
		WithClock(func() time.Time { return testNow }),
		OnRestored(func(context.Context, RestoreOutcome) {
			lookups.InvalidateAll()
			who.Invalidate()
		}))
	sched := NewScheduler(svc, configs, time.UTC, nil)

	created, err := sched.RunNow(ctx)
	require.NoError(t, err)

	// Mutate after the backup: a record, a category and a setting.
	_, err = h.CreateRecord(ctx, core.Expenses, core.RecordInput{Amount: 5, Who: "Bob"}, testNow)
	require.NoError(t, err)
	_, err = h.AddCategory(ctx, "Boats")
	require.NoError(t, err)
	lookups.Invalidate(cache.Categories)
	cats, err := lookups.Categories(ctx)
	require.NoError(t, err)
	require.Contains(t, cats, "Boats")
	whoBefore, err := who.Get(ctx, false)
	require.NoError(t, err)
	require.Equal(t, []string{"Ann", "Bob"}, whoBefore)
	lang = "en"
	_, err = userSettings.Update("ann", settings.Patch{Language: &lang})
	require.NoError(t, err)

	_, err = sched.Restore(ctx, created.Name)
	require.NoError(t, err)

	n, err := h.CountRecords(ctx, core.Expenses)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n, "post-backup record is gone")

	cats, err = lookups.Categories(ctx)
	require.NoError(t, err)
	assert.NotContains(t, cats, "Boats", "lookup cache reflects the restored file")

	whoAfter, err := who.Get(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"Ann"}, whoAfter)

	s, err := userSettings.Get("ann")
	require.NoError(t, err)
	assert.Equal(t, "ru", s.Language)
}
