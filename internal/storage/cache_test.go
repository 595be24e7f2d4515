package storage

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bashkirian/kpi-engine/pkg/models"
)

// unreachableRedis клиент на порт, где никто не слушает
func unreachableRedis(t *testing.T) *goredis.Client {
	t.Helper()
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { rdb.Close() })
	return rdb
}

// countingStorage считает обращения к хранилищу за событиями
type countingStorage struct {
	Storage
	fetches int
}

func (s *countingStorage) FetchEvents(ctx context.Context, kind models.EventKind, start, end time.Time) ([]models.Event, error) {
	s.fetches++
	return s.Storage.FetchEvents(ctx, kind, start, end)
}

func setupCache(t *testing.T) (*CachedStorage, *countingStorage, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	store := &countingStorage{Storage: NewInMemoryStorage()}
	c := newCachedStorage(store, rdb, time.Hour, nil)
	c.now = func() time.Time { return base.Add(24 * time.Hour) }
	return c, store, mr
}

func TestCacheKey(t *testing.T) {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)

	key := cacheKey(models.KindTabPaid, start, end)
	assert.Equal(t, "kpi:events:tab_paid:1709251200000000:1709337600000000", key)

	moscow := time.FixedZone("MSK", 3*3600)
	assert.Equal(t, key, cacheKey(models.KindTabPaid, start.In(moscow), end.In(moscow)),
		"key depends on instant, not on zone")
	assert.NotEqual(t, key, cacheKey(models.KindOrderCreated, start, end))
}

func TestCachedStorage_Cacheable(t *testing.T) {
	c := newCachedStorage(NewInMemoryStorage(), unreachableRedis(t), time.Minute, nil)
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	assert.True(t, c.cacheable(now.Add(-time.Hour)))
	assert.True(t, c.cacheable(now.Add(-time.Minute)))
	assert.False(t, c.cacheable(now.Add(-30*time.Second)))
	assert.False(t, c.cacheable(now.Add(time.Hour)))
}

func TestCachedStorage_FallsBackWhenRedisDown(t *testing.T) {
	mem := NewInMemoryStorage()
	ctx := context.Background()
	_, err := mem.AddEvent(ctx, models.Event{ID: "e1", SubjectID: "tab-1", Kind: models.KindTabPaid, Amount: 10, Timestamp: base})
	require.NoError(t, err)

	c := newCachedStorage(mem, unreachableRedis(t), time.Minute, nil)

	got, err := c.FetchEvents(ctx, models.KindTabPaid, base.Add(-time.Hour), base.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "e1", got[0].ID)

	assert.NoError(t, c.Ping(ctx), "redis outage alone keeps the service healthy")
}

func TestCachedStorage_PassesWritesThrough(t *testing.T) {
	mem := NewInMemoryStorage()
	c := newCachedStorage(mem, unreachableRedis(t), time.Minute, nil)
	ctx := context.Background()

	require.NoError(t, c.Assign(ctx, "tab-1", "alice", base))
	got, err := mem.FetchIntervals(ctx, []string{"tab-1"})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestCachedStorage_MissThenHit(t *testing.T) {
	c, store, mr := setupCache(t)
	ctx := context.Background()
	_, err := store.AddEvent(ctx, models.Event{ID: "e1", SubjectID: "tab-1", Kind: models.KindTabPaid, Amount: 10, Timestamp: base})
	require.NoError(t, err)

	start, end := base.Add(-time.Hour), base.Add(time.Hour)
	first, err := c.FetchEvents(ctx, models.KindTabPaid, start, end)
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, 1, store.fetches)

	key := cacheKey(models.KindTabPaid, start, end)
	assert.True(t, mr.Exists(key))
	assert.Equal(t, time.Hour, mr.TTL(key))

	second, err := c.FetchEvents(ctx, models.KindTabPaid, start, end)
	require.NoError(t, err)
	assert.Equal(t, 1, store.fetches, "second read is served from redis")
	assert.Equal(t, first[0].ID, second[0].ID)
	assert.Equal(t, first[0].Amount, second[0].Amount)
	assert.True(t, first[0].Timestamp.Equal(second[0].Timestamp))
}

func TestCachedStorage_RecentWindowBypassesCache(t *testing.T) {
	c, store, mr := setupCache(t)
	ctx := context.Background()
	now := c.now()

	_, err := c.FetchEvents(ctx, models.KindTabPaid, now.Add(-time.Hour), now.Add(-30*time.Second))
	require.NoError(t, err)
	_, err = c.FetchEvents(ctx, models.KindTabPaid, now.Add(-time.Hour), now.Add(-30*time.Second))
	require.NoError(t, err)

	assert.Equal(t, 2, store.fetches)
	assert.Empty(t, mr.Keys())
}

func TestCachedStorage_CorruptEntryIsRefetched(t *testing.T) {
	c, store, mr := setupCache(t)
	ctx := context.Background()
	_, err := store.AddEvent(ctx, models.Event{ID: "e1", SubjectID: "tab-1", Kind: models.KindTabPaid, Amount: 10, Timestamp: base})
	require.NoError(t, err)

	start, end := base.Add(-time.Hour), base.Add(time.Hour)
	key := cacheKey(models.KindTabPaid, start, end)
	require.NoError(t, mr.Set(key, "{not json"))

	got, err := c.FetchEvents(ctx, models.KindTabPaid, start, end)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 1, store.fetches)

	raw, err := mr.Get(key)
	require.NoError(t, err)
	assert.Contains(t, raw, `"e1"`, "entry is rewritten with the fresh result")
}

func TestCachedStorage_AddEventInvalidatesCoveringWindows(t *testing.T) {
	c, store, mr := setupCache(t)
	ctx := context.Background()
	_, err := c.AddEvent(ctx, models.Event{ID: "e1", SubjectID: "tab-1", Kind: models.KindTabPaid, Amount: 10, Timestamp: base})
	require.NoError(t, err)

	day := models.Window{Start: base.Add(-12 * time.Hour), End: base.Add(12 * time.Hour)}
	earlier := models.Window{Start: base.Add(-36 * time.Hour), End: base.Add(-12 * time.Hour)}
	for _, w := range []models.Window{day, earlier} {
		_, err := c.FetchEvents(ctx, models.KindTabPaid, w.Start, w.End)
		require.NoError(t, err)
	}
	_, err = c.FetchEvents(ctx, models.KindOrderCreated, day.Start, day.End)
	require.NoError(t, err)
	require.Len(t, mr.Keys(), 3)

	// запоздавшая оплата внутри уже закэшированного окна
	_, err = c.AddEvent(ctx, models.Event{ID: "e2", SubjectID: "tab-2", Kind: models.KindTabPaid, Amount: 25, Timestamp: base.Add(time.Hour)})
	require.NoError(t, err)

	assert.False(t, mr.Exists(cacheKey(models.KindTabPaid, day.Start, day.End)))
	assert.True(t, mr.Exists(cacheKey(models.KindTabPaid, earlier.Start, earlier.End)), "window without the event stays")
	assert.True(t, mr.Exists(cacheKey(models.KindOrderCreated, day.Start, day.End)), "other kinds stay")

	fetches := store.fetches
	got, err := c.FetchEvents(ctx, models.KindTabPaid, day.Start, day.End)
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, fetches+1, store.fetches)
}

func TestCachedStorage_AddEventSurvivesRedisOutage(t *testing.T) {
	c, store, mr := setupCache(t)
	ctx := context.Background()
	mr.Close()

	stored, err := c.AddEvent(ctx, models.Event{SubjectID: "tab-1", Kind: models.KindTabPaid, Amount: 10, Timestamp: base})
	require.NoError(t, err)
	assert.NotEmpty(t, stored.ID)

	got, err := store.FetchEvents(ctx, models.KindTabPaid, base, base.Add(time.Second))
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestParseBounds(t *testing.T) {
	start, end, ok := parseBounds("1709251200000000:1709337600000000")
	require.True(t, ok)
	assert.Equal(t, int64(1709251200000000), start)
	assert.Equal(t, int64(1709337600000000), end)

	for _, bad := range []string{"", "123", "a:1", "1:b"} {
		_, _, ok := parseBounds(bad)
		assert.False(t, ok, bad)
	}
}
