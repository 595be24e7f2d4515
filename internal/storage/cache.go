package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/bashkirian/kpi-engine/internal/metrics"
	"github.com/bashkirian/kpi-engine/pkg/models"
)

const cachePrefix = "kpi:events"

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// CachedStorage кэширует выборки событий в Redis. Кэшируются только окна,
// закончившиеся раньше now - settle; AddEvent сбрасывает окна, в которые попало событие.
// Ошибки Redis не ломают запрос, выборка идёт напрямую в хранилище.
type CachedStorage struct {
	Storage
	rdb    *goredis.Client
	ttl    time.Duration
	settle time.Duration
	now    func() time.Time
	log    *zap.Logger
}

func NewCachedStorage(next Storage, cfg RedisConfig, log *zap.Logger) *CachedStorage {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: 5 * time.Second,
	})
	return newCachedStorage(next, rdb, cfg.TTL, log)
}

func newCachedStorage(next Storage, rdb *goredis.Client, ttl time.Duration, log *zap.Logger) *CachedStorage {
	if log == nil {
		log = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &CachedStorage{
		Storage: next,
		rdb:     rdb,
		ttl:     ttl,
		settle:  time.Minute,
		now:     time.Now,
		log:     log.With(zap.String("component", "event_cache")),
	}
}

func cacheKey(kind models.EventKind, start, end time.Time) string {
	return fmt.Sprintf("%s:%s:%d:%d", cachePrefix, kind, start.UnixMicro(), end.UnixMicro())
}

func (c *CachedStorage) cacheable(end time.Time) bool {
	return !end.After(c.now().Add(-c.settle))
}

func (c *CachedStorage) FetchEvents(ctx context.Context, kind models.EventKind, start, end time.Time) ([]models.Event, error) {
	if !c.cacheable(end) {
		metrics.CacheResultsTotal.WithLabelValues("bypass").Inc()
		return c.Storage.FetchEvents(ctx, kind, start, end)
	}

	key := cacheKey(kind, start, end)
	raw, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var events []models.Event
		if err := json.Unmarshal(raw, &events); err == nil {
			metrics.CacheResultsTotal.WithLabelValues("hit").Inc()
			return events, nil
		}
		c.log.Warn("corrupt cache entry", zap.String("key", key))
		metrics.CacheResultsTotal.WithLabelValues("error").Inc()
	case errors.Is(err, goredis.Nil):
		metrics.CacheResultsTotal.WithLabelValues("miss").Inc()
	default:
		c.log.Warn("redis get failed", zap.String("key", key), zap.Error(err))
		metrics.CacheResultsTotal.WithLabelValues("error").Inc()
		return c.Storage.FetchEvents(ctx, kind, start, end)
	}

	events, err := c.Storage.FetchEvents(ctx, kind, start, end)
	if err != nil {
		return nil, err
	}
	if payload, err := json.Marshal(events); err == nil {
		if err := c.rdb.Set(ctx, key, payload, c.ttl).Err(); err != nil {
			c.log.Warn("redis set failed", zap.String("key", key), zap.Error(err))
		}
	}
	return events, nil
}

// AddEvent пишет в хранилище и сбрасывает закэшированные окна, в которые попадает событие
func (c *CachedStorage) AddEvent(ctx context.Context, event models.Event) (models.Event, error) {
	stored, err := c.Storage.AddEvent(ctx, event)
	if err != nil {
		return stored, err
	}
	if err := c.invalidate(ctx, stored.Kind, stored.Timestamp); err != nil {
		c.log.Warn("cache invalidation failed",
			zap.String("kind", string(stored.Kind)), zap.Time("timestamp", stored.Timestamp), zap.Error(err))
	}
	return stored, nil
}

func (c *CachedStorage) invalidate(ctx context.Context, kind models.EventKind, ts time.Time) error {
	if !c.cacheable(ts) {
		// окно с таким событием ещё не могло попасть в кэш
		return nil
	}
	prefix := fmt.Sprintf("%s:%s:", cachePrefix, kind)
	micro := ts.UnixMicro()

	var stale []string
	iter := c.rdb.Scan(ctx, 0, prefix+"*", 500).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		start, end, ok := parseBounds(strings.TrimPrefix(key, prefix))
		if ok && start <= micro && micro < end {
			stale = append(stale, key)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan %s*: %w", prefix, err)
	}
	if len(stale) == 0 {
		return nil
	}
	if err := c.rdb.Del(ctx, stale...).Err(); err != nil {
		return fmt.Errorf("del stale windows: %w", err)
	}
	metrics.CacheResultsTotal.WithLabelValues("invalidated").Add(float64(len(stale)))
	return nil
}

// parseBounds разбирает "<startMicro>:<endMicro>" из хвоста ключа
func parseBounds(s string) (int64, int64, bool) {
	lo, hi, found := strings.Cut(s, ":")
	if !found {
		return 0, 0, false
	}
	start, err := strconv.ParseInt(lo, 10, 64)
	if err != nil {
		return 0, 0, false
	}
	end, err := strconv.ParseInt(hi, 10, 64)
	if err != nil {
		return 0, 0, false
	}
	return start, end, true
}

// Ping здоров, пока отвечает хранилище; недоступный Redis только логируется
func (c *CachedStorage) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		c.log.Warn("redis ping failed, serving from storage", zap.Error(err))
	}
	return c.Storage.Ping(ctx)
}

func (c *CachedStorage) Close() error {
	rerr := c.rdb.Close()
	if err := c.Storage.Close(); err != nil {
		return err
	}
	return rerr
}
