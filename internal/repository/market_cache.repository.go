package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"agentbacktest/internal/domain"

	_ "github.com/mattn/go-sqlite3"
)

//go:generate mockgen -source=market_cache.repository.go -destination=mocks/mock_market_cache.repository.go

// MarketDataCache stores validated snapshots keyed by symbol_YYYYMMDD.
// Entries expire ttl after they were written.
type MarketDataCache interface {
	Get(ctx context.Context, symbol string, date time.Time) (*domain.MarketData, bool)
	Set(ctx context.Context, data domain.MarketData) error
	Clear() error
	Close() error
}

func CacheKey(symbol string, date time.Time) string {
	return fmt.Sprintf("%s_%s", strings.ToUpper(symbol), date.Format("20060102"))
}

type cacheEntry struct {
	WrittenAt time.Time         `json:"writtenAt"`
	Data      domain.MarketData `json:"data"`
}

// NewMarketDataCache builds the cache named by cfg. A disabled cache is a
// pass-through that never hits.
func NewMarketDataCache(cfg domain.CacheConfig) (MarketDataCache, error) {
	switch cfg.Kind {
	case domain.CacheKindDisabled:
		return NoopCache{}, nil
	case domain.CacheKindSQLite:
		return NewSQLiteCache(filepath.Join(cfg.Dir, "market_cache.db"), cfg.TTL, time.Now)
	case domain.CacheKindFile, "":
		return NewFileCache(cfg.Dir, cfg.TTL, time.Now)
	}
	return nil, fmt.Errorf("unknown cache kind %q", cfg.Kind)
}

type NoopCache struct{}

func (NoopCache) Get(ctx context.Context, symbol string, date time.Time) (*domain.MarketData, bool) {
	return nil, false
}
func (NoopCache) Set(ctx context.Context, data domain.MarketData) error { return nil }
func (NoopCache) Clear() error                                          { return nil }
func (NoopCache) Close() error                                          { return nil }

// FileCache keeps one JSON file per key.
type FileCache struct {
	mu  sync.RWMutex
	dir string
	ttl time.Duration
	now func() time.Time
}

func NewFileCache(dir string, ttl time.Duration, now func() time.Time) (*FileCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache dir: %w", err)
	}
	if now == nil {
		now = time.Now
	}
	return &FileCache{dir: dir, ttl: ttl, now: now}, nil
}

func (c *FileCache) path(key string) string {
	return filepath.Join(c.dir, key+".json")
}

func (c *FileCache) Get(ctx context.Context, symbol string, date time.Time) (*domain.MarketData, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	bytes, err := os.ReadFile(c.path(CacheKey(symbol, date)))
	if err != nil {
		return nil, false
	}
	entry := cacheEntry{}
	if err := json.Unmarshal(bytes, &entry); err != nil {
		return nil, false
	}
	if c.ttl > 0 && c.now().Sub(entry.WrittenAt) > c.ttl {
		return nil, false
	}
	return &entry.Data, true
}

func (c *FileCache) Set(ctx context.Context, data domain.MarketData) error {
	bytes, err := json.Marshal(cacheEntry{WrittenAt: c.now(), Data: data})
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := os.WriteFile(c.path(CacheKey(data.Symbol, data.Date)), bytes, 0o644); err != nil {
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	return nil
}

func (c *FileCache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries, err := os.ReadDir(c.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		if err := os.Remove(filepath.Join(c.dir, e.Name())); err != nil {
			return fmt.Errorf("failed to remove %s: %w", e.Name(), err)
		}
	}
	return nil
}

func (c *FileCache) Close() error { return nil }

const marketCacheSchema = `
CREATE TABLE IF NOT EXISTS market_cache (
	key TEXT PRIMARY KEY,
	payload TEXT NOT NULL,
	written_at INTEGER NOT NULL
);
`

// SQLiteCache is a KV cache in a single SQLite file.
type SQLiteCache struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

func NewSQLiteCache(path string, ttl time.Duration, now func() time.Time) (*SQLiteCache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache dir: %w", err)
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache db: %w", err)
	}
	if _, err := db.Exec(marketCacheSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create cache schema: %w", err)
	}
	if now == nil {
		now = time.Now
	}
	return &SQLiteCache{db: db, ttl: ttl, now: now}, nil
}

func (c *SQLiteCache) Get(ctx context.Context, symbol string, date time.Time) (*domain.MarketData, bool) {
	var (
		payload   string
		writtenAt int64
	)
	err := c.db.QueryRowContext(ctx,
		`SELECT payload, written_at FROM market_cache WHERE key = ?`,
		CacheKey(symbol, date),
	).Scan(&payload, &writtenAt)
	if err != nil {
		return nil, false
	}
	if c.ttl > 0 && c.now().Sub(time.Unix(0, writtenAt)) > c.ttl {
		return nil, false
	}

	out := domain.MarketData{}
	if err := json.Unmarshal([]byte(payload), &out); err != nil {
		return nil, false
	}
	return &out, true
}

func (c *SQLiteCache) Set(ctx context.Context, data domain.MarketData) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}
	_, err = c.db.ExecContext(ctx, `
		INSERT INTO market_cache (key, payload, written_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET payload = excluded.payload, written_at = excluded.written_at`,
		CacheKey(data.Symbol, data.Date), string(payload), c.now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	return nil
}

func (c *SQLiteCache) Clear() error {
	_, err := c.db.Exec(`DELETE FROM market_cache`)
	return err
}

func (c *SQLiteCache) Close() error {
	return c.db.Close()
}
