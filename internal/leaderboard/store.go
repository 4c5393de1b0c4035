package leaderboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/sawpanic/trendlab/internal/errs"
)

// Store persists board snapshots. Load returns nil when nothing is stored.
type Store interface {
	Load(ctx context.Context, scope Scope) (*Snapshot, error)
	Save(ctx context.Context, snap Snapshot) error
}

// FileStore keeps one JSON file per scope in Dir.
type FileStore struct {
	Dir string
}

func (s FileStore) path(scope Scope) string {
	return filepath.Join(s.Dir, fmt.Sprintf("leaderboard_%s.json", scope))
}

func (s FileStore) Load(_ context.Context, scope Scope) (*Snapshot, error) {
	b, err := os.ReadFile(s.path(scope))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read leaderboard: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return nil, errs.Wrap(errs.Data, "leaderboard.FileStore.Load", err)
	}
	return &snap, nil
}

// Save writes through a temp file and renames it into place.
func (s FileStore) Save(_ context.Context, snap Snapshot) error {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return fmt.Errorf("create leaderboard dir: %w", err)
	}
	b, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode leaderboard: %w", err)
	}
	final := s.path(snap.Scope)
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("write leaderboard: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename leaderboard: %w", err)
	}
	return nil
}

// RedisStore keeps snapshots under trendlab:leaderboard:<scope>.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore wraps a client; ttl 0 keeps snapshots forever.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

// DialRedis connects and pings, with the timeouts the monitor uses.
func DialRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		PoolSize:     4,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return rdb, nil
}

// RedisKey is the key a scope is stored under.
func RedisKey(scope Scope) string {
	return "trendlab:leaderboard:" + string(scope)
}

func (s *RedisStore) Load(ctx context.Context, scope Scope) (*Snapshot, error) {
	val, err := s.client.Get(ctx, RedisKey(scope)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(val, &snap); err != nil {
		return nil, errs.Wrap(errs.Data, "leaderboard.RedisStore.Load", err)
	}
	return &snap, nil
}

func (s *RedisStore) Save(ctx context.Context, snap Snapshot) error {
	b, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode leaderboard: %w", err)
	}
	if err := s.client.Set(ctx, RedisKey(snap.Scope), b, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// LoadInto restores lb from the store when a snapshot exists.
func LoadInto(ctx context.Context, st Store, lb *Leaderboard) (bool, error) {
	snap, err := st.Load(ctx, lb.Scope)
	if err != nil || snap == nil {
		return false, err
	}
	lb.Restore(*snap)
	return true, nil
}
