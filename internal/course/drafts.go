package course

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"backend-runshare/internal/shared/geo"

	"github.com/redis/go-redis/v9"
)

const draftTTL = 24 * time.Hour

// DraftStore keeps the points of each user's unpublished route.
type DraftStore interface {
	Points(ctx context.Context, userID string) (geo.Track, error)
	Append(ctx context.Context, userID string, p geo.Point) error
	RemoveLast(ctx context.Context, userID string) error
	Clear(ctx context.Context, userID string) error
}

// RedisDraftStore keeps a draft as a redis list of JSON points so every API
// instance sees the same route.
type RedisDraftStore struct {
	rdb *redis.Client
}

func NewRedisDraftStore(rdb *redis.Client) *RedisDraftStore {
	return &RedisDraftStore{rdb: rdb}
}

func draftKey(userID string) string {
	return "runshare:draft:" + userID
}

func (s *RedisDraftStore) Points(ctx context.Context, userID string) (geo.Track, error) {
	raw, err := s.rdb.LRange(ctx, draftKey(userID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("load draft: %w", err)
	}
	points := make(geo.Track, 0, len(raw))
	for _, item := range raw {
		var p geo.Point
		if err := json.Unmarshal([]byte(item), &p); err != nil {
			return nil, fmt.Errorf("decode draft point: %w", err)
		}
		points = append(points, p)
	}
	return points, nil
}

func (s *RedisDraftStore) Append(ctx context.Context, userID string, p geo.Point) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return err
	}
	key := draftKey(userID)
	pipe := s.rdb.TxPipeline()
	pipe.RPush(ctx, key, payload)
	pipe.Expire(ctx, key, draftTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append draft point: %w", err)
	}
	return nil
}

func (s *RedisDraftStore) RemoveLast(ctx context.Context, userID string) error {
	err := s.rdb.RPop(ctx, draftKey(userID)).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("remove draft point: %w", err)
	}
	return nil
}

func (s *RedisDraftStore) Clear(ctx context.Context, userID string) error {
	if err := s.rdb.Del(ctx, draftKey(userID)).Err(); err != nil {
		return fmt.Errorf("clear draft: %w", err)
	}
	return nil
}

// MemoryDraftStore is used when redis is not configured.
type MemoryDraftStore struct {
	mu     sync.Mutex
	drafts map[string]geo.Track
}

func NewMemoryDraftStore() *MemoryDraftStore {
	return &MemoryDraftStore{drafts: map[string]geo.Track{}}
}

func (s *MemoryDraftStore) Points(_ context.Context, userID string) (geo.Track, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(geo.Track, len(s.drafts[userID]))
	copy(out, s.drafts[userID])
	return out, nil
}

func (s *MemoryDraftStore) Append(_ context.Context, userID string, p geo.Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drafts[userID] = append(s.drafts[userID], p)
	return nil
}

func (s *MemoryDraftStore) RemoveLast(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n := len(s.drafts[userID]); n > 0 {
		s.drafts[userID] = s.drafts[userID][:n-1]
	}
	return nil
}

func (s *MemoryDraftStore) Clear(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.drafts, userID)
	return nil
}
