package proctor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// CheckpointStore persists attempt checkpoints keyed by user and assessment.
// Claim is a single-winner compare-and-set: the first owner to claim a key wins
// and repeated claims by the same owner keep succeeding until Clear.
type CheckpointStore interface {
	Save(ctx context.Context, checkpoint Checkpoint) error
	Load(ctx context.Context, key Key) (Checkpoint, bool, error)
	Clear(ctx context.Context, key Key) error
	Claim(ctx context.Context, key Key, owner string) (bool, error)
}

// MemoryCheckpointStore keeps checkpoints in process memory.
type MemoryCheckpointStore struct {
	mu          sync.Mutex
	checkpoints map[Key]Checkpoint
	claims      map[Key]string
}

// NewMemoryCheckpointStore constructs an empty store.
func NewMemoryCheckpointStore() *MemoryCheckpointStore {
	return &MemoryCheckpointStore{
		checkpoints: make(map[Key]Checkpoint),
		claims:      make(map[Key]string),
	}
}

func (s *MemoryCheckpointStore) Save(_ context.Context, checkpoint Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkpoints[checkpoint.Key()] = checkpoint.clone()
	return nil
}

func (s *MemoryCheckpointStore) Load(_ context.Context, key Key) (Checkpoint, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	checkpoint, ok := s.checkpoints[key]
	if !ok {
		return Checkpoint{}, false, nil
	}
	return checkpoint.clone(), true, nil
}

func (s *MemoryCheckpointStore) Clear(_ context.Context, key Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.checkpoints, key)
	delete(s.claims, key)
	return nil
}

func (s *MemoryCheckpointStore) Claim(_ context.Context, key Key, owner string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if current, ok := s.claims[key]; ok {
		return current == owner, nil
	}
	s.claims[key] = owner
	return true, nil
}

// RedisCheckpointStore shares checkpoints between tabs and devices through Redis.
type RedisCheckpointStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisCheckpointStore builds a store. Keys expire after ttl so abandoned
// attempts do not accumulate; ttl must outlive the attempt duration.
func NewRedisCheckpointStore(client *redis.Client, prefix string, ttl time.Duration) *RedisCheckpointStore {
	if prefix == "" {
		prefix = "proctor"
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisCheckpointStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisCheckpointStore) checkpointKey(key Key) string {
	return fmt.Sprintf("%s:checkpoint:%s", s.prefix, key)
}

func (s *RedisCheckpointStore) claimKey(key Key) string {
	return fmt.Sprintf("%s:claim:%s", s.prefix, key)
}

func (s *RedisCheckpointStore) Save(ctx context.Context, checkpoint Checkpoint) error {
	payload, err := json.Marshal(checkpoint)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.checkpointKey(checkpoint.Key()), payload, s.ttl).Err()
}

func (s *RedisCheckpointStore) Load(ctx context.Context, key Key) (Checkpoint, bool, error) {
	payload, err := s.client.Get(ctx, s.checkpointKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Checkpoint{}, false, nil
	}
	if err != nil {
		return Checkpoint{}, false, err
	}

	var checkpoint Checkpoint
	if err := json.Unmarshal(payload, &checkpoint); err != nil {
		return Checkpoint{}, false, fmt.Errorf("decode checkpoint: %w", err)
	}
	if checkpoint.Answers == nil {
		checkpoint.Answers = map[int]int{}
	}
	return checkpoint, true, nil
}

func (s *RedisCheckpointStore) Clear(ctx context.Context, key Key) error {
	return s.client.Del(ctx, s.checkpointKey(key), s.claimKey(key)).Err()
}

func (s *RedisCheckpointStore) Claim(ctx context.Context, key Key, owner string) (bool, error) {
	claimKey := s.claimKey(key)
	won, err := s.client.SetNX(ctx, claimKey, owner, s.ttl).Result()
	if err != nil {
		return false, err
	}
	if won {
		return true, nil
	}

	current, err := s.client.Get(ctx, claimKey).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return current == owner, nil
}
