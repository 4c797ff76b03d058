package logics

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"io"
	"sync"
	"time"

	"formshield-server/configs"
	"formshield-server/internal/models"
	"formshield-server/internal/repositories"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// poolMin is the live size below which a refill is needed
	poolMin = 10
	// poolMax is the hard cap on pool size
	poolMax = 20
	// poolEntryTTL is how long a pre-rendered entry stays servable
	poolEntryTTL = time.Hour

	poolKey      = "challenge:pool"
	poolLockKey  = "challenge:pool:fill_lock"
	poolLockTTL  = time.Minute
	poolLockHold = "1"
)

// PoolQueue is the FIFO backing the challenge pool. Push adds the newest
// entry, Pop removes the oldest.
type PoolQueue interface {
	Push(ctx context.Context, payload []byte) error
	Pop(ctx context.Context) ([]byte, error) // ErrPoolEmpty when drained
	// Requeue puts a popped entry back at the serving end of the queue
	Requeue(ctx context.Context, payload []byte) error
	Len(ctx context.Context) (int64, error)

	// TryLock claims the refill lease. Returns false when another refill
	// holds it.
	TryLock(ctx context.Context, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context) error
}

// redisPoolQueue is the production queue, shared across processes
type redisPoolQueue struct{}

func NewRedisPoolQueue() PoolQueue {
	return &redisPoolQueue{}
}

func (q *redisPoolQueue) Push(ctx context.Context, payload []byte) error {
	return repositories.DBS.Redis.LPush(ctx, poolKey, payload).Err()
}

func (q *redisPoolQueue) Pop(ctx context.Context) ([]byte, error) {
	payload, err := repositories.DBS.Redis.RPop(ctx, poolKey).Bytes()
	if err == redis.Nil {
		return nil, ErrPoolEmpty
	}
	if err != nil {
		return nil, err
	}
	return payload, nil
}

func (q *redisPoolQueue) Requeue(ctx context.Context, payload []byte) error {
	return repositories.DBS.Redis.RPush(ctx, poolKey, payload).Err()
}

func (q *redisPoolQueue) Len(ctx context.Context) (int64, error) {
	return repositories.DBS.Redis.LLen(ctx, poolKey).Result()
}

func (q *redisPoolQueue) TryLock(ctx context.Context, ttl time.Duration) (bool, error) {
	return repositories.DBS.Redis.SetNX(ctx, poolLockKey, poolLockHold, ttl).Result()
}

func (q *redisPoolQueue) Unlock(ctx context.Context) error {
	return repositories.DBS.Redis.Del(ctx, poolLockKey).Err()
}

// memoryPoolQueue keeps the pool in process memory, for tests and
// single-process deployments without Redis
type memoryPoolQueue struct {
	mu      sync.Mutex
	entries [][]byte
	locked  bool
}

func NewMemoryPoolQueue() PoolQueue {
	return &memoryPoolQueue{}
}

func (q *memoryPoolQueue) Push(_ context.Context, payload []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = append(q.entries, payload)
	return nil
}

func (q *memoryPoolQueue) Pop(_ context.Context) ([]byte, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.entries) == 0 {
		return nil, ErrPoolEmpty
	}
	payload := q.entries[0]
	q.entries = q.entries[1:]
	return payload, nil
}

func (q *memoryPoolQueue) Requeue(_ context.Context, payload []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = append([][]byte{payload}, q.entries...)
	return nil
}

func (q *memoryPoolQueue) Len(_ context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.entries)), nil
}

func (q *memoryPoolQueue) TryLock(_ context.Context, _ time.Duration) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.locked {
		return false, nil
	}
	q.locked = true
	return true, nil
}

func (q *memoryPoolQueue) Unlock(_ context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.locked = false
	return nil
}

// PoolService keeps a bounded FIFO of pre-rendered image challenges so the
// request path never pays rendering cost. A background job tops it up.
type PoolService struct {
	queue  PoolQueue
	render func(code string, rnd io.Reader) ([]byte, error)
	rand   io.Reader
}

// NewPoolService creates a new PoolService instance
func NewPoolService(queue PoolQueue) *PoolService {
	return &PoolService{
		queue:  queue,
		render: renderChallengeImage,
		rand:   rand.Reader,
	}
}

// NeedsRefill reports whether the live pool size has dropped below the
// minimum
func (s *PoolService) NeedsRefill(ctx context.Context) bool {
	size, err := s.liveSize(ctx)
	if err != nil {
		configs.Logger.Warn("Pool size unavailable", zap.Error(err))
		return false
	}
	return size < poolMin
}

// Fill tops the pool up toward the maximum. Safe to call concurrently with
// itself: the refill lease plus a re-check after acquiring it keep the total
// at or under the maximum.
func (s *PoolService) Fill(ctx context.Context) error {
	if !s.NeedsRefill(ctx) {
		return nil
	}

	locked, err := s.queue.TryLock(ctx, poolLockTTL)
	if err != nil {
		return err
	}
	if !locked {
		return nil
	}
	defer s.queue.Unlock(ctx)

	size, err := s.liveSize(ctx)
	if err != nil {
		return err
	}

	cfg := configs.Configs.Antispam.Challenge
	generated := 0
	for i := size; i < poolMax; i++ {
		code, err := randomCode(s.rand, cfg.Length(), cfg.Chars())
		if err != nil {
			return err
		}
		imagePNG, err := s.render(code, s.rand)
		if err != nil {
			return err
		}

		payload, err := json.Marshal(models.PoolEntry{
			Code:      code,
			ImagePNG:  imagePNG,
			CreatedAt: time.Now(),
		})
		if err != nil {
			return err
		}

		if err := s.queue.Push(ctx, payload); err != nil {
			return err
		}
		generated++
	}

	if generated > 0 {
		configs.Logger.Info("Refilled challenge pool", zap.Int("generated", generated))
	}
	return nil
}

// Take pops the oldest live entry, skipping over expired ones. Returns
// ErrPoolEmpty when nothing servable remains; the caller then renders
// synchronously.
func (s *PoolService) Take(ctx context.Context) (*models.PoolEntry, error) {
	for {
		payload, err := s.queue.Pop(ctx)
		if err != nil {
			return nil, err
		}

		var entry models.PoolEntry
		if err := json.Unmarshal(payload, &entry); err != nil {
			configs.Logger.Warn("Dropping undecodable pool entry", zap.Error(err))
			continue
		}

		if time.Since(entry.CreatedAt) > poolEntryTTL {
			continue
		}
		return &entry, nil
	}
}

// liveSize counts entries, not counting the expired ones waiting at the old
// end of the queue. Expired entries are dropped as they are seen.
func (s *PoolService) liveSize(ctx context.Context) (int64, error) {
	for {
		size, err := s.queue.Len(ctx)
		if err != nil {
			return 0, err
		}
		if size == 0 {
			return 0, nil
		}

		// Probe the oldest entry. Entries behind a live oldest entry are at
		// least as fresh, so one probe settles the count.
		payload, err := s.queue.Pop(ctx)
		if err == ErrPoolEmpty {
			return 0, nil
		}
		if err != nil {
			return 0, err
		}

		var entry models.PoolEntry
		if err := json.Unmarshal(payload, &entry); err != nil {
			continue
		}
		if time.Since(entry.CreatedAt) > poolEntryTTL {
			continue
		}

		if err := s.queue.Requeue(ctx, payload); err != nil {
			return size - 1, nil
		}
		return size, nil
	}
}

// Global instance of PoolService
var PoolSvc = NewPoolService(NewRedisPoolQueue())
