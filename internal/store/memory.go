package store

import (
	"context"
	"encoding/json"
	"hash/fnv"
	"sync"
	"time"

	"github.com/reelsmith/api/internal/model"
)

const shardCount = 32

// MemoryStore is an in-process Store backed by a sharded map so status reads
// of unrelated jobs never contend on one global lock. Used for standalone mode
// and tests; semantics match the Redis store.
type MemoryStore struct {
	shards [shardCount]*memoryShard
}

type memoryShard struct {
	mu     sync.RWMutex
	jobs   map[string][]byte
	cancel map[string]bool
	leases map[string]time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{}
	for i := range s.shards {
		s.shards[i] = &memoryShard{
			jobs:   make(map[string][]byte),
			cancel: make(map[string]bool),
			leases: make(map[string]time.Time),
		}
	}
	return s
}

func (s *MemoryStore) shard(id string) *memoryShard {
	h := fnv.New32a()
	h.Write([]byte(id))
	return s.shards[h.Sum32()%shardCount]
}

// Records are kept as JSON blobs so snapshots handed to callers share no
// memory with the stored state, same as the Redis store.
func (s *MemoryStore) Create(ctx context.Context, job *model.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	sh := s.shard(job.ID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if _, ok := sh.jobs[job.ID]; ok {
		return ErrJobExists
	}
	sh.jobs[job.ID] = data
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*model.Job, error) {
	sh := s.shard(id)
	sh.mu.RLock()
	data, ok := sh.jobs[id]
	sh.mu.RUnlock()
	if !ok {
		return nil, ErrJobNotFound
	}
	var job model.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (s *MemoryStore) Update(ctx context.Context, job *model.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	sh := s.shard(job.ID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if _, ok := sh.jobs[job.ID]; !ok {
		return ErrJobNotFound
	}
	sh.jobs[job.ID] = data
	return nil
}

func (s *MemoryStore) RequestCancel(ctx context.Context, id string) error {
	sh := s.shard(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if _, ok := sh.jobs[id]; !ok {
		return ErrJobNotFound
	}
	sh.cancel[id] = true
	return nil
}

func (s *MemoryStore) CancelRequested(ctx context.Context, id string) (bool, error) {
	sh := s.shard(id)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	if _, ok := sh.jobs[id]; !ok {
		return false, ErrJobNotFound
	}
	return sh.cancel[id], nil
}

func (s *MemoryStore) AcquireLease(ctx context.Context, id string, ttl time.Duration) (bool, error) {
	sh := s.shard(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if expiry, held := sh.leases[id]; held && time.Now().Before(expiry) {
		return false, nil
	}
	sh.leases[id] = time.Now().Add(ttl)
	return true, nil
}

func (s *MemoryStore) ReleaseLease(ctx context.Context, id string) error {
	sh := s.shard(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	delete(sh.leases, id)
	return nil
}
