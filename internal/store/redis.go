package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/reelsmith/api/internal/model"
)

// RedisStore persists each job as one JSON blob written wholesale, so pollers
// always read a consistent snapshot. Records carry a retention TTL; the
// pipeline itself never deletes a job.
type RedisStore struct {
	client    *redis.Client
	retention time.Duration
}

// NewRedisStore creates a store on the given client. retention bounds how
// long terminal records stay readable; zero means 24h.
func NewRedisStore(client *redis.Client, retention time.Duration) *RedisStore {
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	return &RedisStore{client: client, retention: retention}
}

func jobKey(id string) string {
	return fmt.Sprintf("reeljob:%s", id)
}

func cancelKey(id string) string {
	return fmt.Sprintf("reeljob:%s:cancel", id)
}

func leaseKey(id string) string {
	return fmt.Sprintf("reeljob:%s:lease", id)
}

func (s *RedisStore) Create(ctx context.Context, job *model.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	ok, err := s.client.SetNX(ctx, jobKey(job.ID), data, s.retention).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrJobExists
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*model.Job, error) {
	data, err := s.client.Get(ctx, jobKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	var job model.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (s *RedisStore) Update(ctx context.Context, job *model.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	// XX so an expired or never-created record is not resurrected.
	ok, err := s.client.SetXX(ctx, jobKey(job.ID), data, s.retention).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrJobNotFound
	}
	return nil
}

func (s *RedisStore) RequestCancel(ctx context.Context, id string) error {
	exists, err := s.client.Exists(ctx, jobKey(id)).Result()
	if err != nil {
		return err
	}
	if exists == 0 {
		return ErrJobNotFound
	}
	return s.client.Set(ctx, cancelKey(id), "1", s.retention).Err()
}

func (s *RedisStore) CancelRequested(ctx context.Context, id string) (bool, error) {
	exists, err := s.client.Exists(ctx, jobKey(id)).Result()
	if err != nil {
		return false, err
	}
	if exists == 0 {
		return false, ErrJobNotFound
	}
	flagged, err := s.client.Exists(ctx, cancelKey(id)).Result()
	if err != nil {
		return false, err
	}
	return flagged > 0, nil
}

func (s *RedisStore) AcquireLease(ctx context.Context, id string, ttl time.Duration) (bool, error) {
	return s.client.SetNX(ctx, leaseKey(id), "1", ttl).Result()
}

func (s *RedisStore) ReleaseLease(ctx context.Context, id string) error {
	return s.client.Del(ctx, leaseKey(id)).Err()
}
