package store

import (
	"context"
	"errors"
	"time"

	"github.com/reelsmith/api/internal/model"
)

// ErrJobNotFound is returned when a job id was never created.
var ErrJobNotFound = errors.New("job not found")

// ErrJobExists is returned when creating a job with an id already in use.
var ErrJobExists = errors.New("job already exists")

// Store is the durable record of job state. Update publishes the whole record
// atomically so concurrent readers never observe a partial transition. The
// cancel flag lives beside the record so a cancel request cannot be lost to a
// concurrent wholesale publish by the owning worker.
type Store interface {
	// Create persists a new job record. Fails with ErrJobExists on id reuse.
	Create(ctx context.Context, job *model.Job) error

	// Get returns a snapshot of the job, or ErrJobNotFound.
	Get(ctx context.Context, id string) (*model.Job, error)

	// Update replaces the job record wholesale. Fails with ErrJobNotFound if
	// the job was never created.
	Update(ctx context.Context, job *model.Job) error

	// RequestCancel sets the cooperative cancellation flag for the job.
	RequestCancel(ctx context.Context, id string) error

	// CancelRequested reports whether cancellation has been requested.
	CancelRequested(ctx context.Context, id string) (bool, error)

	// AcquireLease takes the per-job exclusivity lock. It returns false when
	// another worker already holds the lease.
	AcquireLease(ctx context.Context, id string, ttl time.Duration) (bool, error)

	// ReleaseLease drops the per-job exclusivity lock.
	ReleaseLease(ctx context.Context, id string) error
}
