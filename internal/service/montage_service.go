package service

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/reelsmith/api/internal/media"
	"github.com/reelsmith/api/internal/model"
	"github.com/reelsmith/api/internal/store"
)

// Request errors, surfaced synchronously at submission. No job is created
// when any of these fire.
var (
	ErrInsufficientSources   = errors.New("source directory must contain at least 2 eligible clips")
	ErrMusicUnavailable      = errors.New("music reference is not accessible")
	ErrInvalidDurationBounds = errors.New("duration bounds must satisfy 0 < min <= target <= max")
	ErrInvalidSegmentLength  = errors.New("per-segment length must be > 0 and <= max duration")
	ErrInvalidFileCount      = errors.New("max files must be >= 2")
	ErrUnsupportedAspect     = errors.New("aspect must be one of 9:16, 1:1, 16:9")
)

// Enqueuer hands an accepted job id to the scheduler.
type Enqueuer interface {
	Enqueue(ctx context.Context, jobID string) error
}

// MontageService validates submissions, creates job records and projects
// status for pollers.
type MontageService struct {
	store    store.Store
	enqueuer Enqueuer
	library  media.SourceLibrary
}

func NewMontageService(st store.Store, enqueuer Enqueuer, library media.SourceLibrary) *MontageService {
	return &MontageService{store: st, enqueuer: enqueuer, library: library}
}

// newJobID mints an opaque job token.
func newJobID() string {
	u := uuid.New()
	return "r_" + hex.EncodeToString(u[:])[:10]
}

// Submit runs the synchronous sanity checks, persists the job as queued and
// hands it to the scheduler. Everything after this point is observed via
// polling only.
func (s *MontageService) Submit(ctx context.Context, req *model.MontageRequest) (*model.SubmitResponse, error) {
	req.Normalize()
	if err := s.validateRequest(ctx, req); err != nil {
		return nil, err
	}

	now := time.Now()
	job := &model.Job{
		ID:        newJobID(),
		Status:    model.JobStatusQueued,
		Request:   *req,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	if err := s.enqueuer.Enqueue(ctx, job.ID); err != nil {
		return nil, fmt.Errorf("schedule job: %w", err)
	}

	return &model.SubmitResponse{JobID: job.ID, Status: job.Status}, nil
}

// validateRequest applies the submission checks in contract order, failing
// fast on the first violation.
func (s *MontageService) validateRequest(ctx context.Context, req *model.MontageRequest) error {
	clips, err := s.library.ListClips(ctx, req.Directory)
	if err != nil || len(clips) < 2 {
		return ErrInsufficientSources
	}
	if _, err := s.library.ResolveMusic(ctx, req.MusicURL); err != nil {
		return ErrMusicUnavailable
	}
	if req.MinDurationSec <= 0 ||
		req.MinDurationSec > req.TargetDurationSec ||
		req.TargetDurationSec > req.MaxDurationSec {
		return ErrInvalidDurationBounds
	}
	if req.PerSegmentSec <= 0 || req.PerSegmentSec > req.MaxDurationSec {
		return ErrInvalidSegmentLength
	}
	if req.MaxFiles < 2 {
		return ErrInvalidFileCount
	}
	if _, _, ok := model.AspectDims(req.Aspect); !ok {
		return ErrUnsupportedAspect
	}
	return nil
}

// Status returns the latest persisted snapshot for a job. It never blocks on
// in-flight processing.
func (s *MontageService) Status(ctx context.Context, jobID string) (*model.StatusResponse, error) {
	job, err := s.store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}

	resp := &model.StatusResponse{
		JobID:     job.ID,
		Status:    job.Status,
		CreatedAt: job.CreatedAt,
		UpdatedAt: job.UpdatedAt,
	}
	if job.Status == model.JobStatusCompleted {
		resp.Artifacts = job.Artifacts
	}
	if job.Status == model.JobStatusFailed && job.Error != nil {
		msg := job.Error.Error()
		resp.Error = &msg
	}
	return resp, nil
}

// Cancel flags the job for cooperative cancellation. A terminal job is left
// untouched; a job the scheduler has not yet dequeued still ends up
// failed(cancelled) without any collaborator being invoked.
func (s *MontageService) Cancel(ctx context.Context, jobID string) (*model.CancelResponse, error) {
	job, err := s.store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status.Terminal() {
		return &model.CancelResponse{JobID: job.ID, Status: job.Status, Cancelled: false}, nil
	}
	if err := s.store.RequestCancel(ctx, jobID); err != nil {
		return nil, err
	}
	return &model.CancelResponse{JobID: job.ID, Status: job.Status, Cancelled: true}, nil
}
