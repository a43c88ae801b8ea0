package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/reelsmith/api/internal/assembler"
	"github.com/reelsmith/api/internal/media"
	"github.com/reelsmith/api/internal/model"
	"github.com/reelsmith/api/internal/planner"
	"github.com/reelsmith/api/internal/store"
)

// leaseGrace pads the exclusivity lease past the job timeout so the lease
// outlives a job that runs right up to its deadline.
const leaseGrace = time.Minute

// Runner owns one job end to end: it takes the exclusivity lease, publishes
// the processing transition, plans, assembles, and publishes the terminal
// state. Cancellation is cooperative, checked between stages only.
type Runner struct {
	store       store.Store
	planner     *planner.Planner
	assembler   *assembler.Assembler
	library     media.SourceLibrary
	uploadsRoot string
	jobTimeout  time.Duration
}

func NewRunner(st store.Store, pl *planner.Planner, asm *assembler.Assembler, library media.SourceLibrary, uploadsRoot string, jobTimeout time.Duration) *Runner {
	if jobTimeout == 0 {
		jobTimeout = 15 * time.Minute
	}
	return &Runner{
		store:       st,
		planner:     pl,
		assembler:   asm,
		library:     library,
		uploadsRoot: uploadsRoot,
		jobTimeout:  jobTimeout,
	}
}

// Run processes a single queued job. Job-level failures are recorded on the
// job record and reported as nil so the queue never retries a whole job.
func (r *Runner) Run(ctx context.Context, jobID string) error {
	job, err := r.store.Get(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load job %s: %w", jobID, err)
	}
	if job.Status.Terminal() {
		return nil
	}

	held, err := r.store.AcquireLease(ctx, jobID, r.jobTimeout+leaseGrace)
	if err != nil {
		return fmt.Errorf("acquire lease %s: %w", jobID, err)
	}
	if !held {
		log.Printf("job %s already leased, skipping", jobID)
		return nil
	}
	defer r.store.ReleaseLease(context.Background(), jobID)

	// A cancel requested before any worker touched the job terminates it
	// without invoking a single collaborator.
	if cancelled, err := r.store.CancelRequested(ctx, jobID); err == nil && cancelled {
		return r.fail(job, &model.JobError{Reason: model.ReasonCancelled, Message: "cancelled before processing"})
	}

	// Publishes run on a fresh context: an expiring job budget must never be
	// able to block a transition, or the job sticks in processing with no
	// terminal state for pollers.
	job.Status = model.JobStatusProcessing
	job.UpdatedAt = time.Now()
	if err := r.store.Update(context.Background(), job); err != nil {
		return fmt.Errorf("publish processing: %w", err)
	}
	log.Printf("job %s processing", jobID)

	// The timeout clock starts at entry into processing.
	runCtx, cancel := context.WithTimeout(ctx, r.jobTimeout)
	defer cancel()

	check := func() error {
		if cancelled, err := r.store.CancelRequested(runCtx, jobID); err == nil && cancelled {
			return &model.JobError{Reason: model.ReasonCancelled, Message: "cancelled by caller"}
		}
		if err := runCtx.Err(); err != nil {
			return classify(err, model.ReasonTimeout)
		}
		return nil
	}

	if err := check(); err != nil {
		return r.fail(job, classify(err, model.ReasonCancelled))
	}

	plan, err := r.planner.Plan(runCtx, job.Request)
	if err != nil {
		return r.fail(job, classify(err, model.ReasonPlanning))
	}

	// The plan is write-once: published exactly when planning completes.
	job.Plan = plan
	job.UpdatedAt = time.Now()
	if err := r.store.Update(context.Background(), job); err != nil {
		return fmt.Errorf("publish plan: %w", err)
	}

	if err := check(); err != nil {
		return r.fail(job, classify(err, model.ReasonCancelled))
	}

	music, err := r.library.ResolveMusic(runCtx, job.Request.MusicURL)
	if err != nil {
		return r.fail(job, classify(err, model.ReasonAssembly))
	}

	relDir := filepath.Join("reels", job.ID)
	workDir := filepath.Join(r.uploadsRoot, relDir)
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return r.fail(job, &model.JobError{Reason: model.ReasonAssembly, Message: err.Error()})
	}

	result, err := r.assembler.Assemble(runCtx, assembler.Request{
		WorkDir: workDir,
		RelDir:  relDir,
		Plan:    plan,
		Montage: job.Request,
		Music:   music,
	}, check)
	if err != nil {
		return r.fail(job, classify(err, model.ReasonAssembly))
	}

	job.Artifacts = result.Artifacts
	job.Status = model.JobStatusCompleted
	job.UpdatedAt = time.Now()
	if err := r.store.Update(context.Background(), job); err != nil {
		return fmt.Errorf("publish completed: %w", err)
	}
	r.dump(job)
	log.Printf("job %s completed (%d segments, %.2fs)", jobID, len(plan), model.PlanDuration(plan))
	return nil
}

// fail publishes the terminal failed state. The failure lives on the job
// record; the queue sees success so the job is not redelivered.
func (r *Runner) fail(job *model.Job, jobErr *model.JobError) error {
	job.Status = model.JobStatusFailed
	job.Error = jobErr
	job.UpdatedAt = time.Now()
	if err := r.store.Update(context.Background(), job); err != nil {
		log.Printf("job %s: publish failed state: %v", job.ID, err)
		return err
	}
	r.dump(job)
	log.Printf("job %s failed: %s", job.ID, jobErr.Error())
	return nil
}

// classify maps an error to a structured failure reason. Lifecycle exits
// (cancelled, timeout) take precedence over the stage's default reason.
func classify(err error, fallback string) *model.JobError {
	var jobErr *model.JobError
	if errors.As(err, &jobErr) {
		return jobErr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &model.JobError{Reason: model.ReasonTimeout, Message: "job timeout exceeded"}
	}
	if errors.Is(err, context.Canceled) {
		return &model.JobError{Reason: model.ReasonCancelled, Message: "processing interrupted"}
	}
	return &model.JobError{Reason: fallback, Message: err.Error()}
}

// dump writes the job.json diagnostic snapshot into the job's working
// directory. Convenience surface for operators; polling stays authoritative.
func (r *Runner) dump(job *model.Job) {
	dir := filepath.Join(r.uploadsRoot, "reels", job.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Printf("job %s: create dump dir: %v", job.ID, err)
		return
	}
	data, err := json.MarshalIndent(map[string]*model.Job{"job": job}, "", "  ")
	if err != nil {
		log.Printf("job %s: marshal dump: %v", job.ID, err)
		return
	}
	if err := os.WriteFile(filepath.Join(dir, "job.json"), data, 0o644); err != nil {
		log.Printf("job %s: write dump: %v", job.ID, err)
	}
}
