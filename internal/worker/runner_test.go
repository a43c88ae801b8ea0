package worker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/reelsmith/api/internal/assembler"
	"github.com/reelsmith/api/internal/media"
	"github.com/reelsmith/api/internal/model"
	"github.com/reelsmith/api/internal/planner"
	"github.com/reelsmith/api/internal/store"
)

// fakeMedia implements every pipeline collaborator and counts invocations so
// tests can assert that nothing ran after a lifecycle exit.
type fakeMedia struct {
	clips     []string
	listCalls int
	cutCalls  int
	muxCalls  int
	planErr   error
	encodeErr error
	onList    func()
	onCut     func()
}

func (f *fakeMedia) ListClips(ctx context.Context, dir string) ([]string, error) {
	f.listCalls++
	if f.onList != nil {
		f.onList()
	}
	if f.planErr != nil {
		return nil, f.planErr
	}
	return f.clips, nil
}

func (f *fakeMedia) ResolveMusic(ctx context.Context, ref string) (string, error) {
	return ref, nil
}

func (f *fakeMedia) Duration(ctx context.Context, path string) (float64, error) {
	return 10, nil
}

func (f *fakeMedia) MotionScore(ctx context.Context, path string) (float64, error) {
	return 1, nil
}

func (f *fakeMedia) CutSegment(ctx context.Context, req media.EncodeRequest) error {
	f.cutCalls++
	if f.onCut != nil {
		f.onCut()
	}
	return f.encodeErr
}

func (f *fakeMedia) Assemble(ctx context.Context, req media.MuxRequest) error {
	f.muxCalls++
	return nil
}

func (f *fakeMedia) Score(ctx context.Context, path string) (float64, error) {
	return 1, nil
}

func newFakeMedia(n int) *fakeMedia {
	f := &fakeMedia{}
	for i := 0; i < n; i++ {
		f.clips = append(f.clips, fmt.Sprintf("clip_%02d.mp4", i))
	}
	return f
}

func newRunnerTestJob() *model.Job {
	noLow := false
	req := model.MontageRequest{
		Directory:         "clips",
		Mode:              model.ModeMontage,
		TargetDurationSec: 30,
		MinDurationSec:    28,
		MaxDurationSec:    36,
		PerSegmentSec:     3,
		MaxFiles:          20,
		Aspect:            model.AspectPortrait,
		MusicURL:          "music.mp3",
		EndWithLow:        &noLow,
	}
	req.Normalize()
	now := time.Now().UTC()
	return &model.Job{
		ID:        "r_abcdef0123",
		Status:    model.JobStatusQueued,
		Request:   req,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func newTestRunner(t *testing.T, st store.Store, fm *fakeMedia, timeout time.Duration) *Runner {
	t.Helper()
	pl := planner.New(fm, fm, fm)
	asm := assembler.New(fm, fm, fm)
	return NewRunner(st, pl, asm, fm, t.TempDir(), timeout)
}

func TestRunnerCompletesJob(t *testing.T) {
	st := store.NewMemoryStore()
	fm := newFakeMedia(12)
	runner := newTestRunner(t, st, fm, time.Minute)

	job := newRunnerTestJob()
	ctx := context.Background()
	if err := st.Create(ctx, job); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := runner.Run(ctx, job.ID); err != nil {
		t.Fatalf("run: %v", err)
	}

	got, err := st.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != model.JobStatusCompleted {
		t.Fatalf("status = %s, want completed", got.Status)
	}
	if got.Artifacts[model.ArtifactBestReel] == "" {
		t.Fatal("completed job missing best reel artifact")
	}
	if len(got.Plan) == 0 {
		t.Fatal("completed job missing plan")
	}
	total := model.PlanDuration(got.Plan)
	if total < got.Request.MinDurationSec || total > got.Request.MaxDurationSec {
		t.Fatalf("plan duration %.2f outside [%.2f, %.2f]", total, got.Request.MinDurationSec, got.Request.MaxDurationSec)
	}
	if fm.cutCalls != len(got.Plan) {
		t.Fatalf("encoder invoked %d times for %d segments", fm.cutCalls, len(got.Plan))
	}

	dump := filepath.Join(runner.uploadsRoot, "reels", job.ID, "job.json")
	if _, err := os.Stat(dump); err != nil {
		t.Fatalf("job.json dump not written: %v", err)
	}
}

func TestRunnerCancelBeforeDequeue(t *testing.T) {
	st := store.NewMemoryStore()
	fm := newFakeMedia(12)
	runner := newTestRunner(t, st, fm, time.Minute)

	job := newRunnerTestJob()
	ctx := context.Background()
	if err := st.Create(ctx, job); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := st.RequestCancel(ctx, job.ID); err != nil {
		t.Fatalf("request cancel: %v", err)
	}

	if err := runner.Run(ctx, job.ID); err != nil {
		t.Fatalf("run: %v", err)
	}

	got, _ := st.Get(ctx, job.ID)
	if got.Status != model.JobStatusFailed {
		t.Fatalf("status = %s, want failed", got.Status)
	}
	if got.Error == nil || got.Error.Reason != model.ReasonCancelled {
		t.Fatalf("error = %+v, want reason cancelled", got.Error)
	}
	if fm.listCalls != 0 || fm.cutCalls != 0 || fm.muxCalls != 0 {
		t.Fatalf("collaborators invoked after pre-dequeue cancel: list=%d cut=%d mux=%d",
			fm.listCalls, fm.cutCalls, fm.muxCalls)
	}
}

func TestRunnerPlanningFailure(t *testing.T) {
	st := store.NewMemoryStore()
	// 3 clips yield only 9s of segments, below the 28s minimum.
	fm := newFakeMedia(3)
	runner := newTestRunner(t, st, fm, time.Minute)

	job := newRunnerTestJob()
	ctx := context.Background()
	if err := st.Create(ctx, job); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := runner.Run(ctx, job.ID); err != nil {
		t.Fatalf("run: %v", err)
	}

	got, _ := st.Get(ctx, job.ID)
	if got.Status != model.JobStatusFailed {
		t.Fatalf("status = %s, want failed", got.Status)
	}
	if got.Error == nil || got.Error.Reason != model.ReasonPlanning {
		t.Fatalf("error = %+v, want reason planning", got.Error)
	}
	if fm.cutCalls != 0 {
		t.Fatal("encoder invoked after planning failure")
	}
}

func TestRunnerTimeout(t *testing.T) {
	st := store.NewMemoryStore()
	fm := newFakeMedia(12)
	// An already-expired budget makes the first checkpoint fire.
	runner := newTestRunner(t, st, fm, -time.Millisecond)

	job := newRunnerTestJob()
	ctx := context.Background()
	if err := st.Create(ctx, job); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := runner.Run(ctx, job.ID); err != nil {
		t.Fatalf("run: %v", err)
	}

	got, _ := st.Get(ctx, job.ID)
	if got.Status != model.JobStatusFailed {
		t.Fatalf("status = %s, want failed", got.Status)
	}
	if got.Error == nil || got.Error.Reason != model.ReasonTimeout {
		t.Fatalf("error = %+v, want reason timeout", got.Error)
	}
}

// deadlineStore rejects writes once the caller's context is done, the way the
// Redis client does.
type deadlineStore struct {
	store.Store
}

func (s deadlineStore) Update(ctx context.Context, job *model.Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.Store.Update(ctx, job)
}

func TestRunnerTimeoutDuringPlanningStillTerminates(t *testing.T) {
	st := deadlineStore{Store: store.NewMemoryStore()}
	fm := newFakeMedia(12)
	// Planning outlives the job budget, so the budget has expired by the time
	// the plan publish and the terminal publish run.
	fm.onList = func() { time.Sleep(60 * time.Millisecond) }
	runner := newTestRunner(t, st, fm, 30*time.Millisecond)

	job := newRunnerTestJob()
	ctx := context.Background()
	if err := st.Create(ctx, job); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := runner.Run(ctx, job.ID); err != nil {
		t.Fatalf("run: %v", err)
	}

	got, _ := st.Get(ctx, job.ID)
	if !got.Status.Terminal() {
		t.Fatalf("status = %s, job must reach a terminal state after its budget expires", got.Status)
	}
	if got.Status != model.JobStatusFailed || got.Error == nil || got.Error.Reason != model.ReasonTimeout {
		t.Fatalf("job = %s/%+v, want failed/timeout", got.Status, got.Error)
	}
}

func TestRunnerSkipsTerminalJob(t *testing.T) {
	st := store.NewMemoryStore()
	fm := newFakeMedia(12)
	runner := newTestRunner(t, st, fm, time.Minute)

	job := newRunnerTestJob()
	job.Status = model.JobStatusCompleted
	ctx := context.Background()
	if err := st.Create(ctx, job); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := runner.Run(ctx, job.ID); err != nil {
		t.Fatalf("run: %v", err)
	}
	if fm.listCalls != 0 {
		t.Fatal("terminal job re-entered the pipeline")
	}
}

func TestRunnerSkipsLeasedJob(t *testing.T) {
	st := store.NewMemoryStore()
	fm := newFakeMedia(12)
	runner := newTestRunner(t, st, fm, time.Minute)

	job := newRunnerTestJob()
	ctx := context.Background()
	if err := st.Create(ctx, job); err != nil {
		t.Fatalf("create: %v", err)
	}
	if ok, _ := st.AcquireLease(ctx, job.ID, time.Minute); !ok {
		t.Fatal("setup lease failed")
	}

	if err := runner.Run(ctx, job.ID); err != nil {
		t.Fatalf("run: %v", err)
	}

	got, _ := st.Get(ctx, job.ID)
	if got.Status != model.JobStatusQueued {
		t.Fatalf("status = %s, a leased job must not be touched", got.Status)
	}
	if fm.listCalls != 0 {
		t.Fatal("collaborators invoked while another worker held the lease")
	}
}

func TestRunnerCancelMidPipeline(t *testing.T) {
	st := store.NewMemoryStore()
	fm := newFakeMedia(12)
	runner := newTestRunner(t, st, fm, time.Minute)

	job := newRunnerTestJob()
	ctx := context.Background()
	if err := st.Create(ctx, job); err != nil {
		t.Fatalf("create: %v", err)
	}

	// Flip the flag from inside the first encode. The next checkpoint must
	// observe it and stop the pipeline before the mux.
	fm.onCut = func() {
		if err := st.RequestCancel(ctx, job.ID); err != nil {
			t.Errorf("request cancel: %v", err)
		}
	}

	if err := runner.Run(ctx, job.ID); err != nil {
		t.Fatalf("run: %v", err)
	}

	got, _ := st.Get(ctx, job.ID)
	if got.Status != model.JobStatusFailed || got.Error == nil || got.Error.Reason != model.ReasonCancelled {
		t.Fatalf("job = %s/%+v, want failed/cancelled", got.Status, got.Error)
	}
	if len(got.Plan) == 0 {
		t.Fatal("plan published before cancellation should survive on the record")
	}
	if fm.cutCalls != 1 {
		t.Fatalf("encoder invoked %d times, want 1 before the checkpoint fired", fm.cutCalls)
	}
	if fm.muxCalls != 0 {
		t.Fatal("muxer ran after cancellation")
	}
}
