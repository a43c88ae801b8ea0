package assembler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/reelsmith/api/internal/media"
	"github.com/reelsmith/api/internal/model"
)

type fakeEncoder struct {
	calls    []media.EncodeRequest
	failNext int // number of upcoming calls to fail
}

func (f *fakeEncoder) CutSegment(ctx context.Context, req media.EncodeRequest) error {
	f.calls = append(f.calls, req)
	if f.failNext > 0 {
		f.failNext--
		return errors.New("encoder exited with status 1")
	}
	return nil
}

type fakeMuxer struct {
	calls []media.MuxRequest
	err   error
}

func (f *fakeMuxer) Assemble(ctx context.Context, req media.MuxRequest) error {
	f.calls = append(f.calls, req)
	return f.err
}

type fakeScorer struct {
	scores map[string]float64
}

func (f *fakeScorer) Score(ctx context.Context, path string) (float64, error) {
	return f.scores[filepath.Base(path)], nil
}

func noCheck() error { return nil }

func testPlan(n int) []model.Segment {
	var plan []model.Segment
	for i := 0; i < n; i++ {
		plan = append(plan, model.Segment{
			SourceRef:  fmt.Sprintf("clip_%02d.mp4", i),
			TrimStart:  2,
			TrimEnd:    5,
			OrderIndex: i,
		})
	}
	return plan
}

func testRequest(t *testing.T, plan []model.Segment) Request {
	t.Helper()
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
	}
	req.Normalize()
	return Request{
		WorkDir: t.TempDir(),
		RelDir:  "reels/r_0000000000",
		Plan:    plan,
		Montage: req,
		Music:   "music.mp3",
	}
}

func TestAssembleSingleCandidate(t *testing.T) {
	enc := &fakeEncoder{}
	mux := &fakeMuxer{}
	a := New(enc, mux, &fakeScorer{})

	req := testRequest(t, testPlan(4))
	res, err := a.Assemble(context.Background(), req, noCheck)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}

	if len(enc.calls) != 4 {
		t.Fatalf("encoder invoked %d times, want 4", len(enc.calls))
	}
	for _, call := range enc.calls {
		if call.Width != 1080 || call.Height != 1920 {
			t.Errorf("encode dims = %dx%d, want 1080x1920", call.Width, call.Height)
		}
		if call.FPS != 30 {
			t.Errorf("encode fps = %d, want 30", call.FPS)
		}
	}
	if len(mux.calls) != 1 {
		t.Fatalf("muxer invoked %d times, want 1", len(mux.calls))
	}
	if got := mux.calls[0].Duration; got != 12 {
		t.Errorf("mux duration = %.2f, want 12", got)
	}

	for _, key := range []string{model.ArtifactBestReel, model.ArtifactCover, model.ArtifactTimeline} {
		val, ok := res.Artifacts[key]
		if !ok {
			t.Fatalf("artifact %s missing", key)
		}
		if !strings.HasPrefix(val, req.RelDir+"/") {
			t.Errorf("artifact %s = %q, want prefix %q", key, val, req.RelDir)
		}
	}
	if _, err := os.Stat(filepath.Join(req.WorkDir, "timeline.json")); err != nil {
		t.Fatalf("timeline not written: %v", err)
	}
}

func TestAssemblePicksBestCandidate(t *testing.T) {
	enc := &fakeEncoder{}
	mux := &fakeMuxer{}
	scorer := &fakeScorer{scores: map[string]float64{
		"candidate_0.mp4": 1.2,
		"candidate_1.mp4": 4.7,
		"candidate_2.mp4": 0.3,
	}}
	a := New(enc, mux, scorer)

	req := testRequest(t, testPlan(4))
	req.Montage.TopKCandidates = 3

	res, err := a.Assemble(context.Background(), req, noCheck)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if len(mux.calls) != 3 {
		t.Fatalf("muxer invoked %d times, want 3", len(mux.calls))
	}
	if got := res.Artifacts[model.ArtifactBestReel]; !strings.HasSuffix(got, "candidate_1.mp4") {
		t.Fatalf("best reel = %q, want candidate_1.mp4", got)
	}
	if got := res.Artifacts[model.ArtifactCover]; !strings.HasSuffix(got, "cover_1.jpg") {
		t.Fatalf("cover = %q, want cover_1.jpg", got)
	}
}

func TestAssembleMusicOnlyStripsAudio(t *testing.T) {
	enc := &fakeEncoder{}
	a := New(enc, &fakeMuxer{}, &fakeScorer{})

	req := testRequest(t, testPlan(2))
	req.Montage.MusicOnly = true

	if _, err := a.Assemble(context.Background(), req, noCheck); err != nil {
		t.Fatalf("assemble: %v", err)
	}
	for _, call := range enc.calls {
		if !call.StripAudio {
			t.Fatal("music_only request must strip source audio from segments")
		}
	}
}

func TestAssembleRetriesEncodeOnce(t *testing.T) {
	enc := &fakeEncoder{failNext: 1}
	a := New(enc, &fakeMuxer{}, &fakeScorer{})

	req := testRequest(t, testPlan(2))
	if _, err := a.Assemble(context.Background(), req, noCheck); err != nil {
		t.Fatalf("assemble should survive a single encode failure: %v", err)
	}
	// first segment needed two attempts
	if len(enc.calls) != 3 {
		t.Fatalf("encoder invoked %d times, want 3", len(enc.calls))
	}
}

func TestAssembleEncodeFailureAfterRetries(t *testing.T) {
	enc := &fakeEncoder{failNext: 2}
	a := New(enc, &fakeMuxer{}, &fakeScorer{})

	req := testRequest(t, testPlan(2))
	if _, err := a.Assemble(context.Background(), req, noCheck); err == nil {
		t.Fatal("assemble should fail when a segment fails every attempt")
	}
}

func TestAssembleCheckpointStopsPipeline(t *testing.T) {
	enc := &fakeEncoder{}
	mux := &fakeMuxer{}
	a := New(enc, mux, &fakeScorer{})

	stop := errors.New("stop requested")
	calls := 0
	check := func() error {
		calls++
		if calls > 1 {
			return stop
		}
		return nil
	}

	req := testRequest(t, testPlan(4))
	_, err := a.Assemble(context.Background(), req, check)
	if !errors.Is(err, stop) {
		t.Fatalf("err = %v, want checkpoint error returned unwrapped", err)
	}
	// one encode before the second checkpoint fired, and no mux at all
	if len(enc.calls) != 1 {
		t.Fatalf("encoder invoked %d times after stop, want 1", len(enc.calls))
	}
	if len(mux.calls) != 0 {
		t.Fatalf("muxer invoked %d times after stop, want 0", len(mux.calls))
	}
}

func TestCandidateOrderings(t *testing.T) {
	orderings := candidateOrderings(4, 3)
	if len(orderings) != 3 {
		t.Fatalf("got %d orderings, want 3", len(orderings))
	}
	want := [][]int{
		{0, 1, 2, 3},
		{1, 2, 3, 0},
		{2, 3, 0, 1},
	}
	for i := range want {
		for j := range want[i] {
			if orderings[i][j] != want[i][j] {
				t.Fatalf("ordering %d = %v, want %v", i, orderings[i], want[i])
			}
		}
	}

	// k capped at n
	if got := candidateOrderings(2, 5); len(got) != 2 {
		t.Fatalf("got %d orderings for 2 segments, want 2", len(got))
	}
}
