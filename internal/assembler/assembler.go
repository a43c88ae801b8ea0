// Package assembler executes a finalized segment plan: per-segment encodes,
// candidate muxes with the music bed, and best-candidate selection.
package assembler

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/reelsmith/api/internal/media"
	"github.com/reelsmith/api/internal/model"
)

// encodeAttempts bounds retries of a single collaborator call. The plan as a
// whole is never retried.
const encodeAttempts = 2

// Checkpoint is called between pipeline stages. A non-nil return stops the
// assembly immediately without invoking further collaborators.
type Checkpoint func() error

// Assembler drives the encode, mux and score collaborators over a plan.
type Assembler struct {
	encoder media.Encoder
	muxer   media.Muxer
	scorer  media.Scorer
}

func New(encoder media.Encoder, muxer media.Muxer, scorer media.Scorer) *Assembler {
	return &Assembler{encoder: encoder, muxer: muxer, scorer: scorer}
}

// Result holds the artifacts produced for a job, keyed by contract name and
// valued with paths relative to the uploads root.
type Result struct {
	Artifacts map[string]string
}

// Request carries everything Assemble needs for one job.
type Request struct {
	// WorkDir is the job-exclusive working directory (absolute).
	WorkDir string
	// RelDir is WorkDir expressed relative to the uploads root; artifact
	// values are built from it.
	RelDir  string
	Plan    []model.Segment
	Montage model.MontageRequest
	Music   string
}

// Assemble materializes the plan. check runs between every stage; its error
// is returned unwrapped so the caller can map cancellation and timeout.
func (a *Assembler) Assemble(ctx context.Context, req Request, check Checkpoint) (*Result, error) {
	width, height, ok := model.AspectDims(req.Montage.Aspect)
	if !ok {
		return nil, fmt.Errorf("unsupported aspect %q", req.Montage.Aspect)
	}

	segDir := filepath.Join(req.WorkDir, "segments")
	if err := os.MkdirAll(segDir, 0o755); err != nil {
		return nil, fmt.Errorf("create segment dir: %w", err)
	}

	cuts := make([]string, len(req.Plan))
	for i, seg := range req.Plan {
		if err := check(); err != nil {
			return nil, err
		}
		out := filepath.Join(segDir, fmt.Sprintf("seg_%02d.mp4", seg.OrderIndex))
		if err := a.encodeSegment(ctx, seg, width, height, req.Montage.MusicOnly, out); err != nil {
			return nil, fmt.Errorf("encode segment %d: %w", seg.OrderIndex, err)
		}
		cuts[i] = out
	}

	if err := check(); err != nil {
		return nil, err
	}

	total := model.PlanDuration(req.Plan)
	orderings := candidateOrderings(len(cuts), req.Montage.TopKCandidates)

	bestIdx := -1
	bestScore := 0.0
	bestPath := ""
	bestCover := ""
	for k, order := range orderings {
		if err := check(); err != nil {
			return nil, err
		}
		name := "reel.mp4"
		coverName := "cover.jpg"
		if len(orderings) > 1 {
			name = fmt.Sprintf("candidate_%d.mp4", k)
			coverName = fmt.Sprintf("cover_%d.jpg", k)
		}
		outPath := filepath.Join(req.WorkDir, name)
		coverPath := filepath.Join(req.WorkDir, coverName)

		ordered := make([]string, len(order))
		for i, idx := range order {
			ordered[i] = cuts[idx]
		}
		mux := media.MuxRequest{
			Segments:    ordered,
			Music:       req.Music,
			MusicGainDB: *req.Montage.MusicGainDB,
			DuckMusic:   *req.Montage.DuckMusic,
			MusicOnly:   req.Montage.MusicOnly,
			Duration:    total,
			Output:      outPath,
			Cover:       coverPath,
		}
		if err := a.muxer.Assemble(ctx, mux); err != nil {
			return nil, fmt.Errorf("mux candidate %d: %w", k, err)
		}

		if len(orderings) == 1 {
			bestIdx, bestPath, bestCover = 0, outPath, coverPath
			break
		}

		if err := check(); err != nil {
			return nil, err
		}
		score, err := a.scorer.Score(ctx, outPath)
		if err != nil {
			return nil, fmt.Errorf("score candidate %d: %w", k, err)
		}
		if bestIdx == -1 || score > bestScore {
			bestIdx, bestScore, bestPath, bestCover = k, score, outPath, coverPath
		}
	}
	if bestIdx == -1 {
		return nil, fmt.Errorf("no candidate produced")
	}
	if bestIdx != 0 {
		log.Printf("selected candidate %d (score %.4f)", bestIdx, bestScore)
	}

	timelinePath := filepath.Join(req.WorkDir, "timeline.json")
	if err := writeTimeline(timelinePath, req.Plan); err != nil {
		return nil, err
	}

	artifacts := map[string]string{
		model.ArtifactBestReel: filepath.ToSlash(filepath.Join(req.RelDir, filepath.Base(bestPath))),
		model.ArtifactCover:    filepath.ToSlash(filepath.Join(req.RelDir, filepath.Base(bestCover))),
		model.ArtifactTimeline: filepath.ToSlash(filepath.Join(req.RelDir, "timeline.json")),
	}
	return &Result{Artifacts: artifacts}, nil
}

func (a *Assembler) encodeSegment(ctx context.Context, seg model.Segment, width, height int, musicOnly bool, out string) error {
	req := media.EncodeRequest{
		Input:      seg.SourceRef,
		TrimStart:  seg.TrimStart,
		TrimEnd:    seg.TrimEnd,
		Width:      width,
		Height:     height,
		FPS:        30,
		StripAudio: musicOnly,
		Output:     out,
	}
	var err error
	for attempt := 1; attempt <= encodeAttempts; attempt++ {
		if err = a.encoder.CutSegment(ctx, req); err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
		log.Printf("encode attempt %d/%d for %s failed: %v", attempt, encodeAttempts, seg.SourceRef, err)
	}
	return err
}

// candidateOrderings returns up to k deterministic orderings of n segments:
// the planned order first, then rotations.
func candidateOrderings(n, k int) [][]int {
	if k < 1 {
		k = 1
	}
	if k > n {
		k = n
	}
	orderings := make([][]int, 0, k)
	for c := 0; c < k; c++ {
		order := make([]int, n)
		for i := range order {
			order[i] = (i + c) % n
		}
		orderings = append(orderings, order)
	}
	return orderings
}

func writeTimeline(path string, plan []model.Segment) error {
	data, err := json.MarshalIndent(struct {
		Segments []model.Segment `json:"segments"`
		Total    float64         `json:"total_duration_sec"`
	}{Segments: plan, Total: model.PlanDuration(plan)}, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write timeline: %w", err)
	}
	return nil
}
