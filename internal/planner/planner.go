// Package planner computes the ordered segment plan for a montage job: which
// clips to use, how much to take from each, and in what order, so the total
// lands inside the requested duration window.
package planner

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/reelsmith/api/internal/media"
	"github.com/reelsmith/api/internal/model"
)

// ErrDurationUnreachable is returned when the available clips cannot fill the
// minimum duration. It depends on actual clip lengths, so it surfaces as a job
// failure rather than a submission error.
var ErrDurationUnreachable = errors.New("duration unreachable with available clips")

// Planner selects clips and trim windows using a greedy fill with adaptive
// correction. For a fixed directory listing the plan is deterministic.
type Planner struct {
	library media.SourceLibrary
	prober  media.Prober
	rater   media.MotionRater
}

func New(library media.SourceLibrary, prober media.Prober, rater media.MotionRater) *Planner {
	return &Planner{library: library, prober: prober, rater: rater}
}

type candidate struct {
	path     string
	duration float64
}

// Plan builds the ordered segment plan for a request.
func (p *Planner) Plan(ctx context.Context, req model.MontageRequest) ([]model.Segment, error) {
	clips, err := p.library.ListClips(ctx, req.Directory)
	if err != nil {
		return nil, fmt.Errorf("enumerate sources: %w", err)
	}

	candidates := make([]candidate, 0, len(clips))
	for _, clip := range clips {
		dur, err := p.prober.Duration(ctx, clip)
		if err != nil {
			return nil, fmt.Errorf("probe %s: %w", clip, err)
		}
		if dur <= 0 {
			continue
		}
		candidates = append(candidates, candidate{path: clip, duration: dur})
	}

	// Cap before rating: clips past the max_files cut can never enter the
	// plan, and every rating is a full decode pass.
	if len(candidates) > req.MaxFiles {
		candidates = candidates[:req.MaxFiles]
	}
	if req.EndWithLow != nil && *req.EndWithLow {
		candidates = p.reserveLowEnergyLast(ctx, candidates)
	}

	// Greedy fill: midpoint windows of min(per_segment, clip length) until the
	// running total reaches the target.
	var plan []model.Segment
	var total float64
	for _, c := range candidates {
		if total >= req.TargetDurationSec || len(plan) >= req.MaxFiles {
			break
		}
		window := req.PerSegmentSec
		if c.duration < window {
			window = c.duration
		}
		start := (c.duration - window) / 2
		plan = append(plan, model.Segment{
			SourceRef:  c.path,
			TrimStart:  start,
			TrimEnd:    start + window,
			OrderIndex: len(plan),
		})
		total += window
	}

	// Adaptive correction: shrink the final window so the total sits exactly
	// on the upper bound.
	if total > req.MaxDurationSec && len(plan) > 0 {
		excess := total - req.MaxDurationSec
		last := &plan[len(plan)-1]
		last.TrimEnd -= excess
		if last.Length() <= 0 {
			return nil, fmt.Errorf("%w: final segment cannot absorb %.2fs overshoot", ErrDurationUnreachable, excess)
		}
		total = req.MaxDurationSec
	}

	if total < req.MinDurationSec {
		return nil, fmt.Errorf("%w: %.2fs available, %.2fs required", ErrDurationUnreachable, total, req.MinDurationSec)
	}

	return plan, nil
}

// reserveLowEnergyLast moves the calmest clip to the last candidate slot. The
// bias is a soft preference: rating failures fall back to ordinary selection.
func (p *Planner) reserveLowEnergyLast(ctx context.Context, candidates []candidate) []candidate {
	lowIdx := -1
	lowScore := 0.0
	for i, c := range candidates {
		score, err := p.rater.MotionScore(ctx, c.path)
		if err != nil {
			log.Printf("motion score %s: %v", c.path, err)
			continue
		}
		if lowIdx == -1 || score < lowScore {
			lowIdx = i
			lowScore = score
		}
	}
	if lowIdx == -1 || lowIdx == len(candidates)-1 {
		return candidates
	}

	low := candidates[lowIdx]
	rest := make([]candidate, 0, len(candidates)-1)
	rest = append(rest, candidates[:lowIdx]...)
	rest = append(rest, candidates[lowIdx+1:]...)
	return append(rest, low)
}
