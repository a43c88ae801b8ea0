package model

// ModeMontage is the pipeline variant this service assembles: multiple short
// trimmed segments stitched into one continuous reel.
const ModeMontage = "montage"

// Aspect tokens accepted on submission, mapped to output dimensions.
const (
	AspectPortrait = "9:16"
	AspectSquare   = "1:1"
	AspectWide     = "16:9"
)

// AspectDims returns output width/height for an aspect token and whether the
// token is one of the allowed set.
func AspectDims(aspect string) (width, height int, ok bool) {
	switch aspect {
	case AspectPortrait:
		return 1080, 1920, true
	case AspectSquare:
		return 1080, 1080, true
	case AspectWide:
		return 1920, 1080, true
	default:
		return 0, 0, false
	}
}

// MontageRequest is the validated submission payload. Numeric and cross-field
// constraints are checked in order by the service layer so each violation maps
// to its own sentinel error; struct tags only cover shape and presence.
type MontageRequest struct {
	Directory         string   `json:"directory" validate:"required"`
	Mode              string   `json:"mode" validate:"required,oneof=montage"`
	TargetDurationSec float64  `json:"target_duration_sec" validate:"required"`
	MinDurationSec    float64  `json:"min_duration_sec" validate:"required"`
	MaxDurationSec    float64  `json:"max_duration_sec" validate:"required"`
	PerSegmentSec     float64  `json:"per_segment_sec" validate:"required"`
	MaxFiles          int      `json:"max_files" validate:"required"`
	Aspect            string   `json:"aspect" validate:"required"`
	MusicURL          string   `json:"music_url" validate:"required"`
	MusicGainDB       *float64 `json:"music_gain_db" validate:"omitempty,min=-60,max=12"`
	DuckMusic         *bool    `json:"duck_music"`
	MusicOnly         bool     `json:"music_only"`
	EndWithLow        *bool    `json:"end_with_low"`
	TopKCandidates    int      `json:"top_k_candidates" validate:"omitempty,min=1,max=5"`
}

// Defaults matching the submission contract.
const (
	DefaultMusicGainDB    = -8.0
	DefaultTopKCandidates = 1
)

// Normalize fills optional fields with their documented defaults.
func (r *MontageRequest) Normalize() {
	if r.MusicGainDB == nil {
		gain := DefaultMusicGainDB
		r.MusicGainDB = &gain
	}
	if r.DuckMusic == nil {
		duck := true
		r.DuckMusic = &duck
	}
	if r.EndWithLow == nil {
		low := true
		r.EndWithLow = &low
	}
	if r.TopKCandidates == 0 {
		r.TopKCandidates = DefaultTopKCandidates
	}
}
