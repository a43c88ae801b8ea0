// Package media is the collaborator boundary for the montage pipeline. The
// pipeline drives encoding, muxing and scoring through these interfaces; the
// ffmpeg-backed implementations live in this package but callers never depend
// on them directly.
package media

import "context"

// SourceLibrary resolves submission locators to concrete media files.
type SourceLibrary interface {
	// ListClips returns the eligible clips in a source directory, sorted by
	// name so repeated listings of an unchanged directory are identical.
	ListClips(ctx context.Context, dir string) ([]string, error)

	// ResolveMusic checks that a music locator is accessible and returns the
	// reference to hand to the muxer.
	ResolveMusic(ctx context.Context, ref string) (string, error)
}

// Prober reads clip metadata.
type Prober interface {
	// Duration returns the clip length in seconds.
	Duration(ctx context.Context, path string) (float64, error)
}

// EncodeRequest materializes one segment of the plan as a cut clip.
type EncodeRequest struct {
	Input      string
	TrimStart  float64
	TrimEnd    float64
	Width      int
	Height     int
	FPS        int
	StripAudio bool
	Output     string
}

// Encoder cuts and normalizes a single segment.
type Encoder interface {
	CutSegment(ctx context.Context, req EncodeRequest) error
}

// MuxRequest concatenates encoded segments and overlays the music track.
type MuxRequest struct {
	Segments    []string
	Music       string
	MusicGainDB float64
	DuckMusic   bool
	MusicOnly   bool
	Duration    float64
	Output      string
	Cover       string
}

// Muxer assembles the final reel from cut segments.
type Muxer interface {
	Assemble(ctx context.Context, req MuxRequest) error
}

// Scorer rates a full candidate montage; higher is better.
type Scorer interface {
	Score(ctx context.Context, path string) (float64, error)
}

// MotionRater estimates a clip's motion energy, used to bias the final
// segment toward a low-energy source when requested.
type MotionRater interface {
	MotionScore(ctx context.Context, path string) (float64, error)
}
