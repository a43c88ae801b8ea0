package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

const (
	videoCodecArgs = "libx264"
	loudnormFilter = "loudnorm=I=-14:TP=-1.5:LRA=11"
)

// FFmpeg implements Prober, Encoder, Muxer, Scorer and MotionRater by
// shelling out to ffmpeg/ffprobe.
type FFmpeg struct {
	Bin      string
	ProbeBin string
}

func NewFFmpeg(bin, probeBin string) *FFmpeg {
	if bin == "" {
		bin = "ffmpeg"
	}
	if probeBin == "" {
		probeBin = "ffprobe"
	}
	return &FFmpeg{Bin: bin, ProbeBin: probeBin}
}

func (f *FFmpeg) run(ctx context.Context, bin string, args ...string) (stdout, stderr []byte, err error) {
	cmd := exec.CommandContext(ctx, bin, args...)
	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf
	if err := cmd.Run(); err != nil {
		return outBuf.Bytes(), errBuf.Bytes(), fmt.Errorf("%s: %w: %s", filepath.Base(bin), err, tail(errBuf.String(), 400))
	}
	return outBuf.Bytes(), errBuf.Bytes(), nil
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}

// Duration reads the container duration via ffprobe.
func (f *FFmpeg) Duration(ctx context.Context, path string) (float64, error) {
	out, _, err := f.run(ctx, f.ProbeBin,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "json",
		path,
	)
	if err != nil {
		return 0, err
	}
	return parseProbeDuration(out)
}

func parseProbeDuration(data []byte) (float64, error) {
	var probe struct {
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return 0, fmt.Errorf("parse ffprobe output: %w", err)
	}
	if probe.Format.Duration == "" {
		return 0, fmt.Errorf("ffprobe output has no duration")
	}
	dur, err := strconv.ParseFloat(probe.Format.Duration, 64)
	if err != nil {
		return 0, fmt.Errorf("parse ffprobe duration %q: %w", probe.Format.Duration, err)
	}
	return dur, nil
}

// CutSegment trims one window from a source clip, center-crops to the target
// frame and normalizes loudness, producing a segment safe to concat without
// re-encoding.
func (f *FFmpeg) CutSegment(ctx context.Context, req EncodeRequest) error {
	vf := fmt.Sprintf("scale=-2:%d,crop=%d:%d,fps=%d", req.Height, req.Width, req.Height, req.FPS)

	args := []string{
		"-y",
		"-ss", fmt.Sprintf("%.3f", req.TrimStart),
		"-to", fmt.Sprintf("%.3f", req.TrimEnd),
		"-i", req.Input,
		"-vf", vf,
	}
	if req.StripAudio {
		args = append(args, "-an")
	} else {
		args = append(args, "-af", loudnormFilter+", aresample=48000, asetpts=PTS-STARTPTS")
	}
	args = append(args,
		"-c:v", videoCodecArgs,
		"-preset", "veryfast",
		"-crf", "18",
		"-pix_fmt", "yuv420p",
	)
	if !req.StripAudio {
		args = append(args, "-c:a", "aac", "-b:a", "192k")
	}
	args = append(args, req.Output)

	_, _, err := f.run(ctx, f.Bin, args...)
	return err
}

// Assemble concatenates encoded segments with the concat demuxer (stream copy
// with a re-encode fallback), overlays the music track, and grabs a cover
// frame from the finished reel.
func (f *FFmpeg) Assemble(ctx context.Context, req MuxRequest) error {
	workDir := filepath.Dir(req.Output)
	listPath := filepath.Join(workDir, "concat.txt")
	concatPath := filepath.Join(workDir, "concat.mp4")

	var list strings.Builder
	list.WriteString("ffconcat version 1.0\n")
	for _, seg := range req.Segments {
		abs, err := filepath.Abs(seg)
		if err != nil {
			return err
		}
		fmt.Fprintf(&list, "file '%s'\n", filepath.ToSlash(abs))
	}
	if err := os.WriteFile(listPath, []byte(list.String()), 0o644); err != nil {
		return fmt.Errorf("write concat list: %w", err)
	}

	copyArgs := []string{"-y", "-f", "concat", "-safe", "0", "-i", listPath, "-c", "copy", concatPath}
	if _, _, err := f.run(ctx, f.Bin, copyArgs...); err != nil {
		// Stream copy can fail on parameter mismatch; re-encode instead.
		encodeArgs := []string{
			"-y", "-f", "concat", "-safe", "0", "-i", listPath,
			"-c:v", videoCodecArgs, "-preset", "veryfast", "-crf", "18", "-pix_fmt", "yuv420p",
			"-c:a", "aac", "-b:a", "192k",
			concatPath,
		}
		if _, _, err := f.run(ctx, f.Bin, encodeArgs...); err != nil {
			return fmt.Errorf("concat segments: %w", err)
		}
	}

	if err := f.overlayMusic(ctx, concatPath, req); err != nil {
		return err
	}

	if req.Cover != "" {
		coverAt := 1.0
		if req.Duration > 0 && req.Duration < 2.0 {
			coverAt = req.Duration / 2
		}
		coverArgs := []string{
			"-y",
			"-ss", fmt.Sprintf("%.3f", coverAt),
			"-i", req.Output,
			"-vframes", "1",
			req.Cover,
		}
		if _, _, err := f.run(ctx, f.Bin, coverArgs...); err != nil {
			return fmt.Errorf("extract cover: %w", err)
		}
	}
	return nil
}

func (f *FFmpeg) overlayMusic(ctx context.Context, concatPath string, req MuxRequest) error {
	var afilters []string
	if req.MusicOnly {
		// Native audio was stripped at encode time; the music bed is the
		// only audio stream.
		afilters = append(afilters,
			fmt.Sprintf("[1:a]aresample=48000, volume=%.2fdB, %s[am]", req.MusicGainDB, loudnormFilter))
	} else {
		afilters = append(afilters, "[0:a]aresample=48000, volume=1.0[a0]")
		afilters = append(afilters, fmt.Sprintf("[1:a]aresample=48000, volume=%.2fdB[a1]", req.MusicGainDB))
		mixInputs := "[a0][a1]"
		if req.DuckMusic {
			afilters = append(afilters, "[a1][a0]sidechaincompress=threshold=0.02:ratio=6:attack=5:release=300[a1d]")
			mixInputs = "[a0][a1d]"
		}
		afilters = append(afilters,
			fmt.Sprintf("%samix=inputs=2:normalize=0:dropout_transition=0, %s, aresample=48000[am]", mixInputs, loudnormFilter))
	}

	args := []string{
		"-y",
		"-i", concatPath,
		"-stream_loop", "-1",
		"-t", fmt.Sprintf("%.3f", req.Duration),
		"-i", req.Music,
		"-filter_complex", strings.Join(afilters, ";"),
		"-map", "0:v:0",
		"-map", "[am]",
		"-t", fmt.Sprintf("%.3f", req.Duration),
		"-c:v", videoCodecArgs,
		"-preset", "veryfast",
		"-crf", "18",
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-b:a", "192k",
		req.Output,
	}
	if _, _, err := f.run(ctx, f.Bin, args...); err != nil {
		return fmt.Errorf("mux music: %w", err)
	}
	return nil
}

var ydifPattern = regexp.MustCompile(`YDIF:([0-9.]+)`)

// MotionScore measures mean luma frame difference via the signalstats filter.
// Low values indicate calm footage.
func (f *FFmpeg) MotionScore(ctx context.Context, path string) (float64, error) {
	_, errOut, err := f.run(ctx, f.Bin,
		"-hide_banner",
		"-loglevel", "info",
		"-i", path,
		"-vf", "fps=10,format=gray,signalstats",
		"-f", "null", "-",
	)
	if err != nil {
		return 0, err
	}
	diffs := parseYDIF(string(errOut))
	if len(diffs) == 0 {
		return 0, fmt.Errorf("no signalstats output for %s", path)
	}
	var sum float64
	for _, d := range diffs {
		sum += d
	}
	return sum / float64(len(diffs)), nil
}

func parseYDIF(text string) []float64 {
	var diffs []float64
	for _, line := range strings.Split(text, "\n") {
		m := ydifPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			diffs = append(diffs, v)
		}
	}
	return diffs
}

// Score rates a candidate montage by its motion energy. Perceptual scoring is
// a pluggable collaborator; this default favors the liveliest cut.
func (f *FFmpeg) Score(ctx context.Context, path string) (float64, error) {
	return f.MotionScore(ctx, path)
}
