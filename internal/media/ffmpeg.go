// Package media wraps ffmpeg/ffprobe invocations for the capabilities the
// pipeline depends on: audio extraction, probing, ASR-oriented conversion,
// denoising, and dub merging (with optional subtitle burn-in).
package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os/exec"
	"path/filepath"
)

// Tool invokes ffmpeg/ffprobe as external processes. binDir, if non-empty,
// is prepended to the binary name to support a non-PATH install location.
type Tool struct {
	binDir string
}

// NewTool constructs a Tool, optionally rooted at a directory holding the
// ffmpeg/ffprobe binaries.
func NewTool(binDir string) *Tool {
	return &Tool{binDir: binDir}
}

func (t *Tool) bin(name string) string {
	if t.binDir == "" {
		return name
	}
	return filepath.Join(t.binDir, name)
}

func (t *Tool) run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, t.bin(name), args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s: %w: %s", name, err, stderr.String())
	}
	return stdout.Bytes(), nil
}

// ExtractAudio decodes the video's audio track to a 16-bit signed PCM WAV.
func (t *Tool) ExtractAudio(ctx context.Context, videoPath, outPath string) error {
	_, err := t.run(ctx, "ffmpeg", "-y", "-i", videoPath, "-vn", "-acodec", "pcm_s16le", outPath)
	return err
}

// ConvertForASR resamples the audio to mono 16kHz 16-bit PCM, the shape most
// ASR providers expect.
func (t *Tool) ConvertForASR(ctx context.Context, inPath, outPath string) error {
	_, err := t.run(ctx, "ffmpeg", "-y", "-i", inPath, "-ac", "1", "-ar", "16000", "-acodec", "pcm_s16le", outPath)
	return err
}

// Denoise applies a 200Hz highpass and an FFT-based denoiser, re-encoding to
// 16-bit PCM WAV.
func (t *Tool) Denoise(ctx context.Context, inPath, outPath string) error {
	_, err := t.run(ctx, "ffmpeg", "-y", "-i", inPath,
		"-af", "highpass=f=200,afftdn",
		"-acodec", "pcm_s16le", outPath)
	return err
}

// Stream describes one media stream reported by Probe.
type Stream struct {
	Kind string `json:"codec_type"`
}

// ProbeResult is the subset of ffprobe's output the pipeline depends on.
type ProbeResult struct {
	DurationSec float64
	Streams     []Stream
}

// HasVideoStream reports whether the probe found at least one video stream.
func (p ProbeResult) HasVideoStream() bool {
	for _, s := range p.Streams {
		if s.Kind == "video" {
			return true
		}
	}
	return false
}

type ffprobeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []Stream `json:"streams"`
}

// Probe reports duration and stream kinds for a media file.
func (t *Tool) Probe(ctx context.Context, path string) (ProbeResult, error) {
	out, err := t.run(ctx, "ffprobe", "-v", "quiet", "-print_format", "json",
		"-show_format", "-show_streams", path)
	if err != nil {
		return ProbeResult{}, err
	}

	var parsed ffprobeOutput
	if err := json.Unmarshal(out, &parsed); err != nil {
		return ProbeResult{}, fmt.Errorf("parse ffprobe output: %w", err)
	}

	var duration float64
	fmt.Sscanf(parsed.Format.Duration, "%f", &duration)

	return ProbeResult{DurationSec: duration, Streams: parsed.Streams}, nil
}

// MergeMode selects how the synthesized dub is combined with the source video.
type MergeMode string

const (
	MergeReplace MergeMode = "replace"
	MergeMix     MergeMode = "mix"
)

// MergeOptions parametrizes the dub merge.
type MergeOptions struct {
	Mode          MergeMode
	TTSDurationSec float64 // used to size mix fades; 0 is valid (zero-length fade)
	BurnSRTPath   string   // absolute path; empty means no subtitle burn
}

// Merge combines the original video stream (copied, untouched, unless
// subtitles are burned in) with the new audio track per opts.Mode.
func (t *Tool) Merge(ctx context.Context, videoPath, ttsAudioPath, outPath string, opts MergeOptions) error {
	args := buildMergeArgs(videoPath, ttsAudioPath, outPath, opts)
	_, err := t.run(ctx, "ffmpeg", args...)
	return err
}

// buildMergeArgs constructs the ffmpeg argument list for Merge as a pure
// function, so the filter_complex chain can be tested without invoking ffmpeg.
func buildMergeArgs(videoPath, ttsAudioPath, outPath string, opts MergeOptions) []string {
	args := []string{"-y", "-i", videoPath, "-i", ttsAudioPath}

	var clauses []string
	audioLabel := "1:a"
	videoLabel := "0:v"

	switch opts.Mode {
	case MergeMix:
		fade := math.Min(0.3, opts.TTSDurationSec/5)
		fadeOutStart := math.Max(0, opts.TTSDurationSec-fade)
		clauses = append(clauses,
			"[0:a]volume=0.7[orig]",
			fmt.Sprintf("[1:a]afade=t=in:st=0:d=%.3f,afade=t=out:st=%.3f:d=%.3f[dub]", fade, fadeOutStart, fade),
			"[orig][dub]amix=inputs=2:duration=shortest:dropout_transition=0[amixed]",
			"[amixed]dynaudnorm[aout]",
		)
		audioLabel = "[aout]"
	}

	if opts.BurnSRTPath != "" {
		clauses = append(clauses, fmt.Sprintf("[0:v]subtitles=%s[vout]", opts.BurnSRTPath))
		videoLabel = "[vout]"
	}

	if len(clauses) > 0 {
		args = append(args, "-filter_complex", joinClauses(clauses))
	}

	mapArgs := []string{"-map", videoLabel, "-map", audioLabel}
	if opts.Mode != MergeMix {
		mapArgs = append(mapArgs, "-shortest")
	}
	args = append(args, mapArgs...)
	// Burning subtitles filters the video, which forces a re-encode.
	videoCodec := "copy"
	if opts.BurnSRTPath != "" {
		videoCodec = "libx264"
	}
	args = append(args, "-c:v", videoCodec, "-c:a", "aac", outPath)
	return args
}

func joinClauses(clauses []string) string {
	out := clauses[0]
	for _, c := range clauses[1:] {
		out += ";" + c
	}
	return out
}
