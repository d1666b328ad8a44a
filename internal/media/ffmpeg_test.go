package media

import (
	"strings"
	"testing"
)

func contains(args []string, want string) bool {
	for _, a := range args {
		if a == want {
			return true
		}
	}
	return false
}

func TestBuildMergeArgs_MixIncludesFadeAndAmixChain(t *testing.T) {
	args := buildMergeArgs("in.mp4", "tts.wav", "out.mp4", MergeOptions{
		Mode:           MergeMix,
		TTSDurationSec: 6.0,
	})

	var filterComplex string
	for i, a := range args {
		if a == "-filter_complex" {
			filterComplex = args[i+1]
		}
	}

	for _, want := range []string{
		"volume=0.7",
		"afade=t=in:st=0:d=0.300",
		"afade=t=out:st=5.700:d=0.300",
		"amix=inputs=2:duration=shortest:dropout_transition=0",
		"dynaudnorm",
	} {
		if !strings.Contains(filterComplex, want) {
			t.Errorf("filter_complex %q missing %q", filterComplex, want)
		}
	}
}

func TestBuildMergeArgs_ReplaceUsesShortestAndNoFilter(t *testing.T) {
	args := buildMergeArgs("in.mp4", "tts.wav", "out.mp4", MergeOptions{Mode: MergeReplace})
	if contains(args, "-filter_complex") {
		t.Fatalf("replace mode should not build a filter_complex: %v", args)
	}
	if !contains(args, "-shortest") {
		t.Fatalf("replace mode should use -shortest: %v", args)
	}
}

func TestBuildMergeArgs_BurnSubtitlesAddsSubtitleFilter(t *testing.T) {
	args := buildMergeArgs("in.mp4", "tts.wav", "out.mp4", MergeOptions{
		Mode:        MergeReplace,
		BurnSRTPath: "/tmp/out.srt",
	})
	var filterComplex string
	for i, a := range args {
		if a == "-filter_complex" {
			filterComplex = args[i+1]
		}
	}
	if !strings.Contains(filterComplex, "subtitles=/tmp/out.srt") {
		t.Fatalf("expected subtitles filter referencing the SRT path, got %q", filterComplex)
	}
}

func TestProbeResult_HasVideoStream(t *testing.T) {
	withVideo := ProbeResult{Streams: []Stream{{Kind: "audio"}, {Kind: "video"}}}
	if !withVideo.HasVideoStream() {
		t.Fatal("expected HasVideoStream = true")
	}
	audioOnly := ProbeResult{Streams: []Stream{{Kind: "audio"}}}
	if audioOnly.HasVideoStream() {
		t.Fatal("expected HasVideoStream = false for audio-only input")
	}
}

