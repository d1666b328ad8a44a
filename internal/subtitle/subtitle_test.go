package subtitle

import (
	"math"
	"testing"

	"github.com/hubenschmidt/dubline/internal/transcript"
)

func wordsSpanning(n int, totalSeconds float64) []transcript.Word {
	words := make([]transcript.Word, n)
	step := totalSeconds / float64(n)
	for i := 0; i < n; i++ {
		words[i] = transcript.Word{
			Word:  "word",
			Start: float64(i) * step,
			End:   float64(i+1) * step,
		}
	}
	return words
}

func TestBuildFromWords_RespectsBounds(t *testing.T) {
	words := wordsSpanning(20, 10) // 20 words across 10s, per S4
	b := DefaultBounds()
	cues := BuildFromWords(words, b)

	totalWords := 0
	for _, c := range cues {
		wordCount := len(splitOnSpace(c.Text))
		if wordCount > max(b.MaxWords, 1) {
			t.Fatalf("cue %+v has %d words, want <= %d", c, wordCount, b.MaxWords)
		}
		if (c.End - c.Start) > max(b.MaxLineDuration, 0) && wordCount > 1 {
			t.Fatalf("cue %+v duration %v exceeds %v", c, c.End-c.Start, b.MaxLineDuration)
		}
		if len(c.Text) > max(b.MaxChars, 1) && wordCount > 1 {
			t.Fatalf("cue %+v text length %d exceeds %d", c, len(c.Text), b.MaxChars)
		}
		totalWords += wordCount
	}
	if totalWords != 20 {
		t.Fatalf("covered %d words, want 20", totalWords)
	}
}

func TestBuildFromWords_NonOverlappingNonDecreasing(t *testing.T) {
	words := wordsSpanning(15, 8)
	cues := BuildFromWords(words, DefaultBounds())
	for i := 1; i < len(cues); i++ {
		if cues[i].Start < cues[i-1].Start {
			t.Fatalf("cue starts not non-decreasing: %+v then %+v", cues[i-1], cues[i])
		}
		if cues[i].Start < cues[i-1].End {
			t.Fatalf("cues overlap: %+v then %+v", cues[i-1], cues[i])
		}
	}
}

func TestBuildFromWords_SingleOversizedWordFormsOwnCue(t *testing.T) {
	words := []transcript.Word{
		{Word: "supercalifragilisticexpialidocious-this-one-word-is-absurdly-long-beyond-any-char-bound", Start: 0, End: 10},
		{Word: "ok", Start: 10, End: 10.2},
	}
	cues := BuildFromWords(words, DefaultBounds())
	if len(cues) != 2 {
		t.Fatalf("got %d cues, want 2 (oversized word isolated)", len(cues))
	}
	if cues[0].Text != words[0].Word {
		t.Fatalf("first cue = %q, want isolated oversized word", cues[0].Text)
	}
}

func TestBuildProportional_ProportionalLaw(t *testing.T) {
	text := "Hi there. This is a longer sentence here. Short."
	cues := BuildProportional(text, 9.0)

	var total float64
	for _, c := range cues {
		total += c.End - c.Start
	}
	if math.Abs(total-9.0) > 1e-9 {
		t.Fatalf("total duration = %v, want 9.0", total)
	}

	if len(cues) < 2 {
		t.Fatalf("expected multiple sentences, got %d", len(cues))
	}
	d0 := cues[0].End - cues[0].Start
	d1 := cues[1].End - cues[1].Start
	ratio := d0 / d1
	wantRatio := float64(len(cues[0].Text)) / float64(len(cues[1].Text))
	if math.Abs(ratio-wantRatio) > 1e-6 {
		t.Fatalf("duration ratio %v != length ratio %v", ratio, wantRatio)
	}
}

func TestBuildFromSegments_OneCuePerSegment(t *testing.T) {
	segments := []transcript.Segment{
		{Text: "a", Start: 0, End: 1},
		{Text: "b", Start: 1, End: 2.5},
	}
	cues := BuildFromSegments(segments)
	if len(cues) != 2 {
		t.Fatalf("got %d cues, want 2", len(cues))
	}
	if cues[1].Start != 1 || cues[1].End != 2.5 {
		t.Fatalf("cue 1 = %+v", cues[1])
	}
}

func TestFormatTime(t *testing.T) {
	cases := []struct {
		seconds float64
		want    string
	}{
		{0, "00:00:00,000"},
		{1.5, "00:00:01,500"},
		{61.001, "00:01:01,001"},
		{3661.999, "01:01:01,999"},
	}
	for _, c := range cases {
		got := formatTime(c.seconds)
		if got != c.want {
			t.Errorf("formatTime(%v) = %q, want %q", c.seconds, got, c.want)
		}
	}
}

func TestRender_BlankLineBetweenCues(t *testing.T) {
	cues := []Cue{
		{Index: 1, Start: 0, End: 1, Text: "a"},
		{Index: 2, Start: 1, End: 2, Text: "b"},
	}
	out := Render(cues)
	want := "1\n00:00:00,000 --> 00:00:01,000\na\n\n2\n00:00:01,000 --> 00:00:02,000\nb\n"
	if out != want {
		t.Fatalf("got %q, want %q", out, want)
	}
}

func splitOnSpace(s string) []string {
	var parts []string
	cur := ""
	for _, r := range s {
		if r == ' ' {
			if cur != "" {
				parts = append(parts, cur)
			}
			cur = ""
			continue
		}
		cur += string(r)
	}
	if cur != "" {
		parts = append(parts, cur)
	}
	return parts
}
