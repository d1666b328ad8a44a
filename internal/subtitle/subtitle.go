// Package subtitle builds timed SRT cues from a canonical transcript, either
// by grouping word timings under simultaneous bounds (algorithm A) or by
// splitting plain text proportionally across a known total duration
// (algorithm B).
package subtitle

import (
	"fmt"
	"math"
	"strings"

	"github.com/hubenschmidt/dubline/internal/transcript"
)

// Bounds configures algorithm A's three simultaneous cue limits.
type Bounds struct {
	MaxWords        int
	MaxLineDuration float64
	MaxChars        int
}

// DefaultBounds matches the spec's defaults: 7 words, 4.0s, 80 chars.
func DefaultBounds() Bounds {
	return Bounds{MaxWords: 7, MaxLineDuration: 4.0, MaxChars: 80}
}

// Cue is a single SRT entry.
type Cue struct {
	Index int
	Start float64
	End   float64
	Text  string
}

// BuildFromWords runs algorithm A: greedily group words into cues bounded by
// MaxLineDuration, MaxChars, and MaxWords, each applied in that order, with a
// guard that a single word exceeding every bound still forms its own cue.
func BuildFromWords(words []transcript.Word, b Bounds) []Cue {
	var cues []Cue
	i := 0
	for i < len(words) {
		start := words[i].Start
		end := words[i].End
		chars := 0
		var parts []string

		j := i
		for j < len(words) {
			w := words[j]
			contributed := len(w.Word) + 1
			wouldExceedDuration := (w.End - start) > b.MaxLineDuration
			wouldExceedChars := chars+contributed > b.MaxChars
			wouldExceedWords := len(parts) >= b.MaxWords

			if len(parts) > 0 && (wouldExceedDuration || wouldExceedChars || wouldExceedWords) {
				break
			}

			parts = append(parts, w.Word)
			chars += contributed
			end = w.End
			j++
		}

		cues = append(cues, Cue{
			Index: len(cues) + 1,
			Start: start,
			End:   end,
			Text:  strings.Join(parts, " "),
		})
		i = j
	}
	return cues
}

// BuildFromSegments emits one cue per canonical segment, using each segment's
// own start/end, for transcripts with segment timing but no word timing.
func BuildFromSegments(segments []transcript.Segment) []Cue {
	cues := make([]Cue, 0, len(segments))
	for _, seg := range segments {
		cues = append(cues, Cue{
			Index: len(cues) + 1,
			Start: seg.Start,
			End:   seg.End,
			Text:  seg.Text,
		})
	}
	return cues
}

// BuildProportional runs algorithm B: split text on sentence terminators,
// then distribute totalSeconds across sentences in proportion to their
// character length, laid end-to-end starting at 0.
func BuildProportional(text string, totalSeconds float64) []Cue {
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return nil
	}

	totalChars := 0
	for _, s := range sentences {
		totalChars += len(s)
	}
	if totalChars == 0 {
		return nil
	}

	cues := make([]Cue, 0, len(sentences))
	cursor := 0.0
	for _, s := range sentences {
		duration := totalSeconds * float64(len(s)) / float64(totalChars)
		cues = append(cues, Cue{
			Index: len(cues) + 1,
			Start: cursor,
			End:   cursor + duration,
			Text:  s,
		})
		cursor += duration
	}
	return cues
}

// splitSentences splits on '.', '!', or '?' followed by whitespace, without
// relying on regexp lookbehind (the standard library's regexp engine does not
// support it); trims empties.
func splitSentences(text string) []string {
	var sentences []string
	start := 0
	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r == '.' || r == '!' || r == '?' {
			isBoundary := i+1 >= len(runes) || isSpace(runes[i+1])
			if isBoundary {
				sentence := strings.TrimSpace(string(runes[start : i+1]))
				if sentence != "" {
					sentences = append(sentences, sentence)
				}
				start = i + 1
			}
		}
	}
	if start < len(runes) {
		tail := strings.TrimSpace(string(runes[start:]))
		if tail != "" {
			sentences = append(sentences, tail)
		}
	}
	return sentences
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}

// Render formats cues as SRT text: UTF-8, LF line endings, blank line
// between cues.
func Render(cues []Cue) string {
	var b strings.Builder
	for idx, c := range cues {
		if idx > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n", c.Index, formatTime(c.Start), formatTime(c.End), c.Text)
	}
	return b.String()
}

// formatTime renders seconds as HH:MM:SS,mmm with floor-truncated seconds and
// milliseconds computed from the fractional remainder.
func formatTime(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	totalMs := int64(math.Floor(seconds * 1000))
	ms := totalMs % 1000
	totalSec := totalMs / 1000
	s := totalSec % 60
	m := (totalSec / 60) % 60
	h := totalSec / 3600
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}
