package transcript

import (
	"fmt"
	"math"
	"strings"

	"github.com/tidwall/gjson"
)

// Normalize maps a raw ASR provider payload (JSON bytes, possibly a bare
// string, a structured object, or any other shape) onto the canonical
// Transcript schema. Dispatch is by structural inspection, tried in a fixed
// order, and is deterministic: the same input always yields the same output.
func Normalize(raw []byte) Transcript {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return Transcript{Text: "", Segments: []Segment{}}
	}

	parsed := gjson.Parse(trimmed)

	if parsed.Type == gjson.String {
		return Transcript{Text: parsed.String(), Segments: []Segment{}}
	}

	if !parsed.IsObject() {
		return Transcript{Text: stringify(parsed), Segments: []Segment{}}
	}

	if results := parsed.Get("results"); results.Exists() && results.IsArray() {
		return normalizeShapeC(results)
	}

	text := parsed.Get("text")
	segments := parsed.Get("segments")

	if text.Exists() && segments.Exists() && segments.IsArray() {
		return normalizeShapeA(text.String(), segments)
	}

	if segments.Exists() && segments.IsArray() {
		return normalizeShapeB(segments)
	}

	return Transcript{Text: stringify(parsed), Segments: []Segment{}}
}

func normalizeShapeA(text string, segments gjson.Result) Transcript {
	out := Transcript{Text: text, Segments: []Segment{}}
	segments.ForEach(func(_, seg gjson.Result) bool {
		out.Segments = append(out.Segments, Segment{
			Text:  seg.Get("text").String(),
			Start: numberOrZero(seg.Get("start")),
			End:   numberOrZero(seg.Get("end")),
			Words: extractWords(seg.Get("words")),
		})
		return true
	})
	return out
}

func normalizeShapeB(segments gjson.Result) Transcript {
	out := Transcript{Segments: []Segment{}}
	var texts []string

	segments.ForEach(func(_, seg gjson.Result) bool {
		text := firstNonEmptyString(seg.Get("text"), seg.Get("transcript"))
		start := firstNumber(seg.Get("start"), seg.Get("begin"), seg.Get("seek"))
		end := seg.Get("end")
		var endVal float64
		if end.Exists() {
			endVal = numberOrZero(end)
		} else if dur := seg.Get("duration"); dur.Exists() {
			endVal = start + numberOrZero(dur)
		}

		var words []Word
		seg.Get("words").ForEach(func(_, w gjson.Result) bool {
			words = append(words, Word{
				Word:  firstNonEmptyString(w.Get("word"), w.Get("text"), w.Get("token")),
				Start: firstNumber(w.Get("start"), w.Get("startTime")),
				End:   firstNumber(w.Get("end"), w.Get("endTime")),
			})
			return true
		})

		out.Segments = append(out.Segments, Segment{Text: text, Start: start, End: endVal, Words: words})
		if text != "" {
			texts = append(texts, text)
		}
		return true
	})

	out.Text = strings.Join(texts, " ")
	return out
}

func normalizeShapeC(results gjson.Result) Transcript {
	out := Transcript{Segments: []Segment{}}
	var texts []string

	results.ForEach(func(_, result gjson.Result) bool {
		alts := result.Get("alternatives")
		if !alts.IsArray() || len(alts.Array()) == 0 {
			return true
		}
		first := alts.Array()[0]
		transcriptText := first.Get("transcript").String()
		if transcriptText != "" {
			texts = append(texts, transcriptText)
		}

		first.Get("words").ForEach(func(_, w gjson.Result) bool {
			word := w.Get("word").String()
			out.Segments = append(out.Segments, Segment{
				Text:  word,
				Start: timeValue(w.Get("startTime")),
				End:   timeValue(w.Get("endTime")),
				Words: []Word{{Word: word, Start: timeValue(w.Get("startTime")), End: timeValue(w.Get("endTime"))}},
			})
			return true
		})
		return true
	})

	out.Text = strings.Join(texts, " ")
	return out
}

// timeValue converts a Shape C time field, which may be a plain number of
// seconds or a {seconds, nanos} object, into fractional seconds.
func timeValue(v gjson.Result) float64 {
	if !v.Exists() {
		return 0
	}
	if v.IsObject() {
		seconds := numberOrZero(v.Get("seconds"))
		nanos := numberOrZero(v.Get("nanos"))
		return seconds + nanos/1e9
	}
	return numberOrZero(v)
}

func numberOrZero(v gjson.Result) float64 {
	if !v.Exists() || v.Type != gjson.Number {
		return 0
	}
	f := v.Float()
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

func firstNumber(candidates ...gjson.Result) float64 {
	for _, c := range candidates {
		if c.Exists() && c.Type == gjson.Number {
			return numberOrZero(c)
		}
	}
	return 0
}

func firstNonEmptyString(candidates ...gjson.Result) string {
	for _, c := range candidates {
		if c.Exists() && c.String() != "" {
			return c.String()
		}
	}
	return ""
}

func extractWords(v gjson.Result) []Word {
	if !v.Exists() || !v.IsArray() {
		return nil
	}
	var words []Word
	v.ForEach(func(_, w gjson.Result) bool {
		words = append(words, Word{
			Word:  w.Get("word").String(),
			Start: numberOrZero(w.Get("start")),
			End:   numberOrZero(w.Get("end")),
		})
		return true
	})
	return words
}

func stringify(v gjson.Result) string {
	if v.Raw == "" {
		return fmt.Sprintf("%v", v.Value())
	}
	return v.Raw
}
