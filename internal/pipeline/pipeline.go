// Package pipeline drives the five-stage dubbing state machine for a single
// job execution: extract audio, optionally enhance it, transcribe,
// translate, synthesize, and optionally merge the dub back into the source
// video. Engine.Run calls the stages in that fixed order; extract failure and
// a missing source are fatal and returned from Run, while each tolerated
// stage's method handles its own failure (marker file, error text, metrics).
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/text/language"

	"github.com/hubenschmidt/dubline/internal/asr"
	"github.com/hubenschmidt/dubline/internal/media"
	"github.com/hubenschmidt/dubline/internal/metrics"
	"github.com/hubenschmidt/dubline/internal/queue"
	"github.com/hubenschmidt/dubline/internal/retry"
	"github.com/hubenschmidt/dubline/internal/subtitle"
	"github.com/hubenschmidt/dubline/internal/transcript"
	"github.com/hubenschmidt/dubline/internal/translate"
	"github.com/hubenschmidt/dubline/internal/tts"
)

// translationErrorPrefix marks a tolerated translate failure. TTS input
// selection and subtitle source selection both key off this sentinel
// rather than a typed result — see SPEC_FULL.md §9's resolved open question.
const translationErrorPrefix = "TRANSLATION error"

// asrErrorPrefix marks a tolerated ASR failure.
const asrErrorPrefix = "ASR error"

// languageCodeMap maps a bare target-language code to the locale tag the
// TTS providers expect. Unknown targets fall through to Engine.DefaultTTSLanguage.
var languageCodeMap = map[string]string{
	"id": "id-ID",
	"en": "en-US",
	"es": "es-ES",
	"fr": "fr-FR",
	"de": "de-DE",
	"ja": "ja-JP",
	"ko": "ko-KR",
	"pt": "pt-BR",
	"zh": "zh-CN",
	"ar": "ar-SA",
}

// MediaTool is the subset of the media-tool capability the engine depends
// on, narrow enough that tests can substitute a fake that never shells out
// to ffmpeg/ffprobe.
type MediaTool interface {
	ExtractAudio(ctx context.Context, videoPath, outPath string) error
	Probe(ctx context.Context, path string) (media.ProbeResult, error)
	ConvertForASR(ctx context.Context, inPath, outPath string) error
	Denoise(ctx context.Context, inPath, outPath string) error
	Merge(ctx context.Context, videoPath, ttsAudioPath, outPath string, opts media.MergeOptions) error
}

// Timeouts bounds each adapter call's wall-clock time.
type Timeouts struct {
	ASR       time.Duration
	Translate time.Duration
	TTS       time.Duration
	Media     time.Duration
}

// Engine sequences a job's stages using the provider routers, media tool,
// retry policy, and subtitle bounds supplied at construction.
type Engine struct {
	ASR       *asr.Router
	Translate *translate.Router
	TTS       *tts.Router
	Media     MediaTool

	RetryConfig retry.Config
	SRTBounds   subtitle.Bounds
	Timeouts    Timeouts

	DefaultTTSLanguage string
	DefaultTTSVoice    string

	Logger *slog.Logger
}

// Params is everything one job execution needs, merged from job data and
// configuration defaults (job-data flags win, per SPEC_FULL.md §9).
type Params struct {
	JobID             string
	SourcePath        string
	OriginalFilename  string
	MergeMode         queue.MergeMode
	BurnSubtitles     bool
	Enhance           bool
	ASRProvider       string
	ASRLanguage       string
	ASRTimestamps     bool
	TranslateProvider string
	TranslateTarget   string
	TTSProvider       string
	TTSLanguage       string
	TTSVoice          string
}

// ProgressFunc reports advisory progress; the engine never lets a failure
// here affect the pipeline (see execution.report).
type ProgressFunc func(percent int)

// execution carries the mutable per-job state threaded through the stages.
type execution struct {
	eng    *Engine
	p      Params
	report ProgressFunc

	dir  string // directory the source lives in; artifacts are written alongside it
	stem string

	transcriptText string
	canonical      transcript.Transcript
	translatedText string

	result queue.Result
}

// Run executes the full state machine for one job and returns the artifact
// result map. A non-nil error means a fatal stage failed and the caller
// should mark the job failed; any other stage failure is tolerated and
// folded into the result/marker files instead of being returned here.
func (e *Engine) Run(ctx context.Context, p Params, report ProgressFunc) (queue.Result, error) {
	if report == nil {
		report = func(int) {}
	}

	ex := &execution{
		eng:    e,
		p:      p,
		report: report,
		dir:    filepath.Dir(p.SourcePath),
		stem:   stemOf(p.OriginalFilename, p.SourcePath),
		result: queue.Result{},
	}

	ex.reportProgress(0)

	if _, err := os.Stat(p.SourcePath); err != nil {
		e.logError("source-missing", p.JobID, err)
		return nil, fmt.Errorf("source missing: %w", err)
	}

	audioPath, err := ex.extract(ctx)
	if err != nil {
		e.logError("extract", p.JobID, err)
		return nil, fmt.Errorf("extract audio: %w", err)
	}
	ex.result["audio"] = audioPath
	ex.reportProgress(20)

	finalAudio := audioPath
	if p.Enhance {
		enhancedPath, ok := ex.enhance(ctx, audioPath)
		if ok {
			ex.result["enhancedAudio"] = enhancedPath
			finalAudio = enhancedPath
		}
		ex.reportProgress(20)
	}

	asrAudio := ex.convertForASR(ctx, finalAudio)
	ex.transcribe(ctx, asrAudio)
	if err := transcript.WriteText(ex.path("transcript.txt"), "TRANSCRIPT\nSource: "+p.OriginalFilename+"\n\n"+ex.transcriptText); err != nil {
		e.Logger.Warn("write transcript text failed", "job_id", p.JobID, "err", err)
	}
	if err := transcript.WriteSidecar(ex.path("transcript.txt.json"), ex.canonical); err != nil {
		e.Logger.Warn("write transcript sidecar failed", "job_id", p.JobID, "err", err)
	}
	ex.result["transcript"] = ex.path("transcript.txt")
	ex.reportProgress(25)

	ex.translate(ctx)
	if err := transcript.WriteText(ex.path("translated.txt"), ex.translatedText); err != nil {
		e.Logger.Warn("write translated text failed", "job_id", p.JobID, "err", err)
	}
	ex.result["translated"] = ex.path("translated.txt")
	ex.reportProgress(45)

	ttsOK := ex.synthesize(ctx)
	ex.reportProgress(85)

	var burnPath string
	if p.BurnSubtitles {
		if srtPath, ok := ex.buildSubtitles(ctx); ok {
			ex.result["srt"] = srtPath
			burnPath = srtPath
		}
	}

	if ttsOK {
		ex.reportProgress(90)
		ex.merge(ctx, burnPath)
		ex.reportProgress(95)
	}

	ex.reportProgress(100)
	return ex.result, nil
}

func (ex *execution) reportProgress(percent int) {
	ex.report(percent)
}

func (ex *execution) path(suffix string) string {
	return filepath.Join(ex.dir, ex.stem+"-"+suffix)
}

// srtPath is the one artifact path that is NOT dash-joined to the stem
// (`<stem>.srt`, not `<stem>-srt`), per the artifact set in §3.
func (ex *execution) srtPath() string {
	return filepath.Join(ex.dir, ex.stem+".srt")
}

// stemOf derives the artifact stem from the original filename (falling back
// to the stored source path), stripping its extension.
func stemOf(originalFilename, sourcePath string) string {
	name := originalFilename
	if name == "" {
		name = filepath.Base(sourcePath)
	} else {
		name = filepath.Base(name)
	}
	ext := filepath.Ext(name)
	return strings.TrimSuffix(name, ext)
}

// --- EXTRACT ---

func (ex *execution) extract(ctx context.Context) (string, error) {
	start := time.Now()
	outPath := ex.path("audio.wav")

	_, err := retry.Do(ctx, ex.eng.RetryConfig, func(ctx context.Context) (struct{}, error) {
		cctx, cancel := context.WithTimeout(ctx, ex.eng.Timeouts.Media)
		defer cancel()
		return struct{}{}, ex.eng.Media.ExtractAudio(cctx, ex.p.SourcePath, outPath)
	})

	metrics.StageDuration.WithLabelValues("extract").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.Errors.WithLabelValues("extract", "fatal").Inc()
		return "", err
	}
	return outPath, nil
}

// --- ENHANCE (tolerated) ---

func (ex *execution) enhance(ctx context.Context, audioPath string) (string, bool) {
	start := time.Now()
	outPath := ex.path("audio-enhanced.wav")

	_, err := retry.Do(ctx, ex.eng.RetryConfig, func(ctx context.Context) (struct{}, error) {
		cctx, cancel := context.WithTimeout(ctx, ex.eng.Timeouts.Media)
		defer cancel()
		return struct{}{}, ex.eng.Media.Denoise(cctx, audioPath, outPath)
	})

	metrics.StageDuration.WithLabelValues("enhance").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.Errors.WithLabelValues("enhance", "tolerated").Inc()
		ex.eng.Logger.Warn("enhance tolerated failure", "job_id", ex.p.JobID, "err", err)
		ex.writeMarker("enhance.error.txt", err)
		return "", false
	}
	return outPath, true
}

// convertForASR resamples to the mono 16kHz PCM shape most ASR providers
// expect. A conversion failure is tolerated: the stage falls back to
// whatever audio it was given rather than blocking transcription on it.
func (ex *execution) convertForASR(ctx context.Context, audioPath string) string {
	outPath := ex.path("audio-asr.wav")

	_, err := retry.Do(ctx, ex.eng.RetryConfig, func(ctx context.Context) (struct{}, error) {
		cctx, cancel := context.WithTimeout(ctx, ex.eng.Timeouts.Media)
		defer cancel()
		return struct{}{}, ex.eng.Media.ConvertForASR(cctx, audioPath, outPath)
	})
	if err != nil {
		ex.eng.Logger.Warn("asr conversion tolerated failure", "job_id", ex.p.JobID, "err", err)
		return audioPath
	}
	return outPath
}

// --- TRANSCRIBE (tolerated) ---

func (ex *execution) transcribe(ctx context.Context, audioPath string) {
	start := time.Now()

	backend, err := ex.eng.ASR.Route(ex.p.ASRProvider)
	if err != nil {
		ex.transcriptText = fmt.Sprintf("%s: %v", asrErrorPrefix, err)
		ex.canonical = transcript.Transcript{Text: ex.transcriptText, Segments: []transcript.Segment{}}
		metrics.Errors.WithLabelValues("transcribe", "tolerated").Inc()
		return
	}

	raw, err := retry.Do(ctx, ex.eng.RetryConfig, func(ctx context.Context) ([]byte, error) {
		cctx, cancel := context.WithTimeout(ctx, ex.eng.Timeouts.ASR)
		defer cancel()
		return backend.Transcribe(cctx, audioPath, asr.Options{
			Language:   ex.p.ASRLanguage,
			Timestamps: ex.p.ASRTimestamps,
		})
	})

	metrics.StageDuration.WithLabelValues("transcribe").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.Errors.WithLabelValues("transcribe", "tolerated").Inc()
		ex.eng.Logger.Warn("transcribe tolerated failure", "job_id", ex.p.JobID, "err", err)
		ex.transcriptText = fmt.Sprintf("%s: %v", asrErrorPrefix, err)
		ex.canonical = transcript.Transcript{Text: ex.transcriptText, Segments: []transcript.Segment{}}
		return
	}

	ex.canonical = transcript.Normalize(raw)
	ex.transcriptText = ex.canonical.Text
}

// --- TRANSLATE (tolerated) ---

func (ex *execution) translate(ctx context.Context) {
	start := time.Now()

	backend, err := ex.eng.Translate.Route(ex.p.TranslateProvider)
	if err != nil {
		ex.translatedText = fmt.Sprintf("%s: %v", translationErrorPrefix, err)
		metrics.Errors.WithLabelValues("translate", "tolerated").Inc()
		return
	}

	out, err := retry.Do(ctx, ex.eng.RetryConfig, func(ctx context.Context) (string, error) {
		cctx, cancel := context.WithTimeout(ctx, ex.eng.Timeouts.Translate)
		defer cancel()
		return backend.Translate(cctx, ex.transcriptText, ex.p.TranslateTarget)
	})

	metrics.StageDuration.WithLabelValues("translate").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.Errors.WithLabelValues("translate", "tolerated").Inc()
		ex.eng.Logger.Warn("translate tolerated failure", "job_id", ex.p.JobID, "err", err)
		ex.translatedText = fmt.Sprintf("%s: %v", translationErrorPrefix, err)
		return
	}
	ex.translatedText = out
}

// ttsInputText selects translated text unless it carries the translate
// tolerated-failure sentinel, in which case it falls back to the transcript.
func (ex *execution) ttsInputText() string {
	if strings.HasPrefix(ex.translatedText, translationErrorPrefix) {
		return ex.transcriptText
	}
	return ex.translatedText
}

// ttsLanguageCode maps the configured target language to the locale tag the
// TTS providers expect, falling through to the engine's configured default.
// The target is parsed as a BCP-47 tag first so a caller-supplied value like
// "EN" or "en-GB" still resolves to its base subtag for the lookup.
func (ex *execution) ttsLanguageCode() string {
	if ex.p.TTSLanguage != "" {
		return ex.p.TTSLanguage
	}
	if mapped, ok := languageCodeMap[baseLanguageSubtag(ex.p.TranslateTarget)]; ok {
		return mapped
	}
	return ex.eng.DefaultTTSLanguage
}

// baseLanguageSubtag parses raw as a BCP-47 tag and returns its lowercase
// base language subtag (e.g. "en-GB" -> "en"); an unparseable tag falls back
// to a plain lowercase of the raw input.
func baseLanguageSubtag(raw string) string {
	tag, err := language.Parse(raw)
	if err != nil {
		return strings.ToLower(raw)
	}
	base, _ := tag.Base()
	return strings.ToLower(base.String())
}

// --- SYNTHESIZE (tolerated) ---

func (ex *execution) synthesize(ctx context.Context) bool {
	start := time.Now()
	outPath := ex.path("tts.mp3")

	backend, err := ex.eng.TTS.Route(ex.p.TTSProvider)
	if err == nil {
		_, err = retry.Do(ctx, ex.eng.RetryConfig, func(ctx context.Context) (struct{}, error) {
			cctx, cancel := context.WithTimeout(ctx, ex.eng.Timeouts.TTS)
			defer cancel()
			voice := ex.p.TTSVoice
			if voice == "" {
				voice = ex.eng.DefaultTTSVoice
			}
			return struct{}{}, backend.Synthesize(cctx, ex.ttsInputText(), outPath, tts.Options{
				Voice:        voice,
				LanguageCode: ex.ttsLanguageCode(),
				Encoding:     "mp3",
			})
		})
	}

	metrics.StageDuration.WithLabelValues("synthesize").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.Errors.WithLabelValues("synthesize", "tolerated").Inc()
		ex.eng.Logger.Warn("synthesize tolerated failure", "job_id", ex.p.JobID, "err", err)
		ex.writeMarker("tts.mp3.error.txt", err)
		return false
	}
	ex.result["tts"] = outPath
	return true
}

// --- SUBTITLE BUILD (part of burn, tolerated by construction: no marker,
// simply no srt artifact if no cues can be built or the file cannot be
// written; a failed probe falls back to a 1-second total duration) ---

func (ex *execution) buildSubtitles(ctx context.Context) (string, bool) {
	text := ex.ttsInputText()

	var cues []subtitle.Cue
	switch {
	case ex.canonical.HasWordTiming():
		cues = subtitle.BuildFromWords(ex.canonical.Words(), ex.eng.SRTBounds)
	case len(ex.canonical.Segments) > 0:
		cues = subtitle.BuildFromSegments(ex.canonical.Segments)
	default:
		total := 1.0
		cctx, cancel := context.WithTimeout(ctx, ex.eng.Timeouts.Media)
		if probe, err := ex.eng.Media.Probe(cctx, ex.p.SourcePath); err == nil && probe.DurationSec > total {
			total = probe.DurationSec
		}
		cancel()
		cues = subtitle.BuildProportional(text, total)
	}

	if len(cues) == 0 {
		return "", false
	}

	outPath := ex.srtPath()
	if err := os.WriteFile(outPath, []byte(subtitle.Render(cues)), 0o644); err != nil {
		ex.eng.Logger.Warn("write srt failed", "job_id", ex.p.JobID, "err", err)
		return "", false
	}
	return outPath, true
}

// --- MERGE (tolerated; skipped entirely when TTS failed) ---

func (ex *execution) merge(ctx context.Context, burnSRTPath string) {
	start := time.Now()

	cctx, cancel := context.WithTimeout(ctx, ex.eng.Timeouts.Media)
	probe, err := ex.eng.Media.Probe(cctx, ex.p.SourcePath)
	cancel()
	if err != nil {
		metrics.Errors.WithLabelValues("merge", "tolerated").Inc()
		ex.writeMarker("merge.error.txt", err)
		return
	}
	if !probe.HasVideoStream() {
		ex.writeMarker("merge.skip.txt", fmt.Errorf("source has no video stream"))
		return
	}

	mode := media.MergeReplace
	if ex.p.MergeMode == queue.MergeMix {
		mode = media.MergeMix
	}

	ttsDuration := 0.0
	if mode == media.MergeMix {
		cctx, cancel := context.WithTimeout(ctx, ex.eng.Timeouts.Media)
		if ttsProbe, err := ex.eng.Media.Probe(cctx, ex.result["tts"]); err == nil {
			ttsDuration = ttsProbe.DurationSec
		}
		cancel()
	}

	outPath := ex.path("dubbed.mp4")
	_, err = retry.Do(ctx, ex.eng.RetryConfig, func(ctx context.Context) (struct{}, error) {
		cctx, cancel := context.WithTimeout(ctx, ex.eng.Timeouts.Media)
		defer cancel()
		return struct{}{}, ex.eng.Media.Merge(cctx, ex.p.SourcePath, ex.result["tts"], outPath, media.MergeOptions{
			Mode:           mode,
			TTSDurationSec: ttsDuration,
			BurnSRTPath:    burnSRTPath,
		})
	})

	metrics.StageDuration.WithLabelValues("merge").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.Errors.WithLabelValues("merge", "tolerated").Inc()
		ex.eng.Logger.Warn("merge tolerated failure", "job_id", ex.p.JobID, "err", err)
		ex.writeMarker("merge.error.txt", err)
		return
	}
	ex.result["dubbed"] = outPath
}

// writeMarker persists a per-failure marker file next to the stem so users
// can diagnose a tolerated failure without opening logs.
func (ex *execution) writeMarker(name string, cause error) {
	path := ex.path(name)
	if err := os.WriteFile(path, []byte(cause.Error()+"\n"), 0o644); err != nil {
		ex.eng.Logger.Warn("write marker failed", "job_id", ex.p.JobID, "marker", name, "err", err)
	}
}

func (e *Engine) logError(stage, jobID string, err error) {
	e.Logger.Error("stage fatal failure", "job_id", jobID, "stage", stage, "err", err)
}
