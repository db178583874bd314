// Package pipeline processes one utterance from raw audio to a reply.
package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-reader/internal/compose"
	"github.com/lexiqai/voice-reader/internal/observability"
	"github.com/lexiqai/voice-reader/internal/retrieval"
	"github.com/lexiqai/voice-reader/internal/stt"
	"github.com/lexiqai/voice-reader/internal/translate"
	"github.com/lexiqai/voice-reader/internal/voice"
)

// Stage names used in logs and metrics
const (
	StageRetrieve  = "retrieve"
	StageTranscode = "transcode"
	StageRecognize = "recognize"
	StagePhonetic  = "phonetic"
	StageTranslate = "translate"
	StageCompose   = "compose"
)

// Normalizer converts fetched audio to what the recognizer accepts
type Normalizer interface {
	Normalize(blob voice.AudioBlob) (voice.AudioBlob, error)
}

// Reader produces the phonetic reading of a transcript
type Reader interface {
	Convert(text string) (voice.PhoneticReading, error)
}

// Config holds per-event parameters
type Config struct {
	LanguageHint     string // ASR locale, e.g. ja-JP
	SourceLanguage   string
	TargetLanguage   string
	TranslateTimeout time.Duration
}

// Pipeline wires the stages for one event
type Pipeline struct {
	fetcher    retrieval.Fetcher
	normalizer Normalizer
	recognizer stt.Recognizer
	reader     Reader
	translator translate.Translator
	composer   *compose.Composer
	config     Config
}

// New creates a pipeline
func New(
	fetcher retrieval.Fetcher,
	normalizer Normalizer,
	recognizer stt.Recognizer,
	reader Reader,
	translator translate.Translator,
	composer *compose.Composer,
	config Config,
) *Pipeline {
	return &Pipeline{
		fetcher:    fetcher,
		normalizer: normalizer,
		recognizer: recognizer,
		reader:     reader,
		translator: translator,
		composer:   composer,
		config:     config,
	}
}

// Process runs every stage for event and returns the reply to deliver.
// Failures before a transcript exists become a notice; reading and
// translation failures become markers in the composed reply.
func (p *Pipeline) Process(ctx context.Context, event voice.Event) voice.Reply {
	logger := observability.WithCorrelationID(observability.NewCorrelationID()).
		With().Str("event_id", event.ID).Logger()
	metrics := observability.NewEventMetrics(event.ID)
	metrics.RecordEventStart()

	reply, outcome := p.process(ctx, event, logger, metrics)
	metrics.RecordEventEnd(outcome)
	logger.Info().Str("outcome", outcome).Msg("Event processed")
	return reply
}

func (p *Pipeline) process(ctx context.Context, event voice.Event, logger zerolog.Logger, metrics *observability.Metrics) (voice.Reply, string) {
	fail := func(stage string, err error) (voice.Reply, string) {
		kind := voice.KindOf(err)
		metrics.RecordError(kind.String(), stage)
		logger.Warn().Err(err).Str("stage", stage).Str("kind", kind.String()).Msg("Pipeline aborted")
		return compose.NoticeReply(event, err), kind.String()
	}

	metrics.RecordStageStart(StageRetrieve)
	raw, err := p.fetcher.Fetch(ctx, event.Source)
	metrics.RecordStageEnd(StageRetrieve, err == nil)
	if err != nil {
		return fail(StageRetrieve, ensureKind(err, voice.KindRetrieval, "pipeline.retrieve"))
	}
	metrics.RecordAudioBytes(StageRetrieve, int64(len(raw.Data)))

	metrics.RecordStageStart(StageTranscode)
	normalized, err := p.normalizer.Normalize(raw)
	metrics.RecordStageEnd(StageTranscode, err == nil)
	if err != nil {
		return fail(StageTranscode, ensureKind(err, voice.KindTranscode, "pipeline.transcode"))
	}
	metrics.RecordAudioBytes(StageTranscode, int64(len(normalized.Data)))

	metrics.RecordStageStart(StageRecognize)
	transcription := p.recognizer.Transcribe(ctx, normalized, p.config.LanguageHint)
	metrics.RecordStageEnd(StageRecognize, transcription.OK())
	metrics.RecordTranscription(transcription.Status.String())
	if !transcription.OK() {
		return fail(StageRecognize, transcription.Err())
	}
	logger.Debug().Str("transcription", transcription.Text).Msg("Transcribed")

	var (
		wg          sync.WaitGroup
		reading     voice.PhoneticReading
		readingErr  error
		translation voice.TranslationResult
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		metrics.RecordStageStart(StagePhonetic)
		reading, readingErr = p.reader.Convert(transcription.Text)
		metrics.RecordStageEnd(StagePhonetic, readingErr == nil)
	}()
	go func() {
		defer wg.Done()
		tctx := ctx
		if p.config.TranslateTimeout > 0 {
			var cancel context.CancelFunc
			tctx, cancel = context.WithTimeout(ctx, p.config.TranslateTimeout)
			defer cancel()
		}
		metrics.RecordStageStart(StageTranslate)
		translation = p.translator.Translate(tctx, transcription.Text, p.config.SourceLanguage, p.config.TargetLanguage)
		metrics.RecordStageEnd(StageTranslate, translation.OK())
	}()
	wg.Wait()

	metrics.RecordTranslation(translation.Status.String())
	if readingErr != nil {
		metrics.RecordError(voice.KindPhoneticConversion.String(), StagePhonetic)
		logger.Warn().Err(readingErr).Msg("Reading unavailable")
	}
	if !translation.OK() {
		metrics.RecordError(voice.KindTranslation.String(), StageTranslate)
		logger.Warn().Str("detail", translation.Detail).Msg("Translation unavailable")
	}

	metrics.RecordStageStart(StageCompose)
	composed, err := p.composer.Compose(transcription, reading, readingErr, translation, event)
	metrics.RecordStageEnd(StageCompose, err == nil)
	if err != nil {
		return fail(StageCompose, voice.E(voice.KindRecognitionFailure, "pipeline.compose", err))
	}

	outcome := "composed"
	if !composed.ReadingOK || !composed.TranslationOK {
		outcome = "partial"
	}
	return compose.ComposedReply(event, composed), outcome
}

// Stages are expected to classify their errors; anything that slips through gets the stage's kind
func ensureKind(err error, kind voice.Kind, op string) error {
	if voice.KindOf(err) != voice.KindUnknown {
		return err
	}
	return voice.E(kind, op, err)
}
