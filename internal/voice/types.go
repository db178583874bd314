package voice

import "strings"

// SourceKind tells a retriever how to obtain the audio for an event
type SourceKind string

const (
	SourceRemote SourceKind = "remote" // File hosted by the upstream service
	SourceLive   SourceKind = "live"   // Capture from the local input device
)

// AudioFormat identifies the container/encoding of an AudioBlob
type AudioFormat string

const (
	FormatOggOpus AudioFormat = "ogg_opus"
	FormatWAV     AudioFormat = "wav"
	FormatPCM     AudioFormat = "pcm_s16le" // Raw little-endian 16-bit samples, no header
)

// SourceRef points at the audio of one utterance
type SourceRef struct {
	Kind   SourceKind
	FileID string      // Upstream file reference (remote sources)
	URL    string      // Direct download URL when already known
	Format AudioFormat // Declared container format
}

// Destination identifies where the reply for an event goes
type Destination struct {
	Channel string // Chat or room identifier
	ReplyTo string // Message being replied to, if any
}

// Event is one incoming utterance to process
type Event struct {
	ID          string
	Source      SourceRef
	Destination Destination
}

// AudioBlob is a raw or normalized audio payload
type AudioBlob struct {
	Data       []byte
	Format     AudioFormat
	SampleRate int // 0 when unknown (compressed containers)
	Channels   int // 0 when unknown
}

// TranscriptionStatus is the outcome class of a recognition call
type TranscriptionStatus int

const (
	TranscriptionSuccess TranscriptionStatus = iota
	TranscriptionUnavailable
	TranscriptionUnrecognized
	TranscriptionFailure
)

func (s TranscriptionStatus) String() string {
	switch s {
	case TranscriptionSuccess:
		return "success"
	case TranscriptionUnavailable:
		return "unavailable"
	case TranscriptionUnrecognized:
		return "unrecognized"
	case TranscriptionFailure:
		return "failure"
	}
	return "unknown"
}

// TranscriptionResult is the outcome of recognition.
// Only a Success result carries Text, and its Text is never empty.
type TranscriptionResult struct {
	Status TranscriptionStatus
	Text   string
	Detail string
}

// Transcribed builds a success result. Blank text is reported as Unrecognized.
func Transcribed(text string) TranscriptionResult {
	text = strings.TrimSpace(text)
	if text == "" {
		return Unrecognized("empty transcript")
	}
	return TranscriptionResult{Status: TranscriptionSuccess, Text: text}
}

// Unavailable builds a result for an unreachable recognizer
func Unavailable(detail string) TranscriptionResult {
	return TranscriptionResult{Status: TranscriptionUnavailable, Detail: detail}
}

// Unrecognized builds a result for audio without intelligible speech
func Unrecognized(detail string) TranscriptionResult {
	return TranscriptionResult{Status: TranscriptionUnrecognized, Detail: detail}
}

// TranscriptionFailed builds a result for any other recognition failure
func TranscriptionFailed(detail string) TranscriptionResult {
	return TranscriptionResult{Status: TranscriptionFailure, Detail: detail}
}

// OK reports whether the result carries a transcript
func (r TranscriptionResult) OK() bool {
	return r.Status == TranscriptionSuccess && r.Text != ""
}

// Err converts a non-success result into a classified error, nil on success
func (r TranscriptionResult) Err() error {
	switch r.Status {
	case TranscriptionSuccess:
		return nil
	case TranscriptionUnavailable:
		return &Error{Kind: KindRecognitionUnavailable, Op: "transcribe", Err: detailErr(r.Detail)}
	case TranscriptionUnrecognized:
		return &Error{Kind: KindRecognitionUnrecognized, Op: "transcribe", Err: detailErr(r.Detail)}
	default:
		return &Error{Kind: KindRecognitionFailure, Op: "transcribe", Err: detailErr(r.Detail)}
	}
}

// Script names a phonetic writing system
type Script string

const ScriptHiragana Script = "hiragana"

// PhoneticReading is the pronunciation of a transcript in a given script
type PhoneticReading struct {
	Script Script
	Text   string
}

// TranslationStatus is the outcome class of a translation call
type TranslationStatus int

const (
	TranslationSuccess TranslationStatus = iota
	TranslationFailure
)

func (s TranslationStatus) String() string {
	if s == TranslationSuccess {
		return "success"
	}
	return "failure"
}

// TranslationResult is the outcome of translation
type TranslationResult struct {
	Status TranslationStatus
	Text   string
	Detail string
}

// Translated builds a success result. Blank output counts as a failure.
func Translated(text string) TranslationResult {
	text = strings.TrimSpace(text)
	if text == "" {
		return TranslationFailed("empty translation")
	}
	return TranslationResult{Status: TranslationSuccess, Text: text}
}

// TranslationFailed builds a failure result
func TranslationFailed(detail string) TranslationResult {
	return TranslationResult{Status: TranslationFailure, Detail: detail}
}

// OK reports whether the result carries a translation
func (r TranslationResult) OK() bool {
	return r.Status == TranslationSuccess && r.Text != ""
}

// ComposedReply is the final payload for a successfully transcribed event.
// Reading and Translation hold either content or an explicit failure marker.
type ComposedReply struct {
	Transcription string      `json:"transcription"`
	Reading       string      `json:"reading"`
	ReadingOK     bool        `json:"reading_ok"`
	Translation   string      `json:"translation"`
	TranslationOK bool        `json:"translation_ok"`
	ReferenceLink string      `json:"reference_link"`
	Destination   Destination `json:"-"`
}

// Notice is a user-visible message for an event whose pipeline was aborted
type Notice struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
}

// Reply is what an output sink receives: exactly one of Composed or Notice is set
type Reply struct {
	EventID     string         `json:"event_id"`
	Destination Destination    `json:"destination"`
	Composed    *ComposedReply `json:"composed,omitempty"`
	Notice      *Notice        `json:"notice,omitempty"`
}
