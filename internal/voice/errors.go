package voice

import (
	"errors"
	"fmt"
)

// Kind classifies every failure the pipeline and ingestion loop can report
type Kind int

const (
	KindUnknown Kind = iota
	KindRetrieval
	KindTranscode
	KindRecognitionUnavailable
	KindRecognitionUnrecognized
	KindRecognitionFailure
	KindTranslation
	KindPhoneticConversion
	KindConnectionLost
	KindFatalConfiguration
	KindDelivery
)

var kindNames = map[Kind]string{
	KindUnknown:                 "unknown",
	KindRetrieval:               "retrieval",
	KindTranscode:               "transcode",
	KindRecognitionUnavailable:  "recognition_unavailable",
	KindRecognitionUnrecognized: "recognition_unrecognized",
	KindRecognitionFailure:      "recognition_failure",
	KindTranslation:             "translation",
	KindPhoneticConversion:      "phonetic_conversion",
	KindConnectionLost:          "connection_lost",
	KindFatalConfiguration:      "fatal_configuration",
	KindDelivery:                "delivery",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// MarshalText lets a Kind appear by name in JSON payloads
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Causes wrapped inside an *Error to refine its kind
var (
	ErrNetwork           = errors.New("network error")
	ErrNotFound          = errors.New("not found")
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	ErrDecode            = errors.New("audio decode error")
)

// Error is a classified failure
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// E wraps err with a kind and the operation that failed
func E(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the outermost classified error in err's chain
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var ve *Error
	if errors.As(err, &ve) {
		return ve.Kind
	}
	return KindUnknown
}

// IsFatal reports whether err must stop the process
func IsFatal(err error) bool {
	return KindOf(err) == KindFatalConfiguration
}

func detailErr(detail string) error {
	if detail == "" {
		return nil
	}
	return errors.New(detail)
}
