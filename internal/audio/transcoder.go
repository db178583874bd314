package audio

import (
	"bytes"
	"fmt"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/lexiqai/voice-reader/internal/voice"
)

// Target describes the audio a recognizer accepts. Output is always mono 16-bit.
type Target struct {
	Format     voice.AudioFormat // FormatPCM or FormatWAV
	SampleRate int
}

// PCM is decoded, interleaved 16-bit audio
type PCM struct {
	Samples    []int16
	SampleRate int
	Channels   int
}

// DecodeFunc turns an encoded blob into PCM
type DecodeFunc func(blob voice.AudioBlob) (PCM, error)

// Option customizes a Transcoder
type Option func(*Transcoder)

// WithDecoder registers (or replaces) the decoder for a container format
func WithDecoder(format voice.AudioFormat, fn DecodeFunc) Option {
	return func(t *Transcoder) {
		t.decoders[format] = fn
	}
}

// WithTempDir sets where WAV working files are created
func WithTempDir(dir string) Option {
	return func(t *Transcoder) {
		t.tempDir = dir
	}
}

// Transcoder normalizes arbitrary input audio to a recognizer's target format
type Transcoder struct {
	target   Target
	decoders map[voice.AudioFormat]DecodeFunc
	tempDir  string
}

// NewTranscoder creates a transcoder with the WAV and raw PCM decoders registered
func NewTranscoder(target Target, opts ...Option) *Transcoder {
	if target.SampleRate <= 0 {
		target.SampleRate = 16000
	}
	if target.Format == "" {
		target.Format = voice.FormatPCM
	}

	t := &Transcoder{
		target: target,
		decoders: map[voice.AudioFormat]DecodeFunc{
			voice.FormatWAV: DecodeWAV,
			voice.FormatPCM: decodeRawPCM,
		},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Target returns the format this transcoder produces
func (t *Transcoder) Target() Target {
	return t.target
}

// Normalize converts blob to the target format. Input that already matches
// the target is returned as is.
func (t *Transcoder) Normalize(blob voice.AudioBlob) (voice.AudioBlob, error) {
	const op = "audio.normalize"

	if len(blob.Data) == 0 {
		return voice.AudioBlob{}, voice.E(voice.KindTranscode, op, fmt.Errorf("%w: empty payload", voice.ErrDecode))
	}
	if t.matches(blob) {
		return blob, nil
	}

	decode, ok := t.decoders[blob.Format]
	if !ok {
		return voice.AudioBlob{}, voice.E(voice.KindTranscode, op, fmt.Errorf("%w: %q", voice.ErrUnsupportedFormat, blob.Format))
	}

	pcm, err := decode(blob)
	if err != nil {
		return voice.AudioBlob{}, voice.E(voice.KindTranscode, op, fmt.Errorf("%w: %v", voice.ErrDecode, err))
	}
	if len(pcm.Samples) == 0 || pcm.SampleRate <= 0 || pcm.Channels <= 0 {
		return voice.AudioBlob{}, voice.E(voice.KindTranscode, op, fmt.Errorf("%w: no audio frames", voice.ErrDecode))
	}

	mono := Downmix(pcm.Samples, pcm.Channels)
	mono = Resample(mono, pcm.SampleRate, t.target.SampleRate)

	out := voice.AudioBlob{
		Format:     t.target.Format,
		SampleRate: t.target.SampleRate,
		Channels:   1,
	}

	switch t.target.Format {
	case voice.FormatPCM:
		out.Data = SamplesToBytes(mono)
	case voice.FormatWAV:
		data, err := EncodeWAV(mono, t.target.SampleRate, t.tempDir)
		if err != nil {
			return voice.AudioBlob{}, voice.E(voice.KindTranscode, op, err)
		}
		out.Data = data
	default:
		return voice.AudioBlob{}, voice.E(voice.KindTranscode, op, fmt.Errorf("%w: target %q", voice.ErrUnsupportedFormat, t.target.Format))
	}

	return out, nil
}

func (t *Transcoder) matches(blob voice.AudioBlob) bool {
	return blob.Format == t.target.Format &&
		blob.SampleRate == t.target.SampleRate &&
		blob.Channels == 1
}

func decodeRawPCM(blob voice.AudioBlob) (PCM, error) {
	if blob.SampleRate <= 0 {
		return PCM{}, fmt.Errorf("raw PCM without a sample rate")
	}
	channels := blob.Channels
	if channels <= 0 {
		channels = 1
	}

	samples, err := BytesToSamples(blob.Data)
	if err != nil {
		return PCM{}, err
	}
	return PCM{Samples: samples, SampleRate: blob.SampleRate, Channels: channels}, nil
}

// DecodeWAV reads a PCM WAV file of 8, 16, 24 or 32 bits
func DecodeWAV(blob voice.AudioBlob) (PCM, error) {
	dec := wav.NewDecoder(bytes.NewReader(blob.Data))
	if !dec.IsValidFile() {
		return PCM{}, fmt.Errorf("invalid wav file")
	}
	if dec.WavAudioFormat != 1 {
		return PCM{}, fmt.Errorf("wav encoding %d is not linear PCM", dec.WavAudioFormat)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return PCM{}, fmt.Errorf("read wav samples: %w", err)
	}

	samples := make([]int16, len(buf.Data))
	for i, v := range buf.Data {
		switch dec.BitDepth {
		case 8:
			// 8-bit WAV is unsigned
			samples[i] = int16((v - 128) << 8)
		case 16:
			samples[i] = int16(v)
		case 24:
			samples[i] = int16(v >> 8)
		case 32:
			samples[i] = int16(v >> 16)
		default:
			return PCM{}, fmt.Errorf("unsupported wav bit depth %d", dec.BitDepth)
		}
	}

	return PCM{
		Samples:    samples,
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
	}, nil
}

// EncodeWAV writes mono samples as a 16-bit WAV file in dir (os.TempDir when
// empty) and returns its bytes. The working file is always removed.
func EncodeWAV(samples []int16, sampleRate int, dir string) ([]byte, error) {
	file, err := os.CreateTemp(dir, "voice-*.wav")
	if err != nil {
		return nil, fmt.Errorf("create wav file: %w", err)
	}
	path := file.Name()
	defer os.Remove(path)

	if err := writeWAV(file, samples, sampleRate); err != nil {
		file.Close()
		return nil, err
	}
	if err := file.Close(); err != nil {
		return nil, fmt.Errorf("close wav file: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read wav file: %w", err)
	}
	return data, nil
}

func writeWAV(file *os.File, samples []int16, sampleRate int) error {
	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(s)
	}
	buffer := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}

	enc := wav.NewEncoder(file, sampleRate, 16, 1, 1)
	if err := enc.Write(buffer); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close wav encoder: %w", err)
	}
	return nil
}
