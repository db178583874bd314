// Package capture records one utterance from the default input device.
package capture

import (
	"context"
	"fmt"
	"time"

	"github.com/gordonklaus/portaudio"
	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-reader/internal/audio"
	"github.com/lexiqai/voice-reader/internal/voice"
)

// Config controls a capture
type Config struct {
	SampleRate  int
	MaxDuration time.Duration
	VAD         *audio.VADConfig
}

// Device captures mono 16-bit audio from the default microphone
type Device struct {
	config Config
	logger zerolog.Logger
}

// NewDevice creates a capture device
func NewDevice(config Config, logger zerolog.Logger) *Device {
	if config.SampleRate <= 0 {
		config.SampleRate = 16000
	}
	if config.MaxDuration <= 0 {
		config.MaxDuration = 10 * time.Second
	}
	if config.VAD == nil {
		config.VAD = audio.NewVADConfig(500, 40, config.SampleRate)
	}
	return &Device{config: config, logger: logger.With().Str("component", "capture").Logger()}
}

// Fetch records until speech is followed by silence, the maximum duration
// is reached or ctx is done
func (d *Device) Fetch(ctx context.Context, ref voice.SourceRef) (voice.AudioBlob, error) {
	const op = "capture.fetch"

	if err := portaudio.Initialize(); err != nil {
		return voice.AudioBlob{}, voice.E(voice.KindRetrieval, op, fmt.Errorf("initialize portaudio: %w", err))
	}
	defer portaudio.Terminate()

	collector := audio.NewUtteranceCollector(d.config.VAD, d.config.SampleRate, d.config.MaxDuration)
	in := make([]int16, collector.FrameSize())

	stream, err := portaudio.OpenDefaultStream(1, 0, float64(d.config.SampleRate), len(in), in)
	if err != nil {
		return voice.AudioBlob{}, voice.E(voice.KindRetrieval, op, fmt.Errorf("open input stream: %w", err))
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return voice.AudioBlob{}, voice.E(voice.KindRetrieval, op, fmt.Errorf("start input stream: %w", err))
	}
	defer stream.Stop()

	d.logger.Info().Int("sample_rate", d.config.SampleRate).Msg("Recording")
	start := time.Now()

	for {
		if ctx.Err() != nil {
			return voice.AudioBlob{}, voice.E(voice.KindRetrieval, op, ctx.Err())
		}
		if err := stream.Read(); err != nil {
			return voice.AudioBlob{}, voice.E(voice.KindRetrieval, op, fmt.Errorf("read input stream: %w", err))
		}
		if collector.Add(in) {
			break
		}
	}

	heard := collector.HeardSpeech()
	data := collector.Bytes()
	d.logger.Info().
		Dur("duration", time.Since(start)).
		Int("bytes", len(data)).
		Bool("speech", heard).
		Msg("Recording finished")

	return voice.AudioBlob{
		Data:       data,
		Format:     voice.FormatPCM,
		SampleRate: d.config.SampleRate,
		Channels:   1,
	}, nil
}
