// Package oggopus decodes Ogg/Opus voice notes with libopusfile.
package oggopus

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"gopkg.in/hraban/opus.v2"

	"github.com/lexiqai/voice-reader/internal/audio"
	"github.com/lexiqai/voice-reader/internal/voice"
)

// SampleRate is the rate libopusfile always decodes to
const SampleRate = 48000

// maxFrameSamples is 120ms at 48kHz, the longest Opus packet
const maxFrameSamples = 5760

// Decode turns an Ogg/Opus blob into interleaved 48kHz PCM
func Decode(blob voice.AudioBlob) (audio.PCM, error) {
	channels, err := audio.OpusChannels(blob.Data)
	if err != nil {
		return audio.PCM{}, err
	}

	stream, err := opus.NewStream(bytes.NewReader(blob.Data))
	if err != nil {
		return audio.PCM{}, fmt.Errorf("open opus stream: %w", err)
	}
	defer stream.Close()

	frame := make([]int16, maxFrameSamples*channels)
	samples := make([]int16, 0, len(blob.Data)*8)
	for {
		n, err := stream.Read(frame)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return audio.PCM{}, fmt.Errorf("decode opus: %w", err)
		}
		samples = append(samples, frame[:n*channels]...)
	}

	return audio.PCM{Samples: samples, SampleRate: SampleRate, Channels: channels}, nil
}

// Option registers this decoder with an audio.Transcoder
func Option() audio.Option {
	return audio.WithDecoder(voice.FormatOggOpus, Decode)
}
