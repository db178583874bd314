package audio

import "time"

// peakLimit keeps captured peaks about 1 dB below full scale
const peakLimit int16 = 29200

// UtteranceCollector gathers captured frames into one utterance. It is done
// once speech has been followed by enough silence or the buffer is full.
type UtteranceCollector struct {
	vad *VADDetector
	buf *RingBuffer
}

// NewUtteranceCollector bounds the utterance to max of mono audio at sampleRate
func NewUtteranceCollector(vad *VADConfig, sampleRate int, max time.Duration) *UtteranceCollector {
	return &UtteranceCollector{
		vad: NewVADDetector(vad),
		buf: NewPCMBuffer(sampleRate, 1, max),
	}
}

// FrameSize returns how many samples each Add call should carry
func (c *UtteranceCollector) FrameSize() int {
	return c.vad.FrameSize()
}

// Add appends one frame and reports whether the utterance is complete
func (c *UtteranceCollector) Add(frame []int16) bool {
	data := SamplesToBytes(frame)
	if c.buf.Space() < len(data) {
		return true
	}
	c.buf.Write(data)

	_, _, ended := c.vad.ProcessFrame(frame)
	return ended
}

// HeardSpeech reports whether any collected frame contained speech
func (c *UtteranceCollector) HeardSpeech() bool {
	return c.vad.HeardSpeech()
}

// Bytes returns the collected little-endian PCM and empties the collector.
// Utterances that reach full scale are scaled down below peakLimit.
func (c *UtteranceCollector) Bytes() []byte {
	c.vad.Reset()
	samples, err := BytesToSamples(c.buf.Drain())
	if err != nil {
		// Only whole frames are written
		return nil
	}
	return SamplesToBytes(NormalizeAudio(samples, peakLimit))
}
