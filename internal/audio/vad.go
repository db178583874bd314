package audio

import "time"

// FrameDuration is the analysis window of the voice activity detector
const FrameDuration = 20 * time.Millisecond

// VADConfig holds configuration for Voice Activity Detection
type VADConfig struct {
	EnergyThreshold float64 // RMS energy threshold for speech detection
	SilenceFrames   int     // Consecutive silent frames that end an utterance
	FrameSize       int     // Samples per frame
}

// NewVADConfig sizes frames to FrameDuration at the given sample rate
func NewVADConfig(threshold float64, silenceFrames, sampleRate int) *VADConfig {
	frameSize := int(int64(sampleRate) * int64(FrameDuration) / int64(time.Second))
	if frameSize <= 0 {
		frameSize = 1
	}
	return &VADConfig{
		EnergyThreshold: threshold,
		SilenceFrames:   silenceFrames,
		FrameSize:       frameSize,
	}
}

// VADDetector tracks speech/silence transitions over consecutive frames
type VADDetector struct {
	config         *VADConfig
	silenceCounter int
	isSpeaking     bool
	heardSpeech    bool
}

// NewVADDetector creates a new VAD detector
func NewVADDetector(config *VADConfig) *VADDetector {
	if config == nil {
		config = NewVADConfig(500.0, 25, 16000)
	}
	return &VADDetector{config: config}
}

// ProcessFrame classifies one frame.
// Returns: (isSpeaking, speechStarted, speechEnded)
func (v *VADDetector) ProcessFrame(samples []int16) (bool, bool, bool) {
	var speechStarted, speechEnded bool

	if CalculateRMS(samples) > v.config.EnergyThreshold {
		v.silenceCounter = 0
		if !v.isSpeaking {
			speechStarted = true
			v.isSpeaking = true
			v.heardSpeech = true
		}
		return v.isSpeaking, speechStarted, speechEnded
	}

	v.silenceCounter++
	if v.isSpeaking && v.silenceCounter >= v.config.SilenceFrames {
		speechEnded = true
		v.isSpeaking = false
		v.silenceCounter = 0
	}

	return v.isSpeaking, speechStarted, speechEnded
}

// Reset resets the VAD detector state
func (v *VADDetector) Reset() {
	v.silenceCounter = 0
	v.isSpeaking = false
	v.heardSpeech = false
}

// HeardSpeech reports whether any frame since the last Reset contained speech
func (v *VADDetector) HeardSpeech() bool {
	return v.heardSpeech
}

// FrameSize returns the number of samples per analysis frame
func (v *VADDetector) FrameSize() int {
	return v.config.FrameSize
}
