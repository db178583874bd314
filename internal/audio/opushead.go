package audio

import (
	"bytes"
	"fmt"
)

// Offset of the channel count from the start of the OpusHead magic
const opusChannelOffset = 9

var opusHeadMagic = []byte("OpusHead")

// OpusChannels reads the channel count from the first OpusHead
// identification header in an Ogg/Opus stream. Only mono and stereo
// streams are accepted.
func OpusChannels(data []byte) (int, error) {
	idx := bytes.Index(data, opusHeadMagic)
	if idx < 0 || idx+opusChannelOffset >= len(data) {
		return 0, fmt.Errorf("no OpusHead header")
	}
	channels := int(data[idx+opusChannelOffset])
	if channels < 1 || channels > 2 {
		return 0, fmt.Errorf("unsupported opus channel count %d", channels)
	}
	return channels, nil
}
