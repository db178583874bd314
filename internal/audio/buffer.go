package audio

import (
	"sync"
	"time"
)

// RingBuffer is a bounded, thread-safe byte FIFO for captured audio.
// Writes stop at capacity instead of overwriting unread data.
type RingBuffer struct {
	buffer []byte
	size   int
	read   int
	write  int
	mu     sync.Mutex
}

// NewRingBuffer creates a ring buffer holding up to size-1 bytes
func NewRingBuffer(size int) *RingBuffer {
	if size < 2 {
		size = 2
	}
	return &RingBuffer{
		buffer: make([]byte, size),
		size:   size,
	}
}

// NewPCMBuffer creates a ring buffer for max of 16-bit PCM at the given rate and channel count
func NewPCMBuffer(sampleRate, channels int, max time.Duration) *RingBuffer {
	bytes := int64(sampleRate) * int64(channels) * 2 * int64(max) / int64(time.Second)
	return NewRingBuffer(int(bytes) + 1)
}

// Write appends data and returns how many bytes fit
func (rb *RingBuffer) Write(data []byte) int {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	written := 0
	for _, b := range data {
		if rb.full() {
			break
		}
		rb.buffer[rb.write] = b
		rb.write = (rb.write + 1) % rb.size
		written++
	}

	return written
}

// Read consumes up to len(data) bytes and returns how many were read
func (rb *RingBuffer) Read(data []byte) int {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	read := 0
	for i := range data {
		if rb.read == rb.write {
			break
		}
		data[i] = rb.buffer[rb.read]
		rb.read = (rb.read + 1) % rb.size
		read++
	}

	return read
}

// Drain consumes and returns everything buffered
func (rb *RingBuffer) Drain() []byte {
	rb.mu.Lock()
	n := rb.available()
	rb.mu.Unlock()

	out := make([]byte, n)
	return out[:rb.Read(out)]
}

// Space returns the number of bytes that can still be written
func (rb *RingBuffer) Space() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.size - rb.available() - 1
}

func (rb *RingBuffer) available() int {
	if rb.write >= rb.read {
		return rb.write - rb.read
	}
	return rb.size - rb.read + rb.write
}

// One slot stays free to tell full from empty
func (rb *RingBuffer) full() bool {
	return (rb.write+1)%rb.size == rb.read
}
