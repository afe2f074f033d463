package session

import "sync"

// FrameBuffer is a bounded deque of opaque binary frames. When full, new
// frames are dropped so the buffer size never exceeds its capacity.
type FrameBuffer struct {
	mu       sync.Mutex
	frames   [][]byte
	capacity int
}

func NewFrameBuffer(capacity int) *FrameBuffer {
	if capacity <= 0 {
		capacity = 1
	}
	return &FrameBuffer{capacity: capacity}
}

// Append adds a frame in arrival order. Returns false when the frame was
// dropped because the buffer is full.
func (b *FrameBuffer) Append(frame []byte) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.frames) >= b.capacity {
		return false
	}
	b.frames = append(b.frames, frame)
	return true
}

// DrainTail removes and returns the last max frames, clearing the whole
// buffer. Returns nil when the buffer is empty.
func (b *FrameBuffer) DrainTail(max int) [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.frames) == 0 {
		return nil
	}

	start := 0
	if max > 0 && len(b.frames) > max {
		start = len(b.frames) - max
	}
	tail := b.frames[start:]

	out := make([][]byte, len(tail))
	copy(out, tail)
	b.frames = nil
	return out
}

// Len reports the current number of buffered frames.
func (b *FrameBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.frames)
}

// Clear empties the buffer.
func (b *FrameBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.frames = nil
}
