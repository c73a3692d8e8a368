// Package history keeps the rolling error/confidence window shown on the trend chart.
package history

// DefaultCapacity is the number of ticks retained per series.
const DefaultCapacity = 120

// Buffer is a fixed-capacity FIFO of paired error and confidence samples.
// It is owned by a single session and is not safe for concurrent use.
type Buffer struct {
	capacity   int
	errors     []float64
	confidence []float64
	head       int
	size       int
}

func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{
		capacity:   capacity,
		errors:     make([]float64, capacity),
		confidence: make([]float64, capacity),
	}
}

// Push appends one sample, evicting the oldest once the buffer is full.
func (b *Buffer) Push(errorValue, confidenceValue float64) {
	idx := (b.head + b.size) % b.capacity
	if b.size == b.capacity {
		idx = b.head
		b.head = (b.head + 1) % b.capacity
	} else {
		b.size++
	}
	b.errors[idx] = errorValue
	b.confidence[idx] = confidenceValue
}

func (b *Buffer) Reset() {
	b.head = 0
	b.size = 0
}

func (b *Buffer) Len() int {
	return b.size
}

func (b *Buffer) Cap() int {
	return b.capacity
}

// Errors returns the error series oldest first.
func (b *Buffer) Errors() []float64 {
	return b.ordered(b.errors)
}

// Confidence returns the confidence series oldest first.
func (b *Buffer) Confidence() []float64 {
	return b.ordered(b.confidence)
}

func (b *Buffer) ordered(ring []float64) []float64 {
	out := make([]float64, b.size)
	for i := 0; i < b.size; i++ {
		out[i] = ring[(b.head+i)%b.capacity]
	}
	return out
}
