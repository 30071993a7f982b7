package audio

import (
	"sync"
	"time"
)

// SampleBuffer accumulates converted PCM samples and hands them back as
// fixed-size chunks. The tail that does not yet fill a chunk stays buffered
// across calls.
type SampleBuffer struct {
	chunkSize int

	// Sample storage
	samples []int16

	// Timing and statistics
	lastUpdate    time.Time
	samplesIn     uint64
	chunksEmitted uint64

	mu sync.Mutex
}

// SampleBufferStats represents buffer statistics for monitoring
type SampleBufferStats struct {
	ChunkSize     int    `json:"chunk_size"`
	Pending       int    `json:"pending_samples"`
	SamplesIn     uint64 `json:"samples_in"`
	ChunksEmitted uint64 `json:"chunks_emitted"`
}

// NewSampleBuffer creates a sample buffer emitting chunks of chunkSize
// samples. A non-positive size falls back to ChunkSamples.
func NewSampleBuffer(chunkSize int) *SampleBuffer {
	if chunkSize <= 0 {
		chunkSize = ChunkSamples
	}
	return &SampleBuffer{
		chunkSize:  chunkSize,
		samples:    make([]int16, 0, chunkSize*2),
		lastUpdate: time.Now(),
	}
}

// Append adds samples and returns every complete chunk now available, in
// order. Each returned chunk is an independent copy of exactly chunkSize
// samples. The remainder stays buffered.
func (b *SampleBuffer) Append(samples []int16) [][]int16 {
	if len(samples) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastUpdate = time.Now()
	b.samplesIn += uint64(len(samples))
	b.samples = append(b.samples, samples...)

	var chunks [][]int16
	for len(b.samples) >= b.chunkSize {
		chunk := make([]int16, b.chunkSize)
		copy(chunk, b.samples[:b.chunkSize])
		chunks = append(chunks, chunk)
		b.chunksEmitted++

		// Shift the remainder to the front so the backing array is reused.
		remaining := copy(b.samples, b.samples[b.chunkSize:])
		b.samples = b.samples[:remaining]
	}

	return chunks
}

// Pending returns the number of buffered samples not yet emitted.
func (b *SampleBuffer) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.samples)
}

// Reset discards buffered samples and statistics.
func (b *SampleBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.samples = b.samples[:0]
	b.samplesIn = 0
	b.chunksEmitted = 0
	b.lastUpdate = time.Now()
}

// LastUpdate returns the time of the most recent append or reset.
func (b *SampleBuffer) LastUpdate() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastUpdate
}

// GetStats returns current buffer statistics
func (b *SampleBuffer) GetStats() SampleBufferStats {
	b.mu.Lock()
	defer b.mu.Unlock()

	return SampleBufferStats{
		ChunkSize:     b.chunkSize,
		Pending:       len(b.samples),
		SamplesIn:     b.samplesIn,
		ChunksEmitted: b.chunksEmitted,
	}
}
