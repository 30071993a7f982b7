package audio

import (
	"sync"
)

// Downsampling output framing. Every emitted chunk carries exactly
// ChunkSamples 16-bit samples encoded little-endian.
const (
	ChunkSamples = 1024
	ChunkBytes   = ChunkSamples * 2
)

// Downsampler converts float audio at a source rate into 16-bit signed PCM
// at a target rate using nearest-neighbor decimation. There is no
// anti-aliasing filter: the output feeds speech transcription, not playback.
// Converted samples accumulate in a SampleBuffer and leave as fixed-size
// binary chunks; the remainder persists across calls so block boundaries
// never drop samples.
type Downsampler struct {
	sourceRate int
	targetRate int
	ratio      float64

	buffer *SampleBuffer

	// Statistics
	blocksIn   uint64
	samplesIn  uint64
	samplesOut uint64

	mu sync.RWMutex
}

// DownsamplerStats represents downsampler statistics
type DownsamplerStats struct {
	SourceRate    int    `json:"source_rate"`
	TargetRate    int    `json:"target_rate"`
	BlocksIn      uint64 `json:"blocks_in"`
	SamplesIn     uint64 `json:"samples_in"`
	SamplesOut    uint64 `json:"samples_out"`
	ChunksEmitted uint64 `json:"chunks_emitted"`
	Pending       int    `json:"pending_samples"`
}

// NewDownsampler creates a downsampler from sourceRate to targetRate.
// Non-positive rates fall back to a pass-through ratio of 1 so processing
// can never fail at runtime.
func NewDownsampler(sourceRate, targetRate int) *Downsampler {
	ratio := 1.0
	if sourceRate > 0 && targetRate > 0 {
		ratio = float64(sourceRate) / float64(targetRate)
	}
	return &Downsampler{
		sourceRate: sourceRate,
		targetRate: targetRate,
		ratio:      ratio,
		buffer:     NewSampleBuffer(ChunkSamples),
	}
}

// Process consumes one block of float samples in [-1, 1] and returns zero or
// more complete chunks of little-endian PCM bytes (ChunkBytes each). The
// stride phase restarts at zero for every block; only the accumulated output
// carries over. Empty input does no work and returns nil.
func (d *Downsampler) Process(samples []float32) [][]byte {
	if len(samples) == 0 {
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.blocksIn++
	d.samplesIn += uint64(len(samples))

	converted := make([]int16, 0, int(float64(len(samples))/d.ratio)+1)
	for pos := 0.0; int(pos) < len(samples); pos += d.ratio {
		converted = append(converted, pcm16(samples[int(pos)]))
	}
	d.samplesOut += uint64(len(converted))

	full := d.buffer.Append(converted)
	if len(full) == 0 {
		return nil
	}

	chunks := make([][]byte, 0, len(full))
	for _, c := range full {
		chunks = append(chunks, EncodePCM16LE(c))
	}
	return chunks
}

// Pending returns the number of converted samples waiting for a full chunk.
func (d *Downsampler) Pending() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.buffer.Pending()
}

// Reset discards any accumulated samples and statistics.
func (d *Downsampler) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.buffer.Reset()
	d.blocksIn = 0
	d.samplesIn = 0
	d.samplesOut = 0
}

// Ratio returns the decimation ratio (source samples per output sample).
func (d *Downsampler) Ratio() float64 {
	return d.ratio
}

// GetStats returns current downsampler statistics
func (d *Downsampler) GetStats() DownsamplerStats {
	d.mu.RLock()
	defer d.mu.RUnlock()

	bufStats := d.buffer.GetStats()
	return DownsamplerStats{
		SourceRate:    d.sourceRate,
		TargetRate:    d.targetRate,
		BlocksIn:      d.blocksIn,
		SamplesIn:     d.samplesIn,
		SamplesOut:    d.samplesOut,
		ChunksEmitted: bufStats.ChunksEmitted,
		Pending:       bufStats.Pending,
	}
}
