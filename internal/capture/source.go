package capture

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/sbenstewart/dutch-bros-hackathon/internal/audio"
)

// Source supplies blocks of float samples in [-1, 1] to a capture session.
// Read returns io.EOF once the source is exhausted.
type Source interface {
	Open() error
	Read() ([]float32, error)
	SampleRate() int
	Close() error
}

// FileSource serves a 16-bit mono WAV file as fixed-size sample blocks.
type FileSource struct {
	path      string
	blockSize int

	mu         sync.Mutex
	samples    []float32
	offset     int
	sampleRate int
	closed     bool
}

// NewFileSource creates a file source that reads path in blocks of
// blockSize samples. Non-positive block sizes fall back to 2048.
func NewFileSource(path string, blockSize int) *FileSource {
	if blockSize <= 0 {
		blockSize = 2048
	}
	return &FileSource{path: path, blockSize: blockSize}
}

// Open reads and decodes the whole file up front.
func (f *FileSource) Open() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if err != nil {
		return fmt.Errorf("failed to read audio file: %w", err)
	}

	samples, rate, err := audio.DecodeWAV(data)
	if err != nil {
		return fmt.Errorf("failed to decode audio file %s: %w", f.path, err)
	}

	f.samples = audio.ToFloat32(samples)
	f.offset = 0
	f.sampleRate = rate
	f.closed = false
	return nil
}

// Read returns the next block of samples, shorter at the tail, and io.EOF
// once the file is drained or the source closed.
func (f *FileSource) Read() ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed || f.offset >= len(f.samples) {
		return nil, io.EOF
	}
	end := f.offset + f.blockSize
	if end > len(f.samples) {
		end = len(f.samples)
	}
	block := f.samples[f.offset:end]
	f.offset = end
	return block, nil
}

// SampleRate returns the decoded sample rate. It is zero before Open.
func (f *FileSource) SampleRate() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sampleRate
}

// Close releases the decoded samples. Closing twice is a no-op.
func (f *FileSource) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.samples = nil
	f.closed = true
	return nil
}
