// Package audio implements the PCM processing pipeline: nearest-neighbor
// downsampling of float microphone samples to 16-bit PCM, fixed-size chunk
// buffering with carryover, and mono 16-bit WAV encoding/decoding.
package audio
