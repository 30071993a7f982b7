// Package store persists completed transcription results in a badger
// key-value database.
package store
