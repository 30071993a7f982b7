// Package stream provides relay session management and lifecycle handling.
// It tracks concurrent audio relay sessions, persists finished transcripts
// to the result store, and automatically cleans up inactive sessions based
// on configurable timeouts.
package stream
