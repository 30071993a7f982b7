// Package server implements the HTTP API and websocket endpoints. It
// relays browser audio to the upstream transcription service, streams
// cart events to kiosk displays, and exposes menu, cart, ingestion and
// monitoring routes.
package server
