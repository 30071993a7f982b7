// Package transcription provides the websocket client for the upstream
// speech-to-text service, with retry on connect and a message iterator
// per live stream.
package transcription
