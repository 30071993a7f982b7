// Package capture drives a live transcription session from a local audio
// source. A session decodes the source, downsamples it to the upstream rate,
// relays fixed-size PCM chunks over a transcript stream and surfaces the
// partial and final transcripts that come back.
package capture
