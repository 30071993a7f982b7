// Package ingest drives recognized order hints into the cart one at a
// time, with pacing between items so the cart view stays legible.
package ingest
