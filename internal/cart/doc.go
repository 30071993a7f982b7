// Package cart holds the in-memory order cart and its merge engine.
// Lines carrying the same product, size and modifier selections are
// collapsed into one line with a summed quantity.
package cart
