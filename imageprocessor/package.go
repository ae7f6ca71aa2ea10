// Package imageprocessor decodes image files and computes their perceptual
// fingerprints. Decoding and hashing are free of side effects and safe to call
// from many goroutines at once.
package imageprocessor
