// Package audio handles WAV decoding and encoding for the classification pipeline.
// It turns raw byte buffers into normalized mono sample sequences with metadata
// and reports malformed input as permanent DecodeErrors.
package audio
