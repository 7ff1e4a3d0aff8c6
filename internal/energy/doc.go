// Package energy computes per-frame RMS loudness profiles and classifies
// clips as sound versus silence against a configurable noise floor.
package energy
