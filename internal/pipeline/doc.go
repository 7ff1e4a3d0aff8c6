// Package pipeline provides the per-clip dispatch and cleanup coordinator.
// It runs the decode, energy, peak and rhythm stages as an all-or-nothing
// state machine, hands composed events to the reporting collaborator, and
// signals source artifacts for deletion.
package pipeline
