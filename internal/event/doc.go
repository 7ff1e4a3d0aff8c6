// Package event composes classification results into the immutable wire
// record consumed by the reporting collaborator.
package event
