// Package storage implements the HTTP client for the clip object store:
// fetching raw audio bytes and signaling artifact deletion after a clip has
// been processed.
package storage
