// Package server provides the HTTP API for the laundry alert service.
// It exposes the clip ingestion endpoint together with health, stats,
// configuration and Prometheus metrics endpoints.
package server
