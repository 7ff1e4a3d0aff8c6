// Package ingest implements the optional MQTT ingestion path. The
// recorder device publishes a small notification after uploading each
// clip; the subscriber fetches the clip from the artifact store and
// hands it to the pipeline dispatcher.
package ingest
