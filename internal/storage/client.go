package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// Client talks to the bucket-style object store the recording devices
// upload to. Objects are addressed as {bucket_url}/{filename}.
type Client struct {
	bucketURL  string
	httpClient *http.Client

	// Statistics
	fetches        uint64
	deletes        uint64
	fetchFailures  uint64
	deleteFailures uint64

	mu sync.RWMutex
}

// ClientStats represents storage client statistics
type ClientStats struct {
	Fetches        uint64 `json:"fetches"`
	Deletes        uint64 `json:"deletes"`
	FetchFailures  uint64 `json:"fetch_failures"`
	DeleteFailures uint64 `json:"delete_failures"`
}

// NewClient creates an object-store client for the given bucket URL
func NewClient(bucketURL string, timeout time.Duration) (*Client, error) {
	if bucketURL == "" {
		return nil, fmt.Errorf("bucket URL cannot be empty")
	}

	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		bucketURL: strings.TrimSuffix(bucketURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// Fetch downloads the raw bytes of a stored clip
func (c *Client) Fetch(ctx context.Context, filename string) ([]byte, error) {
	objectURL, err := c.objectURL(filename)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, objectURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create fetch request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.recordFetch(false)
		return nil, fmt.Errorf("fetch %s failed: %w", filename, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.recordFetch(false)
		return nil, fmt.Errorf("fetch %s: HTTP %d", filename, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		c.recordFetch(false)
		return nil, fmt.Errorf("fetch %s: failed to read body: %w", filename, err)
	}

	c.recordFetch(true)
	return data, nil
}

// Delete signals deletion of a stored clip. A 404 means the object is
// already gone and is treated as success.
func (c *Client) Delete(ctx context.Context, filename string) error {
	objectURL, err := c.objectURL(filename)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, objectURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create delete request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.recordDelete(false)
		return fmt.Errorf("delete %s failed: %w", filename, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK &&
		resp.StatusCode != http.StatusNoContent &&
		resp.StatusCode != http.StatusNotFound {
		c.recordDelete(false)
		return fmt.Errorf("delete %s: HTTP %d", filename, resp.StatusCode)
	}

	c.recordDelete(true)
	return nil
}

// BucketURL returns the configured bucket base URL
func (c *Client) BucketURL() string {
	return c.bucketURL
}

// GetStats returns current storage client statistics
func (c *Client) GetStats() ClientStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return ClientStats{
		Fetches:        c.fetches,
		Deletes:        c.deletes,
		FetchFailures:  c.fetchFailures,
		DeleteFailures: c.deleteFailures,
	}
}

func (c *Client) objectURL(filename string) (string, error) {
	if filename == "" {
		return "", fmt.Errorf("filename cannot be empty")
	}

	if strings.Contains(filename, "/") || strings.Contains(filename, "..") {
		return "", fmt.Errorf("invalid filename: %s", filename)
	}

	return c.bucketURL + "/" + url.PathEscape(filename), nil
}

func (c *Client) recordFetch(ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fetches++
	if !ok {
		c.fetchFailures++
	}
}

func (c *Client) recordDelete(ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deletes++
	if !ok {
		c.deleteFailures++
	}
}
