package transcription

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Config contains transcription stream client configuration
type Config struct {
	URL            string
	APIKey         string
	ConnectTimeout time.Duration
	MaxRetries     int
}

// Client dials the upstream transcription websocket service
type Client struct {
	config Config
	dialer *websocket.Dialer

	// Statistics
	totalDials   uint64
	successDials uint64
	failedDials  uint64
	totalRetries uint64

	mu sync.RWMutex
}

// ClientStats represents client statistics
type ClientStats struct {
	TotalDials   uint64  `json:"total_dials"`
	SuccessDials uint64  `json:"success_dials"`
	FailedDials  uint64  `json:"failed_dials"`
	SuccessRate  float64 `json:"success_rate"`
	TotalRetries uint64  `json:"total_retries"`
}

// NewClient creates a new transcription websocket client
func NewClient(config Config) (*Client, error) {
	if config.URL == "" {
		return nil, fmt.Errorf("url cannot be empty")
	}

	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = 5 * time.Second
	}

	if config.MaxRetries < 0 {
		config.MaxRetries = 3
	}

	dialer := &websocket.Dialer{
		HandshakeTimeout: config.ConnectTimeout,
	}

	return &Client{
		config: config,
		dialer: dialer,
	}, nil
}

// Dial connects to the transcription service and returns a live
// stream. Failed attempts are retried with exponential backoff.
func (c *Client) Dial(ctx context.Context) (*Stream, error) {
	c.incrementTotalDials()

	var lastErr error

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			c.incrementTotalRetries()

			backoffTime := time.Duration(math.Pow(2, float64(attempt-1))) * time.Second
			if backoffTime > 30*time.Second {
				backoffTime = 30 * time.Second
			}

			select {
			case <-time.After(backoffTime):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		stream, err := c.dialOnce(ctx)
		if err == nil {
			c.incrementSuccessDials()
			return stream, nil
		}

		lastErr = err
	}

	c.incrementFailedDials()
	return nil, fmt.Errorf("transcription connect failed after %d attempts: %w", c.config.MaxRetries+1, lastErr)
}

// dialOnce performs a single websocket handshake
func (c *Client) dialOnce(ctx context.Context) (*Stream, error) {
	header := http.Header{}
	if c.config.APIKey != "" {
		header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	conn, resp, err := c.dialer.DialContext(ctx, c.config.URL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket dial failed with status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}

	return newStream(conn), nil
}

// Statistics methods
func (c *Client) incrementTotalDials() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalDials++
}

func (c *Client) incrementSuccessDials() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.successDials++
}

func (c *Client) incrementFailedDials() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failedDials++
}

func (c *Client) incrementTotalRetries() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalRetries++
}

// GetStats returns current client statistics
func (c *Client) GetStats() ClientStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	successRate := float64(0)
	if c.totalDials > 0 {
		successRate = float64(c.successDials) / float64(c.totalDials) * 100
	}

	return ClientStats{
		TotalDials:   c.totalDials,
		SuccessDials: c.successDials,
		FailedDials:  c.failedDials,
		SuccessRate:  successRate,
		TotalRetries: c.totalRetries,
	}
}
