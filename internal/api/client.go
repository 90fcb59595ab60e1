package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"sentinel-sim/internal/sim"
)

// ErrStreamClosed is returned when the server ends the stream.
var ErrStreamClosed = errors.New("stream closed by server")

const maxFrame = 64 << 20

// StreamClient follows a remote /api/stream endpoint.
type StreamClient struct {
	URL    string
	Client *http.Client
}

// NewStreamClient returns a client for the stream under baseURL.
func NewStreamClient(baseURL string) *StreamClient {
	return &StreamClient{URL: baseURL + "/api/stream", Client: http.DefaultClient}
}

// Stream calls fn for every snapshot until ctx ends, the server closes the
// stream or fn returns an error.
func (c *StreamClient) Stream(ctx context.Context, fn func(sim.Snapshot) error) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("connect %s: %w", c.URL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("connect %s: unexpected status %s", c.URL, resp.Status)
	}

	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 64*1024), maxFrame)
	var data bytes.Buffer
	for sc.Scan() {
		line := sc.Bytes()
		switch {
		case len(line) == 0:
			if data.Len() == 0 {
				continue
			}
			var snap sim.Snapshot
			if err := json.Unmarshal(data.Bytes(), &snap); err != nil {
				return fmt.Errorf("decode snapshot: %w", err)
			}
			data.Reset()
			if err := fn(snap); err != nil {
				return err
			}
		case bytes.HasPrefix(line, []byte("data:")):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.Write(bytes.TrimPrefix(bytes.TrimPrefix(line, []byte("data:")), []byte(" ")))
		}
	}
	if err := sc.Err(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return ErrStreamClosed
}
