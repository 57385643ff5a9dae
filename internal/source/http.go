package source

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/machinepulse/machinepulse/internal/config"
)

type httpSource struct {
	line    config.Line
	client  *http.Client
	mapping mapping
}

// Fetch downloads the CSV document at the line's endpoint and parses it.
func (s *httpSource) Fetch(ctx context.Context) (*Batch, error) {
	b := newBatch(s.line)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.line.Endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("http source %q: build request: %w", s.line.ID, err)
	}
	req.Header.Set("Accept", "text/csv, text/plain;q=0.9")

	resp, err := s.client.Do(req)
	if err != nil {
		b.Err = fmt.Errorf("http source %q: %w", s.line.ID, err)
		slog.Warn("source: http fetch failed", "line", s.line.ID, "err", err)
		return b, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b.Err = fmt.Errorf("http source %q: unexpected status %d", s.line.ID, resp.StatusCode)
		slog.Warn("source: http fetch failed", "line", s.line.ID, "status", resp.StatusCode)
		return b, nil
	}

	readings, err := ParseCSV(resp.Body, s.mapping.columns, s.mapping.failure)
	if err != nil {
		b.Err = fmt.Errorf("http source %q: %w", s.line.ID, err)
		slog.Warn("source: http parse failed", "line", s.line.ID, "err", err)
		return b, nil
	}
	b.Readings = readings
	return b, nil
}
