package source

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/machinepulse/machinepulse/internal/config"
)

type s3Source struct {
	line    config.Line
	mapping mapping

	// getObject opens the configured object. Injectable for tests.
	getObject func(ctx context.Context) (io.ReadCloser, error)
}

func newS3Source(line config.Line) (*s3Source, error) {
	host, secure, err := splitObjectEndpoint(line.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("source %q: %w", line.ID, err)
	}
	opts := &minio.Options{
		Creds:  credentials.NewStaticV4(line.AccessKey(), line.SecretKey(), ""),
		Secure: secure,
		Region: line.Region,
	}
	if line.TLS.InsecureSkipVerify {
		opts.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec // user-configured
		}
	}
	client, err := minio.New(host, opts)
	if err != nil {
		return nil, fmt.Errorf("source %q: create s3 client: %w", line.ID, err)
	}

	s := &s3Source{line: line, mapping: newMapping(line, defaultCSVColumns, defaultCSVFailure)}
	s.getObject = func(ctx context.Context) (io.ReadCloser, error) {
		return client.GetObject(ctx, line.Bucket, line.Object, minio.GetObjectOptions{})
	}
	return s, nil
}

// Fetch downloads the CSV object and parses it. The object is re-read on
// every refresh.
func (s *s3Source) Fetch(ctx context.Context) (*Batch, error) {
	b := newBatch(s.line)

	obj, err := s.getObject(ctx)
	if err != nil {
		b.Err = fmt.Errorf("s3 source %q: get %s/%s: %w", s.line.ID, s.line.Bucket, s.line.Object, err)
		slog.Warn("source: s3 get failed", "line", s.line.ID, "bucket", s.line.Bucket, "object", s.line.Object, "err", err)
		return b, nil
	}
	defer obj.Close()

	readings, err := ParseCSV(obj, s.mapping.columns, s.mapping.failure)
	if err != nil {
		b.Err = fmt.Errorf("s3 source %q: %w", s.line.ID, err)
		slog.Warn("source: s3 parse failed", "line", s.line.ID, "object", s.line.Object, "err", err)
		return b, nil
	}
	b.Readings = readings
	return b, nil
}

// splitObjectEndpoint turns "http://minio:9000" into ("minio:9000", false).
// An endpoint without a scheme is assumed to use TLS.
func splitObjectEndpoint(endpoint string) (host string, secure bool, err error) {
	if !strings.Contains(endpoint, "://") {
		return endpoint, true, nil
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", false, fmt.Errorf("parse endpoint %q: %w", endpoint, err)
	}
	switch u.Scheme {
	case "http":
		return u.Host, false, nil
	case "https":
		return u.Host, true, nil
	default:
		return "", false, fmt.Errorf("endpoint %q: unsupported scheme %q", endpoint, u.Scheme)
	}
}
