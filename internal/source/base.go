package source

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"time"

	"github.com/machinepulse/machinepulse/internal/config"
	"github.com/machinepulse/machinepulse/pkg/types"
)

const defaultFetchTimeout = 10 * time.Second

// Batch is the output of one refresh for a single line.
type Batch struct {
	LineID    string
	Kind      string
	FetchedAt time.Time

	// Readings is the full ordered sequence to analyse. Callers must not
	// modify it; each Fetch returns a fresh slice.
	Readings []types.Reading

	// Err is non-nil if the source could not produce readings this cycle.
	// The compute engine treats a non-nil Err as an unknown state.
	Err error
}

// Source is the common interface implemented by every reading source.
type Source interface {
	Fetch(ctx context.Context) (*Batch, error)
}

// Starter is implemented by sources that consume in the background.
// Start blocks until ctx is cancelled.
type Starter interface {
	Start(ctx context.Context)
}

// New returns the appropriate Source for the given line configuration.
func New(line config.Line) (Source, error) {
	switch line.Type {
	case config.LineCSV:
		return &csvSource{line: line, mapping: newMapping(line, defaultCSVColumns, defaultCSVFailure)}, nil
	case config.LineHTTP:
		client, err := buildHTTPClient(line)
		if err != nil {
			return nil, fmt.Errorf("source %q: build http client: %w", line.ID, err)
		}
		return &httpSource{line: line, client: client, mapping: newMapping(line, defaultCSVColumns, defaultCSVFailure)}, nil
	case config.LinePrometheus:
		client, err := buildHTTPClient(line)
		if err != nil {
			return nil, fmt.Errorf("source %q: build http client: %w", line.ID, err)
		}
		return &promSource{
			line:    line,
			client:  client,
			mapping: newMapping(line, defaultPromColumns, defaultPromFailure),
			buf:     newRing(line.MaxReadings),
		}, nil
	case config.LineKafka:
		return newKafkaSource(line), nil
	case config.LineMQTT:
		return newMQTTSource(line), nil
	case config.LineS3:
		s, err := newS3Source(line)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.LineSynthetic:
		return newSyntheticSource(line), nil
	default:
		return nil, fmt.Errorf("source: unsupported type %q", line.Type)
	}
}

// mapping translates external column or metric names into reading fields.
type mapping struct {
	columns map[types.FieldName]string
	failure string
}

func newMapping(line config.Line, defColumns map[types.FieldName]string, defFailure string) mapping {
	m := mapping{columns: make(map[types.FieldName]string), failure: line.FailureColumn}
	if len(line.Columns) == 0 {
		for f, c := range defColumns {
			m.columns[f] = c
		}
	} else {
		for f, c := range line.Columns {
			m.columns[types.FieldName(f)] = c
		}
	}
	if m.failure == "" {
		m.failure = defFailure
	}
	return m
}

// authRoundTripper injects authentication headers into every outgoing request.
type authRoundTripper struct {
	base http.RoundTripper
	auth config.AuthConfig
}

func (t *authRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	switch t.auth.Mode {
	case "apikey":
		req = req.Clone(req.Context())
		req.Header.Set(t.auth.Header, t.auth.Key())
	case "bearer":
		req = req.Clone(req.Context())
		req.Header.Set("Authorization", "Bearer "+t.auth.Token())
	case "basic":
		req = req.Clone(req.Context())
		req.SetBasicAuth(t.auth.Username, t.auth.Password())
	}
	return t.base.RoundTrip(req)
}

// buildHTTPClient constructs an http.Client for the line's auth and TLS settings.
func buildHTTPClient(line config.Line) (*http.Client, error) {
	if line.Auth.Mode == "apikey" && line.Auth.Header == "" {
		return nil, fmt.Errorf("auth mode apikey requires a header name")
	}
	tlsCfg := &tls.Config{
		InsecureSkipVerify: line.TLS.InsecureSkipVerify, //nolint:gosec // user-configured
	}
	return &http.Client{
		Transport: &authRoundTripper{
			base: &http.Transport{TLSClientConfig: tlsCfg},
			auth: line.Auth,
		},
		Timeout: defaultFetchTimeout,
	}, nil
}

// newBatch initialises an empty Batch for the line.
func newBatch(line config.Line) *Batch {
	return &Batch{
		LineID:    line.ID,
		Kind:      line.Type,
		FetchedAt: time.Now().UTC(),
	}
}
