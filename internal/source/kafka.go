package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/machinepulse/machinepulse/internal/config"
)

const (
	kafkaMaxWait      = 500 * time.Millisecond
	kafkaRetryBackoff = 2 * time.Second
	defaultKafkaGroup = "machinepulse"
)

// messageReader is the subset of *kafka.Reader the consumer loop needs.
type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

type kafkaSource struct {
	line config.Line
	buf  *ring

	// newReader is injectable for tests.
	newReader func() messageReader

	mu      sync.Mutex
	lastErr error
	started bool
}

func newKafkaSource(line config.Line) *kafkaSource {
	s := &kafkaSource{line: line, buf: newRing(line.MaxReadings)}
	s.newReader = func() messageReader {
		group := line.GroupID
		if group == "" {
			group = defaultKafkaGroup
		}
		return kafka.NewReader(kafka.ReaderConfig{
			Brokers:  line.Brokers,
			GroupID:  group,
			Topic:    line.Topic,
			MinBytes: 1,
			MaxBytes: 10e6,
			MaxWait:  kafkaMaxWait,
		})
	}
	return s
}

// Start consumes the topic until ctx is cancelled.
func (s *kafkaSource) Start(ctx context.Context) {
	s.mu.Lock()
	s.started = true
	s.mu.Unlock()

	r := s.newReader()
	defer r.Close()

	slog.Info("source: kafka consumer started", "line", s.line.ID, "topic", s.line.Topic)
	for {
		msg, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return
			}
			s.setErr(err)
			slog.Warn("source: kafka read failed", "line", s.line.ID, "err", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(kafkaRetryBackoff):
			}
			continue
		}
		if err := s.ingest(msg.Value); err != nil {
			slog.Warn("source: kafka message skipped", "line", s.line.ID,
				"offset", msg.Offset, "err", err)
			continue
		}
		s.setErr(nil)
	}
}

// ingest decodes one message and appends it to the buffer.
func (s *kafkaSource) ingest(data []byte) error {
	return s.buf.addJSON(data)
}

// Fetch returns the readings consumed so far.
func (s *kafkaSource) Fetch(_ context.Context) (*Batch, error) {
	b := newBatch(s.line)
	b.Readings = s.buf.snapshot()

	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case !s.started:
		b.Err = fmt.Errorf("kafka source %q: consumer not started", s.line.ID)
	case s.lastErr != nil:
		b.Err = fmt.Errorf("kafka source %q: %w", s.line.ID, s.lastErr)
	}
	return b, nil
}

func (s *kafkaSource) setErr(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
}
