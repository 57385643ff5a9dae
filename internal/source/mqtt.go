package source

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/machinepulse/machinepulse/internal/config"
)

const (
	mqttConnectTimeout = 10 * time.Second
	mqttRetryBackoff   = 2 * time.Second
	mqttQuiesceMillis  = 250
)

// mqttClient is the subset of mqtt.Client the subscriber needs.
type mqttClient interface {
	Connect() mqtt.Token
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	Disconnect(quiesce uint)
}

type mqttSource struct {
	line config.Line
	buf  *ring

	// newClient is injectable for tests.
	newClient func() mqttClient

	mu        sync.Mutex
	lastErr   error
	connected bool
}

func newMQTTSource(line config.Line) *mqttSource {
	s := &mqttSource{line: line, buf: newRing(line.MaxReadings)}
	s.newClient = func() mqttClient { return mqtt.NewClient(s.clientOptions()) }
	return s
}

// clientOptions builds the paho options for the line. The session is kept
// across reconnects so the broker resumes the subscription.
func (s *mqttSource) clientOptions() *mqtt.ClientOptions {
	clientID := s.line.ClientID
	if clientID == "" {
		clientID = "machinepulse-" + s.line.ID
	}
	opts := mqtt.NewClientOptions().
		SetClientID(clientID).
		SetCleanSession(false).
		SetResumeSubs(true).
		SetAutoReconnect(true).
		SetConnectTimeout(mqttConnectTimeout).
		SetOnConnectHandler(func(mqtt.Client) { s.setConnected(true, nil) }).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			slog.Warn("source: mqtt connection lost", "line", s.line.ID, "err", err)
			s.setConnected(false, err)
		})
	for _, b := range s.line.Brokers {
		opts.AddBroker(b)
	}
	if s.line.Auth.Mode == "basic" {
		opts.SetUsername(s.line.Auth.Username)
		opts.SetPassword(s.line.Auth.Password())
	}
	if s.line.TLS.InsecureSkipVerify {
		opts.SetTLSConfig(&tls.Config{InsecureSkipVerify: true}) //nolint:gosec // user-configured
	}
	return opts
}

// Start connects, subscribes and buffers readings until ctx is cancelled.
// Failed connects are retried with a fixed backoff.
func (s *mqttSource) Start(ctx context.Context) {
	c := s.newClient()
	for {
		err := s.subscribe(c)
		if err == nil {
			break
		}
		s.setConnected(false, err)
		slog.Warn("source: mqtt connect failed", "line", s.line.ID, "err", err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(mqttRetryBackoff):
		}
	}
	slog.Info("source: mqtt subscriber started", "line", s.line.ID, "topic", s.line.Topic)

	<-ctx.Done()
	c.Disconnect(mqttQuiesceMillis)
	s.setConnected(false, nil)
}

func (s *mqttSource) subscribe(c mqttClient) error {
	if err := waitToken(c.Connect()); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	if err := waitToken(c.Subscribe(s.line.Topic, s.line.QoS, s.onMessage)); err != nil {
		c.Disconnect(0)
		return fmt.Errorf("subscribe %s: %w", s.line.Topic, err)
	}
	s.setConnected(true, nil)
	return nil
}

func (s *mqttSource) onMessage(_ mqtt.Client, msg mqtt.Message) {
	if err := s.buf.addJSON(msg.Payload()); err != nil {
		slog.Warn("source: mqtt message skipped", "line", s.line.ID,
			"topic", msg.Topic(), "err", err)
	}
}

// Fetch returns the readings received so far.
func (s *mqttSource) Fetch(_ context.Context) (*Batch, error) {
	b := newBatch(s.line)
	b.Readings = s.buf.snapshot()

	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.lastErr != nil:
		b.Err = fmt.Errorf("mqtt source %q: %w", s.line.ID, s.lastErr)
	case !s.connected:
		b.Err = fmt.Errorf("mqtt source %q: not connected", s.line.ID)
	}
	return b, nil
}

func (s *mqttSource) setConnected(ok bool, err error) {
	s.mu.Lock()
	s.connected = ok
	s.lastErr = err
	s.mu.Unlock()
}

// waitToken blocks until tok completes or the connect timeout elapses.
func waitToken(tok mqtt.Token) error {
	if !tok.WaitTimeout(mqttConnectTimeout) {
		return fmt.Errorf("timed out after %s", mqttConnectTimeout)
	}
	return tok.Error()
}
