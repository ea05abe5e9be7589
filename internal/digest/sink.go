package digest

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"github.com/segmentio/kafka-go"

	"github.com/sells-group/tender-intel/internal/config"
	"github.com/sells-group/tender-intel/internal/model"
	"github.com/sells-group/tender-intel/internal/resilience"
)

// Sink delivers a compiled digest somewhere stakeholders will see it.
type Sink interface {
	Name() string
	Publish(ctx context.Context, d *model.Digest) error
}

// messageWriter is the part of kafka.Writer the sink uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes each digest as one JSON message keyed by its date.
type KafkaSink struct {
	w     messageWriter
	topic string
}

// NewKafkaSink creates a sink writing to cfg.DigestTopic.
func NewKafkaSink(cfg config.KafkaConfig) (*KafkaSink, error) {
	if len(cfg.Brokers) == 0 {
		return nil, eris.New("digest: kafka sink needs at least one broker")
	}
	if cfg.DigestTopic == "" {
		return nil, eris.New("digest: kafka sink needs a topic")
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.DigestTopic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}
	return &KafkaSink{w: w, topic: cfg.DigestTopic}, nil
}

// Name implements Sink.
func (k *KafkaSink) Name() string { return "kafka" }

// Publish implements Sink.
func (k *KafkaSink) Publish(ctx context.Context, d *model.Digest) error {
	payload, err := json.Marshal(d)
	if err != nil {
		return eris.Wrap(err, "digest: marshal for kafka")
	}
	msg := kafka.Message{
		Key:   []byte(d.Date),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "subject", Value: []byte(d.Subject)},
			{Key: "content-type", Value: []byte("application/json")},
		},
	}
	if err := k.w.WriteMessages(ctx, msg); err != nil {
		return eris.Wrapf(err, "digest: write to topic %s", k.topic)
	}
	return nil
}

// Close flushes and closes the underlying writer.
func (k *KafkaSink) Close() error {
	return eris.Wrap(k.w.Close(), "digest: close kafka writer")
}

// WebhookSink posts the digest as JSON to a URL.
type WebhookSink struct {
	url    string
	client *http.Client
	retry  resilience.RetryConfig
}

// NewWebhookSink creates a sink posting to url. Transient failures are
// retried with backoff.
func NewWebhookSink(url string) *WebhookSink {
	retry := resilience.DefaultRetryConfig()
	retry.OnRetry = resilience.RetryLogger("digest", "webhook")
	return &WebhookSink{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		retry:  retry,
	}
}

// Name implements Sink.
func (s *WebhookSink) Name() string { return "webhook" }

// Publish implements Sink.
func (s *WebhookSink) Publish(ctx context.Context, d *model.Digest) error {
	payload, err := json.Marshal(d)
	if err != nil {
		return eris.Wrap(err, "digest: marshal for webhook")
	}

	err = resilience.Do(ctx, s.retry, func(ctx context.Context) error {
		return s.post(ctx, payload)
	})
	return eris.Wrap(err, "digest: webhook")
}

func (s *WebhookSink) post(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return resilience.NewTransientError(err, 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return resilience.StatusError(resp.StatusCode, "webhook")
	}
	return nil
}

// WriterSink renders the digest as text, typically to stdout.
type WriterSink struct {
	w io.Writer
}

// NewWriterSink creates a sink rendering to w.
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

// Name implements Sink.
func (s *WriterSink) Name() string { return "stdout" }

// Publish implements Sink.
func (s *WriterSink) Publish(_ context.Context, d *model.Digest) error {
	return Render(s.w, d)
}

// BuildSinks creates the sinks named in cfg.Digest.Sinks. The returned
// closer releases any broker connections.
func BuildSinks(cfg *config.Config, stdout io.Writer) ([]Sink, func() error, error) {
	var (
		sinks   []Sink
		closers []func() error
	)
	for _, name := range cfg.Digest.Sinks {
		switch name {
		case "kafka":
			k, err := NewKafkaSink(cfg.Kafka)
			if err != nil {
				return nil, nil, err
			}
			sinks = append(sinks, k)
			closers = append(closers, k.Close)
		case "webhook":
			if cfg.Digest.WebhookURL == "" {
				return nil, nil, eris.New("digest: webhook sink needs digest.webhook_url")
			}
			sinks = append(sinks, NewWebhookSink(cfg.Digest.WebhookURL))
		case "stdout":
			sinks = append(sinks, NewWriterSink(stdout))
		default:
			return nil, nil, eris.Errorf("digest: unknown sink %q", name)
		}
	}
	closeAll := func() error {
		var first error
		for _, c := range closers {
			if err := c(); err != nil && first == nil {
				first = err
			}
		}
		return first
	}
	return sinks, closeAll, nil
}
