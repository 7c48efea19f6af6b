// Package eventbus provides the durable Kafka-backed transport used for
// document state-change events, usage logs, and tenant-config audit rows.
// It generalizes the donor's single-topic KafkaCommitPublisher
// (internal/workspaces/kafka_events.go) into a small multi-topic writer
// pool keyed by topic name.
package eventbus

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
)

// Config names the broker set and the topics this service writes to.
type Config struct {
	Brokers    []string
	IngestTopic string
	AuditTopic  string
	UsageTopic  string
	StateTopic  string
}

// Bus publishes JSON-encoded events to named Kafka topics. A nil *Bus is
// safe to call and silently drops events, matching the donor's
// "Enabled" guard pattern for optional infrastructure.
type Bus struct {
	writers map[string]*kafka.Writer
}

// New builds a Bus with one kafka.Writer per configured topic. Returns a
// nil *Bus, nil error when no brokers are configured.
func New(cfg Config) (*Bus, error) {
	if len(cfg.Brokers) == 0 {
		return nil, nil
	}
	topics := map[string]string{
		"ingest": cfg.IngestTopic,
		"audit":  cfg.AuditTopic,
		"usage":  cfg.UsageTopic,
		"state":  cfg.StateTopic,
	}
	writers := make(map[string]*kafka.Writer, len(topics))
	for name, topic := range topics {
		if topic == "" {
			continue
		}
		writers[name] = &kafka.Writer{
			Addr:     kafka.TCP(cfg.Brokers...),
			Topic:    topic,
			Balancer: &kafka.LeastBytes{},
		}
	}
	return &Bus{writers: writers}, nil
}

// Publish marshals ev and appends it to the named logical topic ("ingest",
// "audit", "usage", "state"). A nil bus or unconfigured topic is a no-op.
func (b *Bus) Publish(ctx context.Context, topic string, ev any) error {
	if b == nil || b.writers[topic] == nil {
		return nil
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	msg := kafka.Message{Value: payload, Time: time.Now()}
	return b.writers[topic].WriteMessages(ctx, msg)
}

// Close shuts down every writer, logging (not failing) on error, matching
// the donor's Close idiom.
func (b *Bus) Close() {
	if b == nil {
		return
	}
	for name, w := range b.writers {
		if err := w.Close(); err != nil {
			log.Warn().Err(err).Str("topic", name).Msg("eventbus_writer_close_failed")
		}
	}
}
