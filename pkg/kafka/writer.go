package kafka

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/angelmondragon/storefront-settlement/pkg/config"
	"github.com/angelmondragon/storefront-settlement/pkg/logger"
	"github.com/segmentio/kafka-go"
)

var errBrokersRequired = errors.New("kafka brokers are required")

type messageWriter interface {
	WriteMessages(context.Context, ...kafka.Message) error
	Close() error
}

type metadataClient interface {
	Metadata(context.Context, *kafka.MetadataRequest) (*kafka.MetadataResponse, error)
}

// Writer publishes settlement events to Kafka. Messages are keyed so that
// every event for one aggregate lands on the same partition.
type Writer struct {
	writer messageWriter
	client metadataClient
	topic  string
}

// NewWriter builds a writer for the configured brokers. topic is the domain
// topic checked by Ping; individual messages may target other topics.
func NewWriter(ctx context.Context, cfg config.KafkaConfig, topic string, logg *logger.Logger) (*Writer, error) {
	brokers := cleanBrokers(cfg.Brokers)
	if len(brokers) == 0 {
		return nil, errBrokersRequired
	}
	timeout := cfg.WriteTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	addr := kafka.TCP(brokers...)
	w := &Writer{
		writer: &kafka.Writer{
			Addr:         addr,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			WriteTimeout: timeout,
			Transport:    &kafka.Transport{ClientID: cfg.ClientID},
		},
		client: &kafka.Client{Addr: addr, Timeout: timeout},
		topic:  strings.TrimSpace(topic),
	}
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"brokers": strings.Join(brokers, ","),
			"topic":   w.topic,
		}), "kafka writer initialized")
	}
	return w, nil
}

// Publish writes one message and waits for all in-sync replicas to ack.
func (w *Writer) Publish(ctx context.Context, topic string, key, value []byte, headers map[string]string) error {
	if w == nil || w.writer == nil {
		return errors.New("kafka writer not initialized")
	}
	return w.writer.WriteMessages(ctx, message(topic, key, value, headers))
}

// Ping asks the cluster for the domain topic's metadata.
func (w *Writer) Ping(ctx context.Context) error {
	if w == nil || w.client == nil {
		return errors.New("kafka writer not initialized")
	}
	if w.topic == "" {
		return errors.New("kafka topic is required")
	}
	resp, err := w.client.Metadata(ctx, &kafka.MetadataRequest{Topics: []string{w.topic}})
	if err != nil {
		return fmt.Errorf("kafka metadata: %w", err)
	}
	for _, t := range resp.Topics {
		if t.Name != w.topic {
			continue
		}
		if t.Error != nil {
			return fmt.Errorf("topic %q: %w", w.topic, t.Error)
		}
		return nil
	}
	return fmt.Errorf("topic %q does not exist", w.topic)
}

func (w *Writer) Close() error {
	if w == nil || w.writer == nil {
		return nil
	}
	return w.writer.Close()
}

func message(topic string, key, value []byte, headers map[string]string) kafka.Message {
	names := make([]string, 0, len(headers))
	for name := range headers {
		names = append(names, name)
	}
	sort.Strings(names)

	msg := kafka.Message{Topic: topic, Key: key, Value: value}
	for _, name := range names {
		msg.Headers = append(msg.Headers, kafka.Header{Key: name, Value: []byte(headers[name])})
	}
	return msg
}

func cleanBrokers(in []string) []string {
	out := make([]string, 0, len(in))
	for _, b := range in {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}
