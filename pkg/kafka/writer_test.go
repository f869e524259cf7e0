package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/angelmondragon/storefront-settlement/pkg/config"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
)

type recordingWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (r *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	r.messages = append(r.messages, msgs...)
	return r.err
}

func (r *recordingWriter) Close() error {
	r.closed = true
	return nil
}

type stubMetadata struct {
	resp *kafka.MetadataResponse
	err  error
}

func (s stubMetadata) Metadata(context.Context, *kafka.MetadataRequest) (*kafka.MetadataResponse, error) {
	return s.resp, s.err
}

func TestNewWriterRequiresBrokers(t *testing.T) {
	_, err := NewWriter(context.Background(), config.KafkaConfig{Brokers: []string{" ", ""}}, "events", nil)
	require.ErrorIs(t, err, errBrokersRequired)

	w, err := NewWriter(context.Background(), config.KafkaConfig{Brokers: []string{"k1:9092"}}, " events ", nil)
	require.NoError(t, err)
	require.Equal(t, "events", w.topic)
	require.NoError(t, w.Close())
}

func TestPublishKeysAndSortsHeaders(t *testing.T) {
	rec := &recordingWriter{}
	w := &Writer{writer: rec}

	err := w.Publish(context.Background(), "events", []byte("order-1"), []byte(`{}`), map[string]string{
		"event_type":   "payment_completed",
		"aggregate_id": "order-1",
	})
	require.NoError(t, err)
	require.Len(t, rec.messages, 1)
	msg := rec.messages[0]
	require.Equal(t, "events", msg.Topic)
	require.Equal(t, []byte("order-1"), msg.Key)
	require.Equal(t, "aggregate_id", msg.Headers[0].Key)
	require.Equal(t, "payment_completed", string(msg.Headers[1].Value))

	rec.err = errors.New("leader not available")
	require.ErrorContains(t, w.Publish(context.Background(), "events", nil, nil, nil), "leader not available")
}

func TestPingChecksTopicMetadata(t *testing.T) {
	w := &Writer{topic: "events", client: stubMetadata{resp: &kafka.MetadataResponse{
		Topics: []kafka.Topic{{Name: "events"}},
	}}}
	require.NoError(t, w.Ping(context.Background()))

	w.client = stubMetadata{resp: &kafka.MetadataResponse{}}
	require.ErrorContains(t, w.Ping(context.Background()), "does not exist")

	w.client = stubMetadata{resp: &kafka.MetadataResponse{
		Topics: []kafka.Topic{{Name: "events", Error: kafka.UnknownTopicOrPartition}},
	}}
	require.ErrorIs(t, w.Ping(context.Background()), kafka.UnknownTopicOrPartition)

	w.client = stubMetadata{err: errors.New("dial tcp: refused")}
	require.ErrorContains(t, w.Ping(context.Background()), "kafka metadata")
}

func TestNilWriter(t *testing.T) {
	var w *Writer
	require.Error(t, w.Ping(context.Background()))
	require.Error(t, w.Publish(context.Background(), "events", nil, nil, nil))
	require.NoError(t, w.Close())
}
