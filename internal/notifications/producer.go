package notifications

import (
	"context"
	"fmt"
	"time"

	"evently-waitlist/internal/shared/clock"
	"evently-waitlist/internal/shared/config"
	"evently-waitlist/internal/waitlist"
	"evently-waitlist/pkg/logger"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
)

// KafkaDispatcher publishes waitlist notifications to a Kafka topic
type KafkaDispatcher struct {
	producer sarama.SyncProducer
	topic    string
	clock    clock.Clock
	logger   *logger.Logger
}

var _ waitlist.Notifier = (*KafkaDispatcher)(nil)

// NewSaramaConfig returns the producer settings used for notifications
func NewSaramaConfig(cfg config.KafkaConfig) *sarama.Config {
	saramaConfig := sarama.NewConfig()

	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Return.Errors = true
	saramaConfig.Producer.RequiredAcks = sarama.WaitForAll
	saramaConfig.Producer.Compression = sarama.CompressionSnappy
	saramaConfig.Producer.Retry.Max = cfg.RetryMax
	saramaConfig.Producer.Timeout = 10 * time.Second
	saramaConfig.Producer.Idempotent = true
	saramaConfig.Net.MaxOpenRequests = 1

	// hash partitioner keeps a user's notifications in order
	saramaConfig.Producer.Partitioner = sarama.NewHashPartitioner
	return saramaConfig
}

// NewKafkaDispatcher connects a sync producer to the configured brokers
func NewKafkaDispatcher(cfg config.KafkaConfig, clk clock.Clock, log *logger.Logger) (*KafkaDispatcher, error) {
	producer, err := sarama.NewSyncProducer(cfg.Brokers, NewSaramaConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}
	return NewKafkaDispatcherWithProducer(producer, cfg.NotificationTopic, clk, log), nil
}

func NewKafkaDispatcherWithProducer(producer sarama.SyncProducer, topic string, clk clock.Clock, log *logger.Logger) *KafkaDispatcher {
	if clk == nil {
		clk = clock.NewRealClock()
	}
	return &KafkaDispatcher{
		producer: producer,
		topic:    topic,
		clock:    clk,
		logger:   logger.OrDefault(log).WithComponent("notifications"),
	}
}

func (d *KafkaDispatcher) Notify(ctx context.Context, userID, eventID uuid.UUID, kind waitlist.NotificationKind, payload map[string]interface{}) error {
	notification := NewWaitlistNotification(userID, eventID, kind, payload, d.clock.Now())

	messageBytes, err := notification.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic:     d.topic,
		Key:       sarama.StringEncoder(notification.GetPartitionKey()),
		Value:     sarama.ByteEncoder(messageBytes),
		Headers:   createHeaders(notification),
		Timestamp: notification.CreatedAt,
	}

	partition, offset, err := d.producer.SendMessage(message)
	if err != nil {
		return fmt.Errorf("failed to send notification to Kafka: %w", err)
	}

	d.logger.DebugContext(ctx, "Notification published",
		"topic", d.topic,
		"partition", partition,
		"offset", offset,
		"kind", string(kind),
		"user_id", userID.String(),
		"event_id", eventID.String(),
	)
	return nil
}

func createHeaders(n *WaitlistNotification) []sarama.RecordHeader {
	return []sarama.RecordHeader{
		{Key: []byte("notification_id"), Value: []byte(n.ID.String())},
		{Key: []byte("notification_kind"), Value: []byte(n.Kind)},
		{Key: []byte("priority"), Value: []byte(n.Priority)},
		{Key: []byte("user_id"), Value: []byte(n.UserID.String())},
		{Key: []byte("event_id"), Value: []byte(n.EventID.String())},
		{Key: []byte("producer"), Value: []byte("evently-waitlist")},
		{Key: []byte("created_at"), Value: []byte(n.CreatedAt.Format(time.RFC3339))},
	}
}

// Close closes the Kafka producer
func (d *KafkaDispatcher) Close() error {
	if d.producer == nil {
		return nil
	}
	if err := d.producer.Close(); err != nil {
		return fmt.Errorf("failed to close Kafka producer: %w", err)
	}
	return nil
}

// LogDispatcher writes notifications to the log; used when Kafka is disabled
type LogDispatcher struct {
	logger *logger.Logger
}

var _ waitlist.Notifier = (*LogDispatcher)(nil)

func NewLogDispatcher(log *logger.Logger) *LogDispatcher {
	return &LogDispatcher{logger: logger.OrDefault(log).WithComponent("notifications")}
}

func (d *LogDispatcher) Notify(ctx context.Context, userID, eventID uuid.UUID, kind waitlist.NotificationKind, payload map[string]interface{}) error {
	d.logger.InfoWithContext(ctx, "Waitlist notification", map[string]interface{}{
		"kind":     string(kind),
		"user_id":  userID.String(),
		"event_id": eventID.String(),
		"payload":  payload,
	})
	return nil
}
