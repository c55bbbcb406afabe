package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
)

// PresenceEvent is published whenever a user's first connection opens or
// last connection closes
type PresenceEvent struct {
	UserID    string `json:"userId"`
	Status    string `json:"status"`
	Timestamp int64  `json:"timestamp"`
}

func InitKafkaProducer(brokers []string) (sarama.SyncProducer, error) {
	return sarama.NewSyncProducer(brokers, producerConfig())
}

func producerConfig() *sarama.Config {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Partitioner = sarama.NewHashPartitioner
	config.Version = sarama.V2_0_0_0
	config.ClientID = "notify-service"
	return config
}

// PresencePublisher mirrors presence transitions onto a topic, keyed by user
// so one user's transitions stay ordered within a partition.
type PresencePublisher struct {
	producer sarama.SyncProducer
	topic    string
}

func NewPresencePublisher(producer sarama.SyncProducer, topic string) *PresencePublisher {
	return &PresencePublisher{producer: producer, topic: topic}
}

func (p *PresencePublisher) SetUserOnline(ctx context.Context, userID string) error {
	return p.publish(userID, "online")
}

func (p *PresencePublisher) SetUserOffline(ctx context.Context, userID string) error {
	return p.publish(userID, "offline")
}

func (p *PresencePublisher) publish(userID, status string) error {
	value, err := json.Marshal(PresenceEvent{
		UserID:    userID,
		Status:    status,
		Timestamp: time.Now().UnixMilli(),
	})
	if err != nil {
		return err
	}

	_, _, err = p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(userID),
		Value: sarama.ByteEncoder(value),
	})
	if err != nil {
		return fmt.Errorf("publish presence for %s: %w", userID, err)
	}
	return nil
}

func (p *PresencePublisher) Close() error {
	return p.producer.Close()
}
