package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"notify-service/internal/models"

	"github.com/IBM/sarama"
)

// Notifier delivers a persisted notification to its owner
type Notifier interface {
	NotifyUser(userID string, notification any) bool
}

// Consumer reads notification-created events and pushes them to the
// realtime hub. Events for offline users land in the hub's offline queue.
type Consumer struct {
	group    sarama.ConsumerGroup
	topic    string
	notifier Notifier
	logger   *slog.Logger
}

func NewConsumer(brokers []string, groupID, topic string, notifier Notifier, logger *slog.Logger) (*Consumer, error) {
	config := sarama.NewConfig()
	config.Version = sarama.V2_0_0_0
	config.ClientID = "notify-service"
	config.Consumer.Offsets.Initial = sarama.OffsetNewest
	config.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	config.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(brokers, groupID, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	return newConsumer(group, topic, notifier, logger), nil
}

func newConsumer(group sarama.ConsumerGroup, topic string, notifier Notifier, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		group:    group,
		topic:    topic,
		notifier: notifier,
		logger:   logger.With("component", "kafka-consumer", "topic", topic),
	}
}

// Run consumes until ctx is cancelled. Consume returns on every rebalance,
// so it is called in a loop.
func (c *Consumer) Run(ctx context.Context) error {
	go func() {
		for err := range c.group.Errors() {
			c.logger.Error("Consumer group error", "error", err)
		}
	}()

	c.logger.Info("Kafka consumer started")
	for {
		if err := c.group.Consume(ctx, []string{c.topic}, c); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			c.logger.Error("Consume failed", "error", err)
		}
		if ctx.Err() != nil {
			c.logger.Info("Kafka consumer stopped")
			return nil
		}
	}
}

func (c *Consumer) Close() error {
	return c.group.Close()
}

func (c *Consumer) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (c *Consumer) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (c *Consumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			c.handleMessage(msg)
			session.MarkMessage(msg, "")
		case <-session.Context().Done():
			return nil
		}
	}
}

// handleMessage decodes one event. Undecodable events are logged and
// skipped so they do not block the partition.
func (c *Consumer) handleMessage(msg *sarama.ConsumerMessage) {
	var event models.NotificationCreatedEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		c.logger.Warn("Skipping malformed notification event", "partition", msg.Partition, "offset", msg.Offset, "error", err)
		return
	}

	userID := event.UserID
	if userID == "" {
		userID = event.Notification.UserID
	}
	if userID == "" {
		c.logger.Warn("Skipping notification event without user", "partition", msg.Partition, "offset", msg.Offset)
		return
	}

	delivered := c.notifier.NotifyUser(userID, event.Notification)
	c.logger.Debug("Notification event dispatched",
		"userID", userID,
		"notificationID", event.Notification.ID,
		"delivered", delivered,
	)
}
