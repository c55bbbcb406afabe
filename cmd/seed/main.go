package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"notify-service/internal/adapters/kafka"
	"notify-service/internal/config"
	"notify-service/internal/database"
	"notify-service/internal/models"
	"notify-service/internal/repositories/postgres"

	"github.com/IBM/sarama"
)

var samples = []models.Notification{
	{Type: "task_assigned", Title: "You were assigned a task", Body: "Review the onboarding checklist", Link: "/tasks/1"},
	{Type: "project_invite", Title: "You were invited to a project", Body: "Website redesign", Link: "/projects/1"},
	{Type: "comment_mention", Title: "You were mentioned in a comment", Body: "Can you take a look at this?", Link: "/tasks/1#comments"},
}

func main() {
	users := flag.String("users", "1,2,3", "comma separated user IDs to seed notifications for")
	publish := flag.Bool("publish", false, "also publish notification-created events to Kafka")
	flag.Parse()

	if err := run(context.Background(), strings.Split(*users, ","), *publish); err != nil {
		slog.Error("Seeding failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, userIDs []string, publish bool) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	slog.Info("Starting database seeding...")

	db, err := database.NewPostgresConnection(cfg.Database.URI)
	if err != nil {
		return err
	}
	repo := postgres.NewNotificationRepository(db)

	var producer sarama.SyncProducer
	if publish {
		producer, err = kafka.InitKafkaProducer(cfg.Kafka.Brokers)
		if err != nil {
			return fmt.Errorf("create kafka producer: %w", err)
		}
		defer producer.Close()
	}

	created := 0
	for _, userID := range userIDs {
		userID = strings.TrimSpace(userID)
		if userID == "" {
			continue
		}
		for _, sample := range samples {
			notification := sample
			notification.UserID = userID
			if err := repo.Create(ctx, &notification); err != nil {
				return fmt.Errorf("create notification for %s: %w", userID, err)
			}
			created++

			if producer == nil {
				continue
			}
			value, err := json.Marshal(models.NotificationCreatedEvent{UserID: userID, Notification: notification})
			if err != nil {
				return err
			}
			if _, _, err := producer.SendMessage(&sarama.ProducerMessage{
				Topic: cfg.Kafka.Topic,
				Key:   sarama.StringEncoder(userID),
				Value: sarama.ByteEncoder(value),
			}); err != nil {
				return fmt.Errorf("publish notification %s: %w", notification.ID, err)
			}
		}
	}

	slog.Info("Database seeding completed", "notifications", created, "published", publish)
	return nil
}
