package kafka

import (
	"context"
	"encoding/json"
	"log"

	"github.com/segmentio/kafka-go"

	"ms-competitions/internal/models"
)

// Consumer reads draw results published by the external draw engine.
type Consumer struct {
	reader *kafka.Reader
}

func NewConsumer(brokers []string, topic, groupID string) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})
	return &Consumer{reader: reader}
}

// Start consumes win events until the context is cancelled. Malformed
// messages are logged and skipped rather than blocking the partition.
func (c *Consumer) Start(ctx context.Context, handler func(win models.WinEvent)) {
	log.Println("Kafka win consumer started")

	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("Error reading win message: %v", err)
			continue
		}

		var win models.WinEvent
		if err := json.Unmarshal(msg.Value, &win); err != nil {
			log.Printf("Failed to unmarshal win message: %v", err)
			continue
		}

		log.Printf("Received win event: user=%s competition=%d", win.UserID, win.CompetitionID)
		handler(win)
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
