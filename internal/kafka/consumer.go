package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"ms-boxoffice/internal/logger"
	"ms-boxoffice/internal/models"
)

// MessageReader is the part of kafka.Reader the consumer uses.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// Read failures back off from MinBackoff, doubling up to MaxBackoff.
const (
	MinBackoff = time.Second
	MaxBackoff = 30 * time.Second
)

type Consumer struct {
	Reader MessageReader
	Logger *logger.Logger
	// Backoff overrides MinBackoff when set.
	Backoff time.Duration
}

// NewConsumer creates a consumer for the given topic and group
func NewConsumer(brokers []string, topic, groupID string, log *logger.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})
	return &Consumer{Reader: reader, Logger: log}
}

// DecodeSaleRecorded reads a sale.recorded message value.
func DecodeSaleRecorded(value []byte) (SaleRecorded, error) {
	var event SaleRecorded
	if err := json.Unmarshal(value, &event); err != nil {
		return SaleRecorded{}, err
	}
	if event.Type != EventSaleRecorded {
		return SaleRecorded{}, fmt.Errorf("unexpected event type %q", event.Type)
	}
	return event, nil
}

// Run hands every recorded sale to handler until ctx is cancelled.
// Undecodable messages and handler failures are logged and skipped; read
// errors are logged and retried with backoff.
func (c *Consumer) Run(ctx context.Context, handler func(ctx context.Context, sale models.SaleRecord) error) error {
	c.Logger.Info("KAFKA", "Consumer started")

	minBackoff := c.Backoff
	if minBackoff <= 0 {
		minBackoff = MinBackoff
	}
	backoff := minBackoff

	for {
		msg, err := c.Reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				c.Logger.Info("KAFKA", "Consumer stopped")
				return nil
			}
			c.Logger.Error("KAFKA", fmt.Sprintf("Error reading message, retrying in %s: %v", backoff, err))

			select {
			case <-ctx.Done():
				c.Logger.Info("KAFKA", "Consumer stopped")
				return nil
			case <-time.After(backoff):
			}
			if backoff *= 2; backoff > MaxBackoff {
				backoff = MaxBackoff
			}
			continue
		}
		backoff = minBackoff

		event, err := DecodeSaleRecorded(msg.Value)
		if err != nil {
			c.Logger.Warn("KAFKA", fmt.Sprintf("Skipping message at offset %d: %v", msg.Offset, err))
			continue
		}

		c.Logger.LogKafka("RECEIVE", msg.Topic, fmt.Sprintf("sale %s", event.Sale.TransID))
		if err := handler(ctx, event.Sale); err != nil {
			c.Logger.Error("KAFKA", fmt.Sprintf("Failed to handle sale %s: %v", event.Sale.TransID, err))
		}
	}
}

// Close shuts down the reader
func (c *Consumer) Close() error {
	return c.Reader.Close()
}
