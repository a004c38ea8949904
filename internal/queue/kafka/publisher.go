// Package kafka publishes bet events to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/alanyoungcy/surebet/internal/domain"
)

// Publisher implements domain.EventPublisher on a kafka-go writer. Messages
// are keyed by pair id so both legs of a pair land on the same partition.
type Publisher struct {
	writer *kafka.Writer
}

// NewPublisher creates a Publisher writing to topic on the given brokers.
func NewPublisher(brokers []string, topic string) (*Publisher, error) {
	brokers = cleanBrokers(brokers)
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka: no brokers configured")
	}
	if strings.TrimSpace(topic) == "" {
		return nil, fmt.Errorf("kafka: topic is required")
	}
	return &Publisher{writer: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           50 * time.Millisecond,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}}, nil
}

// PublishBetEvent writes evt as one JSON message.
func (p *Publisher) PublishBetEvent(ctx context.Context, evt domain.BetEvent) error {
	msg, err := buildMessage(evt)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka: publish %s: %w", evt.Type, err)
	}
	return nil
}

// Close flushes pending messages and closes the writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

func buildMessage(evt domain.BetEvent) (kafka.Message, error) {
	payload, err := json.Marshal(evt)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("kafka: marshal %s event: %w", evt.Type, err)
	}
	key := evt.PairID
	if key == "" && len(evt.Bets) > 0 {
		key = evt.Bets[0].ID
	}
	return kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Time:  evt.Timestamp,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(evt.Type)},
		},
	}, nil
}

func cleanBrokers(raw []string) []string {
	out := make([]string, 0, len(raw))
	for _, b := range raw {
		if trimmed := strings.TrimSpace(b); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

var _ domain.EventPublisher = (*Publisher)(nil)
