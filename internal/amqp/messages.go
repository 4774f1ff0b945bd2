package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"carteira/internal/events"
)

const (
	headerEventType   = "event_type"
	headerAggregateID = "aggregate_id"
)

// toPublishing wraps e as a persistent JSON message. The event id doubles
// as the message id so consumers can deduplicate redeliveries.
func toPublishing(e events.Event) (amqp091.Publishing, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return amqp091.Publishing{}, fmt.Errorf("marshal message: %w", err)
	}
	return amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		MessageId:    e.ID,
		Type:         string(e.Type),
		Timestamp:    time.Now(),
		Headers: amqp091.Table{
			headerEventType:   string(e.Type),
			headerAggregateID: e.AggregateID,
		},
		Body: body,
	}, nil
}

func fromBody(body []byte) (events.Event, error) {
	var e events.Event
	if err := json.Unmarshal(body, &e); err != nil {
		return events.Event{}, fmt.Errorf("unmarshal message: %w", err)
	}
	if e.ID == "" || e.Type == "" {
		return events.Event{}, fmt.Errorf("unmarshal message: missing id or type")
	}
	return e, nil
}
