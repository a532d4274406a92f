package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"cloudpdf/internal/model"
)

type CleanupPublisher struct {
	conn      *amqp.Connection
	queueName string
}

func NewCleanupPublisher(conn *amqp.Connection, queueName string) *CleanupPublisher {
	return &CleanupPublisher{
		conn:      conn,
		queueName: queueName,
	}
}

// Collect enqueues key for deletion by the cleanup worker.
func (p *CleanupPublisher) Collect(ctx context.Context, key, reason string) error {
	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("open rabbitmq channel failed: %w", err)
	}
	defer ch.Close()

	if err := DeclareQueue(ch, p.queueName); err != nil {
		return err
	}

	payload, err := json.Marshal(model.FileCleanupJob{
		Key:         key,
		Reason:      reason,
		RequestedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal cleanup job failed: %w", err)
	}

	if err := ch.PublishWithContext(
		ctx,
		"",
		p.queueName,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         payload,
			DeliveryMode: amqp.Persistent,
		},
	); err != nil {
		return fmt.Errorf("publish cleanup job failed: %w", err)
	}
	return nil
}

// DeclareQueue declares the durable queue shared by publisher and worker.
func DeclareQueue(ch *amqp.Channel, name string) error {
	_, err := ch.QueueDeclare(
		name,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("declare queue failed: %w", err)
	}
	return nil
}
