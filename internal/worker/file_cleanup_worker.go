package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"cloudpdf/internal/model"
	"cloudpdf/internal/platform/rabbitmq"
)

// FileDeleter is the part of the file store the worker needs.
type FileDeleter interface {
	Delete(ctx context.Context, key string) error
}

// FileCleanupWorker deletes stored files whose upload pipeline failed.
type FileCleanupWorker struct {
	conn      *amqp.Connection
	store     FileDeleter
	queueName string
	log       logrus.FieldLogger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewFileCleanupWorker(conn *amqp.Connection, store FileDeleter, queueName string, log logrus.FieldLogger) *FileCleanupWorker {
	return &FileCleanupWorker{
		conn:      conn,
		store:     store,
		queueName: queueName,
		log:       log.WithField("component", "file_cleanup_worker"),
	}
}

func (w *FileCleanupWorker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	ch, err := w.conn.Channel()
	if err != nil {
		cancel()
		return fmt.Errorf("open worker channel failed: %w", err)
	}

	if err := rabbitmq.DeclareQueue(ch, w.queueName); err != nil {
		_ = ch.Close()
		cancel()
		return err
	}

	deliveries, err := ch.Consume(
		w.queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("consume queue failed: %w", err)
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer ch.Close()

		for {
			select {
			case <-workerCtx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				if err := w.Handle(workerCtx, d.Body); err != nil {
					w.log.WithError(err).Error("cleanup job failed")
					_ = d.Nack(false, false)
					continue
				}
				_ = d.Ack(false)
			}
		}
	}()

	return nil
}

// Handle processes one encoded FileCleanupJob.
func (w *FileCleanupWorker) Handle(ctx context.Context, body []byte) error {
	var job model.FileCleanupJob
	if err := json.Unmarshal(body, &job); err != nil {
		return fmt.Errorf("decode cleanup job failed: %w", err)
	}
	if job.Key == "" {
		return fmt.Errorf("cleanup job has empty key")
	}
	if err := w.store.Delete(ctx, job.Key); err != nil {
		return fmt.Errorf("delete orphaned file %s failed: %w", job.Key, err)
	}
	w.log.WithFields(logrus.Fields{
		"key":    job.Key,
		"reason": job.Reason,
	}).Info("orphaned file deleted")
	return nil
}

func (w *FileCleanupWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
