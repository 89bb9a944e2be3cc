package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"gopherai-docqa/internal/model"
	"gopherai-docqa/internal/platform/rabbitmq"
)

type TranscriptStore interface {
	Create(entry *model.TranscriptEntry) error
}

// TranscriptPersistWorker drains the transcript queue into the store.
type TranscriptPersistWorker struct {
	conn      *amqp.Connection
	store     TranscriptStore
	queueName string
	logger    *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewTranscriptPersistWorker(conn *amqp.Connection, store TranscriptStore, queueName string, logger *slog.Logger) *TranscriptPersistWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &TranscriptPersistWorker{
		conn:      conn,
		store:     store,
		queueName: queueName,
		logger:    logger.With("component", "transcript_worker", "queue", queueName),
	}
}

func (w *TranscriptPersistWorker) Start(ctx context.Context) error {
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
				if err := w.Handle(d.Body); err != nil {
					w.logger.Error("persist transcript failed", "message_id", d.MessageId, "error", err)
					_ = d.Nack(false, false)
					continue
				}
				_ = d.Ack(false)
			}
		}
	}()

	return nil
}

// Handle decodes one queued transcript entry and stores it.
func (w *TranscriptPersistWorker) Handle(body []byte) error {
	var entry model.TranscriptEntry
	if err := json.Unmarshal(body, &entry); err != nil {
		return fmt.Errorf("decode transcript failed: %w", err)
	}
	if entry.SessionID == "" {
		return fmt.Errorf("decode transcript failed: missing session id")
	}
	return w.store.Create(&entry)
}

func (w *TranscriptPersistWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
