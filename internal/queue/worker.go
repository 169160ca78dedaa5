package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/lexa/internal/interfaces"
	"github.com/ternarybob/lexa/internal/models"
)

// DocumentProcessor is the ingestion entry point the worker drives.
type DocumentProcessor interface {
	ProcessDocument(ctx context.Context, documentID string, content []byte, isRefresh bool) error
}

// Worker polls the queue and routes jobs to the ingestion processor.
// The reference configuration runs one lane to bound embedding-provider
// throughput; documents are independent so higher concurrency is safe
// when quota allows.
type Worker struct {
	queue        interfaces.JobQueue
	processor    DocumentProcessor
	pollInterval time.Duration
	concurrency  int
	logger       arbor.ILogger

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewWorker creates a new queue worker
func NewWorker(queue interfaces.JobQueue, processor DocumentProcessor, pollInterval time.Duration, concurrency int, logger arbor.ILogger) *Worker {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Worker{
		queue:        queue,
		processor:    processor,
		pollInterval: pollInterval,
		concurrency:  concurrency,
		logger:       logger,
		stopCh:       make(chan struct{}),
	}
}

// Start launches the worker lanes. Non-blocking; call Stop to drain.
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info().
		Int("concurrency", w.concurrency).
		Dur("poll_interval", w.pollInterval).
		Msg("Starting ingestion worker")

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.runLane(ctx, i)
	}
}

// Stop signals all lanes to finish their current job and exit.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
	w.logger.Info().Msg("Ingestion worker stopped")
}

func (w *Worker) runLane(ctx context.Context, lane int) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.drain(ctx, lane)
		}
	}
}

// drain processes messages until the queue is empty.
func (w *Worker) drain(ctx context.Context, lane int) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		default:
		}

		msg, ack, err := w.queue.Receive(ctx)
		if err != nil {
			if !errors.Is(err, models.ErrNoMessage) {
				w.logger.Error().Err(err).Int("lane", lane).Msg("Queue receive failed")
			}
			return
		}

		if err := w.handle(ctx, msg); err != nil {
			// Leave unacked; visibility timeout returns it for retry.
			w.logger.Warn().
				Err(err).
				Str("type", msg.Type).
				Int("lane", lane).
				Msg("Job failed, leaving for redelivery")
			continue
		}

		if err := ack(); err != nil {
			w.logger.Warn().Err(err).Str("type", msg.Type).Msg("Failed to ack message")
		}
	}
}

func (w *Worker) handle(ctx context.Context, msg *models.QueueMessage) error {
	switch msg.Type {
	case models.JobTypeIngest, models.JobTypeRefresh:
		var payload models.IngestPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			w.logger.Error().Err(err).Str("type", msg.Type).Msg("Malformed job payload, acking to drop")
			return nil
		}
		return w.processor.ProcessDocument(ctx, payload.DocumentID, payload.Content,
			msg.Type == models.JobTypeRefresh)
	default:
		w.logger.Warn().Str("type", msg.Type).Msg("Unknown job type, acking to drop")
		return nil
	}
}
