package interfaces

import (
	"context"

	"github.com/ternarybob/lexa/internal/models"
)

// JobQueue is a durable at-least-once message queue. Receive returns the
// message plus an ack function the worker calls after successful processing;
// unacked messages become visible again after the visibility timeout.
type JobQueue interface {
	Enqueue(ctx context.Context, msg models.QueueMessage) error
	// EnqueueDeduped skips the enqueue when a message with the same dedup key
	// is already pending. Document identity is the natural dedup key for
	// ingestion jobs.
	EnqueueDeduped(ctx context.Context, msg models.QueueMessage, dedupKey string) error
	Receive(ctx context.Context) (*models.QueueMessage, func() error, error)
	Close() error
}
