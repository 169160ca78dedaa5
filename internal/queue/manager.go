// -----------------------------------------------------------------------
// Job Queue - Durable at-least-once queue over BadgerDB
// Visibility-timeout semantics with a sortable time index
// -----------------------------------------------------------------------

package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/lexa/internal/interfaces"
	"github.com/ternarybob/lexa/internal/models"
)

// envelope is the internal record stored per message.
type envelope struct {
	ID           string              `json:"id"`
	Body         models.QueueMessage `json:"body"`
	EnqueuedAt   time.Time           `json:"enqueued_at"`
	VisibleAt    time.Time           `json:"visible_at"`
	ReceiveCount int                 `json:"receive_count"`
	DedupKey     string              `json:"dedup_key,omitempty"`
}

// Manager implements a persistent queue on BadgerDB. Messages live at
// queue:{name}:msg:{id}; a zero-padded nanosecond index at
// queue:{name}:index:{visibleAt}:{id} keeps them scannable in
// visibility order. Claiming a message bumps its visibility forward so
// crashed workers release it automatically.
type Manager struct {
	db                *badger.DB
	queueName         string
	visibilityTimeout time.Duration
	maxReceive        int
	logger            arbor.ILogger
}

// NewManager creates a new Badger-backed queue manager
func NewManager(db *badger.DB, queueName string, visibilityTimeout time.Duration, maxReceive int, logger arbor.ILogger) (*Manager, error) {
	if db == nil {
		return nil, errors.New("badger db is required")
	}
	if queueName == "" {
		return nil, errors.New("queue name is required")
	}
	if visibilityTimeout <= 0 {
		visibilityTimeout = 5 * time.Minute
	}
	if maxReceive <= 0 {
		maxReceive = 3
	}

	return &Manager{
		db:                db,
		queueName:         queueName,
		visibilityTimeout: visibilityTimeout,
		maxReceive:        maxReceive,
		logger:            logger,
	}, nil
}

// Enqueue adds a message, immediately visible.
func (m *Manager) Enqueue(ctx context.Context, msg models.QueueMessage) error {
	return m.enqueue(ctx, msg, "")
}

// EnqueueDeduped skips the write when a pending message holds the same
// dedup key. The marker is removed on ack, so a document can be queued
// again once its previous job completes.
func (m *Manager) EnqueueDeduped(ctx context.Context, msg models.QueueMessage, dedupKey string) error {
	if dedupKey == "" {
		return m.Enqueue(ctx, msg)
	}
	return m.enqueue(ctx, msg, dedupKey)
}

func (m *Manager) enqueue(ctx context.Context, msg models.QueueMessage, dedupKey string) error {
	env := envelope{
		ID:         uuid.New().String(),
		Body:       msg,
		EnqueuedAt: time.Now(),
		VisibleAt:  time.Now(),
		DedupKey:   dedupKey,
	}

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal queue message: %w", err)
	}

	return m.db.Update(func(txn *badger.Txn) error {
		if dedupKey != "" {
			dk := m.dedupKeyBytes(dedupKey)
			if _, err := txn.Get(dk); err == nil {
				m.logger.Debug().
					Str("dedup_key", dedupKey).
					Str("type", msg.Type).
					Msg("Skipping duplicate enqueue")
				return nil
			} else if err != badger.ErrKeyNotFound {
				return err
			}
			if err := txn.Set(dk, []byte(env.ID)); err != nil {
				return err
			}
		}

		if err := txn.Set(m.msgKey(env.ID), data); err != nil {
			return err
		}
		return txn.Set(m.indexKey(env.VisibleAt, env.ID), []byte{})
	})
}

// Receive claims the next visible message. The returned ack function
// deletes it; unacked messages reappear after the visibility timeout.
// Messages exceeding the receive ceiling are dropped as poison.
func (m *Manager) Receive(ctx context.Context) (*models.QueueMessage, func() error, error) {
	var claimed envelope
	var msgID string

	err := m.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		prefix := []byte(fmt.Sprintf("queue:%s:index:", m.queueName))
		it := txn.NewIterator(opts)
		defer it.Close()

		now := time.Now()
		found := false

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().KeyCopy(nil)

			ts, id, err := m.parseIndexKey(key)
			if err != nil {
				continue
			}
			if ts.After(now) {
				// Index keys sort by timestamp; nothing further is ready.
				break
			}

			item, err := txn.Get(m.msgKey(id))
			if err != nil {
				if err == badger.ErrKeyNotFound {
					// Orphaned index entry.
					if err := txn.Delete(key); err != nil {
						return err
					}
					continue
				}
				return err
			}

			var env envelope
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &env)
			}); err != nil {
				return err
			}

			if env.ReceiveCount >= m.maxReceive {
				m.logger.Warn().
					Str("message_id", id).
					Str("type", env.Body.Type).
					Int("receive_count", env.ReceiveCount).
					Msg("Dropping poison message after max receives")
				if err := m.remove(txn, key, &env); err != nil {
					return err
				}
				continue
			}

			claimed = env
			msgID = id
			claimed.ReceiveCount++
			claimed.VisibleAt = now.Add(m.visibilityTimeout)

			data, err := json.Marshal(claimed)
			if err != nil {
				return err
			}
			if err := txn.Set(m.msgKey(id), data); err != nil {
				return err
			}
			if err := txn.Delete(key); err != nil {
				return err
			}
			if err := txn.Set(m.indexKey(claimed.VisibleAt, id), []byte{}); err != nil {
				return err
			}
			found = true
			break
		}

		if !found {
			return models.ErrNoMessage
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	ack := func() error {
		return m.db.Update(func(txn *badger.Txn) error {
			item, err := txn.Get(m.msgKey(msgID))
			if err != nil {
				if err == badger.ErrKeyNotFound {
					return nil // already acked
				}
				return err
			}

			var current envelope
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &current)
			}); err != nil {
				return err
			}
			return m.remove(txn, m.indexKey(current.VisibleAt, msgID), &current)
		})
	}

	body := claimed.Body
	return &body, ack, nil
}

// remove deletes a message, its index entry and its dedup marker.
func (m *Manager) remove(txn *badger.Txn, indexKey []byte, env *envelope) error {
	if err := txn.Delete(indexKey); err != nil && err != badger.ErrKeyNotFound {
		return err
	}
	if env.DedupKey != "" {
		if err := txn.Delete(m.dedupKeyBytes(env.DedupKey)); err != nil && err != badger.ErrKeyNotFound {
			return err
		}
	}
	return txn.Delete(m.msgKey(env.ID))
}

// Close is a no-op; the database lifecycle is managed by the caller.
func (m *Manager) Close() error {
	return nil
}

func (m *Manager) msgKey(id string) []byte {
	return []byte(fmt.Sprintf("queue:%s:msg:%s", m.queueName, id))
}

func (m *Manager) dedupKeyBytes(dedupKey string) []byte {
	return []byte(fmt.Sprintf("queue:%s:dedup:%s", m.queueName, dedupKey))
}

// indexKey zero-pads the nanosecond timestamp to 20 digits so
// lexicographic key order matches chronological order.
func (m *Manager) indexKey(visibleAt time.Time, id string) []byte {
	return []byte(fmt.Sprintf("queue:%s:index:%020d:%s", m.queueName, visibleAt.UnixNano(), id))
}

func (m *Manager) parseIndexKey(key []byte) (time.Time, string, error) {
	prefix := fmt.Sprintf("queue:%s:index:", m.queueName)
	suffix := string(key[len(prefix):])
	if len(suffix) < 21 {
		return time.Time{}, "", fmt.Errorf("invalid index key %q", key)
	}

	var ts int64
	if _, err := fmt.Sscanf(suffix[:20], "%d", &ts); err != nil {
		return time.Time{}, "", err
	}
	return time.Unix(0, ts), suffix[21:], nil
}

var _ interfaces.JobQueue = (*Manager)(nil)
