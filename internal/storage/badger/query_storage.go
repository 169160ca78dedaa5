package badger

import (
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/lexa/internal/interfaces"
	"github.com/ternarybob/lexa/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// QueryStorage implements the QueryStorage interface for Badger
type QueryStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewQueryStorage creates a new QueryStorage instance
func NewQueryStorage(db *BadgerDB, logger arbor.ILogger) interfaces.QueryStorage {
	return &QueryStorage{
		db:     db,
		logger: logger,
	}
}

func (s *QueryStorage) SaveQuery(record *models.QueryRecord) error {
	if record.ID == "" {
		return fmt.Errorf("query record ID is required")
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}
	if err := s.db.Store().Upsert(record.ID, record); err != nil {
		return fmt.Errorf("failed to save query record: %w", err)
	}
	return nil
}

func (s *QueryStorage) GetQuery(id string) (*models.QueryRecord, error) {
	var record models.QueryRecord
	if err := s.db.Store().Get(id, &record); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("query record %s: %w", id, interfaces.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get query record: %w", err)
	}
	return &record, nil
}

// AttachFeedback mutates only the feedback fields of an existing record.
func (s *QueryStorage) AttachFeedback(id string, rating int, comment string) error {
	if rating < -1 || rating > 1 {
		return fmt.Errorf("rating must be -1, 0 or 1, got %d", rating)
	}

	record, err := s.GetQuery(id)
	if err != nil {
		return err
	}

	record.Rating = rating
	record.FeedbackComment = comment
	if err := s.db.Store().Update(id, record); err != nil {
		return fmt.Errorf("failed to attach feedback: %w", err)
	}
	return nil
}

var _ interfaces.QueryStorage = (*QueryStorage)(nil)
