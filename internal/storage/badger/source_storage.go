package badger

import (
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/lexa/internal/interfaces"
	"github.com/ternarybob/lexa/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// SourceStorage implements the SourceStorage interface for Badger
type SourceStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewSourceStorage creates a new SourceStorage instance
func NewSourceStorage(db *BadgerDB, logger arbor.ILogger) interfaces.SourceStorage {
	return &SourceStorage{
		db:     db,
		logger: logger,
	}
}

func (s *SourceStorage) SaveSource(source *models.Source) error {
	if source.ID == "" {
		return fmt.Errorf("source ID is required")
	}

	now := time.Now()
	if source.CreatedAt.IsZero() {
		source.CreatedAt = now
	}
	source.UpdatedAt = now

	if err := s.db.Store().Upsert(source.ID, source); err != nil {
		return fmt.Errorf("failed to save source: %w", err)
	}
	return nil
}

func (s *SourceStorage) GetSource(id string) (*models.Source, error) {
	var source models.Source
	if err := s.db.Store().Get(id, &source); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("source %s: %w", id, interfaces.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get source: %w", err)
	}
	return &source, nil
}

func (s *SourceStorage) ListActiveSources() ([]*models.Source, error) {
	var sources []models.Source
	if err := s.db.Store().Find(&sources, badgerhold.Where("Active").Eq(true)); err != nil {
		return nil, fmt.Errorf("failed to list active sources: %w", err)
	}

	result := make([]*models.Source, len(sources))
	for i := range sources {
		result[i] = &sources[i]
	}
	return result, nil
}

func (s *SourceStorage) SetLastError(id string, message string) error {
	source, err := s.GetSource(id)
	if err != nil {
		return err
	}
	source.LastError = message
	return s.SaveSource(source)
}

var _ interfaces.SourceStorage = (*SourceStorage)(nil)
