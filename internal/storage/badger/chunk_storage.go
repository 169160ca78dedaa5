package badger

import (
	"fmt"
	"sort"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/lexa/internal/interfaces"
	"github.com/ternarybob/lexa/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// ChunkStorage implements the ChunkStorage interface for Badger
type ChunkStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewChunkStorage creates a new ChunkStorage instance
func NewChunkStorage(db *BadgerDB, logger arbor.ILogger) interfaces.ChunkStorage {
	return &ChunkStorage{
		db:     db,
		logger: logger,
	}
}

func (s *ChunkStorage) SaveChunks(chunks []*models.Chunk) error {
	now := time.Now()
	for _, chunk := range chunks {
		if chunk.ID == "" {
			return fmt.Errorf("chunk ID is required")
		}
		if chunk.CreatedAt.IsZero() {
			chunk.CreatedAt = now
		}
		if err := s.db.Store().Upsert(chunk.ID, chunk); err != nil {
			return fmt.Errorf("failed to save chunk %s: %w", chunk.ID, err)
		}
	}
	return nil
}

// GetChunksByDocument returns a document's chunks in ordinal order.
func (s *ChunkStorage) GetChunksByDocument(documentID string) ([]*models.Chunk, error) {
	var chunks []models.Chunk
	if err := s.db.Store().Find(&chunks, badgerhold.Where("DocumentID").Eq(documentID).Index("DocumentID")); err != nil {
		return nil, fmt.Errorf("failed to get chunks for document %s: %w", documentID, err)
	}

	sort.Slice(chunks, func(i, j int) bool {
		return chunks[i].Ordinal < chunks[j].Ordinal
	})

	result := make([]*models.Chunk, len(chunks))
	for i := range chunks {
		result[i] = &chunks[i]
	}
	return result, nil
}

func (s *ChunkStorage) DeleteChunksByDocument(documentID string) (int, error) {
	chunks, err := s.GetChunksByDocument(documentID)
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, chunk := range chunks {
		if err := s.db.Store().Delete(chunk.ID, &models.Chunk{}); err != nil {
			if err == badgerhold.ErrNotFound {
				continue
			}
			return deleted, fmt.Errorf("failed to delete chunk %s: %w", chunk.ID, err)
		}
		deleted++
	}
	return deleted, nil
}

func (s *ChunkStorage) CountByDocument(documentID string) (int, error) {
	count, err := s.db.Store().Count(&models.Chunk{}, badgerhold.Where("DocumentID").Eq(documentID).Index("DocumentID"))
	if err != nil {
		return 0, fmt.Errorf("failed to count chunks for document %s: %w", documentID, err)
	}
	return int(count), nil
}

var _ interfaces.ChunkStorage = (*ChunkStorage)(nil)
