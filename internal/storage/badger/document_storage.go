package badger

import (
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/lexa/internal/interfaces"
	"github.com/ternarybob/lexa/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// DocumentStorage implements the DocumentStorage interface for Badger
type DocumentStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewDocumentStorage creates a new DocumentStorage instance
func NewDocumentStorage(db *BadgerDB, logger arbor.ILogger) interfaces.DocumentStorage {
	return &DocumentStorage{
		db:     db,
		logger: logger,
	}
}

func (s *DocumentStorage) SaveDocument(doc *models.Document) error {
	if doc.ID == "" {
		return fmt.Errorf("document ID is required")
	}

	now := time.Now()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now

	if err := s.db.Store().Upsert(doc.ID, doc); err != nil {
		return fmt.Errorf("failed to save document: %w", err)
	}
	return nil
}

func (s *DocumentStorage) GetDocument(id string) (*models.Document, error) {
	var doc models.Document
	if err := s.db.Store().Get(id, &doc); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("document %s: %w", id, interfaces.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return &doc, nil
}

func (s *DocumentStorage) ListByStatus(status models.DocumentStatus, limit int) ([]*models.Document, error) {
	query := badgerhold.Where("Status").Eq(status)
	if limit > 0 {
		query = query.Limit(limit)
	}

	var docs []models.Document
	if err := s.db.Store().Find(&docs, query); err != nil {
		return nil, fmt.Errorf("failed to list documents by status: %w", err)
	}

	result := make([]*models.Document, len(docs))
	for i := range docs {
		result[i] = &docs[i]
	}
	return result, nil
}

// ListStale returns indexed documents of the given policy whose LastCheckedAt
// is nil or before the cutoff. The time comparison happens in Go because
// badgerhold cannot index optional timestamps.
func (s *DocumentStorage) ListStale(policy models.RefreshPolicy, cutoff time.Time, limit int) ([]*models.Document, error) {
	var docs []models.Document
	query := badgerhold.Where("Status").Eq(models.StatusIndexed).And("RefreshPolicy").Eq(policy)
	if err := s.db.Store().Find(&docs, query); err != nil {
		return nil, fmt.Errorf("failed to query indexed documents: %w", err)
	}

	var stale []*models.Document
	for i := range docs {
		doc := &docs[i]
		if doc.LastCheckedAt == nil || doc.LastCheckedAt.Before(cutoff) {
			stale = append(stale, doc)
			if limit > 0 && len(stale) >= limit {
				break
			}
		}
	}
	return stale, nil
}

func (s *DocumentStorage) MarkSuperseded(id, supersededBy, note string) error {
	doc, err := s.GetDocument(id)
	if err != nil {
		return err
	}
	doc.SupersededBy = supersededBy
	doc.SupersessionNote = note
	return s.SaveDocument(doc)
}

func (s *DocumentStorage) DeleteDocument(id string) error {
	if err := s.db.Store().Delete(id, &models.Document{}); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil
		}
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

var _ interfaces.DocumentStorage = (*DocumentStorage)(nil)
