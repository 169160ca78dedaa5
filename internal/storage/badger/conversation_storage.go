package badger

import (
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/lexa/internal/common"
	"github.com/ternarybob/lexa/internal/interfaces"
	"github.com/ternarybob/lexa/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// ConversationStorage implements the ConversationStorage interface for Badger
type ConversationStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewConversationStorage creates a new ConversationStorage instance
func NewConversationStorage(db *BadgerDB, logger arbor.ILogger) interfaces.ConversationStorage {
	return &ConversationStorage{
		db:     db,
		logger: logger,
	}
}

func (s *ConversationStorage) CreateConversation() (*models.Conversation, error) {
	now := time.Now()
	conv := &models.Conversation{
		ID:        common.NewConversationID(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.db.Store().Insert(conv.ID, conv); err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	return conv, nil
}

func (s *ConversationStorage) GetConversation(id string) (*models.Conversation, error) {
	var conv models.Conversation
	if err := s.db.Store().Get(id, &conv); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("conversation %s: %w", id, interfaces.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	return &conv, nil
}

func (s *ConversationStorage) AppendTurn(id string, turn models.Turn) error {
	conv, err := s.GetConversation(id)
	if err != nil {
		return err
	}

	conv.Turns = append(conv.Turns, turn)
	conv.UpdatedAt = time.Now()

	if err := s.db.Store().Update(id, conv); err != nil {
		return fmt.Errorf("failed to append turn: %w", err)
	}
	return nil
}

// RecentTurns returns up to limit turns, oldest first.
func (s *ConversationStorage) RecentTurns(id string, limit int) ([]models.Turn, error) {
	conv, err := s.GetConversation(id)
	if err != nil {
		return nil, err
	}

	turns := conv.Turns
	if limit > 0 && len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	return turns, nil
}

var _ interfaces.ConversationStorage = (*ConversationStorage)(nil)
