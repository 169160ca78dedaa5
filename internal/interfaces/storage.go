package interfaces

import (
	"errors"
	"time"

	"github.com/ternarybob/lexa/internal/models"
)

// ErrNotFound is returned by storage lookups when no row matches.
var ErrNotFound = errors.New("not found")

// DocumentStorage persists documents. Status mutations come exclusively from
// the ingestion state machine; "last write wins" is the accepted conflict
// policy for metadata updates.
type DocumentStorage interface {
	SaveDocument(doc *models.Document) error
	GetDocument(id string) (*models.Document, error)
	ListByStatus(status models.DocumentStatus, limit int) ([]*models.Document, error)
	// ListStale returns indexed documents of the given refresh policy whose
	// LastCheckedAt is nil or before the cutoff.
	ListStale(policy models.RefreshPolicy, cutoff time.Time, limit int) ([]*models.Document, error)
	MarkSuperseded(id, supersededBy, note string) error
	DeleteDocument(id string) error
}

// ChunkStorage persists document chunks.
type ChunkStorage interface {
	SaveChunks(chunks []*models.Chunk) error
	GetChunksByDocument(documentID string) ([]*models.Chunk, error)
	DeleteChunksByDocument(documentID string) (int, error)
	CountByDocument(documentID string) (int, error)
}

// QueryStorage persists answered queries and later-attached feedback.
type QueryStorage interface {
	SaveQuery(record *models.QueryRecord) error
	GetQuery(id string) (*models.QueryRecord, error)
	AttachFeedback(id string, rating int, comment string) error
}

// SourceStorage persists configured ingestion origins.
type SourceStorage interface {
	SaveSource(source *models.Source) error
	GetSource(id string) (*models.Source, error)
	ListActiveSources() ([]*models.Source, error)
	SetLastError(id string, message string) error
}

// ConversationStorage persists conversations and their turns.
type ConversationStorage interface {
	CreateConversation() (*models.Conversation, error)
	GetConversation(id string) (*models.Conversation, error)
	AppendTurn(id string, turn models.Turn) error
	// RecentTurns returns up to limit turns, oldest first.
	RecentTurns(id string, limit int) ([]models.Turn, error)
}

// QueryCache is a content-addressed cache of full query responses.
type QueryCache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
}
