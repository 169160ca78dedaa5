package models

import "time"

// QueryRecord is persisted after each answered query. Feedback fields are
// the only ones mutated after creation.
type QueryRecord struct {
	ID             string            `json:"id" badgerhold:"key"`
	ConversationID string            `json:"conversation_id,omitempty" badgerhold:"index"`
	Question       string            `json:"question"`
	Answer         string            `json:"answer"`
	ChunkIDs       []string          `json:"chunk_ids"`
	Metadata       map[string]string `json:"metadata,omitempty"`

	Rating          int    `json:"rating,omitempty"` // -1, 0 (unset) or +1
	FeedbackComment string `json:"feedback_comment,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}
