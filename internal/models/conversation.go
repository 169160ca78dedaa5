package models

import "time"

// Turn is one question/answer pair within a conversation.
type Turn struct {
	Question string    `json:"question"`
	Answer   string    `json:"answer"`
	AskedAt  time.Time `json:"asked_at"`
}

// Conversation groups query turns so follow-up questions carry history.
type Conversation struct {
	ID        string    `json:"id" badgerhold:"key"`
	Turns     []Turn    `json:"turns"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
