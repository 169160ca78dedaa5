package common

import (
	"github.com/google/uuid"
)

// NewDocumentID generates a unique document ID with the "doc_" prefix
func NewDocumentID() string {
	return "doc_" + uuid.New().String()
}

// NewChunkID generates a unique chunk ID with the "chk_" prefix
func NewChunkID() string {
	return "chk_" + uuid.New().String()
}

// NewQueryID generates a unique query record ID with the "qry_" prefix
func NewQueryID() string {
	return "qry_" + uuid.New().String()
}

// NewConversationID generates a unique conversation ID with the "conv_" prefix
func NewConversationID() string {
	return "conv_" + uuid.New().String()
}

// NewSourceID generates a unique source ID with the "src_" prefix
func NewSourceID() string {
	return "src_" + uuid.New().String()
}
