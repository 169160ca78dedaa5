package models

import (
	"encoding/json"
	"errors"
)

// ErrNoMessage is returned when the queue is empty
var ErrNoMessage = errors.New("no messages in queue")

// Job types routed by the ingestion worker. Refresh jobs are distinct from
// initial ingestion so the dedup-on-refresh short-circuit applies.
const (
	JobTypeIngest  = "document_ingest"
	JobTypeRefresh = "document_refresh"
)

// QueueMessage is the envelope stored in the queue.
// Keep it simple - just enough to route the job.
type QueueMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// IngestPayload carries a document identity plus its content source: raw
// bytes already in hand, or a fallback file path to read.
type IngestPayload struct {
	DocumentID string `json:"document_id"`
	Content    []byte `json:"content,omitempty"`
	FilePath   string `json:"file_path,omitempty"`
}

// NewIngestMessage builds an ingestion queue message.
func NewIngestMessage(jobType string, payload IngestPayload) (QueueMessage, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return QueueMessage{}, err
	}
	return QueueMessage{Type: jobType, Payload: data}, nil
}
