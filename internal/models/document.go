package models

import (
	"errors"
	"fmt"
	"time"
)

// DocumentStatus tracks a document through the ingestion lifecycle.
type DocumentStatus string

const (
	StatusPending   DocumentStatus = "pending"
	StatusParsing   DocumentStatus = "parsing"
	StatusChunking  DocumentStatus = "chunking"
	StatusEmbedding DocumentStatus = "embedding"
	StatusIndexed   DocumentStatus = "indexed"
	StatusFailed    DocumentStatus = "failed"
)

// ErrInvalidTransition is returned when a status change would skip or reverse
// a step of the ingestion lifecycle.
var ErrInvalidTransition = errors.New("invalid status transition")

// validTransitions maps each status to the statuses reachable from it.
// Forward movement is strictly sequential; failed is reachable from any
// in-flight state. Pending is re-entered via reprocessing, including
// from documents stuck mid-flight. Parsing is re-entered from indexed
// (refresh with changed content) and from failed, so a redelivered job
// can retry after a transient failure.
var validTransitions = map[DocumentStatus][]DocumentStatus{
	StatusPending:   {StatusParsing, StatusFailed},
	StatusParsing:   {StatusChunking, StatusPending, StatusFailed},
	StatusChunking:  {StatusEmbedding, StatusPending, StatusFailed},
	StatusEmbedding: {StatusIndexed, StatusPending, StatusFailed},
	StatusIndexed:   {StatusPending, StatusParsing},
	StatusFailed:    {StatusPending, StatusParsing},
}

// DocumentSource identifies where a document was discovered.
type DocumentSource string

const (
	SourceATO         DocumentSource = "ato"
	SourceLegislation DocumentSource = "legislation"
	SourceTreasury    DocumentSource = "treasury"
	SourceUpload      DocumentSource = "upload"
)

// DocType classifies the kind of legal/regulatory document.
type DocType string

const (
	DocTypeRuling      DocType = "ruling"
	DocTypeLegislation DocType = "legislation"
	DocTypeGuidance    DocType = "guidance"
	DocTypeForm        DocType = "form"
	DocTypeOther       DocType = "other"
)

// Audience identifies who a document is written for.
type Audience string

const (
	AudienceIndividual   Audience = "individual"
	AudienceBusiness     Audience = "business"
	AudienceProfessional Audience = "tax-professional"
	AudienceGeneral      Audience = "general"
)

// RefreshPolicy is a per-document staleness tier.
type RefreshPolicy string

const (
	RefreshWeekly    RefreshPolicy = "weekly"
	RefreshMonthly   RefreshPolicy = "monthly"
	RefreshQuarterly RefreshPolicy = "quarterly"
	RefreshNever     RefreshPolicy = "never"
)

// StalenessDays returns the refresh threshold in days, or 0 when the
// document is never re-checked.
func (p RefreshPolicy) StalenessDays() int {
	switch p {
	case RefreshWeekly:
		return 7
	case RefreshMonthly:
		return 30
	case RefreshQuarterly:
		return 90
	default:
		return 0
	}
}

// Document represents a unit of ingested content.
type Document struct {
	ID        string         `json:"id" badgerhold:"key"`
	Title     string         `json:"title"`
	Source    DocumentSource `json:"source"`
	SourceURL string         `json:"source_url"`

	// RawPath points at the stored raw payload so refresh jobs can re-read it.
	RawPath string `json:"raw_path,omitempty"`

	Status       DocumentStatus `json:"status"`
	ErrorMessage string         `json:"error_message,omitempty"`

	DocType  DocType  `json:"doc_type,omitempty"`
	Audience Audience `json:"audience,omitempty"`
	TaxArea  string   `json:"tax_area,omitempty"`

	RefreshPolicy RefreshPolicy `json:"refresh_policy"`
	ContentHash   string        `json:"content_hash,omitempty"`
	LastCheckedAt *time.Time    `json:"last_checked_at,omitempty"`

	// A superseded document stays retrievable; the link records its successor.
	SupersededBy     string `json:"superseded_by,omitempty"`
	SupersessionNote string `json:"supersession_note,omitempty"`

	// Metadata carries source-specific fields used by the classifier
	// (e.g. "section" for ATO pages, "document-kind" for legislation).
	Metadata map[string]string `json:"metadata,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TransitionTo moves the document to the next lifecycle status, rejecting
// transitions the state machine does not allow. UpdatedAt is bumped on
// every accepted transition.
func (d *Document) TransitionTo(next DocumentStatus) error {
	for _, allowed := range validTransitions[d.Status] {
		if next == allowed {
			d.Status = next
			if next != StatusFailed {
				d.ErrorMessage = ""
			}
			d.UpdatedAt = time.Now()
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, d.Status, next)
}

// Fail marks the document failed with a captured error message.
func (d *Document) Fail(message string) error {
	if err := d.TransitionTo(StatusFailed); err != nil {
		return err
	}
	d.ErrorMessage = message
	return nil
}
