package models

import "time"

// Source is a configured ingestion origin driving scheduled discovery of
// documents. Sources are not versioned.
type Source struct {
	ID                  string         `json:"id" badgerhold:"key"`
	Name                string         `json:"name"`
	URL                 string         `json:"url"`
	Type                DocumentSource `json:"type"`
	Active              bool           `json:"active"`
	ScrapeIntervalHours int            `json:"scrape_interval_hours"`
	RateLimitPerMin     int            `json:"rate_limit_per_min"`
	LastError           string         `json:"last_error,omitempty"`
	LastScrapedAt       *time.Time     `json:"last_scraped_at,omitempty"`
	CreatedAt           time.Time      `json:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at"`
}
