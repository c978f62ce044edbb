package queue

import "github.com/nexuslab/nexus/pkg/common"

// QueueThreadMsg is the payload on the ingest queue: one conversation
// thread to run through triage and extraction.
type QueueThreadMsg struct {
	Message string        `json:"message"`
	Thread  common.Thread `json:"thread"`
}

// QueueBackfillMsg is the payload on the summarize queue: a request to
// backfill relationship summaries.
type QueueBackfillMsg struct {
	Message      string   `json:"message"`
	EntityFilter []string `json:"entity_filter,omitempty"`
	SkipExisting bool     `json:"skip_existing"`

	// Concurrency and BatchSize override the backfill defaults when
	// positive.
	Concurrency int `json:"concurrency,omitempty"`
	BatchSize   int `json:"batch_size,omitempty"`
}
