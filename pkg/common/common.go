package common

import "time"

// Entity represents one person in the relationship graph, identified by a
// canonical id. For email-based corpora the canonical id is the lowercased
// address; free-form names pass through alias resolution first.
//
// Entities are created implicitly the first time an observation touches them.
type Entity struct {
	CanonicalID string    `json:"canonical_id"`
	Aliases     []string  `json:"aliases,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Edge is an undirected relationship between two people. It accumulates
// append-only observation texts over time, counts distinct conversation
// threads the pair appeared in together, and optionally carries an
// AI-generated summary plus community-clustering metadata.
//
// Observations are never rewritten or truncated, only appended.
type Edge struct {
	Pair             Pair      `json:"pair"`
	Observations     []string  `json:"observations"`
	InteractionCount int       `json:"interaction_count"`
	Summary          string    `json:"summary,omitempty"`
	ClusterID        *int      `json:"cluster_id,omitempty"`
	ClusterLabel     string    `json:"cluster_label,omitempty"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// HasSummary reports whether a summary has been generated for this edge.
func (e Edge) HasSummary() bool {
	return e.Summary != ""
}

// EdgeSummary is the write-back unit for batch summary persistence.
// Embedding may be nil when the model client has no embedding support.
type EdgeSummary struct {
	Pair      Pair      `json:"pair"`
	Summary   string    `json:"summary"`
	Embedding []float32 `json:"-"`
}

// Thread is one conversation (an email chain, a chat transcript) submitted
// for relationship extraction. Participants hold the raw, unresolved
// identifiers as they appeared in the source.
type Thread struct {
	ID              string   `json:"id"`
	Subject         string   `json:"subject,omitempty"`
	Participants    []string `json:"participants"`
	PeopleMentioned []string `json:"people_mentioned,omitempty"`
	Text            string   `json:"text"`
}
