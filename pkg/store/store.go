package store

import (
	"context"
	"errors"

	"github.com/nexuslab/nexus/pkg/common"
)

// ErrEdgeNotFound is returned by GetEdge when no edge exists for the pair.
var ErrEdgeNotFound = errors.New("edge not found")

// EntityDegree is one row of the degree ranking in Meta.
type EntityDegree struct {
	CanonicalID string `json:"canonical_id"`
	Degree      int    `json:"degree"`
}

// Meta summarizes the stored graph: node and edge counts plus the
// highest-degree entities.
type Meta struct {
	EntityCount int            `json:"entity_count"`
	EdgeCount   int            `json:"edge_count"`
	Degrees     []EntityDegree `json:"degrees"`
}

// RelationshipStore is the persistence contract for the relationship graph.
//
// All operations take canonical ids; identity resolution happens before the
// store. Entities referenced by an append are created on demand, so callers
// never need to pre-register people. Observation appends are atomic per
// pair: two concurrent appends to the same edge both land, in some order,
// without losing either.
type RelationshipStore interface {
	// UpsertEntities ensures an entity row exists for every canonical id.
	UpsertEntities(ctx context.Context, ids []string) error

	// AppendObservation appends one observation text to the edge for pair,
	// creating the edge (and its entities) if missing. Self pairs are
	// rejected.
	AppendObservation(ctx context.Context, pair common.Pair, text string) error

	// AppendObservationFanout appends the same observation text to every
	// pair in one batch.
	AppendObservationFanout(ctx context.Context, pairs []common.Pair, text string) error

	// IncrementInteractionCounts adds one interaction to every pair's edge.
	// Called once per conversation thread with the thread's deduplicated
	// touched-pair set.
	IncrementInteractionCounts(ctx context.Context, pairs []common.Pair) error

	// EdgesMissingSummary returns edges that have observations but no
	// summary yet. A non-empty entityFilter restricts the result to edges
	// touching at least one of the given canonical ids.
	EdgesMissingSummary(ctx context.Context, entityFilter []string) ([]common.Edge, error)

	// Edges returns all edges, optionally restricted to edges touching at
	// least one canonical id in entityFilter.
	Edges(ctx context.Context, entityFilter []string) ([]common.Edge, error)

	// GetEdge returns the edge for pair or ErrEdgeNotFound.
	GetEdge(ctx context.Context, pair common.Pair) (*common.Edge, error)

	// SetSummaries writes back a batch of generated summaries. Existing
	// summaries are overwritten.
	SetSummaries(ctx context.Context, summaries []common.EdgeSummary) error

	// Entities lists all known entities.
	Entities(ctx context.Context) ([]common.Entity, error)

	// HasEntity reports whether a canonical id is known.
	HasEntity(ctx context.Context, id string) (bool, error)

	// Meta returns graph-level counts and the top-degree entities.
	Meta(ctx context.Context, topDegrees int) (*Meta, error)

	Close(ctx context.Context) error
}
