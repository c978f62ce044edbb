package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nexuslab/nexus/pkg/common"
	"github.com/nexuslab/nexus/pkg/store"
)

// Store is an in-process RelationshipStore backed by maps. It carries the
// full store semantics and is used for local development and as the test
// double for the extraction and backfill pipelines.
type Store struct {
	mu       sync.Mutex
	entities map[string]common.Entity
	edges    map[string]*common.Edge

	// Embeddings written by SetSummaries, keyed by pair key. Kept so
	// tests can assert what would hit the vector column.
	embeddings map[string][]float32
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		entities:   make(map[string]common.Entity),
		edges:      make(map[string]*common.Edge),
		embeddings: make(map[string][]float32),
	}
}

var _ store.RelationshipStore = (*Store)(nil)

func (s *Store) ensureEntityLocked(id string) {
	if _, ok := s.entities[id]; ok {
		return
	}
	s.entities[id] = common.Entity{CanonicalID: id, CreatedAt: time.Now()}
}

func (s *Store) ensureEdgeLocked(pair common.Pair) *common.Edge {
	key := pair.Key()
	if e, ok := s.edges[key]; ok {
		return e
	}
	s.ensureEntityLocked(pair.A)
	s.ensureEntityLocked(pair.B)
	e := &common.Edge{Pair: pair}
	s.edges[key] = e
	return e
}

// UpsertEntities implements store.RelationshipStore.
func (s *Store) UpsertEntities(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range store.DedupeStrings(ids) {
		s.ensureEntityLocked(id)
	}
	return nil
}

// AppendObservation implements store.RelationshipStore.
func (s *Store) AppendObservation(ctx context.Context, pair common.Pair, text string) error {
	if pair.IsSelf() || pair.A == "" || pair.B == "" {
		return fmt.Errorf("invalid pair %q", pair.Key())
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.ensureEdgeLocked(pair)
	e.Observations = append(e.Observations, text)
	e.UpdatedAt = time.Now()
	return nil
}

// AppendObservationFanout implements store.RelationshipStore.
func (s *Store) AppendObservationFanout(ctx context.Context, pairs []common.Pair, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, pair := range store.DedupePairs(pairs) {
		e := s.ensureEdgeLocked(pair)
		e.Observations = append(e.Observations, text)
		e.UpdatedAt = time.Now()
	}
	return nil
}

// IncrementInteractionCounts implements store.RelationshipStore.
func (s *Store) IncrementInteractionCounts(ctx context.Context, pairs []common.Pair) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, pair := range store.DedupePairs(pairs) {
		e := s.ensureEdgeLocked(pair)
		e.InteractionCount++
		e.UpdatedAt = time.Now()
	}
	return nil
}

func touchesFilter(e *common.Edge, filter map[string]struct{}) bool {
	if len(filter) == 0 {
		return true
	}
	if _, ok := filter[e.Pair.A]; ok {
		return true
	}
	_, ok := filter[e.Pair.B]
	return ok
}

func filterSet(entityFilter []string) map[string]struct{} {
	if len(entityFilter) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(entityFilter))
	for _, id := range entityFilter {
		set[id] = struct{}{}
	}
	return set
}

func (s *Store) edgesWhere(entityFilter []string, pred func(*common.Edge) bool) []common.Edge {
	filter := filterSet(entityFilter)
	out := make([]common.Edge, 0, len(s.edges))
	for _, e := range s.edges {
		if !touchesFilter(e, filter) {
			continue
		}
		if pred != nil && !pred(e) {
			continue
		}
		cp := *e
		cp.Observations = append([]string(nil), e.Observations...)
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Pair.Key() < out[j].Pair.Key()
	})
	return out
}

// EdgesMissingSummary implements store.RelationshipStore.
func (s *Store) EdgesMissingSummary(ctx context.Context, entityFilter []string) ([]common.Edge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.edgesWhere(entityFilter, func(e *common.Edge) bool {
		return len(e.Observations) > 0 && !e.HasSummary()
	}), nil
}

// Edges implements store.RelationshipStore.
func (s *Store) Edges(ctx context.Context, entityFilter []string) ([]common.Edge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.edgesWhere(entityFilter, nil), nil
}

// GetEdge implements store.RelationshipStore.
func (s *Store) GetEdge(ctx context.Context, pair common.Pair) (*common.Edge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.edges[pair.Key()]
	if !ok {
		return nil, store.ErrEdgeNotFound
	}
	cp := *e
	cp.Observations = append([]string(nil), e.Observations...)
	return &cp, nil
}

// SetSummaries implements store.RelationshipStore.
func (s *Store) SetSummaries(ctx context.Context, summaries []common.EdgeSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sum := range summaries {
		e, ok := s.edges[sum.Pair.Key()]
		if !ok {
			continue
		}
		e.Summary = sum.Summary
		e.UpdatedAt = time.Now()
		if sum.Embedding != nil {
			s.embeddings[sum.Pair.Key()] = sum.Embedding
		}
	}
	return nil
}

// Entities implements store.RelationshipStore.
func (s *Store) Entities(ctx context.Context) ([]common.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]common.Entity, 0, len(s.entities))
	for _, e := range s.entities {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CanonicalID < out[j].CanonicalID
	})
	return out, nil
}

// HasEntity implements store.RelationshipStore.
func (s *Store) HasEntity(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entities[id]
	return ok, nil
}

// Meta implements store.RelationshipStore.
func (s *Store) Meta(ctx context.Context, topDegrees int) (*store.Meta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	degrees := make(map[string]int, len(s.entities))
	for id := range s.entities {
		degrees[id] = 0
	}
	for _, e := range s.edges {
		degrees[e.Pair.A]++
		degrees[e.Pair.B]++
	}

	ranked := make([]store.EntityDegree, 0, len(degrees))
	for id, d := range degrees {
		ranked = append(ranked, store.EntityDegree{CanonicalID: id, Degree: d})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Degree != ranked[j].Degree {
			return ranked[i].Degree > ranked[j].Degree
		}
		return ranked[i].CanonicalID < ranked[j].CanonicalID
	})
	if topDegrees > 0 && len(ranked) > topDegrees {
		ranked = ranked[:topDegrees]
	}

	return &store.Meta{
		EntityCount: len(s.entities),
		EdgeCount:   len(s.edges),
		Degrees:     ranked,
	}, nil
}

// Close implements store.RelationshipStore.
func (s *Store) Close(ctx context.Context) error {
	return nil
}

// SummaryEmbedding returns the embedding recorded for a pair, for tests.
func (s *Store) SummaryEmbedding(pair common.Pair) []float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.embeddings[pair.Key()]
}
