package neo4j

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/config"

	"github.com/nexuslab/nexus/internal/util"
	"github.com/nexuslab/nexus/pkg/common"
	"github.com/nexuslab/nexus/pkg/logger"
	"github.com/nexuslab/nexus/pkg/store"
)

// Storage is the Neo4j-backed RelationshipStore. People are Person nodes
// keyed by canonical_id; relationships are undirected RELATES_TO edges
// keyed by the order-independent pair key, with observations held as a
// list property.
type Storage struct {
	driver   neo4j.DriverWithContext
	database string
}

var _ store.RelationshipStore = (*Storage)(nil)

// NewStorageParams configures NewStorage.
type NewStorageParams struct {
	URI      string
	Username string
	Password string
	Database string
}

// NewStorage connects to Neo4j, verifies connectivity, and ensures the
// uniqueness constraints the store relies on.
func NewStorage(ctx context.Context, params NewStorageParams) (*Storage, error) {
	driver, err := neo4j.NewDriverWithContext(
		params.URI,
		neo4j.BasicAuth(params.Username, params.Password, ""),
		func(c *config.Config) {
			c.MaxConnectionPoolSize = 50
		},
	)
	if err != nil {
		return nil, fmt.Errorf("neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("neo4j connectivity: %w", err)
	}

	s := &Storage{driver: driver, database: params.Database}
	s.ensureConstraints(ctx)
	return s, nil
}

func (s *Storage) ensureConstraints(ctx context.Context) {
	// Best effort, requires schema privileges. Retried because the server
	// may still be warming up right after a container start.
	err := util.RetryErrWithContext(ctx, 3, func(ctx context.Context) error {
		return s.write(ctx, func(tx neo4j.ManagedTransaction) error {
			queries := []string{
				`CREATE CONSTRAINT person_canonical_id IF NOT EXISTS
				 FOR (p:Person) REQUIRE p.canonical_id IS UNIQUE`,
			}
			for _, q := range queries {
				if _, err := tx.Run(ctx, q, nil); err != nil {
					return err
				}
			}
			return nil
		})
	})
	if err != nil {
		logger.Warn("[Store] Could not ensure neo4j constraints", "err", err)
	}
}

func (s *Storage) write(ctx context.Context, fn func(tx neo4j.ManagedTransaction) error) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: s.database,
	})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return nil, fn(tx)
	})
	return err
}

func (s *Storage) read(ctx context.Context, fn func(tx neo4j.ManagedTransaction) (any, error)) (any, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeRead,
		DatabaseName: s.database,
	})
	defer session.Close(ctx)

	return session.ExecuteRead(ctx, fn)
}

// Close implements store.RelationshipStore.
func (s *Storage) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

// UpsertEntities implements store.RelationshipStore.
func (s *Storage) UpsertEntities(ctx context.Context, ids []string) error {
	ids = store.DedupeStrings(ids)
	if len(ids) == 0 {
		return nil
	}
	return s.write(ctx, func(tx neo4j.ManagedTransaction) error {
		res, err := tx.Run(ctx, `
UNWIND $ids AS id
MERGE (p:Person {canonical_id: id})
ON CREATE SET p.created_at = datetime()
`, map[string]any{"ids": ids})
		if err != nil {
			return err
		}
		_, err = res.Consume(ctx)
		return err
	})
}

const mergeEdgeCypher = `
MATCH (a:Person {canonical_id: $a}), (b:Person {canonical_id: $b})
MERGE (a)-[r:RELATES_TO {pair_key: $key}]-(b)
ON CREATE SET r.observations = [$text],
              r.interaction_count = 0,
              r.summary = '',
              r.updated_at = datetime()
ON MATCH SET  r.observations = r.observations + $text,
              r.updated_at = datetime()
`

// AppendObservation implements store.RelationshipStore.
func (s *Storage) AppendObservation(ctx context.Context, pair common.Pair, text string) error {
	if pair.IsSelf() || pair.A == "" || pair.B == "" {
		return fmt.Errorf("invalid pair %q", pair.Key())
	}
	return s.AppendObservationFanout(ctx, []common.Pair{pair}, text)
}

// AppendObservationFanout implements store.RelationshipStore.
func (s *Storage) AppendObservationFanout(ctx context.Context, pairs []common.Pair, text string) error {
	pairs = store.DedupePairs(pairs)
	if len(pairs) == 0 {
		return nil
	}
	if err := s.UpsertEntities(ctx, store.PairMembers(pairs)); err != nil {
		return err
	}

	return s.write(ctx, func(tx neo4j.ManagedTransaction) error {
		for _, pair := range pairs {
			res, err := tx.Run(ctx, mergeEdgeCypher, map[string]any{
				"a":    pair.A,
				"b":    pair.B,
				"key":  pair.Key(),
				"text": text,
			})
			if err != nil {
				return err
			}
			if _, err := res.Consume(ctx); err != nil {
				return err
			}
		}
		return nil
	})
}

// IncrementInteractionCounts implements store.RelationshipStore.
func (s *Storage) IncrementInteractionCounts(ctx context.Context, pairs []common.Pair) error {
	pairs = store.DedupePairs(pairs)
	if len(pairs) == 0 {
		return nil
	}
	if err := s.UpsertEntities(ctx, store.PairMembers(pairs)); err != nil {
		return err
	}

	return s.write(ctx, func(tx neo4j.ManagedTransaction) error {
		for _, pair := range pairs {
			res, err := tx.Run(ctx, `
MATCH (a:Person {canonical_id: $a}), (b:Person {canonical_id: $b})
MERGE (a)-[r:RELATES_TO {pair_key: $key}]-(b)
ON CREATE SET r.observations = [],
              r.interaction_count = 1,
              r.summary = '',
              r.updated_at = datetime()
ON MATCH SET  r.interaction_count = coalesce(r.interaction_count, 0) + 1,
              r.updated_at = datetime()
`, map[string]any{"a": pair.A, "b": pair.B, "key": pair.Key()})
			if err != nil {
				return err
			}
			if _, err := res.Consume(ctx); err != nil {
				return err
			}
		}
		return nil
	})
}

// SetSummaries implements store.RelationshipStore.
//
// Neo4j has no vector column in this deployment; embeddings are dropped.
func (s *Storage) SetSummaries(ctx context.Context, summaries []common.EdgeSummary) error {
	if len(summaries) == 0 {
		return nil
	}
	return s.write(ctx, func(tx neo4j.ManagedTransaction) error {
		for _, sum := range summaries {
			res, err := tx.Run(ctx, `
MATCH ()-[r:RELATES_TO {pair_key: $key}]-()
SET r.summary = $summary, r.updated_at = datetime()
`, map[string]any{"key": sum.Pair.Key(), "summary": sum.Summary})
			if err != nil {
				return err
			}
			if _, err := res.Consume(ctx); err != nil {
				return err
			}
		}
		return nil
	})
}

func edgeQuery(where string) string {
	return `
MATCH (a:Person)-[r:RELATES_TO]-(b:Person)
WHERE a.canonical_id < b.canonical_id ` + where + `
RETURN a.canonical_id AS a, b.canonical_id AS b, r.observations AS observations,
       coalesce(r.interaction_count, 0) AS interaction_count,
       coalesce(r.summary, '') AS summary
ORDER BY r.pair_key
`
}

func recordsToEdges(records []*neo4j.Record) []common.Edge {
	out := make([]common.Edge, 0, len(records))
	for _, rec := range records {
		a, _ := rec.Get("a")
		b, _ := rec.Get("b")
		obs, _ := rec.Get("observations")
		count, _ := rec.Get("interaction_count")
		summary, _ := rec.Get("summary")

		e := common.Edge{
			Pair:    common.NewPair(a.(string), b.(string)),
			Summary: summary.(string),
		}
		if c, ok := count.(int64); ok {
			e.InteractionCount = int(c)
		}
		if list, ok := obs.([]any); ok {
			for _, o := range list {
				if txt, ok := o.(string); ok {
					e.Observations = append(e.Observations, txt)
				}
			}
		}
		out = append(out, e)
	}
	return out
}

func (s *Storage) queryEdges(ctx context.Context, where string, params map[string]any) ([]common.Edge, error) {
	res, err := s.read(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		cursor, err := tx.Run(ctx, edgeQuery(where), params)
		if err != nil {
			return nil, err
		}
		return cursor.Collect(ctx)
	})
	if err != nil {
		return nil, err
	}
	return recordsToEdges(res.([]*neo4j.Record)), nil
}

// Edges implements store.RelationshipStore.
func (s *Storage) Edges(ctx context.Context, entityFilter []string) ([]common.Edge, error) {
	entityFilter = store.DedupeStrings(entityFilter)
	if len(entityFilter) == 0 {
		return s.queryEdges(ctx, "", nil)
	}
	return s.queryEdges(ctx,
		`AND (a.canonical_id IN $filter OR b.canonical_id IN $filter)`,
		map[string]any{"filter": entityFilter})
}

// EdgesMissingSummary implements store.RelationshipStore.
func (s *Storage) EdgesMissingSummary(ctx context.Context, entityFilter []string) ([]common.Edge, error) {
	entityFilter = store.DedupeStrings(entityFilter)
	where := `AND size(r.observations) > 0 AND coalesce(r.summary, '') = ''`
	if len(entityFilter) == 0 {
		return s.queryEdges(ctx, where, nil)
	}
	return s.queryEdges(ctx,
		where+` AND (a.canonical_id IN $filter OR b.canonical_id IN $filter)`,
		map[string]any{"filter": entityFilter})
}

// GetEdge implements store.RelationshipStore.
func (s *Storage) GetEdge(ctx context.Context, pair common.Pair) (*common.Edge, error) {
	edges, err := s.queryEdges(ctx,
		`AND r.pair_key = $key`,
		map[string]any{"key": pair.Key()})
	if err != nil {
		return nil, err
	}
	if len(edges) == 0 {
		return nil, store.ErrEdgeNotFound
	}
	return &edges[0], nil
}

// Entities implements store.RelationshipStore.
func (s *Storage) Entities(ctx context.Context) ([]common.Entity, error) {
	res, err := s.read(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		cursor, err := tx.Run(ctx, `
MATCH (p:Person)
RETURN p.canonical_id AS id
ORDER BY id
`, nil)
		if err != nil {
			return nil, err
		}
		return cursor.Collect(ctx)
	})
	if err != nil {
		return nil, err
	}

	records := res.([]*neo4j.Record)
	out := make([]common.Entity, 0, len(records))
	for _, rec := range records {
		id, _ := rec.Get("id")
		out = append(out, common.Entity{CanonicalID: id.(string)})
	}
	return out, nil
}

// HasEntity implements store.RelationshipStore.
func (s *Storage) HasEntity(ctx context.Context, id string) (bool, error) {
	res, err := s.read(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		cursor, err := tx.Run(ctx, `
MATCH (p:Person {canonical_id: $id})
RETURN count(p) AS c
`, map[string]any{"id": id})
		if err != nil {
			return nil, err
		}
		rec, err := cursor.Single(ctx)
		if err != nil {
			return nil, err
		}
		c, _ := rec.Get("c")
		return c.(int64) > 0, nil
	})
	if err != nil {
		return false, err
	}
	return res.(bool), nil
}

// Meta implements store.RelationshipStore.
func (s *Storage) Meta(ctx context.Context, topDegrees int) (*store.Meta, error) {
	if topDegrees <= 0 {
		topDegrees = 10
	}

	res, err := s.read(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		meta := &store.Meta{}

		cursor, err := tx.Run(ctx, `
MATCH (p:Person)
OPTIONAL MATCH (p)-[r:RELATES_TO]-()
RETURN p.canonical_id AS id, count(r) AS degree
ORDER BY degree DESC, id
`, nil)
		if err != nil {
			return nil, err
		}
		records, err := cursor.Collect(ctx)
		if err != nil {
			return nil, err
		}

		edgeSeen := 0
		for _, rec := range records {
			id, _ := rec.Get("id")
			degree, _ := rec.Get("degree")
			d := 0
			if v, ok := degree.(int64); ok {
				d = int(v)
			}
			edgeSeen += d
			if len(meta.Degrees) < topDegrees {
				meta.Degrees = append(meta.Degrees, store.EntityDegree{
					CanonicalID: id.(string),
					Degree:      d,
				})
			}
		}
		meta.EntityCount = len(records)
		// every undirected edge is counted from both endpoints
		meta.EdgeCount = edgeSeen / 2
		return meta, nil
	})
	if err != nil {
		return nil, err
	}
	return res.(*store.Meta), nil
}
