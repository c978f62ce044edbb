package pgx

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/nexuslab/nexus/pkg/common"
	"github.com/nexuslab/nexus/pkg/logger"
	"github.com/nexuslab/nexus/pkg/store"
)

const edgeChunk = 500

const appendObservationSQL = `
INSERT INTO edges (pair_key, entity_a, entity_b, observations)
VALUES ($1, $2, $3, ARRAY[$4::text])
ON CONFLICT (pair_key) DO UPDATE
SET observations = edges.observations || EXCLUDED.observations,
    updated_at   = now();
`

const appendObservationFanoutSQL = `
INSERT INTO edges (pair_key, entity_a, entity_b, observations)
SELECT t.pair_key, t.entity_a, t.entity_b, ARRAY[$4::text]
FROM unnest($1::text[], $2::text[], $3::text[]) AS t(pair_key, entity_a, entity_b)
ON CONFLICT (pair_key) DO UPDATE
SET observations = edges.observations || EXCLUDED.observations,
    updated_at   = now();
`

const ensureEdgesSQL = `
INSERT INTO edges (pair_key, entity_a, entity_b)
SELECT t.pair_key, t.entity_a, t.entity_b
FROM unnest($1::text[], $2::text[], $3::text[]) AS t(pair_key, entity_a, entity_b)
ON CONFLICT (pair_key) DO NOTHING;
`

const incrementCountsSQL = `
UPDATE edges
SET interaction_count = interaction_count + 1,
    updated_at        = now()
WHERE pair_key = ANY($1::text[]);
`

const setSummarySQL = `
UPDATE edges
SET summary           = $2,
    summary_embedding = $3,
    updated_at        = now()
WHERE pair_key = $1;
`

func pairColumns(pairs []common.Pair) (keys, as, bs []string) {
	keys = make([]string, len(pairs))
	as = make([]string, len(pairs))
	bs = make([]string, len(pairs))
	for i, p := range pairs {
		keys[i] = p.Key()
		as[i] = p.A
		bs[i] = p.B
	}
	return keys, as, bs
}

// AppendObservation implements store.RelationshipStore.
func (s *Storage) AppendObservation(ctx context.Context, pair common.Pair, text string) error {
	if pair.IsSelf() || pair.A == "" || pair.B == "" {
		return fmt.Errorf("invalid pair %q", pair.Key())
	}
	if err := s.UpsertEntities(ctx, []string{pair.A, pair.B}); err != nil {
		return err
	}
	_, err := s.conn.Exec(ctx, appendObservationSQL, pair.Key(), pair.A, pair.B, text)
	return err
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

	return store.ChunkRange(len(pairs), edgeChunk, func(start, end int) error {
		keys, as, bs := pairColumns(pairs[start:end])
		logger.Debug("[Store][AppendFanout] Saving chunk", "edges", len(keys))
		_, err := s.conn.Exec(ctx, appendObservationFanoutSQL, keys, as, bs, text)
		return err
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

	return store.ChunkRange(len(pairs), edgeChunk, func(start, end int) error {
		keys, as, bs := pairColumns(pairs[start:end])

		tx, err := s.conn.Begin(ctx)
		if err != nil {
			return err
		}
		defer tx.Rollback(ctx)

		if _, err := tx.Exec(ctx, ensureEdgesSQL, keys, as, bs); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, incrementCountsSQL, keys); err != nil {
			return err
		}
		return tx.Commit(ctx)
	})
}

// SetSummaries implements store.RelationshipStore.
func (s *Storage) SetSummaries(ctx context.Context, summaries []common.EdgeSummary) error {
	if len(summaries) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, sum := range summaries {
		var emb any
		if sum.Embedding != nil {
			emb = pgvector.NewVector(sum.Embedding)
		}
		batch.Queue(setSummarySQL, sum.Pair.Key(), sum.Summary, emb)
	}

	res := s.conn.SendBatch(ctx, batch)
	defer res.Close()
	for range summaries {
		if _, err := res.Exec(); err != nil {
			return err
		}
	}
	return nil
}

const selectEdgeColumns = `
SELECT entity_a, entity_b, observations, interaction_count, summary, cluster_id, cluster_label, updated_at
FROM edges
`

func scanEdges(rows pgx.Rows) ([]common.Edge, error) {
	defer rows.Close()

	var out []common.Edge
	for rows.Next() {
		var (
			e            common.Edge
			a, b         string
			clusterLabel *string
		)
		if err := rows.Scan(&a, &b, &e.Observations, &e.InteractionCount, &e.Summary, &e.ClusterID, &clusterLabel, &e.UpdatedAt); err != nil {
			return nil, err
		}
		e.Pair = common.NewPair(a, b)
		if clusterLabel != nil {
			e.ClusterLabel = *clusterLabel
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Edges implements store.RelationshipStore.
func (s *Storage) Edges(ctx context.Context, entityFilter []string) ([]common.Edge, error) {
	entityFilter = store.DedupeStrings(entityFilter)

	var (
		rows pgx.Rows
		err  error
	)
	if len(entityFilter) == 0 {
		rows, err = s.conn.Query(ctx, selectEdgeColumns+`ORDER BY pair_key;`)
	} else {
		rows, err = s.conn.Query(ctx, selectEdgeColumns+`
WHERE entity_a = ANY($1::text[]) OR entity_b = ANY($1::text[])
ORDER BY pair_key;
`, entityFilter)
	}
	if err != nil {
		return nil, err
	}
	return scanEdges(rows)
}

// EdgesMissingSummary implements store.RelationshipStore.
func (s *Storage) EdgesMissingSummary(ctx context.Context, entityFilter []string) ([]common.Edge, error) {
	entityFilter = store.DedupeStrings(entityFilter)

	var (
		rows pgx.Rows
		err  error
	)
	if len(entityFilter) == 0 {
		rows, err = s.conn.Query(ctx, selectEdgeColumns+`
WHERE summary = '' AND cardinality(observations) > 0
ORDER BY pair_key;
`)
	} else {
		rows, err = s.conn.Query(ctx, selectEdgeColumns+`
WHERE summary = '' AND cardinality(observations) > 0
  AND (entity_a = ANY($1::text[]) OR entity_b = ANY($1::text[]))
ORDER BY pair_key;
`, entityFilter)
	}
	if err != nil {
		return nil, err
	}
	return scanEdges(rows)
}

// GetEdge implements store.RelationshipStore.
func (s *Storage) GetEdge(ctx context.Context, pair common.Pair) (*common.Edge, error) {
	rows, err := s.conn.Query(ctx, selectEdgeColumns+`WHERE pair_key = $1;`, pair.Key())
	if err != nil {
		return nil, err
	}
	edges, err := scanEdges(rows)
	if err != nil {
		return nil, err
	}
	if len(edges) == 0 {
		return nil, store.ErrEdgeNotFound
	}
	return &edges[0], nil
}

// Meta implements store.RelationshipStore.
func (s *Storage) Meta(ctx context.Context, topDegrees int) (*store.Meta, error) {
	meta := &store.Meta{}

	err := s.conn.QueryRow(ctx, `
SELECT
  (SELECT count(*) FROM entities),
  (SELECT count(*) FROM edges);
`).Scan(&meta.EntityCount, &meta.EdgeCount)
	if err != nil {
		return nil, err
	}

	if topDegrees <= 0 {
		topDegrees = 10
	}
	rows, err := s.conn.Query(ctx, `
SELECT canonical_id, count(e.pair_key) AS degree
FROM entities n
LEFT JOIN edges e ON e.entity_a = n.canonical_id OR e.entity_b = n.canonical_id
GROUP BY canonical_id
ORDER BY degree DESC, canonical_id
LIMIT $1;
`, topDegrees)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var d store.EntityDegree
		if err := rows.Scan(&d.CanonicalID, &d.Degree); err != nil {
			return nil, err
		}
		meta.Degrees = append(meta.Degrees, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return meta, nil
}
