package pgx

import (
	"context"

	"github.com/nexuslab/nexus/pkg/common"
	"github.com/nexuslab/nexus/pkg/logger"
	"github.com/nexuslab/nexus/pkg/store"
)

const entityChunk = 500

const upsertEntitiesSQL = `
INSERT INTO entities (canonical_id)
SELECT unnest($1::text[])
ON CONFLICT (canonical_id) DO NOTHING;
`

// UpsertEntities implements store.RelationshipStore.
func (s *Storage) UpsertEntities(ctx context.Context, ids []string) error {
	ids = store.DedupeStrings(ids)
	if len(ids) == 0 {
		return nil
	}

	return store.ChunkRange(len(ids), entityChunk, func(start, end int) error {
		logger.Debug("[Store][UpsertEntities] Saving chunk", "entities", end-start)
		_, err := s.conn.Exec(ctx, upsertEntitiesSQL, ids[start:end])
		return err
	})
}

// Entities implements store.RelationshipStore.
func (s *Storage) Entities(ctx context.Context) ([]common.Entity, error) {
	rows, err := s.conn.Query(ctx, `
SELECT canonical_id, aliases, created_at
FROM entities
ORDER BY canonical_id;
`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []common.Entity
	for rows.Next() {
		var e common.Entity
		if err := rows.Scan(&e.CanonicalID, &e.Aliases, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// HasEntity implements store.RelationshipStore.
func (s *Storage) HasEntity(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := s.conn.QueryRow(ctx, `
SELECT EXISTS (SELECT 1 FROM entities WHERE canonical_id = $1);
`, id).Scan(&exists)
	return exists, err
}
