package store

import "github.com/nexuslab/nexus/pkg/common"

// ChunkRange invokes fn over [start, end) windows of at most chunkSize.
func ChunkRange(total, chunkSize int, fn func(start, end int) error) error {
	if total <= 0 {
		return nil
	}
	if chunkSize <= 0 {
		chunkSize = total
	}
	for start := 0; start < total; start += chunkSize {
		end := min(start+chunkSize, total)
		if err := fn(start, end); err != nil {
			return err
		}
	}
	return nil
}

// DedupeStrings drops empty strings and duplicates, preserving order.
func DedupeStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// DedupePairs drops self pairs and duplicate pairs, preserving order.
func DedupePairs(in []common.Pair) []common.Pair {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]common.Pair, 0, len(in))
	for _, p := range in {
		if p.IsSelf() || p.A == "" || p.B == "" {
			continue
		}
		key := p.Key()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, p)
	}
	return out
}

// PairMembers returns the deduplicated canonical ids across all pairs.
func PairMembers(pairs []common.Pair) []string {
	ids := make([]string, 0, len(pairs)*2)
	for _, p := range pairs {
		ids = append(ids, p.A, p.B)
	}
	return DedupeStrings(ids)
}
