package identity

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/nexuslab/nexus/pkg/common"
	"github.com/nexuslab/nexus/pkg/logger"
)

// Resolver maps raw participant identifiers to canonical ids.
//
// Email addresses are canonicalized by lowercasing, then looked up in an
// alias table loaded from a YAML file so several addresses can map to one
// preferred canonical string. Non-email identifiers pass through unchanged,
// case preserved. The alias file is loaded lazily on first use, and a load
// failure degrades to plain lowercasing so ingestion keeps working without
// the table.
//
// Construct with NewResolver and inject it; there is no package-level state.
type Resolver struct {
	aliasPath string

	loadOnce sync.Once
	aliases  map[string]string
}

// NewResolverParams configures a Resolver.
type NewResolverParams struct {
	// AliasPath is the YAML alias table file. Empty disables alias lookup.
	AliasPath string
}

// NewResolver creates a Resolver for the given alias table path. The file
// is not read until the first Resolve call.
func NewResolver(params NewResolverParams) *Resolver {
	return &Resolver{
		aliasPath: params.AliasPath,
	}
}

// aliasFile is the on-disk shape of the alias table, keyed by lowercased
// email address:
//
//	aliases:
//	  "alice.long@example.com": alice@example.com
//	  "a.long@example.com": alice@example.com
type aliasFile struct {
	Aliases map[string]string `yaml:"aliases"`
}

func (r *Resolver) load() {
	r.loadOnce.Do(func() {
		if r.aliasPath == "" {
			return
		}
		data, err := os.ReadFile(r.aliasPath)
		if err != nil {
			logger.Warn("[Identity] Alias table unavailable, emails resolve by lowercasing only", "path", r.aliasPath, "err", err)
			return
		}
		var f aliasFile
		if err := yaml.Unmarshal(data, &f); err != nil {
			logger.Warn("[Identity] Alias table unreadable, emails resolve by lowercasing only", "path", r.aliasPath, "err", err)
			return
		}

		aliases := make(map[string]string, len(f.Aliases))
		for raw, canonical := range f.Aliases {
			key := strings.ToLower(clean(raw))
			canonical = clean(canonical)
			if key == "" || canonical == "" {
				continue
			}
			aliases[key] = canonical
		}
		r.aliases = aliases
		logger.Debug("[Identity] Alias table loaded", "path", r.aliasPath, "entries", len(aliases))
	})
}

// Resolve maps one raw identifier to its canonical id. Emails are
// lowercased and then mapped through the alias table; anything else passes
// through unchanged, case preserved.
func (r *Resolver) Resolve(raw string) string {
	r.load()

	id := clean(raw)
	if id == "" {
		return ""
	}
	if !isEmail(id) {
		return id
	}
	id = strings.ToLower(id)
	if canonical, ok := r.aliases[id]; ok {
		return canonical
	}
	return id
}

// ResolveAll maps a list of raw identifiers to canonical ids, dropping
// empties and duplicates while preserving first-seen order.
func (r *Resolver) ResolveAll(raws []string) []string {
	if len(raws) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(raws))
	out := make([]string, 0, len(raws))
	for _, raw := range raws {
		id := r.Resolve(raw)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// ResolvePair resolves both members and returns the canonical pair.
// Returns an error when either side resolves to empty or both resolve to
// the same person.
func (r *Resolver) ResolvePair(rawA, rawB string) (common.Pair, error) {
	a := r.Resolve(rawA)
	b := r.Resolve(rawB)
	if a == "" || b == "" {
		return common.Pair{}, fmt.Errorf("unresolvable pair member: %q / %q", rawA, rawB)
	}
	p := common.NewPair(a, b)
	if p.IsSelf() {
		return common.Pair{}, fmt.Errorf("self pair for %q", a)
	}
	return p, nil
}

func clean(raw string) string {
	id := strings.TrimSpace(raw)
	// The separator is reserved for pair keys.
	return strings.ReplaceAll(id, common.PairKeySeparator, "")
}

func isEmail(id string) bool {
	at := strings.Index(id, "@")
	return at > 0 && at < len(id)-1 && !strings.Contains(id[at+1:], "@")
}
