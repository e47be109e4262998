package detect

import (
	"fmt"
	"sort"
	"strings"

	"github.com/franz/media-janitor/internal/asset"
)

// Strategy identifies a grouping signal. Lower values win merge conflicts.
type Strategy int

const (
	StrategyHash Strategy = iota
	StrategyFilename
	StrategyDimension
)

func (s Strategy) String() string {
	switch s {
	case StrategyHash:
		return "hash"
	case StrategyFilename:
		return "name"
	case StrategyDimension:
		return "dim"
	default:
		return fmt.Sprintf("strategy(%d)", int(s))
	}
}

// keyPrefix namespaces merged keys so different strategies never collide
func (s Strategy) keyPrefix() string {
	return s.String() + ":"
}

// ParseKey splits a merged key into its strategy and raw discriminator
func ParseKey(key string) (Strategy, string, bool) {
	for _, s := range []Strategy{StrategyHash, StrategyFilename, StrategyDimension} {
		if raw, ok := strings.CutPrefix(key, s.keyPrefix()); ok {
			return s, raw, true
		}
	}
	return 0, "", false
}

// Groups maps a discriminator to the ascending ids sharing it
type Groups map[string][]asset.ID

// index accumulates key -> ids and emits only groups with at least two
// distinct members
type index map[string][]asset.ID

func (ix index) add(key string, id asset.ID) {
	for _, existing := range ix[key] {
		if existing == id {
			return
		}
	}
	ix[key] = append(ix[key], id)
}

func (ix index) groups() Groups {
	out := make(Groups)
	for key, ids := range ix {
		if len(ids) < 2 {
			continue
		}
		members := append([]asset.ID(nil), ids...)
		sort.Slice(members, func(i, j int) bool { return members[i] < members[j] })
		out[key] = members
	}
	return out
}

// orderedKeys returns keys ordered by smallest member id, then key. Member
// lists are ascending, so the first member is the smallest.
func (g Groups) orderedKeys() []string {
	keys := make([]string, 0, len(g))
	for k := range g {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := g[keys[i]], g[keys[j]]
		if a[0] != b[0] {
			return a[0] < b[0]
		}
		return keys[i] < keys[j]
	})
	return keys
}

// Members returns the number of ids across all groups
func (g Groups) Members() int {
	n := 0
	for _, ids := range g {
		n += len(ids)
	}
	return n
}
