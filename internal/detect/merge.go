package detect

import (
	"sort"

	"github.com/franz/media-janitor/internal/asset"
)

// Ranked pairs a strategy's groups with the strategy that produced them
type Ranked struct {
	Strategy Strategy
	Groups   Groups
}

// Merge folds strategy results into one map in which every id belongs to at
// most one group. Strategies are processed by priority (hash, filename,
// dimension); within a strategy candidates go by smallest member id, then key.
// A candidate touching an already claimed id is dropped whole. Keys in the
// result carry the strategy prefix, see ParseKey.
func Merge(ranked ...Ranked) Groups {
	ordered := append([]Ranked(nil), ranked...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Strategy < ordered[j].Strategy
	})

	claimed := make(map[asset.ID]bool)
	merged := make(Groups)

	for _, r := range ordered {
		candidates := normalize(r.Groups)
		for _, key := range candidates.orderedKeys() {
			members := candidates[key]
			if anyClaimed(claimed, members) {
				continue
			}
			for _, id := range members {
				claimed[id] = true
			}
			merged[r.Strategy.keyPrefix()+key] = members
		}
	}

	return merged
}

func anyClaimed(claimed map[asset.ID]bool, members []asset.ID) bool {
	for _, id := range members {
		if claimed[id] {
			return true
		}
	}
	return false
}

// normalize dedupes and sorts member lists and drops groups under two members
func normalize(g Groups) Groups {
	ix := make(index)
	for key, ids := range g {
		for _, id := range ids {
			ix.add(key, id)
		}
	}
	return ix.groups()
}
