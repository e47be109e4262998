package detect

import (
	"reflect"
	"testing"

	"github.com/franz/media-janitor/internal/asset"
)

func TestMerge_PriorityAndWholeDrop(t *testing.T) {
	merged := Merge(
		Ranked{Strategy: StrategyDimension, Groups: Groups{
			"10x10": {5, 6},
			"20x20": {7, 8},
		}},
		Ranked{Strategy: StrategyFilename, Groups: Groups{
			"a.jpg": {2, 3},
			"b.jpg": {4, 5},
		}},
		Ranked{Strategy: StrategyHash, Groups: Groups{
			"h1": {1, 2},
		}},
	)

	want := Groups{
		"hash:h1":    {1, 2},
		"name:b.jpg": {4, 5},
		"dim:20x20":  {7, 8},
	}
	if !reflect.DeepEqual(merged, want) {
		t.Errorf("Merge = %v, want %v", merged, want)
	}
}

func TestMerge_NoCrossGroupMembership(t *testing.T) {
	merged := Merge(
		Ranked{Strategy: StrategyHash, Groups: Groups{"h1": {1, 2}, "h2": {3, 4}}},
		Ranked{Strategy: StrategyFilename, Groups: Groups{"x": {4, 5}, "y": {6, 7}, "z": {2, 9}}},
		Ranked{Strategy: StrategyDimension, Groups: Groups{"1x1": {7, 8}, "2x2": {10, 11, 12}}},
	)

	seen := make(map[asset.ID]string)
	for key, ids := range merged {
		for _, id := range ids {
			if other, ok := seen[id]; ok {
				t.Fatalf("Asset %d in both %s and %s", id, other, key)
			}
			seen[id] = key
		}
	}
	if len(merged) != 4 {
		t.Errorf("Expected 4 groups, got %d: %v", len(merged), merged)
	}
}

func TestMerge_SameStrategyOrderedBySmallestMember(t *testing.T) {
	// both candidates share id 3; the one holding id 1 wins regardless of key order
	merged := Merge(Ranked{Strategy: StrategyFilename, Groups: Groups{
		"a.jpg": {3, 4},
		"z.jpg": {1, 3},
	}})

	want := Groups{"name:z.jpg": {1, 3}}
	if !reflect.DeepEqual(merged, want) {
		t.Errorf("Merge = %v, want %v", merged, want)
	}
}

func TestMerge_NormalizesInput(t *testing.T) {
	merged := Merge(Ranked{Strategy: StrategyHash, Groups: Groups{
		"dup":    {4, 2, 4},
		"single": {9, 9},
	}})

	want := Groups{"hash:dup": {2, 4}}
	if !reflect.DeepEqual(merged, want) {
		t.Errorf("Merge = %v, want %v", merged, want)
	}
}

func TestParseKey(t *testing.T) {
	tests := []struct {
		key      string
		strategy Strategy
		raw      string
		ok       bool
	}{
		{key: "hash:abc", strategy: StrategyHash, raw: "abc", ok: true},
		{key: "name:photo.jpg", strategy: StrategyFilename, raw: "photo.jpg", ok: true},
		{key: "dim:1920x1080", strategy: StrategyDimension, raw: "1920x1080", ok: true},
		{key: "photo.jpg", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			s, raw, ok := ParseKey(tt.key)
			if ok != tt.ok || (ok && (s != tt.strategy || raw != tt.raw)) {
				t.Errorf("ParseKey(%q) = (%v, %q, %v)", tt.key, s, raw, ok)
			}
		})
	}
}
