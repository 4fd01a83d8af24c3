package fragment

import (
	"context"
	"fmt"
	"sort"

	"github.com/roach88/framestack/internal/store"
)

// GenerationSummary describes the persisted fragments of one generation.
type GenerationSummary struct {
	Namespace  string `json:"namespace"`
	Generation uint64 `json:"generation"`
	Fragments  int    `json:"fragments"`
	Pixels     int64  `json:"pixels"`
	// Contiguous is false when the stored sequence numbers have gaps.
	Contiguous bool `json:"contiguous"`
}

// Summarize scans storage and groups fragment keys by namespace and
// generation. An empty namespace summarizes every namespace. Keys that are not
// fragment keys are skipped.
func Summarize(ctx context.Context, storage store.Storage, namespace string) ([]GenerationSummary, error) {
	prefix := ""
	if namespace != "" {
		prefix = namespace + "/"
	}
	keys, err := storage.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("summarize: %w", err)
	}

	type groupKey struct {
		ns  string
		gen uint64
	}
	groups := map[groupKey]*GenerationSummary{}
	seqs := map[groupKey][]uint64{}
	for _, key := range keys {
		ns, h, err := ParseKey(key)
		if err != nil {
			continue
		}
		k := groupKey{ns, h.Generation}
		sum, ok := groups[k]
		if !ok {
			sum = &GenerationSummary{Namespace: ns, Generation: h.Generation}
			groups[k] = sum
		}
		sum.Fragments++
		sum.Pixels += int64(h.W) * int64(h.H)
		seqs[k] = append(seqs[k], h.Sequence)
	}

	out := make([]GenerationSummary, 0, len(groups))
	for k, sum := range groups {
		s := seqs[k]
		sort.Slice(s, func(i, j int) bool { return s[i] < s[j] })
		sum.Contiguous = true
		for i, seq := range s {
			if seq != uint64(i) {
				sum.Contiguous = false
				break
			}
		}
		out = append(out, *sum)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Namespace != out[j].Namespace {
			return out[i].Namespace < out[j].Namespace
		}
		return out[i].Generation < out[j].Generation
	})
	return out, nil
}
