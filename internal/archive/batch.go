package archive

import "github.com/codemasher/dril-archive/internal/twitter"

// chunk splits ids into batches of at most twitter.BatchSize elements,
// preserving order.
func chunk(ids []int64) [][]int64 {
	var out [][]int64
	for len(ids) > twitter.BatchSize {
		out = append(out, ids[:twitter.BatchSize])
		ids = ids[twitter.BatchSize:]
	}
	if len(ids) > 0 {
		out = append(out, ids)
	}
	return out
}
