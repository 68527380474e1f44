package cache

import "github.com/JakeFAU/imagesize-intrinsic/internal/imgsize"

// MergeAndPrune folds the in-memory working set into the on-disk snapshot
// and, when used is non-empty, drops every key outside it. An in-memory
// entry only replaces an on-disk one that is missing or incomplete, and
// incomplete entries never survive. Neither input is modified.
func MergeAndPrune(onDisk, inMemory map[string]imgsize.Dimensions, used map[string]struct{}) (map[string]imgsize.Dimensions, int) {
	merged := make(map[string]imgsize.Dimensions, len(onDisk)+len(inMemory))
	for k, v := range onDisk {
		merged[k] = v
	}
	for k, v := range inMemory {
		if cur, ok := merged[k]; !ok || !cur.Complete() {
			merged[k] = v
		}
	}

	pruned := 0
	if len(used) > 0 {
		for k := range merged {
			if _, ok := used[k]; !ok {
				delete(merged, k)
				pruned++
			}
		}
	}

	for k, v := range merged {
		if !v.Complete() {
			delete(merged, k)
		}
	}
	return merged, pruned
}
