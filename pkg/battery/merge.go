package battery

// Merge folds a new reading into the existing source list and returns the
// merged list. Existing order is preserved; sources seen for the first time
// are appended in reading order. Neither input is modified.
//
// Per descriptor: a non-nil incoming level is stored verbatim, a nil incoming
// level carries the existing level forward (or stays nil when none exists).
// Existing sources absent from the reading are untouched. Merge is
// idempotent: Merge(Merge(e, r), r) == Merge(e, r).
func Merge(existing, reading []Source) []Source {
	merged := CloneSources(existing)
	index := make(map[string]int, len(merged))
	for i, s := range merged {
		index[s.DescriptorKey()] = i
	}

	for _, r := range reading {
		i, ok := index[r.DescriptorKey()]
		if !ok {
			merged = append(merged, r.Clone())
			index[r.DescriptorKey()] = len(merged) - 1
			continue
		}
		if r.Level != nil {
			l := *r.Level
			merged[i].Level = &l
		}
		// nil incoming level: keep whatever is stored.
	}
	return merged
}

// CrossedLow reports whether a source transitioned from not-low to low, given
// the level stored immediately before the merge and the level after it. An
// unknown previous level counts as not-low, so a first reading at or below
// LowThreshold fires. A level holding at or below the threshold does not.
func CrossedLow(prev, next *int) bool {
	if next == nil || *next > LowThreshold {
		return false
	}
	if prev != nil && *prev <= LowThreshold {
		return false
	}
	return true
}
