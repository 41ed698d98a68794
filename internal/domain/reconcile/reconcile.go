// Package reconcile computes the minimal change set between two id sets.
package reconcile

import "slices"

// Diff returns the ids to add and to remove so that current becomes desired.
// Duplicates are ignored and both results are sorted.
func Diff(current, desired []int64) (add, remove []int64) {
	have := set(current)
	want := set(desired)

	for id := range want {
		if _, ok := have[id]; !ok {
			add = append(add, id)
		}
	}
	for id := range have {
		if _, ok := want[id]; !ok {
			remove = append(remove, id)
		}
	}

	slices.Sort(add)
	slices.Sort(remove)

	return add, remove
}

// Missing returns the sorted ids of want that are absent from existing.
func Missing(want, existing []int64) []int64 {
	have := set(existing)

	var missing []int64
	for id := range set(want) {
		if _, ok := have[id]; !ok {
			missing = append(missing, id)
		}
	}

	slices.Sort(missing)

	return missing
}

// Unique returns the sorted distinct ids.
func Unique(ids []int64) []int64 {
	out := make([]int64, 0, len(ids))
	for id := range set(ids) {
		out = append(out, id)
	}

	slices.Sort(out)

	return out
}

func set(ids []int64) map[int64]struct{} {
	m := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		m[id] = struct{}{}
	}

	return m
}
