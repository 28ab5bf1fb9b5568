package store

import (
	"math"
	"slices"
)

// clampRange resolves an inclusive [start, stop] range with negative
// indices against a list of length n. ok is false when the range is empty.
func clampRange(start, stop, n int) (from, to int, ok bool) {
	if n == 0 {
		return 0, 0, false
	}
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop || start >= n || stop < 0 {
		return 0, 0, false
	}
	return start, stop, true
}

// addInt64 returns a+b, or ok=false when the sum overflows.
func addInt64(a, b int64) (sum int64, ok bool) {
	if (b > 0 && a > math.MaxInt64-b) || (b < 0 && a < math.MinInt64-b) {
		return 0, false
	}
	return a + b, true
}

func removeAll(list []string, item string) ([]string, int) {
	kept := list[:0]
	removed := 0
	for _, v := range list {
		if v == item {
			removed++
			continue
		}
		kept = append(kept, v)
	}
	return kept, removed
}

func setKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for m := range set {
		out = append(out, m)
	}
	slices.Sort(out)
	return out
}

func unionOf(groups [][]string) []string {
	seen := make(map[string]struct{})
	for _, g := range groups {
		for _, m := range g {
			seen[m] = struct{}{}
		}
	}
	return setKeys(seen)
}

// intersectOf treats a nil group as a missing set and returns an empty result.
func intersectOf(groups [][]string) []string {
	if len(groups) == 0 {
		return []string{}
	}
	counts := make(map[string]int)
	for _, g := range groups {
		if len(g) == 0 {
			return []string{}
		}
		for _, m := range slices.Compact(slices.Sorted(slices.Values(g))) {
			counts[m]++
		}
	}
	common := make(map[string]struct{})
	for m, c := range counts {
		if c == len(groups) {
			common[m] = struct{}{}
		}
	}
	return setKeys(common)
}
