package storage

import (
	"slices"
)

// SortNewestFirst orders sessions by StartedAt descending, breaking ties by ID
// so history listings are stable across backends.
func SortNewestFirst(sessions []Session) {
	slices.SortStableFunc(sessions, func(a, b Session) int {
		if c := b.StartedAt.Compare(a.StartedAt); c != 0 {
			return c
		}
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
}
