package model

import (
	"sort"
	"time"
)

// backlogGroup buckets items for the Tier-2 queue: never-verified items
// come first, then items whose last deterministic check errored, then
// everything else by staleness.
func backlogGroup(t TrackedItem) int {
	switch {
	case t.LastVerifiedAt == nil:
		return 0
	case t.LastError != "":
		return 1
	default:
		return 2
	}
}

// verifiedAt treats "never verified" as a sentinel older than any real
// timestamp, keeping the comparator total.
func verifiedAt(t TrackedItem) time.Time {
	if t.LastVerifiedAt == nil {
		return time.Time{}
	}
	return *t.LastVerifiedAt
}

// BuildBacklog orders the Tier-2 work queue. Items without a URL,
// access-restricted vendors, and suppressed listings are excluded; the
// result is truncated to max entries (0 means no cap).
func BuildBacklog(items []TrackedItem, max int) []TrackedItem {
	backlog := make([]TrackedItem, 0, len(items))
	for _, it := range items {
		if it.Checkable() {
			backlog = append(backlog, it)
		}
	}

	sort.SliceStable(backlog, func(i, j int) bool {
		gi, gj := backlogGroup(backlog[i]), backlogGroup(backlog[j])
		if gi != gj {
			return gi < gj
		}
		return verifiedAt(backlog[i]).Before(verifiedAt(backlog[j]))
	})

	if max > 0 && len(backlog) > max {
		backlog = backlog[:max]
	}
	return backlog
}
