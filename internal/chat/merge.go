// Package chat owns the per-conversation thread controller: optimistic
// sends reconciled against server echoes, a single idempotent merge fed
// by REST pages, pushed events and the polling fallback, receipt
// application and backward pagination.
package chat

import (
	"sort"

	"github.com/tanderapp/tander/internal/model"
)

// Merge combines the current thread with a batch from any producer.
// Incoming entries whose id is already present are dropped, as are
// entries still carrying an optimistic placeholder id; those exist
// only inside the thread that minted them. The union is stably sorted
// ascending by server timestamp, so feeding the same batch twice, or
// the same message over REST and push, changes nothing.
func Merge(existing, incoming []model.Message) []model.Message {
	if len(incoming) == 0 {
		return existing
	}
	seen := make(map[string]struct{}, len(existing)+len(incoming))
	for _, m := range existing {
		seen[m.ID] = struct{}{}
	}

	out := make([]model.Message, len(existing), len(existing)+len(incoming))
	copy(out, existing)
	added := false
	for _, m := range incoming {
		if model.IsTempID(m.ID) {
			continue
		}
		if _, ok := seen[m.ID]; ok {
			continue
		}
		seen[m.ID] = struct{}{}
		out = append(out, m)
		added = true
	}
	if !added {
		return existing
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp < out[j].Timestamp
	})
	return out
}
