package chat

import (
	"sort"
	"time"

	"github.com/bosar/console/internal/wire"
)

// Merge combines a REST history page with the live buffer into one
// sequence: history first, then any live entries whose id is not already
// present, the whole thing sorted ascending by createdAt. It is a full
// recompute on every call rather than an incremental merge; correctness
// stays trivial and conversation pages are small enough that re-sorting is
// cheap.
func Merge(history, live []wire.Message) []wire.Message {
	out := make([]wire.Message, 0, len(history)+len(live))
	seen := make(map[string]struct{}, len(history)+len(live))

	for _, msg := range history {
		if _, dup := seen[msg.ID]; dup {
			continue
		}
		seen[msg.ID] = struct{}{}
		out = append(out, msg)
	}
	for _, msg := range live {
		if _, dup := seen[msg.ID]; dup {
			continue
		}
		seen[msg.ID] = struct{}{}
		out = append(out, msg)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return messageTime(out[i]).Before(messageTime(out[j]))
	})
	return out
}

// messageTime parses a message's createdAt. Unparseable timestamps sort to
// the front rather than being dropped; the stable sort keeps their relative
// order.
func messageTime(msg wire.Message) time.Time {
	t, err := time.Parse(time.RFC3339, msg.CreatedAt)
	if err != nil {
		return time.Time{}
	}
	return t
}
