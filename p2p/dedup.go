package p2p

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const messageTTL = time.Hour

// seenMessages suppresses re-handling and re-forwarding of a gossip message
// the node has already processed. Entries expire on their own after
// messageTTL, which stands in for the periodic sweep of stale message IDs.
type seenMessages struct {
	cache *expirable.LRU[string, struct{}]
}

func newSeenMessages() *seenMessages {
	return &seenMessages{cache: expirable.NewLRU[string, struct{}](0, nil, messageTTL)}
}

// markSeen records id and reports whether it had already been seen.
func (s *seenMessages) markSeen(id string) bool {
	if _, ok := s.cache.Get(id); ok {
		return true
	}
	s.cache.Add(id, struct{}{})
	return false
}
