// Package idempotency derives stable dedup keys for inbound events. The RTM
// stream can replay recent events after a reconnect; keys are a sha256 over
// the canonicalized (RFC 8785) event JSON, so field ordering differences in
// the raw payload never produce distinct keys.
package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/cyberphone/json-canonicalization/go/src/webpki.org/jsoncanonicalizer"
)

// EventKey canonicalizes raw event JSON and hashes it.
func EventKey(raw []byte) (string, error) {
	if len(raw) == 0 {
		return "", fmt.Errorf("event payload is required")
	}
	canonical, err := jsoncanonicalizer.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("event payload is invalid json: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

const defaultSeenCap = 2048

// SeenSet is a bounded FIFO set of recently observed keys.
type SeenSet struct {
	mu    sync.Mutex
	seen  map[string]struct{}
	order []string
	limit int
}

func NewSeenSet(capacity int) *SeenSet {
	if capacity <= 0 {
		capacity = defaultSeenCap
	}
	return &SeenSet{
		seen:  make(map[string]struct{}, capacity),
		limit: capacity,
	}
}

// Observe records the key and reports whether it was already present.
func (s *SeenSet) Observe(key string) bool {
	if s == nil || key == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[key]; ok {
		return true
	}
	s.seen[key] = struct{}{}
	s.order = append(s.order, key)
	if len(s.order) > s.limit {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.seen, oldest)
	}
	return false
}
