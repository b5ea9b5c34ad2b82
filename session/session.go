package session

import (
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Session is the per-channel conversation state. The ID is generated once
// and passed to the NLU service so it can keep conversation context across
// messages from the same channel.
type Session struct {
	ID              string
	Companies       map[string]struct{}
	SharedCompanies bool
	EstimatedBill   bool
}

// AddCompany records a company name in the session's set. Duplicates
// collapse; the set only ever grows.
func (s *Session) AddCompany(name string) {
	if s == nil {
		return
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	if s.Companies == nil {
		s.Companies = make(map[string]struct{})
	}
	s.Companies[name] = struct{}{}
}

// Snapshot is a copy of a session safe to read outside the manager's lock.
type Snapshot struct {
	ID              string
	Companies       []string
	SharedCompanies bool
	EstimatedBill   bool
}

// Manager owns the channel-to-session mapping. All reads and mutations go
// through the mutex: the synchronous event path and deferred timer callbacks
// run on different goroutines.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	newID    func() string
}

type ManagerOptions struct {
	// NewID overrides session id generation (tests).
	NewID func() string
}

func NewManager(opts ManagerOptions) *Manager {
	newID := opts.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	return &Manager{
		sessions: make(map[string]*Session),
		newID:    newID,
	}
}

func (m *Manager) getOrCreateLocked(channelID string) *Session {
	if s, ok := m.sessions[channelID]; ok && s != nil {
		return s
	}
	s := &Session{
		ID:        m.newID(),
		Companies: make(map[string]struct{}),
	}
	m.sessions[channelID] = s
	return s
}

// Get returns a snapshot of the channel's session, creating it on first use.
func (m *Manager) Get(channelID string) Snapshot {
	if m == nil {
		return Snapshot{}
	}
	channelID = strings.TrimSpace(channelID)
	if channelID == "" {
		return Snapshot{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return snapshotLocked(m.getOrCreateLocked(channelID))
}

// Update runs fn against the channel's session under the lock, creating the
// session on first use. fn must not retain the *Session past its return.
func (m *Manager) Update(channelID string, fn func(*Session)) Snapshot {
	if m == nil || fn == nil {
		return Snapshot{}
	}
	channelID = strings.TrimSpace(channelID)
	if channelID == "" {
		return Snapshot{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.getOrCreateLocked(channelID)
	fn(s)
	return snapshotLocked(s)
}

// CompanyCount reports the current size of the channel's company set without
// creating a session for unknown channels.
func (m *Manager) CompanyCount(channelID string) int {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[strings.TrimSpace(channelID)]
	if !ok || s == nil {
		return 0
	}
	return len(s.Companies)
}

// Len reports how many channels currently hold a session.
func (m *Manager) Len() int {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func snapshotLocked(s *Session) Snapshot {
	companies := make([]string, 0, len(s.Companies))
	for name := range s.Companies {
		companies = append(companies, name)
	}
	sort.Strings(companies)
	return Snapshot{
		ID:              s.ID,
		Companies:       companies,
		SharedCompanies: s.SharedCompanies,
		EstimatedBill:   s.EstimatedBill,
	}
}
