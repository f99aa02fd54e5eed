package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jmerrifield20/ActionLedger/internal/chain"
)

// MemoryStore is an in-memory, thread-safe Store implementation. It is
// primarily useful for testing and for development deployments that do not
// require durability across restarts.
//
// Appends for one agent serialize on that agent's chain lock; appends for
// distinct agents proceed in parallel. The table lock is held only long
// enough to look up or create a chain.
type MemoryStore struct {
	mu     sync.RWMutex
	chains map[string]*memoryChain
}

type memoryChain struct {
	mu     sync.RWMutex
	events []*Event
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{chains: make(map[string]*memoryChain)}
}

// chain returns the agent's chain, creating it on first use.
func (s *MemoryStore) chain(agentID string) *memoryChain {
	s.mu.RLock()
	c, ok := s.chains[agentID]
	s.mu.RUnlock()
	if ok {
		return c
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok = s.chains[agentID]; !ok {
		c = &memoryChain{}
		s.chains[agentID] = c
	}
	return c
}

// Append implements Store.
func (s *MemoryStore) Append(_ context.Context, sub Submission) (*Event, error) {
	if err := sub.Validate(); err != nil {
		return nil, err
	}

	c := s.chain(sub.AgentID)
	c.mu.Lock()
	defer c.mu.Unlock()

	prevLink := chain.GenesisLink
	if n := len(c.events); n > 0 {
		prevLink = c.events[n-1].LinkHash
	}

	e := newEvent(sub, int64(len(c.events))+1, prevLink, time.Now())
	c.events = append(c.events, e)
	return e, nil
}

// List implements Store.
func (s *MemoryStore) List(_ context.Context, f Filter) (*Page, error) {
	f.normalize()

	var matched []*Event
	if f.AgentID != "" {
		c := s.chain(f.AgentID)
		c.mu.RLock()
		matched = filterEvents(c.events, f.ActionType)
		c.mu.RUnlock()
	} else {
		for _, agentID := range s.agentIDs() {
			c := s.chain(agentID)
			c.mu.RLock()
			matched = append(matched, filterEvents(c.events, f.ActionType)...)
			c.mu.RUnlock()
		}
	}

	page := &Page{
		Events:   []*Event{},
		Total:    int64(len(matched)),
		Page:     f.Page,
		PageSize: f.PageSize,
	}
	lo := (f.Page - 1) * f.PageSize
	if lo < len(matched) {
		hi := lo + f.PageSize
		if hi > len(matched) {
			hi = len(matched)
		}
		page.Events = matched[lo:hi]
	}
	return page, nil
}

func filterEvents(events []*Event, actionType string) []*Event {
	if actionType == "" {
		return append([]*Event(nil), events...)
	}
	var out []*Event
	for _, e := range events {
		if e.ActionType == actionType {
			out = append(out, e)
		}
	}
	return out
}

// Verify implements Store. The snapshot is the slice header captured under
// the chain's read lock; an append racing with verification lands after that
// prefix and is not observed.
func (s *MemoryStore) Verify(_ context.Context, agentID string) (*VerificationResult, error) {
	c := s.chain(agentID)
	c.mu.RLock()
	snapshot := c.events
	c.mu.RUnlock()
	return replay(agentID, snapshot), nil
}

// Head implements Store.
func (s *MemoryStore) Head(_ context.Context, agentID string) (*Head, error) {
	c := s.chain(agentID)
	c.mu.RLock()
	defer c.mu.RUnlock()

	h := &Head{AgentID: agentID, LinkHash: chain.GenesisLink}
	if n := len(c.events); n > 0 {
		h.SequenceNumber = c.events[n-1].SequenceNumber
		h.LinkHash = c.events[n-1].LinkHash
	}
	return h, nil
}

// Agents implements Store.
func (s *MemoryStore) Agents(_ context.Context) ([]string, error) {
	return s.agentIDs(), nil
}

func (s *MemoryStore) agentIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.chains))
	for id, c := range s.chains {
		c.mu.RLock()
		n := len(c.events)
		c.mu.RUnlock()
		if n > 0 {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Close implements Store.
func (s *MemoryStore) Close() error { return nil }
