// Package ledger implements the append-only, hash-chained event store at the
// heart of the action ledger.
//
// Every agent owns an independent chain. An agent's first event links from
// chain.GenesisLink; each subsequent event's link_hash commits to the
// predecessor's link_hash and the event's canonical bytes, making any
// after-the-fact mutation detectable via Verify.
//
// Three implementations of the Store interface are provided:
//   - MemoryStore: in-process, for testing and development.
//   - SQLiteStore: durable single-node deployments.
//   - PostgresStore: durable multi-instance deployments.
package ledger

import "context"

// Store is the interface for the append-only event ledger. All
// implementations guarantee per-agent append serialization: sequence
// assignment and link computation for one agent never interleave, while
// appends for distinct agents proceed in parallel.
type Store interface {
	// Append validates the submission, assigns the next sequence number for
	// the agent, computes the link hash, and persists the event atomically.
	// A failed append consumes no sequence number.
	Append(ctx context.Context, sub Submission) (*Event, error)

	// List returns events ordered by sequence number ascending, optionally
	// filtered by agent and action type. Pages are 1-indexed; a page past the
	// end is an empty page, not an error.
	List(ctx context.Context, f Filter) (*Page, error)

	// Verify replays the agent's stored events from genesis and compares each
	// recomputed link to the stored one, stopping at the first mismatch. It
	// reads a consistent snapshot and never observes an in-flight append. An
	// agent with zero events is trivially valid.
	Verify(ctx context.Context, agentID string) (*VerificationResult, error)

	// Head returns the agent's chain tip. For an unknown agent the head is
	// sequence 0 with the genesis link.
	Head(ctx context.Context, agentID string) (*Head, error)

	// Agents returns the distinct agent IDs present in the store, sorted.
	Agents(ctx context.Context) ([]string, error)

	// Close releases any underlying resources.
	Close() error
}

// Filter selects events for List.
type Filter struct {
	AgentID    string
	ActionType string
	Page       int
	PageSize   int
}

// Page is one page of List results.
type Page struct {
	Events   []*Event `json:"events"`
	Total    int64    `json:"total"`
	Page     int      `json:"page"`
	PageSize int      `json:"page_size"`
}

// VerificationResult reports the outcome of a chain verification.
// FirstInvalidSequence is set only when the chain is broken, and names the
// first event whose recomputed link diverges from the stored one.
type VerificationResult struct {
	AgentID              string `json:"agent_id"`
	IsValid              bool   `json:"is_valid"`
	EventsChecked        int    `json:"events_checked"`
	FirstInvalidSequence *int64 `json:"first_invalid_sequence,omitempty"`
}

// Head is an agent's chain tip.
type Head struct {
	AgentID        string `json:"agent_id"`
	SequenceNumber int64  `json:"sequence_number"`
	LinkHash       string `json:"link_hash"`
}

// DefaultPageSize and MaxPageSize bound List pagination. MaxPageSize is the
// compiled ceiling; deployments may configure a lower one at the API layer.
const (
	DefaultPageSize = 50
	MaxPageSize     = 500
)

// normalize clamps pagination to sane bounds.
func (f *Filter) normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 {
		f.PageSize = DefaultPageSize
	}
	if f.PageSize > MaxPageSize {
		f.PageSize = MaxPageSize
	}
}
