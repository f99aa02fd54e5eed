package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmerrifield20/ActionLedger/internal/chain"
)

// Event is one stored ledger record. All fields are immutable once the event
// is committed; the server assigns EventID, SequenceNumber, Timestamp and
// LinkHash.
type Event struct {
	EventID        uuid.UUID `json:"event_id"`
	AgentID        string    `json:"agent_id"`
	SequenceNumber int64     `json:"sequence_number"`
	ActionType     string    `json:"action_type"`
	InputHash      string    `json:"input_hash"`
	OutputHash     string    `json:"output_hash"`
	ToolName       string    `json:"tool_name,omitempty"`
	Environment    string    `json:"environment,omitempty"`
	ModelVersion   string    `json:"model_version,omitempty"`
	PromptVersion  string    `json:"prompt_version,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
	LinkHash       string    `json:"link_hash"`
}

// preimage returns the canonical chain preimage of the event.
func (e *Event) preimage() chain.Preimage {
	return chain.Preimage{
		AgentID:        e.AgentID,
		SequenceNumber: e.SequenceNumber,
		ActionType:     e.ActionType,
		InputHash:      e.InputHash,
		OutputHash:     e.OutputHash,
		ToolName:       e.ToolName,
		Environment:    e.Environment,
		ModelVersion:   e.ModelVersion,
		PromptVersion:  e.PromptVersion,
		Timestamp:      e.Timestamp,
	}
}

// Submission carries the caller-supplied fields of a new event. Everything
// except AgentID and ActionType is optional; empty digests mean "not
// applicable" and are stored as chain.ZeroDigest.
type Submission struct {
	AgentID       string `json:"agent_id"`
	ActionType    string `json:"action_type"`
	InputHash     string `json:"input_hash"`
	OutputHash    string `json:"output_hash"`
	ToolName      string `json:"tool_name"`
	Environment   string `json:"environment"`
	ModelVersion  string `json:"model_version"`
	PromptVersion string `json:"prompt_version"`
}

// ValidationError rejects a submission before any chain mutation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Validate checks the submission and normalizes its digests in place.
func (s *Submission) Validate() error {
	if s.AgentID == "" {
		return &ValidationError{Field: "agent_id", Reason: "must not be empty"}
	}
	if s.ActionType == "" {
		return &ValidationError{Field: "action_type", Reason: "must not be empty"}
	}
	s.InputHash = chain.NormalizeDigest(s.InputHash)
	s.OutputHash = chain.NormalizeDigest(s.OutputHash)
	if !chain.ValidDigest(s.InputHash) {
		return &ValidationError{Field: "input_hash", Reason: "must be a 64-character hex SHA-256 digest"}
	}
	if !chain.ValidDigest(s.OutputHash) {
		return &ValidationError{Field: "output_hash", Reason: "must be a 64-character hex SHA-256 digest"}
	}
	return nil
}

// newEvent materializes a validated submission into an event at the given
// chain position. Timestamps are truncated to microseconds so the canonical
// preimage survives a TIMESTAMPTZ round trip.
func newEvent(sub Submission, seq int64, prevLink string, now time.Time) *Event {
	e := &Event{
		EventID:        uuid.New(),
		AgentID:        sub.AgentID,
		SequenceNumber: seq,
		ActionType:     sub.ActionType,
		InputHash:      sub.InputHash,
		OutputHash:     sub.OutputHash,
		ToolName:       sub.ToolName,
		Environment:    sub.Environment,
		ModelVersion:   sub.ModelVersion,
		PromptVersion:  sub.PromptVersion,
		Timestamp:      now.UTC().Truncate(time.Microsecond),
	}
	e.LinkHash = chain.ComputeLink(prevLink, e.preimage())
	return e
}

// replay recomputes the chain over events (which must be a gap-free ascending
// run for one agent) and returns the shared verification verdict.
func replay(agentID string, events []*Event) *VerificationResult {
	res := &VerificationResult{AgentID: agentID, IsValid: true}
	prevLink := chain.GenesisLink
	for _, e := range events {
		if want := int64(res.EventsChecked) + 1; e.SequenceNumber != want {
			// A gap or duplicate is chain corruption at this position.
			seq := e.SequenceNumber
			if seq > want {
				seq = want
			}
			res.IsValid = false
			res.FirstInvalidSequence = &seq
			return res
		}
		if chain.ComputeLink(prevLink, e.preimage()) != e.LinkHash {
			seq := e.SequenceNumber
			res.IsValid = false
			res.FirstInvalidSequence = &seq
			return res
		}
		prevLink = e.LinkHash
		res.EventsChecked++
	}
	return res
}
