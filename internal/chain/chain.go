// Package chain holds the hashing primitives of the action ledger: the
// content digest helper used by clients, and the link computation that binds
// each event to its full chain prefix.
//
// The canonical preimage format is a versioned, immutable protocol detail.
// Changing field order, separators, or the absent-field representation would
// silently invalidate every previously stored link, so the format is fixed
// here once and tagged with preimageVersion.
package chain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// GenesisLink is the well-known link value of an empty chain. Every agent's
// first event chains from this constant rather than from a computed value.
const GenesisLink = "0000000000000000000000000000000000000000000000000000000000000000"

// ZeroDigest is the canonical "absent content" sentinel for input_hash and
// output_hash (e.g. an llm_start event that has no output yet).
const ZeroDigest = "0000000000000000000000000000000000000000000000000000000000000000"

// preimageVersion tags the canonical serialization format. Bump only with a
// migration plan for existing chains.
const preimageVersion = "v1"

// Preimage is the fixed set of event fields covered by a link hash, in the
// exact order they are serialized. The stored link_hash of the predecessor
// enters separately as PrevLink.
type Preimage struct {
	AgentID        string
	SequenceNumber int64
	ActionType     string
	InputHash      string
	OutputHash     string
	ToolName       string
	Environment    string
	ModelVersion   string
	PromptVersion  string
	Timestamp      time.Time
}

// HashContent returns the 64-character lowercase hex SHA-256 digest of s.
// Clients use this to commit to raw payloads before submission; the raw
// content itself never reaches the ledger.
func HashContent(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])
}

// ComputeLink returns the link hash for an event given the previous link for
// the same agent. The preimage is prevLink followed by the pipe-delimited
// canonical serialization of the event fields; absent optional strings are
// serialized as the empty string.
func ComputeLink(prevLink string, p Preimage) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s%s|%s|%d|%s|%s|%s|%s|%s|%s|%s|%s",
		prevLink, preimageVersion,
		p.AgentID, p.SequenceNumber, p.ActionType,
		p.InputHash, p.OutputHash,
		p.ToolName, p.Environment, p.ModelVersion, p.PromptVersion,
		CanonicalTime(p.Timestamp),
	)
	return hex.EncodeToString(h.Sum(nil))
}

// CanonicalTime renders a timestamp the way it enters the preimage. The
// rendering must be stable across a database round trip, which is why stores
// truncate timestamps to microseconds before persisting them.
func CanonicalTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// ValidDigest reports whether s is a well-formed 64-character lowercase hex
// SHA-256 digest. The all-zero sentinel is valid.
func ValidDigest(s string) bool {
	if len(s) != 64 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// NormalizeDigest maps an optional caller-supplied digest onto its canonical
// form: empty means absent (ZeroDigest), anything else is lowercased so that
// upper-case hex from foreign tooling still verifies.
func NormalizeDigest(s string) string {
	if s == "" {
		return ZeroDigest
	}
	return strings.ToLower(s)
}
