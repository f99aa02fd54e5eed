package ledger

import (
	"context"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmerrifield20/ActionLedger/internal/chain"
	"go.uber.org/zap"
)

// PostgresStore persists the event ledger to PostgreSQL. It implements the
// Store interface and is safe for use by many server instances at once:
// appends serialize per agent on a transaction-scoped advisory lock, so two
// instances can never compute a link from a stale predecessor.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresStore creates a PostgresStore backed by the given connection pool.
func NewPostgresStore(pool *pgxpool.Pool, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{pool: pool, logger: logger}
}

// agentLockKey maps an agent ID onto a 64-bit advisory lock key. A collision
// between two agents merely over-serializes their appends; it never breaks
// correctness.
func agentLockKey(agentID string) int64 {
	h := fnv.New64a()
	h.Write([]byte(agentID))
	return int64(h.Sum64())
}

const eventColumns = `event_id, agent_id, sequence_number, action_type,
	input_hash, output_hash, tool_name, environment, model_version,
	prompt_version, ts, link_hash`

func scanEvent(row pgx.Row) (*Event, error) {
	e := &Event{}
	if err := row.Scan(
		&e.EventID, &e.AgentID, &e.SequenceNumber, &e.ActionType,
		&e.InputHash, &e.OutputHash, &e.ToolName, &e.Environment,
		&e.ModelVersion, &e.PromptVersion, &e.Timestamp, &e.LinkHash,
	); err != nil {
		return nil, err
	}
	e.Timestamp = e.Timestamp.UTC()
	return e, nil
}

// Append implements Store. It acquires the agent's advisory lock, reads the
// chain tail, computes the new link, and inserts the event — all within a
// single transaction, so a failed append leaves no trace and consumes no
// sequence number.
func (s *PostgresStore) Append(ctx context.Context, sub Submission) (*Event, error) {
	if err := sub.Validate(); err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	// Serialize concurrent appends for this agent only. The lock is released
	// automatically when the transaction commits or rolls back; appends for
	// other agents take different keys and proceed in parallel.
	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", agentLockKey(sub.AgentID)); err != nil {
		return nil, fmt.Errorf("acquire agent lock: %w", err)
	}

	// Read the current tail of the agent's chain.
	prevSeq := int64(0)
	prevLink := chain.GenesisLink
	err = tx.QueryRow(ctx,
		`SELECT sequence_number, link_hash FROM ledger_events
		 WHERE agent_id = $1 ORDER BY sequence_number DESC LIMIT 1`,
		sub.AgentID,
	).Scan(&prevSeq, &prevLink)
	if err != nil && err != pgx.ErrNoRows {
		return nil, fmt.Errorf("read chain tail: %w", err)
	}

	e := newEvent(sub, prevSeq+1, prevLink, time.Now())

	if _, err := tx.Exec(ctx,
		`INSERT INTO ledger_events (`+eventColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		e.EventID, e.AgentID, e.SequenceNumber, e.ActionType,
		e.InputHash, e.OutputHash, e.ToolName, e.Environment,
		e.ModelVersion, e.PromptVersion, e.Timestamp, e.LinkHash,
	); err != nil {
		return nil, fmt.Errorf("insert event: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit event: %w", err)
	}

	s.logger.Debug("event appended",
		zap.String("agent_id", e.AgentID),
		zap.Int64("sequence_number", e.SequenceNumber),
		zap.String("action_type", e.ActionType),
	)
	return e, nil
}

// List implements Store.
func (s *PostgresStore) List(ctx context.Context, f Filter) (*Page, error) {
	f.normalize()

	where := " WHERE ($1 = '' OR agent_id = $1) AND ($2 = '' OR action_type = $2)"

	var total int64
	if err := s.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM ledger_events"+where,
		f.AgentID, f.ActionType,
	).Scan(&total); err != nil {
		return nil, fmt.Errorf("count events: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		"SELECT "+eventColumns+" FROM ledger_events"+where+
			" ORDER BY agent_id, sequence_number ASC LIMIT $3 OFFSET $4",
		f.AgentID, f.ActionType, f.PageSize, (f.Page-1)*f.PageSize,
	)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	page := &Page{Events: []*Event{}, Total: total, Page: f.Page, PageSize: f.PageSize}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		page.Events = append(page.Events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return page, nil
}

// Verify implements Store. The snapshot boundary is the agent's max sequence
// number at the start of verification; events are immutable and append-only,
// so replaying everything at or below that boundary can never race with an
// in-flight append.
func (s *PostgresStore) Verify(ctx context.Context, agentID string) (*VerificationResult, error) {
	var maxSeq int64
	if err := s.pool.QueryRow(ctx,
		"SELECT COALESCE(MAX(sequence_number), 0) FROM ledger_events WHERE agent_id = $1",
		agentID,
	).Scan(&maxSeq); err != nil {
		return nil, fmt.Errorf("read snapshot boundary: %w", err)
	}

	res := &VerificationResult{AgentID: agentID, IsValid: true}
	if maxSeq == 0 {
		return res, nil
	}

	rows, err := s.pool.Query(ctx,
		"SELECT "+eventColumns+` FROM ledger_events
		 WHERE agent_id = $1 AND sequence_number <= $2
		 ORDER BY sequence_number ASC`,
		agentID, maxSeq,
	)
	if err != nil {
		return nil, fmt.Errorf("query chain: %w", err)
	}
	defer rows.Close()

	prevLink := chain.GenesisLink
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan chain row: %w", err)
		}
		want := int64(res.EventsChecked) + 1
		if e.SequenceNumber != want {
			seq := min(e.SequenceNumber, want)
			res.IsValid = false
			res.FirstInvalidSequence = &seq
			return res, nil
		}
		if chain.ComputeLink(prevLink, e.preimage()) != e.LinkHash {
			seq := e.SequenceNumber
			res.IsValid = false
			res.FirstInvalidSequence = &seq
			return res, nil
		}
		prevLink = e.LinkHash
		res.EventsChecked++
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chain: %w", err)
	}
	return res, nil
}

// Head implements Store.
func (s *PostgresStore) Head(ctx context.Context, agentID string) (*Head, error) {
	h := &Head{AgentID: agentID, LinkHash: chain.GenesisLink}
	err := s.pool.QueryRow(ctx,
		`SELECT sequence_number, link_hash FROM ledger_events
		 WHERE agent_id = $1 ORDER BY sequence_number DESC LIMIT 1`,
		agentID,
	).Scan(&h.SequenceNumber, &h.LinkHash)
	if err != nil && err != pgx.ErrNoRows {
		return nil, fmt.Errorf("read chain head: %w", err)
	}
	return h, nil
}

// Agents implements Store.
func (s *PostgresStore) Agents(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT DISTINCT agent_id FROM ledger_events ORDER BY agent_id")
	if err != nil {
		return nil, fmt.Errorf("query agents: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan agent id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Close implements Store.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
