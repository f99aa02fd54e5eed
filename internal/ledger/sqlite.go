package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmerrifield20/ActionLedger/internal/chain"
	"go.uber.org/zap"

	_ "modernc.org/sqlite" // pure-Go sqlite driver
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS ledger_events (
	event_id        TEXT PRIMARY KEY,
	agent_id        TEXT NOT NULL,
	sequence_number INTEGER NOT NULL,
	action_type     TEXT NOT NULL,
	input_hash      TEXT NOT NULL,
	output_hash     TEXT NOT NULL,
	tool_name       TEXT NOT NULL DEFAULT '',
	environment     TEXT NOT NULL DEFAULT '',
	model_version   TEXT NOT NULL DEFAULT '',
	prompt_version  TEXT NOT NULL DEFAULT '',
	ts              TEXT NOT NULL,
	link_hash       TEXT NOT NULL,
	UNIQUE (agent_id, sequence_number)
);
CREATE INDEX IF NOT EXISTS idx_ledger_events_agent_action
	ON ledger_events (agent_id, action_type);
`

// SQLiteStore persists the event ledger to a local SQLite database via the
// pure-Go modernc.org/sqlite driver. It implements the Store interface for
// single-node deployments; per-agent append serialization is an in-process
// keyed mutex, which is sufficient because SQLite has exactly one writer
// process.
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// OpenSQLite opens (or creates) the database at path and ensures the schema
// exists.
func OpenSQLite(path string, logger *zap.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection keeps writers from tripping over SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init sqlite schema: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		logger: logger,
		locks:  make(map[string]*sync.Mutex),
	}, nil
}

// agentLock returns the serialization mutex for one agent's chain.
func (s *SQLiteStore) agentLock(agentID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[agentID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[agentID] = l
	}
	return l
}

// Append implements Store.
func (s *SQLiteStore) Append(ctx context.Context, sub Submission) (*Event, error) {
	if err := sub.Validate(); err != nil {
		return nil, err
	}

	lock := s.agentLock(sub.AgentID)
	lock.Lock()
	defer lock.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	prevSeq := int64(0)
	prevLink := chain.GenesisLink
	err = tx.QueryRowContext(ctx,
		`SELECT sequence_number, link_hash FROM ledger_events
		 WHERE agent_id = ? ORDER BY sequence_number DESC LIMIT 1`,
		sub.AgentID,
	).Scan(&prevSeq, &prevLink)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("read chain tail: %w", err)
	}

	e := newEvent(sub, prevSeq+1, prevLink, time.Now())

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO ledger_events (
			event_id, agent_id, sequence_number, action_type,
			input_hash, output_hash, tool_name, environment,
			model_version, prompt_version, ts, link_hash
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.EventID.String(), e.AgentID, e.SequenceNumber, e.ActionType,
		e.InputHash, e.OutputHash, e.ToolName, e.Environment,
		e.ModelVersion, e.PromptVersion, chain.CanonicalTime(e.Timestamp), e.LinkHash,
	); err != nil {
		return nil, fmt.Errorf("insert event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit event: %w", err)
	}

	s.logger.Debug("event appended",
		zap.String("agent_id", e.AgentID),
		zap.Int64("sequence_number", e.SequenceNumber),
	)
	return e, nil
}

func (s *SQLiteStore) scanEvent(rows *sql.Rows) (*Event, error) {
	e := &Event{}
	var id, ts string
	if err := rows.Scan(
		&id, &e.AgentID, &e.SequenceNumber, &e.ActionType,
		&e.InputHash, &e.OutputHash, &e.ToolName, &e.Environment,
		&e.ModelVersion, &e.PromptVersion, &ts, &e.LinkHash,
	); err != nil {
		return nil, err
	}
	eid, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("parse event_id: %w", err)
	}
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return nil, fmt.Errorf("parse timestamp: %w", err)
	}
	e.EventID = eid
	e.Timestamp = t.UTC()
	return e, nil
}

const sqliteEventColumns = `event_id, agent_id, sequence_number, action_type,
	input_hash, output_hash, tool_name, environment, model_version,
	prompt_version, ts, link_hash`

// List implements Store.
func (s *SQLiteStore) List(ctx context.Context, f Filter) (*Page, error) {
	f.normalize()

	where := " WHERE (? = '' OR agent_id = ?) AND (? = '' OR action_type = ?)"
	filterArgs := []any{f.AgentID, f.AgentID, f.ActionType, f.ActionType}

	var total int64
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM ledger_events"+where, filterArgs...,
	).Scan(&total); err != nil {
		return nil, fmt.Errorf("count events: %w", err)
	}

	args := append(filterArgs, f.PageSize, (f.Page-1)*f.PageSize)
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+sqliteEventColumns+" FROM ledger_events"+where+
			" ORDER BY agent_id, sequence_number ASC LIMIT ? OFFSET ?",
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	page := &Page{Events: []*Event{}, Total: total, Page: f.Page, PageSize: f.PageSize}
	for rows.Next() {
		e, err := s.scanEvent(rows)
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

// Verify implements Store. Like the Postgres implementation it replays
// everything at or below the max sequence number observed at the start, so a
// concurrent append can never surface as a false mismatch.
func (s *SQLiteStore) Verify(ctx context.Context, agentID string) (*VerificationResult, error) {
	var maxSeq int64
	if err := s.db.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(sequence_number), 0) FROM ledger_events WHERE agent_id = ?",
		agentID,
	).Scan(&maxSeq); err != nil {
		return nil, fmt.Errorf("read snapshot boundary: %w", err)
	}

	res := &VerificationResult{AgentID: agentID, IsValid: true}
	if maxSeq == 0 {
		return res, nil
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+sqliteEventColumns+` FROM ledger_events
		 WHERE agent_id = ? AND sequence_number <= ?
		 ORDER BY sequence_number ASC`,
		agentID, maxSeq,
	)
	if err != nil {
		return nil, fmt.Errorf("query chain: %w", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		e, err := s.scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan chain row: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chain: %w", err)
	}

	return replay(agentID, events), nil
}

// Head implements Store.
func (s *SQLiteStore) Head(ctx context.Context, agentID string) (*Head, error) {
	h := &Head{AgentID: agentID, LinkHash: chain.GenesisLink}
	err := s.db.QueryRowContext(ctx,
		`SELECT sequence_number, link_hash FROM ledger_events
		 WHERE agent_id = ? ORDER BY sequence_number DESC LIMIT 1`,
		agentID,
	).Scan(&h.SequenceNumber, &h.LinkHash)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("read chain head: %w", err)
	}
	return h, nil
}

// Agents implements Store.
func (s *SQLiteStore) Agents(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
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
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
