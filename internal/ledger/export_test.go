package ledger

// ExecForTest runs a raw statement against the underlying database so tests
// can simulate out-of-band tampering.
func (s *SQLiteStore) ExecForTest(query string, args ...any) error {
	_, err := s.db.Exec(query, args...)
	return err
}
