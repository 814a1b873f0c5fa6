package store

import (
	"context"
	"database/sql"
	"fmt"
)

// SessionInfo is a sessions row.
type SessionInfo struct {
	ID            string
	Label         string
	EngineVersion string
}

// Unit is a compiled_units row.
type Unit struct {
	Seq         int64
	Loop        int64
	Bridge      bool
	Origin      int64
	Fingerprint string
	Ops         int
	Size        int64
	Barriers    int
	MergePoints int
}

// Exit is an exits row with its decoded snapshot.
type Exit struct {
	Seq      int64
	Loop     int64
	Descr    int64
	Guard    bool
	OpIndex  int
	Failures int64
	Values   []SnapshotValue
}

// Free is a frees row.
type Free struct {
	Seq     int64
	Loop    int64
	Bridges int
	Size    int64
}

// GuardCount is the number of exits taken through one descriptor.
type GuardCount struct {
	Descr int64
	Loop  int64
	Exits int64
}

// Summary aggregates one session.
type Summary struct {
	Loops      int64
	Bridges    int64
	Exits      int64
	Frees      int64
	CodeBytes  int64
	FreedBytes int64
}

// ListSessions returns all sessions in creation order.
// Returns an empty slice (not nil) when the log is empty.
func (s *Store) ListSessions(ctx context.Context) ([]SessionInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, label, engine_version
		FROM sessions
		ORDER BY rowid ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	sessions := []SessionInfo{}
	for rows.Next() {
		var si SessionInfo
		if err := rows.Scan(&si.ID, &si.Label, &si.EngineVersion); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, si)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// ReadSession retrieves a single session by ID.
// Returns sql.ErrNoRows if not found.
func (s *Store) ReadSession(ctx context.Context, id string) (SessionInfo, error) {
	var si SessionInfo
	err := s.db.QueryRowContext(ctx, `
		SELECT id, label, engine_version FROM sessions WHERE id = ?
	`, id).Scan(&si.ID, &si.Label, &si.EngineVersion)
	if err != nil {
		return SessionInfo{}, fmt.Errorf("read session %s: %w", id, err)
	}
	return si, nil
}

// LatestSession returns the most recently created session.
// Returns sql.ErrNoRows if the log is empty.
func (s *Store) LatestSession(ctx context.Context) (SessionInfo, error) {
	var si SessionInfo
	err := s.db.QueryRowContext(ctx, `
		SELECT id, label, engine_version FROM sessions ORDER BY rowid DESC LIMIT 1
	`).Scan(&si.ID, &si.Label, &si.EngineVersion)
	if err != nil {
		return SessionInfo{}, fmt.Errorf("latest session: %w", err)
	}
	return si, nil
}

// ReadUnits returns the compiled units of a session ordered by seq.
func (s *Store) ReadUnits(ctx context.Context, sessionID string) ([]Unit, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, loop, bridge, origin, fingerprint, ops, size, barriers, merge_points
		FROM compiled_units
		WHERE session_id = ?
		ORDER BY seq ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query units: %w", err)
	}
	defer rows.Close()

	units := []Unit{}
	for rows.Next() {
		var u Unit
		if err := rows.Scan(&u.Seq, &u.Loop, &u.Bridge, &u.Origin, &u.Fingerprint,
			&u.Ops, &u.Size, &u.Barriers, &u.MergePoints); err != nil {
			return nil, fmt.Errorf("scan unit: %w", err)
		}
		units = append(units, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate units: %w", err)
	}
	return units, nil
}

// ReadExits returns the exits of a session ordered by seq.
func (s *Store) ReadExits(ctx context.Context, sessionID string) ([]Exit, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, loop, descr, guard, op_index, failures, snapshot
		FROM exits
		WHERE session_id = ?
		ORDER BY seq ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query exits: %w", err)
	}
	defer rows.Close()

	exits := []Exit{}
	for rows.Next() {
		e, err := scanExit(rows)
		if err != nil {
			return nil, err
		}
		exits = append(exits, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate exits: %w", err)
	}
	return exits, nil
}

func scanExit(rows *sql.Rows) (Exit, error) {
	var e Exit
	var snap []byte
	if err := rows.Scan(&e.Seq, &e.Loop, &e.Descr, &e.Guard, &e.OpIndex, &e.Failures, &snap); err != nil {
		return Exit{}, fmt.Errorf("scan exit: %w", err)
	}
	values, err := unmarshalSnapshot(snap)
	if err != nil {
		return Exit{}, fmt.Errorf("exit %d: %w", e.Seq, err)
	}
	e.Values = values
	return e, nil
}

// ReadFrees returns the freed loops of a session ordered by seq.
func (s *Store) ReadFrees(ctx context.Context, sessionID string) ([]Free, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, loop, bridges, size
		FROM frees
		WHERE session_id = ?
		ORDER BY seq ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query frees: %w", err)
	}
	defer rows.Close()

	frees := []Free{}
	for rows.Next() {
		var f Free
		if err := rows.Scan(&f.Seq, &f.Loop, &f.Bridges, &f.Size); err != nil {
			return nil, fmt.Errorf("scan free: %w", err)
		}
		frees = append(frees, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate frees: %w", err)
	}
	return frees, nil
}

// HotGuards returns the descriptors with the most exits in a session,
// busiest first. Ties order by descriptor.
func (s *Store) HotGuards(ctx context.Context, sessionID string, limit int) ([]GuardCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT descr, MIN(loop), COUNT(*) AS n
		FROM exits
		WHERE session_id = ? AND guard = 1
		GROUP BY descr
		ORDER BY n DESC, descr ASC
		LIMIT ?
	`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("query hot guards: %w", err)
	}
	defer rows.Close()

	counts := []GuardCount{}
	for rows.Next() {
		var g GuardCount
		if err := rows.Scan(&g.Descr, &g.Loop, &g.Exits); err != nil {
			return nil, fmt.Errorf("scan guard count: %w", err)
		}
		counts = append(counts, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate guard counts: %w", err)
	}
	return counts, nil
}

// Summarize aggregates the counters of a session.
func (s *Store) Summarize(ctx context.Context, sessionID string) (Summary, error) {
	var sum Summary
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM compiled_units WHERE session_id = ?1 AND bridge = 0),
			(SELECT COUNT(*) FROM compiled_units WHERE session_id = ?1 AND bridge = 1),
			(SELECT COUNT(*) FROM exits WHERE session_id = ?1),
			(SELECT COUNT(*) FROM frees WHERE session_id = ?1),
			(SELECT COALESCE(SUM(size), 0) FROM compiled_units WHERE session_id = ?1),
			(SELECT COALESCE(SUM(size), 0) FROM frees WHERE session_id = ?1)
	`, sessionID).Scan(&sum.Loops, &sum.Bridges, &sum.Exits, &sum.Frees, &sum.CodeBytes, &sum.FreedBytes)
	if err != nil {
		return Summary{}, fmt.Errorf("summarize %s: %w", sessionID, err)
	}
	return sum, nil
}
