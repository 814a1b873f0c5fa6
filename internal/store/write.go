package store

import (
	"context"
	"fmt"

	"github.com/roach88/tracejit/internal/backend"
)

// Session appends the events of one CPU to the log. It implements
// backend.EventSink.
type Session struct {
	store *Store
	id    string
	clock Clock
}

var _ backend.EventSink = (*Session)(nil)

// SessionOption configures NewSession.
type SessionOption func(*sessionConfig)

type sessionConfig struct {
	clock Clock
	ids   IDGenerator
}

// WithClock sets the clock used to stamp rows. The default is a fresh
// LogicalClock.
func WithClock(c Clock) SessionOption {
	return func(cfg *sessionConfig) { cfg.clock = c }
}

// WithIDGenerator sets the session ID source. The default generates
// UUIDv7s.
func WithIDGenerator(g IDGenerator) SessionOption {
	return func(cfg *sessionConfig) { cfg.ids = g }
}

// NewSession records a new session and returns a sink for its events.
func (s *Store) NewSession(ctx context.Context, label string, opts ...SessionOption) (*Session, error) {
	cfg := sessionConfig{clock: &LogicalClock{}, ids: UUIDv7Generator{}}
	for _, opt := range opts {
		opt(&cfg)
	}

	id := cfg.ids.Generate()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, label, engine_version)
		VALUES (?, ?, ?)
	`, id, label, backend.Version)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	return &Session{store: s, id: id, clock: cfg.clock}, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// UnitCompiled records a compiled loop or bridge.
func (s *Session) UnitCompiled(e backend.UnitEvent) error {
	return s.WriteUnit(context.Background(), e)
}

// GuardExited records a top-level exit.
func (s *Session) GuardExited(e backend.ExitEvent) error {
	return s.WriteExit(context.Background(), e)
}

// UnitFreed records a freed loop.
func (s *Session) UnitFreed(e backend.FreeEvent) error {
	return s.WriteFree(context.Background(), e)
}

// WriteUnit inserts a compiled_units row.
func (s *Session) WriteUnit(ctx context.Context, e backend.UnitEvent) error {
	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO compiled_units
		(session_id, seq, loop, bridge, origin, fingerprint, ops, size, barriers, merge_points)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		s.id,
		s.clock.Next(),
		e.Loop,
		e.Bridge,
		e.Origin,
		e.Fingerprint,
		e.Ops,
		e.Size,
		e.Barriers,
		e.MergePoints,
	)
	if err != nil {
		return fmt.Errorf("write unit: %w", err)
	}
	return nil
}

// WriteExit inserts an exits row. The exit values are stored as a CBOR
// snapshot.
func (s *Session) WriteExit(ctx context.Context, e backend.ExitEvent) error {
	snap, err := marshalSnapshot(e.Values)
	if err != nil {
		return fmt.Errorf("write exit: %w", err)
	}

	var descr int64
	if e.Descr != nil {
		descr = e.Descr.Identifier()
	}

	_, err = s.store.db.ExecContext(ctx, `
		INSERT INTO exits
		(session_id, seq, loop, descr, guard, op_index, failures, snapshot)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		s.id,
		s.clock.Next(),
		e.Loop,
		descr,
		e.Guard,
		e.OpIndex,
		e.Failures,
		snap,
	)
	if err != nil {
		return fmt.Errorf("write exit: %w", err)
	}
	return nil
}

// WriteFree inserts a frees row.
func (s *Session) WriteFree(ctx context.Context, e backend.FreeEvent) error {
	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO frees (session_id, seq, loop, bridges, size)
		VALUES (?, ?, ?, ?, ?)
	`, s.id, s.clock.Next(), e.Loop, e.Bridges, e.Size)
	if err != nil {
		return fmt.Errorf("write free: %w", err)
	}
	return nil
}
