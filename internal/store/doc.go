// Package store provides SQLite-backed durable storage for JIT event logs.
//
// A session is one run of a CPU: every loop and bridge it compiles, every
// top-level exit and every freed loop is appended to the log. A *Session
// implements backend.EventSink, so attaching it with backend.WithEventSink
// is all a caller needs to do.
//
// Tables:
//   - sessions: one row per CPU run
//   - compiled_units: loops and bridges with fingerprint, size and rewrite counts
//   - exits: top-level exits with a CBOR-encoded snapshot of the exit values
//   - frees: freed loops and the code cache bytes they released
//
// # Ordering
//
// Every row carries a seq from the session's logical clock, never a wall
// clock timestamp. Queries order by seq ASC so that reading a log back is
// deterministic.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
