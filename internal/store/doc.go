// Package store persists miniblocks in SQLite.
//
// Store implements miniblock.Store. Each stream has one row in streams
// holding its retained range and tail hash, and one row per miniblock in
// miniblocks holding the canonical JSON encoding.
//
// # Guarantees
//
// Appends are idempotent:
//   - miniblocks at or below the tail are skipped (ON CONFLICT DO NOTHING)
//   - a miniblock must link to the tail hash, or the write fails
//
// Reads are deterministic:
//   - every multi-row query orders by num ASC
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
