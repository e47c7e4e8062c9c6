// Package miniblock stores and produces miniblocks.
//
// A stream's history is a chain of miniblocks numbered from 0. Miniblock 0
// is the genesis miniblock and always embeds a snapshot; later miniblocks
// embed one at the cadence given by SnapshotPolicy. Each header links to
// its predecessor by hash.
//
// Store is the persistence contract. MemoryStore implements it in process;
// the store package implements it on SQLite. Producer builds the next
// miniblock of a stream from pending events, folding them into a copy of
// the stream's snapshot.
//
// # Trimming
//
// Old miniblocks may be deleted, but never past the newest snapshot
// miniblock at or below the requested point, so every retained suffix
// starts at a snapshot. Media streams are never trimmed.
package miniblock
