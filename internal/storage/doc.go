// Package storage defines the persistence interfaces for the guessing game.
//
// It provides a high-level abstraction for storing per-user session documents
// and the shared leaderboard. Implementations of these interfaces live in
// subpackages: bbolt (durable, authoritative) and memory (test double).
//
// # Error Types
//
//   - ErrNotFound: Indicates a requested record is missing.
package storage
