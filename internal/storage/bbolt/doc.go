// Package bbolt implements the storage interfaces on top of BoltDB.
//
// Session records and the shared leaderboard are stored as JSON documents in
// two buckets. Every read-modify-write runs inside a bbolt update transaction,
// which is the store's atomicity guarantee; callers never take locks around
// leaderboard writes.
package bbolt
