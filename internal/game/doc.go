// Package game implements the number-guessing state machine.
//
// A session is always in exactly one of two states, Lobby or Playing. The
// current state decides how the three player actions (start, guess, give up)
// behave and which capabilities the transport should expose. All durable
// mutations go through the session store; the in-memory snapshot held by a
// Context is a read-through cache refreshed on every write.
package game
