// Package errors provides structured, coded error handling for the server.
package errors

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Identity errors
	CodeAuthenticationRequired Code = "AUTHENTICATION_REQUIRED"
	CodeSessionInvalid         Code = "SESSION_INVALID"

	// State machine errors
	CodeStateUnknown Code = "STATE_UNKNOWN"

	// Game input errors
	CodePlayerNameInvalid Code = "PLAYER_NAME_INVALID"
	CodeGuessOutOfRange   Code = "GUESS_OUT_OF_RANGE"

	// Storage errors
	CodeNotFound         Code = "NOT_FOUND"
	CodeStoreUnavailable Code = "STORE_UNAVAILABLE"
)

// ServerFault reports whether the code represents a server-side failure
// rather than a problem with the request. The transport layer uses this to
// pick between a client and a server error surface.
func (c Code) ServerFault() bool {
	switch c {
	case CodeStateUnknown, CodeStoreUnavailable, CodeUnknown:
		return true
	default:
		return false
	}
}
