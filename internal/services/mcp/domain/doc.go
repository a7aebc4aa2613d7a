// Package domain provides the MCP tool and resource handlers for the
// number-guessing game, plus the capability binding that keeps one session's
// MCP server surface in sync with the game state machine.
package domain
