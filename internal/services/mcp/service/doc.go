// Package service hosts the MCP server: per-session server construction,
// the per-user action registry, and the stdio and streamable HTTP transports.
package service
