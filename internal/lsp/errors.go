// Package lsp manages language-server sessions: one spawned server process
// per source file, JSON-RPC framing over stdio, strictly sequential
// request/response correlation, readiness tracking, and shutdown.
package lsp

import "errors"

// Error taxonomy. Per-file failures wrap one of these sentinels so callers
// can classify without string matching; only ErrBinaryNotFound is fatal for
// a whole run.
var (
	// ErrBinaryNotFound means the server-launching binary could not be
	// resolved. No session can be started at all.
	ErrBinaryNotFound = errors.New("lsp: server binary not found")

	// ErrSessionStart means the server process could not be spawned or the
	// handshake did not complete within the startup timeout.
	ErrSessionStart = errors.New("lsp: session start failed")

	// ErrNotReady means the server has not finished processing the document.
	// Queries hitting this are retried with backoff up to a bounded count.
	ErrNotReady = errors.New("lsp: server not ready")

	// ErrRequestTimeout means a request exceeded its bounded timeout.
	ErrRequestTimeout = errors.New("lsp: request timed out")

	// ErrProtocol means the server sent a malformed or unexpected response.
	ErrProtocol = errors.New("lsp: protocol error")
)
