// Package testutil provides test utilities for soltrail, including:
//   - A scripted Solana JSON-RPC upstream for unit tests (rpcserver.go)
//   - Miniredis helpers for unit tests (miniredis.go)
//
// None of the helpers require Docker; everything runs in-process.
package testutil
