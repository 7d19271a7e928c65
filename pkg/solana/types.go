// Package solana provides a multi-endpoint JSON-RPC client for Solana
// nodes with rotation, failover and per-endpoint health tracking.
package solana

import (
	"encoding/json"
	"fmt"
)

// rpcRequest is a JSON-RPC 2.0 request envelope.
type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

// rpcResponse is a JSON-RPC 2.0 response envelope.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is the error member of a JSON-RPC 2.0 response.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// JSON-RPC 2.0 error codes that indicate the request itself is broken.
// Everything else (including the -32000..-32099 server error range used
// by Solana nodes for unhealthy/behind conditions) is worth retrying on
// another endpoint.
const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
)

// isFatalRPCCode reports whether an RPC error code can never succeed on
// a different endpoint.
func isFatalRPCCode(code int) bool {
	switch code {
	case codeParseError, codeInvalidRequest, codeMethodNotFound, codeInvalidParams:
		return true
	default:
		return false
	}
}

// SignatureInfo is one entry returned by getSignaturesForAddress,
// newest first in upstream order.
type SignatureInfo struct {
	Signature string          `json:"signature"`
	Slot      uint64          `json:"slot"`
	BlockTime *int64          `json:"blockTime"`
	Err       json.RawMessage `json:"err,omitempty"`
	Memo      *string         `json:"memo,omitempty"`
}

// TxErr returns the transaction error as a display string, empty for a
// successful transaction.
func (s SignatureInfo) TxErr() string {
	if len(s.Err) == 0 || string(s.Err) == "null" {
		return ""
	}

	return string(s.Err)
}

// MemoText returns the memo attached to the transaction, if any.
func (s SignatureInfo) MemoText() string {
	if s.Memo == nil {
		return ""
	}

	return *s.Memo
}

// ListOptions bound a single getSignaturesForAddress page.
type ListOptions struct {
	// Limit caps the page size (upstream maximum is 1000).
	Limit int
	// Before pages backward from this signature, exclusive.
	Before string
	// Until stops the listing at this signature, exclusive. Used to
	// bound an incremental pass at the cached frontier.
	Until string
}

// listConfig is the wire form of ListOptions.
type listConfig struct {
	Limit  int    `json:"limit,omitempty"`
	Before string `json:"before,omitempty"`
	Until  string `json:"until,omitempty"`
}

// transactionConfig is the configuration object for getTransaction.
type transactionConfig struct {
	Encoding                       string `json:"encoding"`
	MaxSupportedTransactionVersion int    `json:"maxSupportedTransactionVersion"`
}
