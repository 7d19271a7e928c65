package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// SignatureEntry is one signature listing entry served by the fake
// upstream, in upstream wire form.
type SignatureEntry struct {
	Signature string          `json:"signature"`
	Slot      uint64          `json:"slot"`
	BlockTime *int64          `json:"blockTime"`
	Err       json.RawMessage `json:"err"`
	Memo      *string         `json:"memo"`
}

type rpcCall struct {
	JSONRPC string            `json:"jsonrpc"`
	ID      uint64            `json:"id"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
}

// RPCServer is a scripted Solana JSON-RPC upstream for unit tests. It
// serves getSignaturesForAddress with real before/until/limit paging
// semantics over a per-address newest-first list, getTransaction from a
// signature->payload map, and getHealth. Failures can be injected per
// signature or for whole methods.
type RPCServer struct {
	*httptest.Server

	mu           sync.Mutex
	signatures   map[string][]SignatureEntry
	transactions map[string]json.RawMessage
	failTx       map[string]int
	failMethods  map[string]bool
	calls        map[string]int
	delay        time.Duration

	inFlight    int
	maxInFlight int
}

// NewRPCServer starts a fake upstream. The server is automatically
// closed when the test completes.
func NewRPCServer(t *testing.T) *RPCServer {
	t.Helper()

	s := &RPCServer{
		signatures:   make(map[string][]SignatureEntry),
		transactions: make(map[string]json.RawMessage),
		failTx:       make(map[string]int),
		failMethods:  make(map[string]bool),
		calls:        make(map[string]int),
	}

	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Server.Close)

	return s
}

// AddSignatures appends entries to an address's listing, newest first.
func (s *RPCServer) AddSignatures(address string, entries ...SignatureEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.signatures[address] = append(entries, s.signatures[address]...)
}

// SetTransaction scripts the getTransaction payload for a signature.
func (s *RPCServer) SetTransaction(signature string, payload json.RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.transactions[signature] = payload
}

// FailTransaction makes getTransaction for a signature answer HTTP 500
// for the next n requests; n < 0 fails forever.
func (s *RPCServer) FailTransaction(signature string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.failTx[signature] = n
}

// FailMethod makes every request for a method answer HTTP 500.
func (s *RPCServer) FailMethod(method string, fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.failMethods[method] = fail
}

// SetDelay adds latency to every request, to widen concurrency windows.
func (s *RPCServer) SetDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.delay = d
}

// Calls returns how many requests a method has received.
func (s *RPCServer) Calls(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.calls[method]
}

// MaxInFlight returns the highest number of simultaneous in-flight
// requests observed.
func (s *RPCServer) MaxInFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.maxInFlight
}

func (s *RPCServer) handle(w http.ResponseWriter, r *http.Request) {
	var call rpcCall
	if err := json.NewDecoder(r.Body).Decode(&call); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)

		return
	}

	s.mu.Lock()
	s.calls[call.Method]++
	s.inFlight++

	if s.inFlight > s.maxInFlight {
		s.maxInFlight = s.inFlight
	}

	delay := s.delay
	failMethod := s.failMethods[call.Method]
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.inFlight--
		s.mu.Unlock()
	}()

	if delay > 0 {
		time.Sleep(delay)
	}

	if failMethod {
		http.Error(w, "injected failure", http.StatusInternalServerError)

		return
	}

	switch call.Method {
	case "getHealth":
		s.respond(w, call.ID, json.RawMessage(`"ok"`))
	case "getSignaturesForAddress":
		s.handleListSignatures(w, call)
	case "getTransaction":
		s.handleGetTransaction(w, call)
	default:
		s.respondError(w, call.ID, -32601, "method not found")
	}
}

func (s *RPCServer) handleListSignatures(w http.ResponseWriter, call rpcCall) {
	var address string
	if len(call.Params) > 0 {
		_ = json.Unmarshal(call.Params[0], &address)
	}

	var opts struct {
		Limit  int    `json:"limit"`
		Before string `json:"before"`
		Until  string `json:"until"`
	}

	if len(call.Params) > 1 {
		_ = json.Unmarshal(call.Params[1], &opts)
	}

	if opts.Limit <= 0 || opts.Limit > 1000 {
		opts.Limit = 1000
	}

	s.mu.Lock()
	entries := s.signatures[address]
	s.mu.Unlock()

	// Page backward from Before (exclusive), stop at Until (exclusive).
	start := 0

	if opts.Before != "" {
		for i, e := range entries {
			if e.Signature == opts.Before {
				start = i + 1

				break
			}
		}
	}

	page := make([]SignatureEntry, 0, opts.Limit)

	for _, e := range entries[start:] {
		if opts.Until != "" && e.Signature == opts.Until {
			break
		}

		page = append(page, e)
		if len(page) == opts.Limit {
			break
		}
	}

	data, _ := json.Marshal(page)
	s.respond(w, call.ID, data)
}

func (s *RPCServer) handleGetTransaction(w http.ResponseWriter, call rpcCall) {
	var signature string
	if len(call.Params) > 0 {
		_ = json.Unmarshal(call.Params[0], &signature)
	}

	s.mu.Lock()
	remaining, failing := s.failTx[signature]
	if failing && remaining > 0 {
		s.failTx[signature] = remaining - 1
	}

	payload, known := s.transactions[signature]
	s.mu.Unlock()

	if failing && remaining != 0 {
		http.Error(w, "injected failure", http.StatusInternalServerError)

		return
	}

	if !known {
		s.respond(w, call.ID, json.RawMessage(`null`))

		return
	}

	s.respond(w, call.ID, payload)
}

func (s *RPCServer) respond(w http.ResponseWriter, id uint64, result json.RawMessage) {
	w.Header().Set("Content-Type", "application/json")

	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      id,
		"result":  result,
	})
}

func (s *RPCServer) respondError(w http.ResponseWriter, id uint64, code int, message string) {
	w.Header().Set("Content-Type", "application/json")

	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      id,
		"error":   map[string]interface{}{"code": code, "message": message},
	})
}
