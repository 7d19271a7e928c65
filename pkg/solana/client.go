package solana

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// issue sends a single JSON-RPC request to one endpoint and classifies
// the outcome as transient (retriable on another endpoint) or fatal.
func (p *Pool) issue(ctx context.Context, url, method string, params []interface{}) (json.RawMessage, error) {
	reqCtx, cancel := context.WithTimeout(ctx, p.requestTimeout)
	defer cancel()

	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      p.reqID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return nil, &FatalRequestError{Method: method, Err: err}
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, &FatalRequestError{Method: method, Err: err}
	}

	req.Header.Set("Content-Type", "application/json")

	if p.debug {
		p.log.WithFields(map[string]interface{}{
			"endpoint": url,
			"method":   method,
		}).Debug("Issuing RPC request")
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		// Connection errors and timeouts are endpoint-scoped.
		return nil, &TransientEndpointError{Endpoint: url, Err: err}
	}

	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			p.log.WithError(closeErr).Debug("Failed to close response body")
		}
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransientEndpointError{Endpoint: url, Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		statusErr := fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(respBody, 200))

		// 429 and 5xx are the upstream telling this endpoint to back
		// off; anything else in the 4xx range means the request itself
		// is broken.
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
			return nil, &TransientEndpointError{Endpoint: url, Err: statusErr}
		}

		return nil, &FatalRequestError{Method: method, Err: statusErr}
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return nil, &TransientEndpointError{Endpoint: url, Err: fmt.Errorf("malformed response: %w", err)}
	}

	if rpcResp.Error != nil {
		if isFatalRPCCode(rpcResp.Error.Code) {
			return nil, &FatalRequestError{Method: method, Err: rpcResp.Error}
		}

		return nil, &TransientEndpointError{Endpoint: url, Err: rpcResp.Error}
	}

	if p.debug && len(rpcResp.Result) < 1000 {
		p.log.WithField("result", string(rpcResp.Result)).Debug("RPC response")
	}

	return rpcResp.Result, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}

	return string(b[:n]) + "... (truncated)"
}

// GetSignaturesForAddress lists transaction signatures for an address,
// newest first as returned by the upstream. Before pages backward within
// one pass; Until bounds the pass at the cached frontier.
func (p *Pool) GetSignaturesForAddress(ctx context.Context, address string, opts ListOptions) ([]SignatureInfo, error) {
	if address == "" {
		return nil, &FatalRequestError{Method: "getSignaturesForAddress", Err: ErrAddressRequired}
	}

	cfg := listConfig{
		Limit:  opts.Limit,
		Before: opts.Before,
		Until:  opts.Until,
	}

	result, err := p.Call(ctx, "getSignaturesForAddress", address, cfg)
	if err != nil {
		return nil, err
	}

	var sigs []SignatureInfo
	if err := json.Unmarshal(result, &sigs); err != nil {
		return nil, fmt.Errorf("failed to decode signature list: %w", err)
	}

	return sigs, nil
}

// GetTransaction fetches the full jsonParsed payload for one signature.
// A null result means no endpoint will ever know this transaction, so it
// is classified fatal rather than transient.
func (p *Pool) GetTransaction(ctx context.Context, signature string) (json.RawMessage, error) {
	if signature == "" {
		return nil, &FatalRequestError{Method: "getTransaction", Err: ErrSignatureRequired}
	}

	cfg := transactionConfig{
		Encoding:                       "jsonParsed",
		MaxSupportedTransactionVersion: 0,
	}

	result, err := p.Call(ctx, "getTransaction", signature, cfg)
	if err != nil {
		return nil, err
	}

	if len(result) == 0 || string(result) == "null" {
		return nil, &FatalRequestError{Method: "getTransaction", Err: ErrTransactionNotFound}
	}

	return result, nil
}

// Ensure Pool implements the interface
var _ ClientInterface = (*Pool)(nil)
