package fetcher

import (
	"encoding/json"
)

// FetchOptions tune one incremental fetch invocation.
type FetchOptions struct {
	// Limit caps how many records this invocation lists and
	// detail-fetches. Zero means no cap.
	Limit int
	// ForceRefresh purges the subject's cache before listing from the
	// beginning.
	ForceRefresh bool
}

// DetailResult is one detail payload fetched during a run.
type DetailResult struct {
	Signature string          `json:"signature"`
	Payload   json.RawMessage `json:"payload"`
}

// FetchResult summarizes one incremental fetch run. A partially failing
// run still carries every successfully fetched detail plus the explicit
// failure list, so a caller can retry only the gaps.
type FetchResult struct {
	NewSignatureCount int            `json:"new_signature_count"`
	Details           []DetailResult `json:"details"`
	FailedIDs         []string       `json:"failed_ids"`
}
