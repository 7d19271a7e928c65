package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/solwatch/soltrail/pkg/observability"
	"github.com/solwatch/soltrail/pkg/solana"
	"github.com/solwatch/soltrail/pkg/store"
)

// RPCClient is the slice of the pool the orchestrator consumes.
type RPCClient interface {
	GetSignaturesForAddress(ctx context.Context, address string, opts solana.ListOptions) ([]solana.SignatureInfo, error)
	GetTransaction(ctx context.Context, signature string) (json.RawMessage, error)
}

// Service defines the public interface for the orchestrator
type Service interface {
	// FetchIncremental syncs one subject: lists signatures newer than
	// the cached frontier, then detail-fetches pending records under
	// the concurrency gate.
	FetchIncremental(ctx context.Context, subject string, opts FetchOptions) (*FetchResult, error)

	// CacheStats returns cache counters for a subject.
	CacheStats(ctx context.Context, subject string) (store.CacheStats, error)
}

type service struct {
	log    logrus.FieldLogger
	config *Config
	store  store.Store
	rpc    RPCClient
}

// NewService creates the orchestrator over a record store and RPC pool.
func NewService(log logrus.FieldLogger, cfg *Config, st store.Store, rpc RPCClient) (Service, error) {
	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &service{
		log:    log.WithField("service", "fetcher"),
		config: cfg,
		store:  st,
		rpc:    rpc,
	}, nil
}

// FetchIncremental runs the listing then detailing phases for one
// subject. Per-record detail failures are isolated and reported in
// FailedIDs; only storage failures or listing exhaustion abort the run.
func (s *service) FetchIncremental(ctx context.Context, subject string, opts FetchOptions) (*FetchResult, error) {
	if subject == "" {
		return nil, store.ErrSubjectRequired
	}

	start := time.Now()

	log := s.log.WithField("subject", subject)

	if opts.ForceRefresh {
		log.Info("Force refresh requested, purging cached records")

		if err := s.store.Purge(ctx, subject); err != nil {
			return nil, err
		}
	}

	newCount, err := s.listSignatures(ctx, subject, opts)
	if err != nil {
		return nil, err
	}

	observability.RecordSignaturesDiscovered(subject, newCount)

	result := &FetchResult{NewSignatureCount: newCount}

	if err := s.fetchDetails(ctx, subject, opts, result); err != nil {
		return nil, err
	}

	if stats, statsErr := s.store.Stats(ctx, subject); statsErr == nil {
		observability.RecordCacheDepth(subject, stats.PendingCount, stats.FailedCount)
	}

	log.WithFields(logrus.Fields{
		"new_signatures": result.NewSignatureCount,
		"fetched":        len(result.Details),
		"failed":         len(result.FailedIDs),
		"duration":       time.Since(start),
	}).Info("Incremental fetch completed")

	return result, nil
}

// listSignatures pages backward through the upstream listing, bounded
// below by the cached frontier, upserting every page immediately so
// partial progress survives a crash mid-listing.
func (s *service) listSignatures(ctx context.Context, subject string, opts FetchOptions) (int, error) {
	until := ""

	if !opts.ForceRefresh {
		cursor, err := s.store.GetCursor(ctx, subject)
		if err != nil {
			return 0, err
		}

		if cursor != nil {
			until = cursor.NewestSignature
		}
	}

	var (
		inserted  int
		listed    int
		before    string
		pageCount int
	)

	for {
		pageSize := s.config.PageSize
		if opts.Limit > 0 && opts.Limit-listed < pageSize {
			pageSize = opts.Limit - listed
		}

		if pageSize <= 0 {
			break
		}

		sigs, err := s.rpc.GetSignaturesForAddress(ctx, subject, solana.ListOptions{
			Limit:  pageSize,
			Before: before,
			Until:  until,
		})
		if err != nil {
			return inserted, fmt.Errorf("signature listing failed: %w", err)
		}

		if len(sigs) == 0 {
			break
		}

		records := make([]store.SignatureRecord, len(sigs))
		for i, sig := range sigs {
			records[i] = store.SignatureRecord{
				Subject:   subject,
				Signature: sig.Signature,
				Slot:      sig.Slot,
				BlockTime: sig.BlockTime,
				Err:       sig.TxErr(),
				Memo:      sig.MemoText(),
				FetchedAt: time.Now(),
			}
		}

		n, err := s.store.UpsertSignatures(ctx, subject, records)
		if err != nil {
			return inserted, err
		}

		inserted += n
		listed += len(sigs)
		pageCount++

		s.log.WithFields(logrus.Fields{
			"subject":  subject,
			"page":     pageCount,
			"listed":   len(sigs),
			"inserted": n,
		}).Debug("Stored signature page")

		// A short page means the upstream ran out.
		if len(sigs) < pageSize {
			break
		}

		before = sigs[len(sigs)-1].Signature
	}

	return inserted, nil
}

// fetchDetails drains the pending set in bounded batches under the
// concurrency gate, writing each outcome back as it resolves.
func (s *service) fetchDetails(ctx context.Context, subject string, opts FetchOptions, result *FetchResult) error {
	attempted := make(map[string]struct{})

	for {
		batchSize := s.config.BatchSize
		if opts.Limit > 0 && opts.Limit-len(attempted) < batchSize {
			batchSize = opts.Limit - len(attempted)
		}

		if batchSize <= 0 {
			return nil
		}

		pending, err := s.store.ListPendingDetails(ctx, subject, batchSize+len(attempted), s.config.MaxDetailRetries)
		if err != nil {
			return err
		}

		// A record that failed this run stays listed as pending; fetch
		// each record at most once per invocation so the loop always
		// terminates.
		batch := make([]string, 0, batchSize)

		for _, sig := range pending {
			if _, done := attempted[sig]; done {
				continue
			}

			batch = append(batch, sig)
			if len(batch) == batchSize {
				break
			}
		}

		if len(batch) == 0 {
			return nil
		}

		for _, sig := range batch {
			attempted[sig] = struct{}{}
		}

		if err := s.fetchBatch(ctx, subject, batch, result); err != nil {
			return err
		}
	}
}

// fetchBatch fetches one batch of details concurrently. RPC failures
// are recorded per record and never abort the batch; storage failures
// and cancellation do.
func (s *service) fetchBatch(ctx context.Context, subject string, batch []string, result *FetchResult) error {
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.MaxConcurrent)

	for _, sig := range batch {
		g.Go(func() error {
			payload, err := s.rpc.GetTransaction(ctx, sig)
			if err != nil {
				// Cancellation leaves the record pending so a retry
				// is always safe.
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ctxErr
				}

				s.log.WithError(err).WithFields(logrus.Fields{
					"subject":   subject,
					"signature": sig,
				}).Warn("Detail fetch failed")

				if markErr := s.store.MarkDetailFailed(ctx, subject, sig); markErr != nil {
					return markErr
				}

				mu.Lock()
				result.FailedIDs = append(result.FailedIDs, sig)
				mu.Unlock()

				return nil
			}

			if err := s.store.UpsertDetail(ctx, subject, sig, payload); err != nil {
				return err
			}

			mu.Lock()
			result.Details = append(result.Details, DetailResult{Signature: sig, Payload: payload})
			mu.Unlock()

			return nil
		})
	}

	return g.Wait()
}

// CacheStats returns cache counters for a subject.
func (s *service) CacheStats(ctx context.Context, subject string) (store.CacheStats, error) {
	return s.store.Stats(ctx, subject)
}

// Ensure service implements the interface
var _ Service = (*service)(nil)
