package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solwatch/soltrail/pkg/events"
	"github.com/solwatch/soltrail/pkg/fetcher"
	"github.com/solwatch/soltrail/pkg/store"
)

type fakeFetcher struct {
	lastSubject string
	lastOpts    fetcher.FetchOptions
	result      *fetcher.FetchResult
	err         error
}

func (f *fakeFetcher) FetchIncremental(_ context.Context, subject string, opts fetcher.FetchOptions) (*fetcher.FetchResult, error) {
	f.lastSubject = subject
	f.lastOpts = opts

	return f.result, f.err
}

func (f *fakeFetcher) CacheStats(context.Context, string) (store.CacheStats, error) {
	return store.CacheStats{}, nil
}

type capturingPublisher struct {
	published []events.SyncCompleted
	err       error
}

func (p *capturingPublisher) PublishSyncCompleted(_ context.Context, event events.SyncCompleted) error {
	p.published = append(p.published, event)

	return p.err
}

func (p *capturingPublisher) Close() error { return nil }

func syncTask(t *testing.T, payload SyncPayload) *asynq.Task {
	t.Helper()

	data, err := json.Marshal(payload)
	require.NoError(t, err)

	return asynq.NewTask(TypeSubjectSync, data)
}

func TestHandleSyncSuccess(t *testing.T) {
	fake := &fakeFetcher{
		result: &fetcher.FetchResult{
			NewSignatureCount: 7,
			Details:           make([]fetcher.DetailResult, 5),
			FailedIDs:         []string{"sig9", "sig8"},
		},
	}
	publisher := &capturingPublisher{}
	handler := NewSyncHandler(logrus.New(), fake, publisher)

	task := syncTask(t, SyncPayload{
		Subject: "addr1",
		Limit:   100,
		Force:   true,
		Trigger: TriggerScheduled,
		RunID:   "run-1",
	})

	require.NoError(t, handler.HandleSync(context.Background(), task))

	assert.Equal(t, "addr1", fake.lastSubject)
	assert.Equal(t, fetcher.FetchOptions{Limit: 100, ForceRefresh: true}, fake.lastOpts)

	require.Len(t, publisher.published, 1)
	event := publisher.published[0]
	assert.Equal(t, "addr1", event.Subject)
	assert.Equal(t, "run-1", event.RunID)
	assert.Equal(t, TriggerScheduled, event.Trigger)
	assert.Equal(t, 7, event.NewSignatures)
	assert.Equal(t, 5, event.Fetched)
	assert.Equal(t, []string{"sig9", "sig8"}, event.FailedIDs)
}

func TestHandleSyncFetchFailure(t *testing.T) {
	fake := &fakeFetcher{err: errors.New("boom")}
	publisher := &capturingPublisher{}
	handler := NewSyncHandler(logrus.New(), fake, publisher)

	task := syncTask(t, SyncPayload{Subject: "addr1", Trigger: TriggerAPI})

	err := handler.HandleSync(context.Background(), task)
	require.Error(t, err)
	assert.Empty(t, publisher.published, "no event for a failed sync")
}

func TestHandleSyncPublishFailureIsNotFatal(t *testing.T) {
	fake := &fakeFetcher{result: &fetcher.FetchResult{NewSignatureCount: 1}}
	publisher := &capturingPublisher{err: errors.New("broker down")}
	handler := NewSyncHandler(logrus.New(), fake, publisher)

	task := syncTask(t, SyncPayload{Subject: "addr1", Trigger: TriggerScheduled})

	assert.NoError(t, handler.HandleSync(context.Background(), task))
}

func TestHandleSyncRejectsMalformedPayload(t *testing.T) {
	handler := NewSyncHandler(logrus.New(), &fakeFetcher{}, &capturingPublisher{})

	task := asynq.NewTask(TypeSubjectSync, []byte("{not json"))

	err := handler.HandleSync(context.Background(), task)
	require.Error(t, err)
}

func TestNewServiceValidatesConfig(t *testing.T) {
	_, err := NewService(logrus.New(), &Config{Schedule: "bogus", Concurrency: 5}, nil, nil, nil)
	require.Error(t, err)

	_, err = NewService(logrus.New(), &Config{Schedule: "@every 5m", Concurrency: 5}, nil, nil, nil)
	require.NoError(t, err)
}
