package identity

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/landingbeacon/landingbeacon-go/pkg/kvstore"
)

func TestSubmissionRoundTrip(t *testing.T) {
	ctx := context.Background()
	kv := kvstore.NewMemory()
	store, clock := newTestStore(t, kv)

	assert.Equal(t, SubmissionStatus{Submitted: false}, store.GetSubmissionStatus(ctx, "p1"))
	assert.Equal(t, StatusMissing, store.LoadSubmission(ctx, "p1").Status)

	written := store.RecordSubmission(ctx, "p1", "a@x.io")
	assert.Equal(t, "2024-05-01T12:00:00.000Z", written.SubmittedAt)

	raw, ok, err := kv.Get(ctx, "lb_submission_p1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"submitted":true,"email":"a@x.io","submittedAt":"2024-05-01T12:00:00.000Z"}`, raw)

	got := store.GetSubmissionStatus(ctx, "p1")
	assert.True(t, got.Submitted)
	assert.Equal(t, "a@x.io", got.Email)

	at, ok := got.SubmittedAtTime()
	require.True(t, ok)
	assert.True(t, at.Equal(clock.now))

	assert.False(t, store.GetSubmissionStatus(ctx, "p2").Submitted, "records are per project")
}

func TestRecordSubmissionOverwrites(t *testing.T) {
	ctx := context.Background()
	store, clock := newTestStore(t, kvstore.NewMemory())

	store.RecordSubmission(ctx, "p1", "first@x.io")
	clock.Advance(time.Minute)
	store.RecordSubmission(ctx, "p1", "second@x.io")

	got := store.GetSubmissionStatus(ctx, "p1")
	assert.Equal(t, "second@x.io", got.Email)
	assert.Equal(t, "2024-05-01T12:01:00.000Z", got.SubmittedAt)
}

func TestCorruptSubmissionDefaultsToNotSubmitted(t *testing.T) {
	ctx := context.Background()
	kv := kvstore.NewMemory()
	require.NoError(t, kv.Set(ctx, "lb_submission_p1", "yes"))
	store, _ := newTestStore(t, kv)

	assert.Equal(t, StatusCorrupt, store.LoadSubmission(ctx, "p1").Status)
	assert.Equal(t, SubmissionStatus{Submitted: false}, store.GetSubmissionStatus(ctx, "p1"))
}

func TestSubmissionWithoutStorage(t *testing.T) {
	ctx := context.Background()

	store, _ := newTestStore(t, nil)
	rec := store.RecordSubmission(ctx, "p1", "a@x.io")
	assert.True(t, rec.Submitted)
	assert.False(t, store.GetSubmissionStatus(ctx, "p1").Submitted)
	assert.Equal(t, StatusUnavailable, store.LoadSubmission(ctx, "p1").Status)

	failing, _ := newTestStore(t, failingStore{err: stderrors.New("denied")})
	assert.NotPanics(t, func() { failing.RecordSubmission(ctx, "p1", "a@x.io") })
	lookup := failing.LoadSubmission(ctx, "p1")
	assert.Equal(t, StatusUnavailable, lookup.Status)
	assert.Error(t, lookup.Err)
}

func TestSubmittedAtTimeRejectsGarbage(t *testing.T) {
	_, ok := SubmissionStatus{}.SubmittedAtTime()
	assert.False(t, ok)
	_, ok = SubmissionStatus{SubmittedAt: "yesterday"}.SubmittedAtTime()
	assert.False(t, ok)
}
