package service

import (
	"testing"
	"time"

	"github.com/aldertree/questline/internal/apperr"
	"github.com/aldertree/questline/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// stubIdempotencyRepo mimics the insert-if-absent semantics of the real
// table in memory.
type stubIdempotencyRepo struct {
	records map[string]*model.IdempotencyRecord
}

func newStubIdempotencyRepo() *stubIdempotencyRepo {
	return &stubIdempotencyRepo{records: map[string]*model.IdempotencyRecord{}}
}

func (r *stubIdempotencyRepo) TryInsert(rec *model.IdempotencyRecord) (bool, error) {
	if _, ok := r.records[rec.Key]; ok {
		return false, nil
	}
	cp := *rec
	r.records[rec.Key] = &cp
	return true, nil
}

func (r *stubIdempotencyRepo) FindByKey(key string) (*model.IdempotencyRecord, error) {
	rec, ok := r.records[key]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *rec
	return &cp, nil
}

func (r *stubIdempotencyRepo) Commit(key, resultJSON string) error {
	if rec, ok := r.records[key]; ok {
		rec.Status = model.IdempotencyCommitted
		rec.ResultJSON = resultJSON
	}
	return nil
}

func (r *stubIdempotencyRepo) Release(key string) error {
	if rec, ok := r.records[key]; ok && rec.Status == model.IdempotencyInProgress {
		delete(r.records, key)
	}
	return nil
}

func (r *stubIdempotencyRepo) DeleteExpired(now time.Time) error {
	for key, rec := range r.records {
		if rec.ExpiresAt.Before(now) {
			delete(r.records, key)
		}
	}
	return nil
}

func TestIdempotencyFirstClaimExecutes(t *testing.T) {
	svc := NewIdempotencyService(newStubIdempotencyRepo(), 24*time.Hour)

	res, err := svc.Begin("key-1", "fp-1")
	require.NoError(t, err)
	assert.False(t, res.Replay)
}

func TestIdempotencyReplaysCommittedResult(t *testing.T) {
	svc := NewIdempotencyService(newStubIdempotencyRepo(), 24*time.Hour)

	res, err := svc.Begin("key-1", "fp-1")
	require.NoError(t, err)
	require.False(t, res.Replay)
	require.NoError(t, svc.Commit("key-1", `{"status":201,"body":{"id":7}}`))

	res, err = svc.Begin("key-1", "fp-1")
	require.NoError(t, err)
	assert.True(t, res.Replay)
	assert.Equal(t, `{"status":201,"body":{"id":7}}`, res.ResultJSON)
}

func TestIdempotencyRejectsReusedKeyWithDifferentFingerprint(t *testing.T) {
	svc := NewIdempotencyService(newStubIdempotencyRepo(), 24*time.Hour)

	_, err := svc.Begin("key-1", "fp-1")
	require.NoError(t, err)
	require.NoError(t, svc.Commit("key-1", `{}`))

	_, err = svc.Begin("key-1", "fp-other")
	require.Error(t, err)
	problem, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, 409, problem.Status)
	assert.Equal(t, apperr.CodeIdempotencyFingerprint, problem.Code)
}

func TestIdempotencyInFlightClaimConflicts(t *testing.T) {
	svc := NewIdempotencyService(newStubIdempotencyRepo(), 24*time.Hour)

	_, err := svc.Begin("key-1", "fp-1")
	require.NoError(t, err)

	// same fingerprint, first claimant has not committed yet
	_, err = svc.Begin("key-1", "fp-1")
	require.Error(t, err)
	problem, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.CodeIdempotencyInFlight, problem.Code)
}

func TestIdempotencyReleaseAllowsRetry(t *testing.T) {
	repo := newStubIdempotencyRepo()
	svc := NewIdempotencyService(repo, 24*time.Hour)

	_, err := svc.Begin("key-1", "fp-1")
	require.NoError(t, err)
	svc.Release("key-1")

	res, err := svc.Begin("key-1", "fp-1")
	require.NoError(t, err)
	assert.False(t, res.Replay)
}

func TestIdempotencyExpiredKeyIsFresh(t *testing.T) {
	repo := newStubIdempotencyRepo()
	svc := NewIdempotencyService(repo, time.Nanosecond)

	_, err := svc.Begin("key-1", "fp-1")
	require.NoError(t, err)
	require.NoError(t, svc.Commit("key-1", `{"status":200,"body":{}}`))

	time.Sleep(time.Millisecond)

	// the record expired, so the retry executes instead of replaying
	res, err := svc.Begin("key-1", "fp-1")
	require.NoError(t, err)
	assert.False(t, res.Replay)
}

func TestFingerprintBindsMethodPathAndBody(t *testing.T) {
	base := Fingerprint("POST", "/api/v1/questionnaires", []byte(`{"name":"a"}`))

	assert.Equal(t, base, Fingerprint("POST", "/api/v1/questionnaires", []byte(`{"name":"a"}`)))
	assert.NotEqual(t, base, Fingerprint("PUT", "/api/v1/questionnaires", []byte(`{"name":"a"}`)))
	assert.NotEqual(t, base, Fingerprint("POST", "/api/v1/screens", []byte(`{"name":"a"}`)))
	assert.NotEqual(t, base, Fingerprint("POST", "/api/v1/questionnaires", []byte(`{"name":"b"}`)))
}
