package service

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/aldertree/questline/internal/apperr"
	"github.com/aldertree/questline/internal/model"
	"github.com/aldertree/questline/internal/repository"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Fingerprint identifies a request body-for-body so a reused key with a
// different payload can be rejected instead of replayed.
func Fingerprint(method, path string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte{0x00})
	h.Write([]byte(path))
	h.Write([]byte{0x00})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// BeginResult reports the outcome of claiming an idempotency key.
type BeginResult struct {
	Replay     bool
	ResultJSON string
}

// IdempotencyService is the durable ledger deduplicating retried
// mutations. First claimant of a key executes; an identical retry replays
// the committed result verbatim; a reused key with a different fingerprint
// is a conflict. Entries expire after the retention window and are reaped
// lazily, so an expired key re-executes as a fresh request.
type IdempotencyService interface {
	Begin(key, fingerprint string) (*BeginResult, error)
	Commit(key, resultJSON string) error
	// Release drops an uncommitted claim after a failed execution so the
	// client's retry is not locked out.
	Release(key string)
}

type idempotencyService struct {
	repo repository.IdempotencyRepository
	ttl  time.Duration
}

func NewIdempotencyService(repo repository.IdempotencyRepository, ttl time.Duration) IdempotencyService {
	return &idempotencyService{repo: repo, ttl: ttl}
}

func (s *idempotencyService) Begin(key, fingerprint string) (*BeginResult, error) {
	now := time.Now()
	if err := s.repo.DeleteExpired(now); err != nil {
		log.Warn().Err(err).Msg("Idempotency: failed to reap expired records")
	}

	rec := &model.IdempotencyRecord{
		Key:         key,
		Fingerprint: fingerprint,
		Status:      model.IdempotencyInProgress,
		ExpiresAt:   now.Add(s.ttl),
	}
	claimed, err := s.repo.TryInsert(rec)
	if err != nil {
		return nil, apperr.Runtime(apperr.CodeStorageFailure, err)
	}
	if claimed {
		return &BeginResult{}, nil
	}

	existing, err := s.repo.FindByKey(key)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// claimant expired between insert attempt and lookup; let the
			// client retry
			return nil, apperr.Conflict(apperr.CodeIdempotencyInFlight, "idempotency key is being processed, retry later")
		}
		return nil, apperr.Runtime(apperr.CodeStorageFailure, err)
	}
	if existing.Fingerprint != fingerprint {
		return nil, apperr.Conflict(apperr.CodeIdempotencyFingerprint,
			"idempotency key was already used with a different request")
	}
	if existing.Status != model.IdempotencyCommitted {
		return nil, apperr.Conflict(apperr.CodeIdempotencyInFlight, "idempotency key is being processed, retry later")
	}
	return &BeginResult{Replay: true, ResultJSON: existing.ResultJSON}, nil
}

func (s *idempotencyService) Commit(key, resultJSON string) error {
	if err := s.repo.Commit(key, resultJSON); err != nil {
		return apperr.Runtime(apperr.CodeStorageFailure, err)
	}
	return nil
}

func (s *idempotencyService) Release(key string) {
	if err := s.repo.Release(key); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Idempotency: failed to release claim")
	}
}
