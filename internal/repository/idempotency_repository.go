package repository

import (
	"time"

	"github.com/aldertree/questline/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type IdempotencyRepository interface {
	// TryInsert claims the key with an insert-if-absent; reports whether
	// this caller won the claim.
	TryInsert(rec *model.IdempotencyRecord) (bool, error)
	FindByKey(key string) (*model.IdempotencyRecord, error)
	Commit(key, resultJSON string) error
	Release(key string) error
	DeleteExpired(now time.Time) error
}

type idempotencyRepository struct {
	db *gorm.DB
}

func NewIdempotencyRepository(db *gorm.DB) IdempotencyRepository {
	return &idempotencyRepository{db: db}
}

func (r *idempotencyRepository) TryInsert(rec *model.IdempotencyRecord) (bool, error) {
	res := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoNothing: true,
	}).Create(rec)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *idempotencyRepository) FindByKey(key string) (*model.IdempotencyRecord, error) {
	var rec model.IdempotencyRecord
	if err := r.db.Where("key = ?", key).First(&rec).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *idempotencyRepository) Commit(key, resultJSON string) error {
	return r.db.Model(&model.IdempotencyRecord{}).Where("key = ?", key).
		Updates(map[string]interface{}{
			"status":      model.IdempotencyCommitted,
			"result_json": resultJSON,
		}).Error
}

func (r *idempotencyRepository) Release(key string) error {
	return r.db.Where("key = ? AND status = ?", key, model.IdempotencyInProgress).
		Delete(&model.IdempotencyRecord{}).Error
}

func (r *idempotencyRepository) DeleteExpired(now time.Time) error {
	return r.db.Where("expires_at < ?", now).Delete(&model.IdempotencyRecord{}).Error
}
