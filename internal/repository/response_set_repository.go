package repository

import (
	"github.com/aldertree/questline/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ResponseSetRepository interface {
	Create(rs *model.ResponseSet) error
	FindByID(id uint) (*model.ResponseSet, error)
	// LockForUpdate serializes concurrent answer mutations on the
	// response-set row.
	LockForUpdate(tx *gorm.DB, id uint) (*model.ResponseSet, error)
	BumpVersion(tx *gorm.DB, id uint) error
	Delete(tx *gorm.DB, id uint) error
}

type responseSetRepository struct {
	db *gorm.DB
}

func NewResponseSetRepository(db *gorm.DB) ResponseSetRepository {
	return &responseSetRepository{db: db}
}

func (r *responseSetRepository) Create(rs *model.ResponseSet) error {
	return r.db.Create(rs).Error
}

func (r *responseSetRepository) FindByID(id uint) (*model.ResponseSet, error) {
	var rs model.ResponseSet
	if err := r.db.First(&rs, id).Error; err != nil {
		return nil, err
	}
	return &rs, nil
}

func (r *responseSetRepository) LockForUpdate(tx *gorm.DB, id uint) (*model.ResponseSet, error) {
	var rs model.ResponseSet
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&rs, id).Error; err != nil {
		return nil, err
	}
	return &rs, nil
}

func (r *responseSetRepository) BumpVersion(tx *gorm.DB, id uint) error {
	return tx.Model(&model.ResponseSet{}).Where("id = ?", id).
		UpdateColumn("version", gorm.Expr("version + 1")).Error
}

func (r *responseSetRepository) Delete(tx *gorm.DB, id uint) error {
	return tx.Select(clause.Associations).Delete(&model.ResponseSet{ID: id}).Error
}
