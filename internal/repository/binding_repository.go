package repository

import (
	"github.com/aldertree/questline/internal/model"
	"gorm.io/gorm"
)

type BindingRepository interface {
	Create(tx *gorm.DB, b *model.PlaceholderBinding) error
	FindByQuestionID(questionID uint) ([]model.PlaceholderBinding, error)
	// Delete removes the binding for (question, placeholder key); reports
	// whether a row was removed.
	Delete(tx *gorm.DB, questionID uint, placeholderKey string) (bool, error)
}

type bindingRepository struct {
	db *gorm.DB
}

func NewBindingRepository(db *gorm.DB) BindingRepository {
	return &bindingRepository{db: db}
}

func (r *bindingRepository) Create(tx *gorm.DB, b *model.PlaceholderBinding) error {
	return tx.Create(b).Error
}

func (r *bindingRepository) FindByQuestionID(questionID uint) ([]model.PlaceholderBinding, error) {
	var bindings []model.PlaceholderBinding
	err := r.db.Where("question_id = ?", questionID).
		Order("placeholder_key ASC").Find(&bindings).Error
	return bindings, err
}

func (r *bindingRepository) Delete(tx *gorm.DB, questionID uint, placeholderKey string) (bool, error) {
	res := tx.Where("question_id = ? AND placeholder_key = ?", questionID, placeholderKey).
		Delete(&model.PlaceholderBinding{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
