package repository

import (
	"github.com/aldertree/questline/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type QuestionnaireRepository interface {
	Create(q *model.Questionnaire) error
	FindByID(id uint) (*model.Questionnaire, error)
	FindByIDWithScreens(id uint) (*model.Questionnaire, error)
	FindByName(name string) (*model.Questionnaire, error)
	FindAllWithScreenCount() ([]QuestionnaireWithScreenCount, error)
	// LockForUpdate serializes concurrent screen-order mutations on the
	// questionnaire row.
	LockForUpdate(tx *gorm.DB, id uint) (*model.Questionnaire, error)
	BumpVersion(tx *gorm.DB, id uint) error
	Delete(tx *gorm.DB, id uint) error
}

type QuestionnaireWithScreenCount struct {
	model.Questionnaire
	ScreenCount int
}

type questionnaireRepository struct {
	db *gorm.DB
}

func NewQuestionnaireRepository(db *gorm.DB) QuestionnaireRepository {
	return &questionnaireRepository{db: db}
}

func (r *questionnaireRepository) Create(q *model.Questionnaire) error {
	return r.db.Create(q).Error
}

func (r *questionnaireRepository) FindByID(id uint) (*model.Questionnaire, error) {
	var q model.Questionnaire
	if err := r.db.First(&q, id).Error; err != nil {
		return nil, err
	}
	return &q, nil
}

func (r *questionnaireRepository) FindByIDWithScreens(id uint) (*model.Questionnaire, error) {
	var q model.Questionnaire
	err := r.db.Preload("Screens", func(db *gorm.DB) *gorm.DB {
		return db.Order("screens.position ASC")
	}).First(&q, id).Error
	if err != nil {
		return nil, err
	}
	return &q, nil
}

func (r *questionnaireRepository) FindByName(name string) (*model.Questionnaire, error) {
	var q model.Questionnaire
	if err := r.db.Where("name = ?", name).First(&q).Error; err != nil {
		return nil, err
	}
	return &q, nil
}

func (r *questionnaireRepository) FindAllWithScreenCount() ([]QuestionnaireWithScreenCount, error) {
	var results []QuestionnaireWithScreenCount
	err := r.db.Model(&model.Questionnaire{}).
		Select("questionnaires.*, (SELECT COUNT(*) FROM screens WHERE screens.questionnaire_id = questionnaires.id AND screens.deleted_at IS NULL) as screen_count").
		Order("questionnaires.created_at DESC").
		Scan(&results).Error
	return results, err
}

func (r *questionnaireRepository) LockForUpdate(tx *gorm.DB, id uint) (*model.Questionnaire, error) {
	var q model.Questionnaire
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&q, id).Error
	if err != nil {
		return nil, err
	}
	return &q, nil
}

func (r *questionnaireRepository) BumpVersion(tx *gorm.DB, id uint) error {
	return tx.Model(&model.Questionnaire{}).Where("id = ?", id).
		UpdateColumn("version", gorm.Expr("version + 1")).Error
}

func (r *questionnaireRepository) Delete(tx *gorm.DB, id uint) error {
	return tx.Select(clause.Associations).Delete(&model.Questionnaire{ID: id}).Error
}
