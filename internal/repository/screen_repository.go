package repository

import (
	"github.com/aldertree/questline/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ScreenRepository interface {
	Create(tx *gorm.DB, s *model.Screen) error
	FindByID(id uint) (*model.Screen, error)
	// FindByIDWithQuestions returns the screen with its questions in
	// position order and each question's options in sort order.
	FindByIDWithQuestions(id uint) (*model.Screen, error)
	FindByQuestionnaireID(questionnaireID uint) ([]model.Screen, error)
	// LockForUpdate serializes concurrent question-order mutations on the
	// screen row.
	LockForUpdate(tx *gorm.DB, id uint) (*model.Screen, error)
	Update(tx *gorm.DB, s *model.Screen) error
	Delete(tx *gorm.DB, id uint) error
	// ReorderSiblings writes the authoritative contiguous positions for a
	// questionnaire's screens in one pass: orderedIDs[i] gets position i+1.
	ReorderSiblings(tx *gorm.DB, questionnaireID uint, orderedIDs []uint) error
	BumpVersion(tx *gorm.DB, id uint) error
}

type screenRepository struct {
	db *gorm.DB
}

func NewScreenRepository(db *gorm.DB) ScreenRepository {
	return &screenRepository{db: db}
}

func (r *screenRepository) Create(tx *gorm.DB, s *model.Screen) error {
	return tx.Create(s).Error
}

func (r *screenRepository) FindByID(id uint) (*model.Screen, error) {
	var s model.Screen
	if err := r.db.First(&s, id).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *screenRepository) FindByIDWithQuestions(id uint) (*model.Screen, error) {
	var s model.Screen
	err := r.db.
		Preload("Questions", func(db *gorm.DB) *gorm.DB {
			return db.Order("questions.position ASC")
		}).
		Preload("Questions.Options", func(db *gorm.DB) *gorm.DB {
			return db.Order("answer_options.sort_index ASC")
		}).
		First(&s, id).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *screenRepository) FindByQuestionnaireID(questionnaireID uint) ([]model.Screen, error) {
	var screens []model.Screen
	err := r.db.Where("questionnaire_id = ?", questionnaireID).
		Order("position ASC").Find(&screens).Error
	return screens, err
}


func (r *screenRepository) LockForUpdate(tx *gorm.DB, id uint) (*model.Screen, error) {
	var s model.Screen
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&s, id).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *screenRepository) Update(tx *gorm.DB, s *model.Screen) error {
	return tx.Save(s).Error
}

func (r *screenRepository) Delete(tx *gorm.DB, id uint) error {
	return tx.Select(clause.Associations).Delete(&model.Screen{ID: id}).Error
}

func (r *screenRepository) ReorderSiblings(tx *gorm.DB, questionnaireID uint, orderedIDs []uint) error {
	for i, id := range orderedIDs {
		// rows whose position is already correct are left alone so their
		// ETags stay stable across unrelated sibling mutations
		err := tx.Model(&model.Screen{}).
			Where("id = ? AND questionnaire_id = ? AND position <> ?", id, questionnaireID, i+1).
			UpdateColumns(map[string]interface{}{
				"position": i + 1,
				"version":  gorm.Expr("version + 1"),
			}).Error
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *screenRepository) BumpVersion(tx *gorm.DB, id uint) error {
	return tx.Model(&model.Screen{}).Where("id = ?", id).
		UpdateColumn("version", gorm.Expr("version + 1")).Error
}
