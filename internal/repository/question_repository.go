package repository

import (
	"github.com/aldertree/questline/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type QuestionRepository interface {
	Create(tx *gorm.DB, q *model.Question) error
	FindByID(id uint) (*model.Question, error)
	FindByIDWithOptions(id uint) (*model.Question, error)
	FindByScreenID(screenID uint) ([]model.Question, error)
	// FindByQuestionnaireID returns every question of the questionnaire
	// (across screens) with options, for visibility evaluation.
	FindByQuestionnaireID(questionnaireID uint) ([]model.Question, error)
	Update(tx *gorm.DB, q *model.Question) error
	Delete(tx *gorm.DB, id uint) error
	// DeleteCascade removes a set of questions together with their options
	// and placeholder bindings, detaching any surviving children first.
	DeleteCascade(tx *gorm.DB, ids []uint) error
	// ClearParentLinks detaches all children of a question being deleted.
	ClearParentLinks(tx *gorm.DB, parentID uint) error
	ReorderSiblings(tx *gorm.DB, screenID uint, orderedIDs []uint) error
	ReplaceOptions(tx *gorm.DB, questionID uint, options []model.AnswerOption) error
	BumpVersion(tx *gorm.DB, id uint) error
}

type questionRepository struct {
	db *gorm.DB
}

func NewQuestionRepository(db *gorm.DB) QuestionRepository {
	return &questionRepository{db: db}
}

func (r *questionRepository) Create(tx *gorm.DB, q *model.Question) error {
	return tx.Create(q).Error
}

func (r *questionRepository) FindByID(id uint) (*model.Question, error) {
	var q model.Question
	if err := r.db.First(&q, id).Error; err != nil {
		return nil, err
	}
	return &q, nil
}

func (r *questionRepository) FindByIDWithOptions(id uint) (*model.Question, error) {
	var q model.Question
	err := r.db.Preload("Options", func(db *gorm.DB) *gorm.DB {
		return db.Order("answer_options.sort_index ASC")
	}).First(&q, id).Error
	if err != nil {
		return nil, err
	}
	return &q, nil
}

func (r *questionRepository) FindByScreenID(screenID uint) ([]model.Question, error) {
	var questions []model.Question
	err := r.db.Where("screen_id = ?", screenID).
		Order("position ASC").Find(&questions).Error
	return questions, err
}

func (r *questionRepository) FindByQuestionnaireID(questionnaireID uint) ([]model.Question, error) {
	var questions []model.Question
	err := r.db.
		Joins("JOIN screens ON screens.id = questions.screen_id AND screens.deleted_at IS NULL").
		Where("screens.questionnaire_id = ?", questionnaireID).
		Preload("Options", func(db *gorm.DB) *gorm.DB {
			return db.Order("answer_options.sort_index ASC")
		}).
		Order("questions.screen_id ASC, questions.position ASC").
		Find(&questions).Error
	return questions, err
}


func (r *questionRepository) Update(tx *gorm.DB, q *model.Question) error {
	return tx.Save(q).Error
}

func (r *questionRepository) Delete(tx *gorm.DB, id uint) error {
	return tx.Select(clause.Associations).Delete(&model.Question{ID: id}).Error
}

func (r *questionRepository) DeleteCascade(tx *gorm.DB, ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	err := tx.Model(&model.Question{}).
		Where("parent_question_id IN ? AND id NOT IN ?", ids, ids).
		UpdateColumns(map[string]interface{}{
			"parent_question_id": nil,
			"visible_if_value":   nil,
			"version":            gorm.Expr("version + 1"),
		}).Error
	if err != nil {
		return err
	}
	if err := tx.Unscoped().Where("question_id IN ?", ids).Delete(&model.AnswerOption{}).Error; err != nil {
		return err
	}
	if err := tx.Where("question_id IN ?", ids).Delete(&model.PlaceholderBinding{}).Error; err != nil {
		return err
	}
	return tx.Where("id IN ?", ids).Delete(&model.Question{}).Error
}

func (r *questionRepository) ClearParentLinks(tx *gorm.DB, parentID uint) error {
	return tx.Model(&model.Question{}).
		Where("parent_question_id = ?", parentID).
		UpdateColumns(map[string]interface{}{
			"parent_question_id": nil,
			"visible_if_value":   nil,
			"version":            gorm.Expr("version + 1"),
		}).Error
}

func (r *questionRepository) ReorderSiblings(tx *gorm.DB, screenID uint, orderedIDs []uint) error {
	for i, id := range orderedIDs {
		// rows already in place keep their version so their ETags stay
		// stable across unrelated sibling mutations
		err := tx.Model(&model.Question{}).
			Where("id = ? AND (position <> ? OR screen_id <> ?)", id, i+1, screenID).
			UpdateColumns(map[string]interface{}{
				"screen_id": screenID,
				"position":  i + 1,
				"version":   gorm.Expr("version + 1"),
			}).Error
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *questionRepository) ReplaceOptions(tx *gorm.DB, questionID uint, options []model.AnswerOption) error {
	if err := tx.Unscoped().Where("question_id = ?", questionID).Delete(&model.AnswerOption{}).Error; err != nil {
		return err
	}
	for i := range options {
		options[i].QuestionID = questionID
		options[i].SortIndex = i + 1
	}
	if len(options) == 0 {
		return nil
	}
	return tx.Create(&options).Error
}

func (r *questionRepository) BumpVersion(tx *gorm.DB, id uint) error {
	return tx.Model(&model.Question{}).Where("id = ?", id).
		UpdateColumn("version", gorm.Expr("version + 1")).Error
}
