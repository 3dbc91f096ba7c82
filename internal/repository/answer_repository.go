package repository

import (
	"errors"

	"github.com/aldertree/questline/internal/model"
	"gorm.io/gorm"
)

// AnswerRepository is the typed answer store adapter. Uniqueness of
// (response_set_id, question_id) is guarded by the unique index and by the
// response-set row lock held by every caller. Reads take an explicit db
// handle so callers holding the row lock see the locked state, not a
// snapshot from another connection.
type AnswerRepository interface {
	FindByResponseSet(db *gorm.DB, responseSetID uint, questionIDs []uint) (map[uint]model.Answer, error)
	Find(db *gorm.DB, responseSetID, questionID uint) (*model.Answer, error)
	Upsert(tx *gorm.DB, a *model.Answer) error
	// Clear deletes the answer if present; reports whether a row was removed.
	Clear(tx *gorm.DB, responseSetID, questionID uint) (bool, error)
	// ClearForQuestions wipes all answers of the given questions across
	// every response set, for question/screen/questionnaire deletion.
	ClearForQuestions(tx *gorm.DB, questionIDs []uint) error
}

type answerRepository struct{}

func NewAnswerRepository() AnswerRepository {
	return &answerRepository{}
}

func (r *answerRepository) FindByResponseSet(db *gorm.DB, responseSetID uint, questionIDs []uint) (map[uint]model.Answer, error) {
	var answers []model.Answer
	query := db.Where("response_set_id = ?", responseSetID)
	if questionIDs != nil {
		query = query.Where("question_id IN ?", questionIDs)
	}
	if err := query.Find(&answers).Error; err != nil {
		return nil, err
	}
	byQuestion := make(map[uint]model.Answer, len(answers))
	for _, a := range answers {
		byQuestion[a.QuestionID] = a
	}
	return byQuestion, nil
}

func (r *answerRepository) Find(db *gorm.DB, responseSetID, questionID uint) (*model.Answer, error) {
	var a model.Answer
	err := db.Where("response_set_id = ? AND question_id = ?", responseSetID, questionID).First(&a).Error
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *answerRepository) Upsert(tx *gorm.DB, a *model.Answer) error {
	var existing model.Answer
	err := tx.Where("response_set_id = ? AND question_id = ?", a.ResponseSetID, a.QuestionID).
		First(&existing).Error
	switch {
	case err == nil:
		a.ID = existing.ID
		a.Version = existing.Version + 1
		a.CreatedAt = existing.CreatedAt
		return tx.Save(a).Error
	case errors.Is(err, gorm.ErrRecordNotFound):
		a.Version = 1
		return tx.Create(a).Error
	default:
		return err
	}
}

func (r *answerRepository) Clear(tx *gorm.DB, responseSetID, questionID uint) (bool, error) {
	res := tx.Where("response_set_id = ? AND question_id = ?", responseSetID, questionID).
		Delete(&model.Answer{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *answerRepository) ClearForQuestions(tx *gorm.DB, questionIDs []uint) error {
	if len(questionIDs) == 0 {
		return nil
	}
	return tx.Where("question_id IN ?", questionIDs).Delete(&model.Answer{}).Error
}
