package service

import (
	"errors"

	"github.com/aldertree/questline/internal/apperr"
	"github.com/aldertree/questline/internal/dto"
	"github.com/aldertree/questline/internal/etag"
	"github.com/aldertree/questline/internal/model"
	"github.com/aldertree/questline/internal/repository"
	"github.com/jinzhu/copier"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

type QuestionnaireService interface {
	CreateQuestionnaire(req dto.QuestionnaireCreateDTO) (*dto.QuestionnaireResponseDTO, error)
	GetQuestionnaire(id uint) (*dto.QuestionnaireResponseDTO, error)
	ListQuestionnaires() ([]dto.QuestionnaireSummaryDTO, error)
	DeleteQuestionnaire(id uint, ifMatch string) error
}

type questionnaireService struct {
	questionnaireRepo repository.QuestionnaireRepository
	questionRepo      repository.QuestionRepository
	answerRepo        repository.AnswerRepository
	db                *gorm.DB
}

func NewQuestionnaireService(
	questionnaireRepo repository.QuestionnaireRepository,
	questionRepo repository.QuestionRepository,
	answerRepo repository.AnswerRepository,
	db *gorm.DB,
) QuestionnaireService {
	return &questionnaireService{
		questionnaireRepo: questionnaireRepo,
		questionRepo:      questionRepo,
		answerRepo:        answerRepo,
		db:                db,
	}
}

func (s *questionnaireService) CreateQuestionnaire(req dto.QuestionnaireCreateDTO) (*dto.QuestionnaireResponseDTO, error) {
	if _, err := s.questionnaireRepo.FindByName(req.Name); err == nil {
		return nil, apperr.Conflict(apperr.CodeQuestionnaireNameDuplicate, "a questionnaire with this name already exists")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.Runtime(apperr.CodeStorageFailure, err)
	}

	q := model.Questionnaire{Name: req.Name, Version: 1}
	if err := s.questionnaireRepo.Create(&q); err != nil {
		log.Error().Err(err).Msg("CreateQuestionnaire: database error")
		return nil, apperr.Runtime(apperr.CodeStorageFailure, err)
	}
	return s.toResponse(&q), nil
}

func (s *questionnaireService) GetQuestionnaire(id uint) (*dto.QuestionnaireResponseDTO, error) {
	q, err := s.questionnaireRepo.FindByIDWithScreens(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound(apperr.CodeQuestionnaireNotFound, "questionnaire not found")
		}
		return nil, apperr.Runtime(apperr.CodeStorageFailure, err)
	}
	return s.toResponse(q), nil
}

func (s *questionnaireService) ListQuestionnaires() ([]dto.QuestionnaireSummaryDTO, error) {
	rows, err := s.questionnaireRepo.FindAllWithScreenCount()
	if err != nil {
		return nil, apperr.Runtime(apperr.CodeStorageFailure, err)
	}
	summaries := make([]dto.QuestionnaireSummaryDTO, 0, len(rows))
	for _, row := range rows {
		var summary dto.QuestionnaireSummaryDTO
		copier.Copy(&summary, &row.Questionnaire)
		summary.ScreenCount = row.ScreenCount
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

func (s *questionnaireService) DeleteQuestionnaire(id uint, ifMatch string) error {
	q, err := s.questionnaireRepo.FindByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFound(apperr.CodeQuestionnaireNotFound, "questionnaire not found")
		}
		return apperr.Runtime(apperr.CodeStorageFailure, err)
	}
	if err := etag.CheckIfMatch(ifMatch, questionnaireEtag(q), etag.MismatchStatusStructural); err != nil {
		return err
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		return s.deleteQuestionnaireInTx(tx, id, ifMatch)
	})
	if err != nil {
		if _, ok := apperr.As(err); ok {
			return err
		}
		log.Error().Err(err).Uint("questionnaireID", id).Msg("DeleteQuestionnaire: delete failed")
		return apperr.Runtime(apperr.CodeStorageFailure, err)
	}
	return nil
}

// deleteQuestionnaireInTx locks the questionnaire row, repeats the If-Match
// check against the locked state, then cascades: every question's answers,
// options and bindings go first, the screens follow with the questionnaire
// itself via its associations.
func (s *questionnaireService) deleteQuestionnaireInTx(tx *gorm.DB, id uint, ifMatch string) error {
	q, err := s.questionnaireRepo.LockForUpdate(tx, id)
	if err != nil {
		return apperr.Runtime(apperr.CodeStorageFailure, err)
	}
	if err := etag.CheckIfMatch(ifMatch, questionnaireEtag(q), etag.MismatchStatusStructural); err != nil {
		return err
	}

	questions, err := s.questionRepo.FindByQuestionnaireID(id)
	if err != nil {
		return apperr.Runtime(apperr.CodeStorageFailure, err)
	}
	questionIDs := idsOf(questions, func(qn model.Question) uint { return qn.ID })
	if err := s.answerRepo.ClearForQuestions(tx, questionIDs); err != nil {
		return apperr.Runtime(apperr.CodeStorageFailure, err)
	}
	if err := s.questionRepo.DeleteCascade(tx, questionIDs); err != nil {
		return apperr.Runtime(apperr.CodeStorageFailure, err)
	}
	return s.questionnaireRepo.Delete(tx, id)
}

func (s *questionnaireService) toResponse(q *model.Questionnaire) *dto.QuestionnaireResponseDTO {
	resp := dto.QuestionnaireResponseDTO{
		ID:        q.ID,
		Name:      q.Name,
		Etag:      questionnaireEtag(q),
		CreatedAt: q.CreatedAt,
	}
	for i := range q.Screens {
		sc := &q.Screens[i]
		resp.Screens = append(resp.Screens, dto.ScreenResponseDTO{
			ID:              sc.ID,
			QuestionnaireID: sc.QuestionnaireID,
			Key:             sc.Key,
			Title:           sc.Title,
			Position:        sc.Position,
			Etag:            screenEtag(sc),
		})
	}
	return &resp
}
