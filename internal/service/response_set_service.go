package service

import (
	"errors"

	"github.com/aldertree/questline/internal/apperr"
	"github.com/aldertree/questline/internal/dto"
	"github.com/aldertree/questline/internal/etag"
	"github.com/aldertree/questline/internal/model"
	"github.com/aldertree/questline/internal/repository"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

type ResponseSetService interface {
	CreateResponseSet(req dto.ResponseSetCreateDTO) (*dto.ResponseSetResponseDTO, error)
	GetResponseSet(id uint) (*dto.ResponseSetResponseDTO, error)
	DeleteResponseSet(id uint, ifMatch string) error
	// GetScreenView projects a screen for a response set: visible questions
	// only, each with its stored answer, under a composite ETag.
	GetScreenView(responseSetID, screenID uint) (*dto.ScreenViewDTO, error)
}

type responseSetService struct {
	questionnaireRepo repository.QuestionnaireRepository
	responseSetRepo   repository.ResponseSetRepository
	screenRepo        repository.ScreenRepository
	questionRepo      repository.QuestionRepository
	answerRepo        repository.AnswerRepository
	db                *gorm.DB
}

func NewResponseSetService(
	questionnaireRepo repository.QuestionnaireRepository,
	responseSetRepo repository.ResponseSetRepository,
	screenRepo repository.ScreenRepository,
	questionRepo repository.QuestionRepository,
	answerRepo repository.AnswerRepository,
	db *gorm.DB,
) ResponseSetService {
	return &responseSetService{
		questionnaireRepo: questionnaireRepo,
		responseSetRepo:   responseSetRepo,
		screenRepo:        screenRepo,
		questionRepo:      questionRepo,
		answerRepo:        answerRepo,
		db:                db,
	}
}

func (s *responseSetService) CreateResponseSet(req dto.ResponseSetCreateDTO) (*dto.ResponseSetResponseDTO, error) {
	if _, err := s.questionnaireRepo.FindByID(req.QuestionnaireID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound(apperr.CodeQuestionnaireNotFound, "questionnaire not found")
		}
		return nil, apperr.Runtime(apperr.CodeStorageFailure, err)
	}

	rs := model.ResponseSet{
		Token:           uuid.NewString(),
		QuestionnaireID: req.QuestionnaireID,
		CompanyID:       req.CompanyID,
		Version:         1,
	}
	if err := s.responseSetRepo.Create(&rs); err != nil {
		log.Error().Err(err).Msg("CreateResponseSet: database error")
		return nil, apperr.Runtime(apperr.CodeStorageFailure, err)
	}
	return s.toResponse(&rs), nil
}

func (s *responseSetService) GetResponseSet(id uint) (*dto.ResponseSetResponseDTO, error) {
	rs, err := s.find(id)
	if err != nil {
		return nil, err
	}
	return s.toResponse(rs), nil
}

func (s *responseSetService) DeleteResponseSet(id uint, ifMatch string) error {
	rs, err := s.find(id)
	if err != nil {
		return err
	}
	if err := etag.CheckIfMatch(ifMatch, responseSetEtag(rs), etag.MismatchStatusStructural); err != nil {
		return err
	}
	err = s.db.Transaction(func(tx *gorm.DB) error {
		return s.responseSetRepo.Delete(tx, id)
	})
	if err != nil {
		return apperr.Runtime(apperr.CodeStorageFailure, err)
	}
	return nil
}

func (s *responseSetService) GetScreenView(responseSetID, screenID uint) (*dto.ScreenViewDTO, error) {
	rs, err := s.find(responseSetID)
	if err != nil {
		return nil, err
	}
	screen, err := s.screenRepo.FindByID(screenID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound(apperr.CodeScreenNotFound, "screen not found")
		}
		return nil, apperr.Runtime(apperr.CodeStorageFailure, err)
	}
	if screen.QuestionnaireID != rs.QuestionnaireID {
		return nil, apperr.NotFound(apperr.CodeScreenNotFound, "screen does not belong to this response set's questionnaire")
	}

	questions, err := s.questionRepo.FindByQuestionnaireID(rs.QuestionnaireID)
	if err != nil {
		return nil, apperr.Runtime(apperr.CodeStorageFailure, err)
	}
	answers, err := s.answerRepo.FindByResponseSet(s.db, responseSetID, nil)
	if err != nil {
		return nil, apperr.Runtime(apperr.CodeStorageFailure, err)
	}

	view := buildScreenView(screen, questions, answers, rs)
	return &view, nil
}

func (s *responseSetService) find(id uint) (*model.ResponseSet, error) {
	rs, err := s.responseSetRepo.FindByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound(apperr.CodeResponseSetNotFound, "response set not found")
		}
		return nil, apperr.Runtime(apperr.CodeStorageFailure, err)
	}
	return rs, nil
}

func (s *responseSetService) toResponse(rs *model.ResponseSet) *dto.ResponseSetResponseDTO {
	return &dto.ResponseSetResponseDTO{
		ID:              rs.ID,
		Token:           rs.Token,
		QuestionnaireID: rs.QuestionnaireID,
		CompanyID:       rs.CompanyID,
		Etag:            responseSetEtag(rs),
		CreatedAt:       rs.CreatedAt,
	}
}
