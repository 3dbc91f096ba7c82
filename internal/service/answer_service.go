package service

import (
	"errors"

	"github.com/aldertree/questline/internal/apperr"
	"github.com/aldertree/questline/internal/dto"
	"github.com/aldertree/questline/internal/etag"
	"github.com/aldertree/questline/internal/model"
	"github.com/aldertree/questline/internal/repository"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// AnswerService coordinates a single answer mutation end-to-end:
// precondition check, domain validation, transactional apply, visibility
// recompute, ETag rotation, response assembly. Idempotency replay happens
// upstream in the idempotency middleware before the request reaches here.
type AnswerService interface {
	SaveAnswer(responseSetID, questionID uint, ifMatch string, req dto.AnswerUpsertDTO) (*dto.AnswerSaveResponseDTO, error)
	DeleteAnswer(responseSetID, questionID uint, ifMatch string) (*dto.AnswerSaveResponseDTO, error)
	BatchUpsert(responseSetID uint, req dto.BatchUpsertDTO) (*dto.BatchUpsertResponseDTO, error)
}

type answerService struct {
	responseSetRepo repository.ResponseSetRepository
	screenRepo      repository.ScreenRepository
	questionRepo    repository.QuestionRepository
	answerRepo      repository.AnswerRepository
	db              *gorm.DB
}

func NewAnswerService(
	responseSetRepo repository.ResponseSetRepository,
	screenRepo repository.ScreenRepository,
	questionRepo repository.QuestionRepository,
	answerRepo repository.AnswerRepository,
	db *gorm.DB,
) AnswerService {
	return &answerService{
		responseSetRepo: responseSetRepo,
		screenRepo:      screenRepo,
		questionRepo:    questionRepo,
		answerRepo:      answerRepo,
		db:              db,
	}
}

func (s *answerService) SaveAnswer(responseSetID, questionID uint, ifMatch string, req dto.AnswerUpsertDTO) (*dto.AnswerSaveResponseDTO, error) {
	rs, question, questions, err := s.loadMutationScope(responseSetID, questionID)
	if err != nil {
		return nil, err
	}
	if err := etag.CheckIfMatch(ifMatch, responseSetEtag(rs), etag.MismatchStatusAnswers); err != nil {
		return nil, err
	}

	answer, err := buildTypedAnswer(question, req)
	if err != nil {
		return nil, err
	}
	answer.ResponseSetID = responseSetID

	return s.apply(rs.ID, question.ScreenID, questions, ifMatch, func(tx *gorm.DB) (bool, error) {
		return true, s.answerRepo.Upsert(tx, answer)
	}, true)
}

func (s *answerService) DeleteAnswer(responseSetID, questionID uint, ifMatch string) (*dto.AnswerSaveResponseDTO, error) {
	rs, question, questions, err := s.loadMutationScope(responseSetID, questionID)
	if err != nil {
		return nil, err
	}
	if err := etag.CheckIfMatch(ifMatch, responseSetEtag(rs), etag.MismatchStatusAnswers); err != nil {
		return nil, err
	}

	// clearing an absent answer is a no-op that still reports current state
	if _, err := s.answerRepo.Find(s.db, responseSetID, questionID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return s.currentState(rs, question.ScreenID, questions)
		}
		return nil, apperr.Runtime(apperr.CodeStorageFailure, err)
	}

	return s.apply(rs.ID, question.ScreenID, questions, ifMatch, func(tx *gorm.DB) (bool, error) {
		return s.answerRepo.Clear(tx, responseSetID, questionID)
	}, false)
}

// apply runs the transactional core shared by save and delete around
// applyInTx; domain failures pass through, everything else rolls back as a
// runtime problem.
func (s *answerService) apply(
	responseSetID uint,
	screenID uint,
	questions []model.Question,
	ifMatch string,
	mutate func(tx *gorm.DB) (bool, error),
	saved bool,
) (*dto.AnswerSaveResponseDTO, error) {
	var resp *dto.AnswerSaveResponseDTO

	err := s.db.Transaction(func(tx *gorm.DB) error {
		r, err := s.applyInTx(tx, responseSetID, screenID, questions, ifMatch, mutate, saved)
		resp = r
		return err
	})
	if err != nil {
		if _, ok := apperr.As(err); ok {
			return nil, err
		}
		log.Error().Err(err).Uint("responseSetID", responseSetID).Msg("Answer mutation: transaction rolled back")
		return nil, apperr.Runtime(apperr.CodeSaveAnswerFailed, err)
	}
	return resp, nil
}

// applyInTx locks the response set, snapshots answers, mutates, recomputes
// visibility and rotates the aggregate token. The client token is checked
// again against the locked row: a writer that committed between the
// pre-transaction read and the lock must surface as a conflict, never as a
// silent merge over its write.
func (s *answerService) applyInTx(
	tx *gorm.DB,
	responseSetID uint,
	screenID uint,
	questions []model.Question,
	ifMatch string,
	mutate func(tx *gorm.DB) (bool, error),
	saved bool,
) (*dto.AnswerSaveResponseDTO, error) {
	locked, err := s.responseSetRepo.LockForUpdate(tx, responseSetID)
	if err != nil {
		return nil, apperr.Runtime(apperr.CodeStorageFailure, err)
	}
	if err := etag.CheckIfMatch(ifMatch, responseSetEtag(locked), etag.MismatchStatusAnswers); err != nil {
		return nil, err
	}

	answersBefore, err := s.answerRepo.FindByResponseSet(tx, responseSetID, nil)
	if err != nil {
		return nil, apperr.Runtime(apperr.CodeStorageFailure, err)
	}

	changed, err := mutate(tx)
	if err != nil {
		if _, ok := apperr.As(err); ok {
			return nil, err
		}
		return nil, apperr.Runtime(apperr.CodeSaveAnswerFailed, err)
	}

	rsAfter := *locked
	if changed {
		if err := s.responseSetRepo.BumpVersion(tx, responseSetID); err != nil {
			return nil, apperr.Runtime(apperr.CodeStorageFailure, err)
		}
		rsAfter.Version++
	}

	answersAfter, err := s.answerRepo.FindByResponseSet(tx, responseSetID, nil)
	if err != nil {
		return nil, apperr.Runtime(apperr.CodeStorageFailure, err)
	}

	nowVisible, nowHidden := visibilityDelta(questions, answersBefore, answersAfter)
	suppressed := suppressedAnswers(nowHidden, answersAfter)

	screen, err := s.screenRepo.FindByID(screenID)
	if err != nil {
		return nil, apperr.Runtime(apperr.CodeStorageFailure, err)
	}

	return &dto.AnswerSaveResponseDTO{
		Saved:             saved,
		Etag:              responseSetEtag(&rsAfter),
		ScreenView:        buildScreenView(screen, questions, answersAfter, &rsAfter),
		VisibilityDelta:   dto.VisibilityDeltaDTO{NowVisible: nowVisible, NowHidden: nowHidden},
		SuppressedAnswers: suppressed,
	}, nil
}

// currentState assembles the unchanged response for no-op mutations.
func (s *answerService) currentState(rs *model.ResponseSet, screenID uint, questions []model.Question) (*dto.AnswerSaveResponseDTO, error) {
	answers, err := s.answerRepo.FindByResponseSet(s.db, rs.ID, nil)
	if err != nil {
		return nil, apperr.Runtime(apperr.CodeStorageFailure, err)
	}
	screen, err := s.screenRepo.FindByID(screenID)
	if err != nil {
		return nil, apperr.Runtime(apperr.CodeStorageFailure, err)
	}
	return &dto.AnswerSaveResponseDTO{
		Saved:             false,
		Etag:              responseSetEtag(rs),
		ScreenView:        buildScreenView(screen, questions, answers, rs),
		VisibilityDelta:   dto.VisibilityDeltaDTO{NowVisible: []uint{}, NowHidden: []uint{}},
		SuppressedAnswers: []uint{},
	}, nil
}

func (s *answerService) BatchUpsert(responseSetID uint, req dto.BatchUpsertDTO) (*dto.BatchUpsertResponseDTO, error) {
	rs, err := s.findResponseSet(responseSetID)
	if err != nil {
		return nil, err
	}
	questions, err := s.questionRepo.FindByQuestionnaireID(rs.QuestionnaireID)
	if err != nil {
		return nil, apperr.Runtime(apperr.CodeStorageFailure, err)
	}
	byID := make(map[uint]*model.Question, len(questions))
	for i := range questions {
		byID[questions[i].ID] = &questions[i]
	}

	results := make([]dto.BatchItemResultDTO, 0, len(req.Items))
	for _, item := range req.Items {
		results = append(results, s.applyBatchItem(rs, byID[item.QuestionID], item))
	}

	fresh, err := s.findResponseSet(responseSetID)
	if err != nil {
		return nil, err
	}
	return &dto.BatchUpsertResponseDTO{Items: results, Etag: responseSetEtag(fresh)}, nil
}

// applyBatchItem runs one batch item in its own transaction so a failing
// item cannot poison its neighbors; outcomes come back in input order.
func (s *answerService) applyBatchItem(rs *model.ResponseSet, question *model.Question, item dto.BatchItemDTO) dto.BatchItemResultDTO {
	fail := func(p *apperr.Problem) dto.BatchItemResultDTO {
		return dto.BatchItemResultDTO{
			QuestionID: item.QuestionID,
			Outcome:    dto.BatchOutcomeError,
			Problem:    &dto.ProblemResponse{Code: p.Code, Title: p.Title, Detail: p.Detail},
		}
	}

	if question == nil {
		return fail(apperr.NotFound(apperr.CodeQuestionNotFound, "question not in this questionnaire"))
	}

	answer, err := buildTypedAnswer(question, dto.AnswerUpsertDTO{Value: item.Value, OptionID: item.OptionID})
	if err != nil {
		p, _ := apperr.As(err)
		return fail(p)
	}
	answer.ResponseSetID = rs.ID

	err = s.db.Transaction(func(tx *gorm.DB) error {
		return s.batchItemInTx(tx, rs.ID, item.Etag, answer)
	})
	if err != nil {
		if p, ok := apperr.As(err); ok {
			return fail(p)
		}
		return fail(apperr.Runtime(apperr.CodeSaveAnswerFailed, err))
	}

	return dto.BatchItemResultDTO{
		QuestionID: item.QuestionID,
		Outcome:    dto.BatchOutcomeSuccess,
		Etag:       answerEtag(rs.ID, question.ID, answer.Version),
	}
}

// batchItemInTx checks the item's per-answer token against the stored row
// under the response-set lock, then writes. Checking outside the lock would
// let a concurrent writer slip between the read and the upsert.
func (s *answerService) batchItemInTx(tx *gorm.DB, responseSetID uint, itemEtag string, answer *model.Answer) error {
	if _, err := s.responseSetRepo.LockForUpdate(tx, responseSetID); err != nil {
		return apperr.Runtime(apperr.CodeStorageFailure, err)
	}

	currentVersion := 0
	current, err := s.answerRepo.Find(tx, responseSetID, answer.QuestionID)
	if err == nil {
		currentVersion = current.Version
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.Runtime(apperr.CodeStorageFailure, err)
	}
	if !etag.Equal(itemEtag, answerEtag(responseSetID, answer.QuestionID, currentVersion)) {
		return apperr.Conflict(apperr.CodeBatchItemEtagMismatch, "item etag does not match the stored answer")
	}

	if err := s.answerRepo.Upsert(tx, answer); err != nil {
		return apperr.Runtime(apperr.CodeStorageFailure, err)
	}
	return s.responseSetRepo.BumpVersion(tx, responseSetID)
}

// loadMutationScope resolves the response set, the target question with
// its options, and the questionnaire's full question list for visibility
// evaluation.
func (s *answerService) loadMutationScope(responseSetID, questionID uint) (*model.ResponseSet, *model.Question, []model.Question, error) {
	rs, err := s.findResponseSet(responseSetID)
	if err != nil {
		return nil, nil, nil, err
	}
	questions, err := s.questionRepo.FindByQuestionnaireID(rs.QuestionnaireID)
	if err != nil {
		return nil, nil, nil, apperr.Runtime(apperr.CodeStorageFailure, err)
	}
	for i := range questions {
		if questions[i].ID == questionID {
			return rs, &questions[i], questions, nil
		}
	}
	return nil, nil, nil, apperr.NotFound(apperr.CodeQuestionNotFound, "question not found in this questionnaire")
}

func (s *answerService) findResponseSet(id uint) (*model.ResponseSet, error) {
	rs, err := s.responseSetRepo.FindByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound(apperr.CodeResponseSetNotFound, "response set not found")
		}
		return nil, apperr.Runtime(apperr.CodeStorageFailure, err)
	}
	return rs, nil
}

// buildScreenView projects the screen for a response set: only currently
// visible questions appear, hidden ones are entirely absent.
func buildScreenView(screen *model.Screen, questions []model.Question, answers map[uint]model.Answer, rs *model.ResponseSet) dto.ScreenViewDTO {
	visible := visibleSet(questions, answers)

	var screenQuestions []model.Question
	for _, q := range questions {
		if q.ScreenID == screen.ID {
			screenQuestions = append(screenQuestions, q)
		}
	}

	view := dto.ScreenViewDTO{
		ScreenID:  screen.ID,
		Key:       screen.Key,
		Title:     screen.Title,
		Etag:      screenViewEtag(screen, screenQuestions, rs),
		Questions: []dto.VisibleQuestionDTO{},
	}
	for i := range screenQuestions {
		q := &screenQuestions[i]
		if !visible[q.ID] {
			continue
		}
		vq := dto.VisibleQuestionDTO{
			ID:         q.ID,
			Text:       q.Text,
			AnswerKind: q.AnswerKind,
			Mandatory:  q.Mandatory,
			Position:   q.Position,
		}
		for _, opt := range q.Options {
			vq.Options = append(vq.Options, dto.OptionDTO{
				ID:        opt.ID,
				Value:     opt.Value,
				Label:     opt.Label,
				SortIndex: opt.SortIndex,
			})
		}
		if a, ok := answers[q.ID]; ok {
			vq.Answer = &dto.AnswerValueDTO{
				Number:     a.ValueNumber,
				Bool:       a.ValueBool,
				Text:       a.ValueText,
				OptionID:   a.OptionID,
				AnsweredAt: a.AnsweredAt,
			}
		}
		view.Questions = append(view.Questions, vq)
	}
	return view
}
