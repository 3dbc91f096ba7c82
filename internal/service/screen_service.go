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

type ScreenService interface {
	CreateScreen(questionnaireID uint, req dto.ScreenCreateDTO) (*dto.ScreenResponseDTO, error)
	GetScreen(id uint) (*dto.ScreenResponseDTO, error)
	PatchScreen(id uint, ifMatch string, req dto.ScreenPatchDTO) (*dto.ScreenResponseDTO, error)
	MoveScreen(id uint, ifMatch string, req dto.ScreenMoveDTO) (*dto.ScreenResponseDTO, error)
	DeleteScreen(id uint, ifMatch string) error
}

type screenService struct {
	questionnaireRepo repository.QuestionnaireRepository
	screenRepo        repository.ScreenRepository
	questionRepo      repository.QuestionRepository
	answerRepo        repository.AnswerRepository
	db                *gorm.DB
}

func NewScreenService(
	questionnaireRepo repository.QuestionnaireRepository,
	screenRepo repository.ScreenRepository,
	questionRepo repository.QuestionRepository,
	answerRepo repository.AnswerRepository,
	db *gorm.DB,
) ScreenService {
	return &screenService{
		questionnaireRepo: questionnaireRepo,
		screenRepo:        screenRepo,
		questionRepo:      questionRepo,
		answerRepo:        answerRepo,
		db:                db,
	}
}

func (s *screenService) CreateScreen(questionnaireID uint, req dto.ScreenCreateDTO) (*dto.ScreenResponseDTO, error) {
	if _, err := s.questionnaireRepo.FindByID(questionnaireID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound(apperr.CodeQuestionnaireNotFound, "questionnaire not found")
		}
		return nil, apperr.Runtime(apperr.CodeStorageFailure, err)
	}

	screen := model.Screen{
		QuestionnaireID: questionnaireID,
		Key:             req.Key,
		Title:           req.Title,
		Version:         1,
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if _, err := s.questionnaireRepo.LockForUpdate(tx, questionnaireID); err != nil {
			return apperr.Runtime(apperr.CodeStorageFailure, err)
		}
		siblings, err := s.screenRepo.FindByQuestionnaireID(questionnaireID)
		if err != nil {
			return apperr.Runtime(apperr.CodeStorageFailure, err)
		}
		for _, sib := range siblings {
			if sib.Key == req.Key {
				return apperr.Conflict(apperr.CodeScreenKeyDuplicate, "a screen with this key already exists in the questionnaire")
			}
			if sib.Title == req.Title {
				return apperr.Conflict(apperr.CodeScreenTitleDuplicate, "a screen with this title already exists in the questionnaire")
			}
		}

		pos, err := resolveInsertPosition(len(siblings), req.Position, apperr.CodeScreenPositionOutOfRange)
		if err != nil {
			return err
		}

		screen.Position = pos
		if err := s.screenRepo.Create(tx, &screen); err != nil {
			return apperr.Runtime(apperr.CodeStorageFailure, err)
		}
		ordered := insertAt(idsOf(siblings, func(sc model.Screen) uint { return sc.ID }), screen.ID, pos)
		if err := s.screenRepo.ReorderSiblings(tx, questionnaireID, ordered); err != nil {
			return apperr.Runtime(apperr.CodeReorderFailed, err)
		}
		return s.questionnaireRepo.BumpVersion(tx, questionnaireID)
	})
	if err != nil {
		return nil, err
	}

	created, err := s.screenRepo.FindByID(screen.ID)
	if err != nil {
		return nil, apperr.Runtime(apperr.CodeStorageFailure, err)
	}
	return s.toResponse(created, nil), nil
}

func (s *screenService) GetScreen(id uint) (*dto.ScreenResponseDTO, error) {
	screen, err := s.screenRepo.FindByIDWithQuestions(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound(apperr.CodeScreenNotFound, "screen not found")
		}
		return nil, apperr.Runtime(apperr.CodeStorageFailure, err)
	}
	return s.toResponse(screen, screen.Questions), nil
}

func (s *screenService) PatchScreen(id uint, ifMatch string, req dto.ScreenPatchDTO) (*dto.ScreenResponseDTO, error) {
	screen, err := s.screenRepo.FindByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound(apperr.CodeScreenNotFound, "screen not found")
		}
		return nil, apperr.Runtime(apperr.CodeStorageFailure, err)
	}
	if err := etag.CheckIfMatch(ifMatch, screenEtag(screen), etag.MismatchStatusStructural); err != nil {
		return nil, err
	}

	var updated *model.Screen
	err = s.db.Transaction(func(tx *gorm.DB) error {
		sc, err := s.patchScreenInTx(tx, id, screen.QuestionnaireID, ifMatch, req)
		updated = sc
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.toResponse(updated, nil), nil
}

// patchScreenInTx repeats the If-Match and duplicate scans under the
// questionnaire lock; without it two concurrent patches can both pass the
// unlocked checks and commit a duplicate key or title.
func (s *screenService) patchScreenInTx(tx *gorm.DB, id, questionnaireID uint, ifMatch string, req dto.ScreenPatchDTO) (*model.Screen, error) {
	if _, err := s.questionnaireRepo.LockForUpdate(tx, questionnaireID); err != nil {
		return nil, apperr.Runtime(apperr.CodeStorageFailure, err)
	}
	screen, err := s.findScreen(id)
	if err != nil {
		return nil, err
	}
	if err := etag.CheckIfMatch(ifMatch, screenEtag(screen), etag.MismatchStatusStructural); err != nil {
		return nil, err
	}

	siblings, err := s.screenRepo.FindByQuestionnaireID(questionnaireID)
	if err != nil {
		return nil, apperr.Runtime(apperr.CodeStorageFailure, err)
	}
	for _, sib := range siblings {
		if sib.ID == screen.ID {
			continue
		}
		if req.Key != nil && sib.Key == *req.Key {
			return nil, apperr.Conflict(apperr.CodeScreenKeyDuplicate, "a screen with this key already exists in the questionnaire")
		}
		if req.Title != nil && sib.Title == *req.Title {
			return nil, apperr.Conflict(apperr.CodeScreenTitleDuplicate, "a screen with this title already exists in the questionnaire")
		}
	}

	if req.Key != nil {
		screen.Key = *req.Key
	}
	if req.Title != nil {
		screen.Title = *req.Title
	}
	screen.Version++
	if err := s.screenRepo.Update(tx, screen); err != nil {
		return nil, apperr.Runtime(apperr.CodeStorageFailure, err)
	}
	if err := s.questionnaireRepo.BumpVersion(tx, questionnaireID); err != nil {
		return nil, apperr.Runtime(apperr.CodeStorageFailure, err)
	}
	return screen, nil
}

func (s *screenService) MoveScreen(id uint, ifMatch string, req dto.ScreenMoveDTO) (*dto.ScreenResponseDTO, error) {
	screen, err := s.screenRepo.FindByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound(apperr.CodeScreenNotFound, "screen not found")
		}
		return nil, apperr.Runtime(apperr.CodeStorageFailure, err)
	}
	if err := etag.CheckIfMatch(ifMatch, screenEtag(screen), etag.MismatchStatusStructural); err != nil {
		return nil, err
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		return s.moveScreenInTx(tx, id, screen.QuestionnaireID, ifMatch, req)
	})
	if err != nil {
		return nil, err
	}

	moved, err := s.screenRepo.FindByID(id)
	if err != nil {
		return nil, apperr.Runtime(apperr.CodeStorageFailure, err)
	}
	return s.toResponse(moved, nil), nil
}

func (s *screenService) moveScreenInTx(tx *gorm.DB, id, questionnaireID uint, ifMatch string, req dto.ScreenMoveDTO) error {
	if _, err := s.questionnaireRepo.LockForUpdate(tx, questionnaireID); err != nil {
		return apperr.Runtime(apperr.CodeStorageFailure, err)
	}
	// the client token must match the row state under the lock, not the
	// pre-transaction read
	screen, err := s.findScreen(id)
	if err != nil {
		return err
	}
	if err := etag.CheckIfMatch(ifMatch, screenEtag(screen), etag.MismatchStatusStructural); err != nil {
		return err
	}

	siblings, err := s.screenRepo.FindByQuestionnaireID(questionnaireID)
	if err != nil {
		return apperr.Runtime(apperr.CodeStorageFailure, err)
	}
	ordered, err := moveTo(
		idsOf(siblings, func(sc model.Screen) uint { return sc.ID }),
		screen.ID, req.Position, apperr.CodeScreenPositionOutOfRange,
	)
	if err != nil {
		return err
	}
	if err := s.screenRepo.ReorderSiblings(tx, questionnaireID, ordered); err != nil {
		return apperr.Runtime(apperr.CodeReorderFailed, err)
	}
	// a position-confirming move still rotates the screen's ETag
	if err := s.screenRepo.BumpVersion(tx, screen.ID); err != nil {
		return apperr.Runtime(apperr.CodeStorageFailure, err)
	}
	return s.questionnaireRepo.BumpVersion(tx, questionnaireID)
}

func (s *screenService) DeleteScreen(id uint, ifMatch string) error {
	screen, err := s.screenRepo.FindByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFound(apperr.CodeScreenNotFound, "screen not found")
		}
		return apperr.Runtime(apperr.CodeStorageFailure, err)
	}
	if err := etag.CheckIfMatch(ifMatch, screenEtag(screen), etag.MismatchStatusStructural); err != nil {
		return err
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		return s.deleteScreenInTx(tx, id, screen.QuestionnaireID, ifMatch)
	})
	if err != nil {
		log.Error().Err(err).Uint("screenID", id).Msg("DeleteScreen: transaction failed")
		return err
	}
	return nil
}

// deleteScreenInTx removes the screen and everything under it: the screen's
// questions go through the cascade so their answers, options and bindings
// do not survive as live rows.
func (s *screenService) deleteScreenInTx(tx *gorm.DB, id, questionnaireID uint, ifMatch string) error {
	if _, err := s.questionnaireRepo.LockForUpdate(tx, questionnaireID); err != nil {
		return apperr.Runtime(apperr.CodeStorageFailure, err)
	}
	screen, err := s.findScreen(id)
	if err != nil {
		return err
	}
	if err := etag.CheckIfMatch(ifMatch, screenEtag(screen), etag.MismatchStatusStructural); err != nil {
		return err
	}

	siblings, err := s.screenRepo.FindByQuestionnaireID(questionnaireID)
	if err != nil {
		return apperr.Runtime(apperr.CodeStorageFailure, err)
	}
	questions, err := s.questionRepo.FindByScreenID(id)
	if err != nil {
		return apperr.Runtime(apperr.CodeStorageFailure, err)
	}
	questionIDs := idsOf(questions, func(q model.Question) uint { return q.ID })
	if err := s.answerRepo.ClearForQuestions(tx, questionIDs); err != nil {
		return apperr.Runtime(apperr.CodeStorageFailure, err)
	}
	if err := s.questionRepo.DeleteCascade(tx, questionIDs); err != nil {
		return apperr.Runtime(apperr.CodeStorageFailure, err)
	}
	if err := s.screenRepo.Delete(tx, id); err != nil {
		return apperr.Runtime(apperr.CodeStorageFailure, err)
	}
	remaining := removeID(idsOf(siblings, func(sc model.Screen) uint { return sc.ID }), id)
	if err := s.screenRepo.ReorderSiblings(tx, questionnaireID, remaining); err != nil {
		return apperr.Runtime(apperr.CodeReorderFailed, err)
	}
	return s.questionnaireRepo.BumpVersion(tx, questionnaireID)
}

func (s *screenService) findScreen(id uint) (*model.Screen, error) {
	screen, err := s.screenRepo.FindByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound(apperr.CodeScreenNotFound, "screen not found")
		}
		return nil, apperr.Runtime(apperr.CodeStorageFailure, err)
	}
	return screen, nil
}

func (s *screenService) toResponse(screen *model.Screen, questions []model.Question) *dto.ScreenResponseDTO {
	resp := dto.ScreenResponseDTO{
		ID:              screen.ID,
		QuestionnaireID: screen.QuestionnaireID,
		Key:             screen.Key,
		Title:           screen.Title,
		Position:        screen.Position,
		Etag:            screenEtag(screen),
	}
	for i := range questions {
		resp.Questions = append(resp.Questions, questionToDTO(&questions[i]))
	}
	return &resp
}

func questionToDTO(q *model.Question) dto.QuestionResponseDTO {
	out := dto.QuestionResponseDTO{
		ID:               q.ID,
		ScreenID:         q.ScreenID,
		Text:             q.Text,
		AnswerKind:       q.AnswerKind,
		Mandatory:        q.Mandatory,
		Position:         q.Position,
		ParentQuestionID: q.ParentQuestionID,
		VisibleIfValue:   q.VisibleIfValue,
		Etag:             questionEtag(q),
	}
	for _, opt := range q.Options {
		out.Options = append(out.Options, dto.OptionDTO{
			ID:        opt.ID,
			Value:     opt.Value,
			Label:     opt.Label,
			SortIndex: opt.SortIndex,
		})
	}
	return out
}
