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

type QuestionService interface {
	CreateQuestion(screenID uint, req dto.QuestionCreateDTO) (*dto.QuestionResponseDTO, error)
	GetQuestion(id uint) (*dto.QuestionResponseDTO, error)
	PatchQuestion(id uint, ifMatch string, req dto.QuestionPatchDTO) (*dto.QuestionResponseDTO, error)
	MoveQuestion(id uint, ifMatch string, req dto.QuestionMoveDTO) (*dto.QuestionResponseDTO, error)
	DeleteQuestion(id uint, ifMatch string) error
	ReplaceOptions(questionID uint, ifMatch string, req dto.OptionsReplaceDTO) (*dto.QuestionResponseDTO, error)
	BindPlaceholder(questionID uint, req dto.BindingCreateDTO) (*dto.BindingResponseDTO, error)
	UnbindPlaceholder(questionID uint, placeholderKey string) error
}

type questionService struct {
	questionnaireRepo repository.QuestionnaireRepository
	screenRepo        repository.ScreenRepository
	questionRepo      repository.QuestionRepository
	bindingRepo       repository.BindingRepository
	answerRepo        repository.AnswerRepository
	db                *gorm.DB
}

func NewQuestionService(
	questionnaireRepo repository.QuestionnaireRepository,
	screenRepo repository.ScreenRepository,
	questionRepo repository.QuestionRepository,
	bindingRepo repository.BindingRepository,
	answerRepo repository.AnswerRepository,
	db *gorm.DB,
) QuestionService {
	return &questionService{
		questionnaireRepo: questionnaireRepo,
		screenRepo:        screenRepo,
		questionRepo:      questionRepo,
		bindingRepo:       bindingRepo,
		answerRepo:        answerRepo,
		db:                db,
	}
}

func (s *questionService) CreateQuestion(screenID uint, req dto.QuestionCreateDTO) (*dto.QuestionResponseDTO, error) {
	screen, err := s.findScreen(screenID)
	if err != nil {
		return nil, err
	}
	if req.AnswerKind != nil && !model.ValidAnswerKind(*req.AnswerKind) {
		return nil, apperr.Validation(apperr.CodeAnswerKindInvalid, "unknown answer_kind "+*req.AnswerKind)
	}

	question := model.Question{
		ScreenID:   screenID,
		Text:       req.Text,
		AnswerKind: req.AnswerKind,
		Mandatory:  req.Mandatory,
		Version:    1,
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if _, err := s.screenRepo.LockForUpdate(tx, screenID); err != nil {
			return apperr.Runtime(apperr.CodeStorageFailure, err)
		}
		siblings, err := s.questionRepo.FindByScreenID(screenID)
		if err != nil {
			return apperr.Runtime(apperr.CodeStorageFailure, err)
		}
		pos, err := resolveInsertPosition(len(siblings), req.Position, apperr.CodeQuestionPositionOutOfRange)
		if err != nil {
			return err
		}
		question.Position = pos
		if err := s.questionRepo.Create(tx, &question); err != nil {
			return apperr.Runtime(apperr.CodeStorageFailure, err)
		}
		ordered := insertAt(idsOf(siblings, func(q model.Question) uint { return q.ID }), question.ID, pos)
		if err := s.questionRepo.ReorderSiblings(tx, screenID, ordered); err != nil {
			return apperr.Runtime(apperr.CodeReorderFailed, err)
		}
		return s.screenRepo.BumpVersion(tx, screen.ID)
	})
	if err != nil {
		return nil, err
	}

	created, err := s.questionRepo.FindByIDWithOptions(question.ID)
	if err != nil {
		return nil, apperr.Runtime(apperr.CodeStorageFailure, err)
	}
	resp := questionToDTO(created)
	return &resp, nil
}

func (s *questionService) GetQuestion(id uint) (*dto.QuestionResponseDTO, error) {
	question, err := s.findQuestion(id)
	if err != nil {
		return nil, err
	}
	resp := questionToDTO(question)
	return &resp, nil
}

func (s *questionService) PatchQuestion(id uint, ifMatch string, req dto.QuestionPatchDTO) (*dto.QuestionResponseDTO, error) {
	question, err := s.findQuestion(id)
	if err != nil {
		return nil, err
	}
	if err := etag.CheckIfMatch(ifMatch, questionEtag(question), etag.MismatchStatusStructural); err != nil {
		return nil, err
	}

	if req.AnswerKind != nil && !model.ValidAnswerKind(*req.AnswerKind) {
		return nil, apperr.Validation(apperr.CodeAnswerKindInvalid, "unknown answer_kind "+*req.AnswerKind)
	}
	if req.ParentQuestionID != nil && req.ClearParent {
		return nil, apperr.BadRequest(apperr.CodeQuestionParentUnknown,
			"parent_question_id and clear_parent cannot be combined")
	}
	// fast-path rejection; the authoritative pass runs again under the locks
	if err := s.validatePatch(question, req); err != nil {
		return nil, err
	}
	screen, err := s.findScreen(question.ScreenID)
	if err != nil {
		return nil, err
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		_, err := s.patchQuestionInTx(tx, id, ifMatch, screen, req)
		return err
	})
	if err != nil {
		return nil, err
	}

	updated, err := s.questionRepo.FindByIDWithOptions(id)
	if err != nil {
		return nil, apperr.Runtime(apperr.CodeStorageFailure, err)
	}
	resp := questionToDTO(updated)
	return &resp, nil
}

// validatePatch runs the stateful patch checks: binding-fixed answer kind
// and parent relinking (existence, questionnaire scope, acyclicity).
func (s *questionService) validatePatch(question *model.Question, req dto.QuestionPatchDTO) error {
	if req.AnswerKind != nil && (question.AnswerKind == nil || *req.AnswerKind != *question.AnswerKind) {
		bindings, err := s.bindingRepo.FindByQuestionID(question.ID)
		if err != nil {
			return apperr.Runtime(apperr.CodeStorageFailure, err)
		}
		for _, b := range bindings {
			if b.AnswerKind != *req.AnswerKind {
				return apperr.Conflict(apperr.CodeQuestionModelConflict,
					"answer_kind is fixed by an existing placeholder binding")
			}
		}
	}
	if req.ParentQuestionID != nil {
		if err := s.checkParentLink(question, *req.ParentQuestionID); err != nil {
			return err
		}
	}
	return nil
}

// patchQuestionInTx re-reads the question under the row locks and repeats
// the If-Match and patch validations there: two concurrent patches can both
// pass the unlocked checks against the same acyclic state and commit a
// cycle. Parent relinking spans screens, so it serializes on the
// questionnaire row; everything else serializes on the screen row.
func (s *questionService) patchQuestionInTx(tx *gorm.DB, id uint, ifMatch string, screen *model.Screen, req dto.QuestionPatchDTO) (*model.Question, error) {
	if req.ParentQuestionID != nil {
		if _, err := s.questionnaireRepo.LockForUpdate(tx, screen.QuestionnaireID); err != nil {
			return nil, apperr.Runtime(apperr.CodeStorageFailure, err)
		}
	}
	if _, err := s.screenRepo.LockForUpdate(tx, screen.ID); err != nil {
		return nil, apperr.Runtime(apperr.CodeStorageFailure, err)
	}

	question, err := s.findQuestion(id)
	if err != nil {
		return nil, err
	}
	if err := etag.CheckIfMatch(ifMatch, questionEtag(question), etag.MismatchStatusStructural); err != nil {
		return nil, err
	}
	if err := s.validatePatch(question, req); err != nil {
		return nil, err
	}

	if req.Text != nil {
		question.Text = *req.Text
	}
	if req.Mandatory != nil {
		question.Mandatory = *req.Mandatory
	}
	if req.AnswerKind != nil {
		question.AnswerKind = req.AnswerKind
	}
	if req.ClearParent {
		question.ParentQuestionID = nil
		question.VisibleIfValue = nil
	} else if req.ParentQuestionID != nil {
		question.ParentQuestionID = req.ParentQuestionID
	}
	if req.VisibleIfValue != nil {
		question.VisibleIfValue = req.VisibleIfValue
	}
	question.Version++
	if err := s.questionRepo.Update(tx, question); err != nil {
		return nil, apperr.Runtime(apperr.CodeStorageFailure, err)
	}
	if err := s.screenRepo.BumpVersion(tx, question.ScreenID); err != nil {
		return nil, apperr.Runtime(apperr.CodeStorageFailure, err)
	}
	return question, nil
}

func (s *questionService) MoveQuestion(id uint, ifMatch string, req dto.QuestionMoveDTO) (*dto.QuestionResponseDTO, error) {
	question, err := s.findQuestion(id)
	if err != nil {
		return nil, err
	}
	if err := etag.CheckIfMatch(ifMatch, questionEtag(question), etag.MismatchStatusStructural); err != nil {
		return nil, err
	}

	fromScreen, err := s.findScreen(question.ScreenID)
	if err != nil {
		return nil, err
	}
	toScreen := fromScreen
	if req.ScreenID != nil && *req.ScreenID != question.ScreenID {
		toScreen, err = s.findScreen(*req.ScreenID)
		if err != nil {
			return nil, err
		}
		if toScreen.QuestionnaireID != fromScreen.QuestionnaireID {
			return nil, apperr.Conflict(apperr.CodeMoveCrossQuestionnaire,
				"target screen belongs to a different questionnaire")
		}
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		// screens lock in id order so opposing cross-screen moves cannot
		// deadlock
		lockIDs := []uint{fromScreen.ID}
		if toScreen.ID != fromScreen.ID {
			if toScreen.ID < fromScreen.ID {
				lockIDs = []uint{toScreen.ID, fromScreen.ID}
			} else {
				lockIDs = append(lockIDs, toScreen.ID)
			}
		}
		for _, screenID := range lockIDs {
			if _, err := s.screenRepo.LockForUpdate(tx, screenID); err != nil {
				return apperr.Runtime(apperr.CodeStorageFailure, err)
			}
		}

		// a writer may have committed between the unlocked read and the
		// locks; the client token must still match the row we hold
		fresh, err := s.findQuestion(id)
		if err != nil {
			return err
		}
		if err := etag.CheckIfMatch(ifMatch, questionEtag(fresh), etag.MismatchStatusStructural); err != nil {
			return err
		}

		if toScreen.ID == fromScreen.ID {
			siblings, err := s.questionRepo.FindByScreenID(fromScreen.ID)
			if err != nil {
				return apperr.Runtime(apperr.CodeStorageFailure, err)
			}
			ordered, err := moveTo(
				idsOf(siblings, func(q model.Question) uint { return q.ID }),
				id, req.Position, apperr.CodeQuestionPositionOutOfRange,
			)
			if err != nil {
				return err
			}
			if err := s.questionRepo.ReorderSiblings(tx, fromScreen.ID, ordered); err != nil {
				return apperr.Runtime(apperr.CodeReorderFailed, err)
			}
		} else {
			// cross-screen move: delete-from-source resequence plus
			// insert-into-target, one transaction
			source, err := s.questionRepo.FindByScreenID(fromScreen.ID)
			if err != nil {
				return apperr.Runtime(apperr.CodeStorageFailure, err)
			}
			target, err := s.questionRepo.FindByScreenID(toScreen.ID)
			if err != nil {
				return apperr.Runtime(apperr.CodeStorageFailure, err)
			}
			pos := req.Position
			resolved, err := resolveInsertPosition(len(target), &pos, apperr.CodeQuestionPositionOutOfRange)
			if err != nil {
				return err
			}
			remaining := removeID(idsOf(source, func(q model.Question) uint { return q.ID }), id)
			if err := s.questionRepo.ReorderSiblings(tx, fromScreen.ID, remaining); err != nil {
				return apperr.Runtime(apperr.CodeReorderFailed, err)
			}
			ordered := insertAt(idsOf(target, func(q model.Question) uint { return q.ID }), id, resolved)
			if err := s.questionRepo.ReorderSiblings(tx, toScreen.ID, ordered); err != nil {
				return apperr.Runtime(apperr.CodeReorderFailed, err)
			}
		}

		// a position-confirming move still rotates the question's ETag
		if err := s.questionRepo.BumpVersion(tx, id); err != nil {
			return apperr.Runtime(apperr.CodeStorageFailure, err)
		}
		if err := s.screenRepo.BumpVersion(tx, fromScreen.ID); err != nil {
			return apperr.Runtime(apperr.CodeStorageFailure, err)
		}
		if toScreen.ID != fromScreen.ID {
			return s.screenRepo.BumpVersion(tx, toScreen.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	moved, err := s.questionRepo.FindByIDWithOptions(id)
	if err != nil {
		return nil, apperr.Runtime(apperr.CodeStorageFailure, err)
	}
	resp := questionToDTO(moved)
	return &resp, nil
}

func (s *questionService) DeleteQuestion(id uint, ifMatch string) error {
	question, err := s.findQuestion(id)
	if err != nil {
		return err
	}
	if err := etag.CheckIfMatch(ifMatch, questionEtag(question), etag.MismatchStatusStructural); err != nil {
		return err
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		return s.deleteQuestionInTx(tx, id, question.ScreenID, ifMatch)
	})
	if err != nil {
		log.Error().Err(err).Uint("questionID", id).Msg("DeleteQuestion: transaction failed")
		return err
	}
	return nil
}

// deleteQuestionInTx repeats the If-Match check under the screen lock and
// takes the question's stored answers down with it.
func (s *questionService) deleteQuestionInTx(tx *gorm.DB, id, screenID uint, ifMatch string) error {
	if _, err := s.screenRepo.LockForUpdate(tx, screenID); err != nil {
		return apperr.Runtime(apperr.CodeStorageFailure, err)
	}
	fresh, err := s.findQuestion(id)
	if err != nil {
		return err
	}
	if err := etag.CheckIfMatch(ifMatch, questionEtag(fresh), etag.MismatchStatusStructural); err != nil {
		return err
	}
	siblings, err := s.questionRepo.FindByScreenID(screenID)
	if err != nil {
		return apperr.Runtime(apperr.CodeStorageFailure, err)
	}
	if err := s.questionRepo.ClearParentLinks(tx, id); err != nil {
		return apperr.Runtime(apperr.CodeStorageFailure, err)
	}
	if err := s.answerRepo.ClearForQuestions(tx, []uint{id}); err != nil {
		return apperr.Runtime(apperr.CodeStorageFailure, err)
	}
	if err := s.questionRepo.Delete(tx, id); err != nil {
		return apperr.Runtime(apperr.CodeStorageFailure, err)
	}
	remaining := removeID(idsOf(siblings, func(q model.Question) uint { return q.ID }), id)
	if err := s.questionRepo.ReorderSiblings(tx, screenID, remaining); err != nil {
		return apperr.Runtime(apperr.CodeReorderFailed, err)
	}
	return s.screenRepo.BumpVersion(tx, screenID)
}

func (s *questionService) ReplaceOptions(questionID uint, ifMatch string, req dto.OptionsReplaceDTO) (*dto.QuestionResponseDTO, error) {
	question, err := s.findQuestion(questionID)
	if err != nil {
		return nil, err
	}
	if err := etag.CheckIfMatch(ifMatch, questionEtag(question), etag.MismatchStatusStructural); err != nil {
		return nil, err
	}
	if question.AnswerKind == nil || *question.AnswerKind != model.AnswerKindEnumSingle {
		return nil, apperr.Conflict(apperr.CodeOptionsKindNotEnum, "answer options apply to enum_single questions only")
	}

	seen := make(map[string]bool, len(req.Options))
	options := make([]model.AnswerOption, 0, len(req.Options))
	for _, o := range req.Options {
		if seen[o.Value] {
			return nil, apperr.Conflict(apperr.CodeOptionValueDuplicate, "duplicate option value "+o.Value)
		}
		seen[o.Value] = true
		options = append(options, model.AnswerOption{Value: o.Value, Label: o.Label})
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if _, err := s.screenRepo.LockForUpdate(tx, question.ScreenID); err != nil {
			return apperr.Runtime(apperr.CodeStorageFailure, err)
		}
		fresh, err := s.findQuestion(questionID)
		if err != nil {
			return err
		}
		if err := etag.CheckIfMatch(ifMatch, questionEtag(fresh), etag.MismatchStatusStructural); err != nil {
			return err
		}
		if err := s.questionRepo.ReplaceOptions(tx, questionID, options); err != nil {
			return apperr.Runtime(apperr.CodeStorageFailure, err)
		}
		if err := s.questionRepo.BumpVersion(tx, questionID); err != nil {
			return apperr.Runtime(apperr.CodeStorageFailure, err)
		}
		return s.screenRepo.BumpVersion(tx, question.ScreenID)
	})
	if err != nil {
		return nil, err
	}

	updated, err := s.questionRepo.FindByIDWithOptions(questionID)
	if err != nil {
		return nil, apperr.Runtime(apperr.CodeStorageFailure, err)
	}
	resp := questionToDTO(updated)
	return &resp, nil
}

func (s *questionService) BindPlaceholder(questionID uint, req dto.BindingCreateDTO) (*dto.BindingResponseDTO, error) {
	question, err := s.findQuestion(questionID)
	if err != nil {
		return nil, err
	}
	if question.AnswerKind != nil && *question.AnswerKind != req.AnswerKind {
		return nil, apperr.Conflict(apperr.CodeBindingKindConflict,
			"binding would change an already-set answer_kind")
	}

	binding := model.PlaceholderBinding{
		QuestionID:     questionID,
		PlaceholderKey: req.PlaceholderKey,
		AnswerKind:     req.AnswerKind,
	}
	err = s.db.Transaction(func(tx *gorm.DB) error {
		// the kind-conflict check repeats on the locked screen so a racing
		// patch cannot change answer_kind under us
		if _, err := s.screenRepo.LockForUpdate(tx, question.ScreenID); err != nil {
			return apperr.Runtime(apperr.CodeStorageFailure, err)
		}
		fresh, err := s.findQuestion(questionID)
		if err != nil {
			return err
		}
		if fresh.AnswerKind != nil && *fresh.AnswerKind != req.AnswerKind {
			return apperr.Conflict(apperr.CodeBindingKindConflict,
				"binding would change an already-set answer_kind")
		}
		if err := s.bindingRepo.Create(tx, &binding); err != nil {
			return apperr.Runtime(apperr.CodeStorageFailure, err)
		}
		if fresh.AnswerKind == nil {
			// first binding infers the kind
			fresh.AnswerKind = &binding.AnswerKind
			fresh.Version++
			if err := s.questionRepo.Update(tx, fresh); err != nil {
				return apperr.Runtime(apperr.CodeStorageFailure, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &dto.BindingResponseDTO{
		ID:             binding.ID,
		QuestionID:     binding.QuestionID,
		PlaceholderKey: binding.PlaceholderKey,
		AnswerKind:     binding.AnswerKind,
	}, nil
}

func (s *questionService) UnbindPlaceholder(questionID uint, placeholderKey string) error {
	question, err := s.findQuestion(questionID)
	if err != nil {
		return err
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		if _, err := s.screenRepo.LockForUpdate(tx, question.ScreenID); err != nil {
			return apperr.Runtime(apperr.CodeStorageFailure, err)
		}
		fresh, err := s.findQuestion(questionID)
		if err != nil {
			return err
		}
		removed, err := s.bindingRepo.Delete(tx, questionID, placeholderKey)
		if err != nil {
			return apperr.Runtime(apperr.CodeStorageFailure, err)
		}
		if !removed {
			return apperr.NotFound(apperr.CodeBindingNotFound, "placeholder binding not found")
		}
		remaining, err := s.bindingRepo.FindByQuestionID(questionID)
		if err != nil {
			return apperr.Runtime(apperr.CodeStorageFailure, err)
		}
		if len(remaining) == 0 && fresh.AnswerKind != nil {
			// unbinding the last placeholder releases the inferred kind
			fresh.AnswerKind = nil
			fresh.Version++
			if err := s.questionRepo.Update(tx, fresh); err != nil {
				return apperr.Runtime(apperr.CodeStorageFailure, err)
			}
		}
		return nil
	})
}

// checkParentLink validates a proposed parent relinking: the parent must
// exist, live in the same questionnaire, and must not close a cycle.
func (s *questionService) checkParentLink(question *model.Question, parentID uint) error {
	parent, err := s.questionRepo.FindByID(parentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.Validation(apperr.CodeQuestionParentUnknown, "parent question not found")
		}
		return apperr.Runtime(apperr.CodeStorageFailure, err)
	}

	childScreen, err := s.findScreen(question.ScreenID)
	if err != nil {
		return err
	}
	parentScreen, err := s.findScreen(parent.ScreenID)
	if err != nil {
		return err
	}
	if childScreen.QuestionnaireID != parentScreen.QuestionnaireID {
		return apperr.Conflict(apperr.CodeMoveCrossQuestionnaire, "parent question belongs to a different questionnaire")
	}

	questions, err := s.questionRepo.FindByQuestionnaireID(childScreen.QuestionnaireID)
	if err != nil {
		return apperr.Runtime(apperr.CodeStorageFailure, err)
	}
	if wouldCreateParentCycle(questions, question.ID, parentID) {
		return apperr.Conflict(apperr.CodeQuestionParentCycle, "parent link would make the question its own ancestor")
	}
	return nil
}

func (s *questionService) findQuestion(id uint) (*model.Question, error) {
	question, err := s.questionRepo.FindByIDWithOptions(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound(apperr.CodeQuestionNotFound, "question not found")
		}
		return nil, apperr.Runtime(apperr.CodeStorageFailure, err)
	}
	return question, nil
}

func (s *questionService) findScreen(id uint) (*model.Screen, error) {
	screen, err := s.screenRepo.FindByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound(apperr.CodeScreenNotFound, "screen not found")
		}
		return nil, apperr.Runtime(apperr.CodeStorageFailure, err)
	}
	return screen, nil
}
