package service

import (
	"net/http"
	"testing"

	"github.com/aldertree/questline/internal/apperr"
	"github.com/aldertree/questline/internal/dto"
	"github.com/aldertree/questline/internal/model"
	"github.com/aldertree/questline/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// stubQuestionRepo serves reads from fixed fixtures and counts writes so
// tests can assert that rejected mutations never touch storage.
type stubQuestionRepo struct {
	questions map[uint]*model.Question
	updates   int
	cascaded  []uint
}

func (r *stubQuestionRepo) Create(tx *gorm.DB, q *model.Question) error { r.updates++; return nil }

func (r *stubQuestionRepo) FindByID(id uint) (*model.Question, error) {
	q, ok := r.questions[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *q
	return &cp, nil
}

func (r *stubQuestionRepo) FindByIDWithOptions(id uint) (*model.Question, error) {
	return r.FindByID(id)
}

func (r *stubQuestionRepo) FindByScreenID(screenID uint) ([]model.Question, error) {
	var out []model.Question
	for _, q := range r.questions {
		if q.ScreenID == screenID {
			out = append(out, *q)
		}
	}
	return out, nil
}

func (r *stubQuestionRepo) FindByQuestionnaireID(questionnaireID uint) ([]model.Question, error) {
	var out []model.Question
	for _, q := range r.questions {
		out = append(out, *q)
	}
	return out, nil
}

func (r *stubQuestionRepo) Update(tx *gorm.DB, q *model.Question) error { r.updates++; return nil }
func (r *stubQuestionRepo) Delete(tx *gorm.DB, id uint) error           { r.updates++; return nil }
func (r *stubQuestionRepo) DeleteCascade(tx *gorm.DB, ids []uint) error {
	r.updates++
	r.cascaded = append(r.cascaded, ids...)
	for _, id := range ids {
		delete(r.questions, id)
	}
	return nil
}
func (r *stubQuestionRepo) ClearParentLinks(tx *gorm.DB, parentID uint) error {
	r.updates++
	return nil
}
func (r *stubQuestionRepo) ReorderSiblings(tx *gorm.DB, screenID uint, orderedIDs []uint) error {
	r.updates++
	return nil
}
func (r *stubQuestionRepo) ReplaceOptions(tx *gorm.DB, questionID uint, options []model.AnswerOption) error {
	r.updates++
	return nil
}
func (r *stubQuestionRepo) BumpVersion(tx *gorm.DB, id uint) error { r.updates++; return nil }

type stubScreenRepo struct {
	screens map[uint]*model.Screen
	updates int
	deleted []uint
}

func (r *stubScreenRepo) Create(tx *gorm.DB, s *model.Screen) error { return nil }

func (r *stubScreenRepo) FindByID(id uint) (*model.Screen, error) {
	s, ok := r.screens[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *stubScreenRepo) FindByIDWithQuestions(id uint) (*model.Screen, error) {
	return r.FindByID(id)
}

func (r *stubScreenRepo) FindByQuestionnaireID(questionnaireID uint) ([]model.Screen, error) {
	var out []model.Screen
	for _, s := range r.screens {
		if s.QuestionnaireID == questionnaireID {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (r *stubScreenRepo) LockForUpdate(tx *gorm.DB, id uint) (*model.Screen, error) {
	return r.FindByID(id)
}
func (r *stubScreenRepo) Update(tx *gorm.DB, s *model.Screen) error {
	r.updates++
	cp := *s
	r.screens[s.ID] = &cp
	return nil
}

func (r *stubScreenRepo) Delete(tx *gorm.DB, id uint) error {
	r.deleted = append(r.deleted, id)
	delete(r.screens, id)
	return nil
}

func (r *stubScreenRepo) ReorderSiblings(tx *gorm.DB, qid uint, orderedIDs []uint) error { return nil }
func (r *stubScreenRepo) BumpVersion(tx *gorm.DB, id uint) error                         { return nil }

type stubQuestionnaireRepo struct {
	questionnaires map[uint]*model.Questionnaire
	locks          int
}

func (r *stubQuestionnaireRepo) Create(q *model.Questionnaire) error { return nil }

func (r *stubQuestionnaireRepo) FindByID(id uint) (*model.Questionnaire, error) {
	q, ok := r.questionnaires[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *q
	return &cp, nil
}

func (r *stubQuestionnaireRepo) FindByIDWithScreens(id uint) (*model.Questionnaire, error) {
	return r.FindByID(id)
}

func (r *stubQuestionnaireRepo) FindByName(name string) (*model.Questionnaire, error) {
	for _, q := range r.questionnaires {
		if q.Name == name {
			cp := *q
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *stubQuestionnaireRepo) FindAllWithScreenCount() ([]repository.QuestionnaireWithScreenCount, error) {
	return nil, nil
}

func (r *stubQuestionnaireRepo) LockForUpdate(tx *gorm.DB, id uint) (*model.Questionnaire, error) {
	r.locks++
	return r.FindByID(id)
}

func (r *stubQuestionnaireRepo) BumpVersion(tx *gorm.DB, id uint) error { return nil }
func (r *stubQuestionnaireRepo) Delete(tx *gorm.DB, id uint) error {
	delete(r.questionnaires, id)
	return nil
}

type stubBindingRepo struct {
	bindings map[uint][]model.PlaceholderBinding
}

func (r *stubBindingRepo) Create(tx *gorm.DB, b *model.PlaceholderBinding) error { return nil }

func (r *stubBindingRepo) FindByQuestionID(questionID uint) ([]model.PlaceholderBinding, error) {
	return r.bindings[questionID], nil
}

func (r *stubBindingRepo) Delete(tx *gorm.DB, questionID uint, placeholderKey string) (bool, error) {
	return false, nil
}

// stubAnswerRepo keeps answers by question id and records writes so tests
// can assert what a mutation touched.
type stubAnswerRepo struct {
	answers map[uint]*model.Answer
	upserts int
	cleared []uint
}

func (r *stubAnswerRepo) FindByResponseSet(db *gorm.DB, responseSetID uint, questionIDs []uint) (map[uint]model.Answer, error) {
	out := map[uint]model.Answer{}
	for qid, a := range r.answers {
		out[qid] = *a
	}
	return out, nil
}

func (r *stubAnswerRepo) Find(db *gorm.DB, responseSetID, questionID uint) (*model.Answer, error) {
	a, ok := r.answers[questionID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *stubAnswerRepo) Upsert(tx *gorm.DB, a *model.Answer) error {
	r.upserts++
	if r.answers == nil {
		r.answers = map[uint]*model.Answer{}
	}
	if prev, ok := r.answers[a.QuestionID]; ok {
		a.Version = prev.Version + 1
	} else {
		a.Version = 1
	}
	cp := *a
	r.answers[a.QuestionID] = &cp
	return nil
}

func (r *stubAnswerRepo) Clear(tx *gorm.DB, responseSetID, questionID uint) (bool, error) {
	if _, ok := r.answers[questionID]; !ok {
		return false, nil
	}
	delete(r.answers, questionID)
	return true, nil
}

func (r *stubAnswerRepo) ClearForQuestions(tx *gorm.DB, questionIDs []uint) error {
	r.cleared = append(r.cleared, questionIDs...)
	for _, id := range questionIDs {
		delete(r.answers, id)
	}
	return nil
}

// fixture: questionnaire 1 holds screens 1 and 2; question 3 is a child of
// question 2, which is a child of question 1. Questionnaire 2 holds screen
// 9 with question 90.
func newQuestionFixture() (*stubQuestionRepo, *stubScreenRepo, *stubBindingRepo, QuestionService) {
	screens := &stubScreenRepo{screens: map[uint]*model.Screen{
		1: {ID: 1, QuestionnaireID: 1, Key: "about-you", Title: "About you", Position: 1, Version: 1},
		2: {ID: 2, QuestionnaireID: 1, Key: "finances", Title: "Finances", Position: 2, Version: 1},
		9: {ID: 9, QuestionnaireID: 2, Key: "other", Title: "Other", Position: 1, Version: 1},
	}}
	questions := &stubQuestionRepo{questions: map[uint]*model.Question{
		1:  {ID: 1, ScreenID: 1, Text: "Are you employed?", AnswerKind: strptr(model.AnswerKindBoolean), Position: 1, Version: 1},
		2:  {ID: 2, ScreenID: 1, Text: "Employer name?", ParentQuestionID: uintp(1), VisibleIfValue: model.StringList{"true"}, Position: 2, Version: 1},
		3:  {ID: 3, ScreenID: 1, Text: "Office or remote?", ParentQuestionID: uintp(2), Position: 3, Version: 1},
		90: {ID: 90, ScreenID: 9, Text: "Unrelated", Position: 1, Version: 1},
	}}
	bindings := &stubBindingRepo{bindings: map[uint][]model.PlaceholderBinding{
		1: {{ID: 1, QuestionID: 1, PlaceholderKey: "employment_status", AnswerKind: model.AnswerKindBoolean}},
	}}
	questionnaires := &stubQuestionnaireRepo{questionnaires: map[uint]*model.Questionnaire{
		1: {ID: 1, Name: "Onboarding", Version: 1},
		2: {ID: 2, Name: "Offboarding", Version: 1},
	}}
	svc := NewQuestionService(questionnaires, screens, questions, bindings, &stubAnswerRepo{}, nil)
	return questions, screens, bindings, svc
}

func questionIfMatch(repo *stubQuestionRepo, id uint) string {
	q := repo.questions[id]
	return questionEtag(q)
}

func TestPatchQuestionRequiresIfMatch(t *testing.T) {
	_, _, _, svc := newQuestionFixture()

	_, err := svc.PatchQuestion(1, "", dto.QuestionPatchDTO{Text: strptr("x")})
	require.Error(t, err)
	p, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusPreconditionRequired, p.Status)
	assert.Equal(t, apperr.CodeIfMatchMissing, p.Code)
}

func TestPatchQuestionStaleEtag(t *testing.T) {
	_, _, _, svc := newQuestionFixture()

	stale := questionEtag(&model.Question{ID: 1, Position: 1, Version: 99})
	_, err := svc.PatchQuestion(1, stale, dto.QuestionPatchDTO{Text: strptr("x")})
	require.Error(t, err)
	p, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusPreconditionFailed, p.Status)
}

func TestPatchQuestionRejectsParentCycle(t *testing.T) {
	questions, _, _, svc := newQuestionFixture()

	// linking 1 under its grandchild 3 would close 1 -> 2 -> 3 -> 1
	_, err := svc.PatchQuestion(1, questionIfMatch(questions, 1), dto.QuestionPatchDTO{ParentQuestionID: uintp(3)})
	require.Error(t, err)
	p, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusConflict, p.Status)
	assert.Equal(t, apperr.CodeQuestionParentCycle, p.Code)
	assert.Zero(t, questions.updates, "a rejected relink must leave storage untouched")
}

func TestPatchQuestionRejectsSelfParent(t *testing.T) {
	questions, _, _, svc := newQuestionFixture()

	_, err := svc.PatchQuestion(2, questionIfMatch(questions, 2), dto.QuestionPatchDTO{ParentQuestionID: uintp(2)})
	require.Error(t, err)
	p, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.CodeQuestionParentCycle, p.Code)
	assert.Zero(t, questions.updates)
}

func TestPatchQuestionRejectsCrossQuestionnaireParent(t *testing.T) {
	questions, _, _, svc := newQuestionFixture()

	_, err := svc.PatchQuestion(90, questionIfMatch(questions, 90), dto.QuestionPatchDTO{ParentQuestionID: uintp(1)})
	require.Error(t, err)
	p, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.CodeMoveCrossQuestionnaire, p.Code)
}

func TestPatchQuestionRejectsUnknownParent(t *testing.T) {
	questions, _, _, svc := newQuestionFixture()

	_, err := svc.PatchQuestion(1, questionIfMatch(questions, 1), dto.QuestionPatchDTO{ParentQuestionID: uintp(404)})
	require.Error(t, err)
	p, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.CodeQuestionParentUnknown, p.Code)
}

func TestPatchQuestionRejectsParentAndClearTogether(t *testing.T) {
	questions, _, _, svc := newQuestionFixture()

	_, err := svc.PatchQuestion(2, questionIfMatch(questions, 2), dto.QuestionPatchDTO{
		ParentQuestionID: uintp(1),
		ClearParent:      true,
	})
	require.Error(t, err)
	p, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, p.Status)
}

func TestPatchQuestionKindFixedByBinding(t *testing.T) {
	questions, _, _, svc := newQuestionFixture()

	// question 1 is bound to a boolean placeholder
	_, err := svc.PatchQuestion(1, questionIfMatch(questions, 1), dto.QuestionPatchDTO{
		AnswerKind: strptr(model.AnswerKindNumber),
	})
	require.Error(t, err)
	p, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusConflict, p.Status)
	assert.Equal(t, apperr.CodeQuestionModelConflict, p.Code)
	assert.Zero(t, questions.updates)
}

func TestBindPlaceholderKindConflict(t *testing.T) {
	_, _, _, svc := newQuestionFixture()

	_, err := svc.BindPlaceholder(1, dto.BindingCreateDTO{
		PlaceholderKey: "annual_income",
		AnswerKind:     model.AnswerKindNumber,
	})
	require.Error(t, err)
	p, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.CodeBindingKindConflict, p.Code)
}

func TestMoveQuestionRejectsCrossQuestionnaireTarget(t *testing.T) {
	questions, _, _, svc := newQuestionFixture()

	_, err := svc.MoveQuestion(1, questionIfMatch(questions, 1), dto.QuestionMoveDTO{
		Position: 1,
		ScreenID: uintp(9),
	})
	require.Error(t, err)
	p, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusConflict, p.Status)
	assert.Equal(t, apperr.CodeMoveCrossQuestionnaire, p.Code)
	assert.Zero(t, questions.updates)
}

func TestReplaceOptionsRejectsNonEnumQuestion(t *testing.T) {
	questions, _, _, svc := newQuestionFixture()

	_, err := svc.ReplaceOptions(1, questionIfMatch(questions, 1), dto.OptionsReplaceDTO{
		Options: []dto.OptionCreateDTO{{Value: "a", Label: "A"}},
	})
	require.Error(t, err)
	p, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.CodeOptionsKindNotEnum, p.Code)
}

func TestPatchQuestionLockedRecheckRejectsConcurrentCycle(t *testing.T) {
	questions, screens, _, svc := newQuestionFixture()
	impl := svc.(*questionService)
	questionnaires := impl.questionnaireRepo.(*stubQuestionnaireRepo)

	// with 2's parent cleared, linking 1 under 3 looks safe to the
	// unlocked validation pass
	questions.questions[2].ParentQuestionID = nil
	before, err := questions.FindByID(1)
	require.NoError(t, err)
	req := dto.QuestionPatchDTO{ParentQuestionID: uintp(3)}
	require.NoError(t, impl.validatePatch(before, req))

	// another writer restores 2 -> 1 before the locks are taken; the
	// in-transaction pass must see it and refuse to close 1 -> 2 -> 3 -> 1
	questions.questions[2].ParentQuestionID = uintp(1)
	_, err = impl.patchQuestionInTx(nil, 1, questionIfMatch(questions, 1), screens.screens[1], req)
	require.Error(t, err)
	p, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.CodeQuestionParentCycle, p.Code)
	assert.Zero(t, questions.updates)
	assert.Equal(t, 1, questionnaires.locks, "a relink must serialize on the questionnaire row")
}

func TestPatchQuestionLockedRecheckRejectsStaleToken(t *testing.T) {
	questions, screens, _, svc := newQuestionFixture()
	impl := svc.(*questionService)

	token := questionIfMatch(questions, 1)
	// a concurrent patch commits between the unlocked read and the lock
	questions.questions[1].Version++

	_, err := impl.patchQuestionInTx(nil, 1, token, screens.screens[1], dto.QuestionPatchDTO{Text: strptr("x")})
	require.Error(t, err)
	p, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusPreconditionFailed, p.Status)
	assert.Zero(t, questions.updates)
}

func TestDeleteQuestionClearsStoredAnswers(t *testing.T) {
	questions, _, _, svc := newQuestionFixture()
	impl := svc.(*questionService)
	answers := impl.answerRepo.(*stubAnswerRepo)
	answers.answers = map[uint]*model.Answer{
		3: {ID: 7, ResponseSetID: 1, QuestionID: 3, Version: 2},
	}

	err := impl.deleteQuestionInTx(nil, 3, 1, questionIfMatch(questions, 3))
	require.NoError(t, err)
	assert.Equal(t, []uint{3}, answers.cleared)
	assert.Empty(t, answers.answers)
}

func TestCreateQuestionRejectsUnknownKind(t *testing.T) {
	_, _, _, svc := newQuestionFixture()

	_, err := svc.CreateQuestion(1, dto.QuestionCreateDTO{Text: "x", AnswerKind: strptr("multi_choice")})
	require.Error(t, err)
	p, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.CodeAnswerKindInvalid, p.Code)
}
