package service

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/aldertree/questline/internal/apperr"
	"github.com/aldertree/questline/internal/dto"
	"github.com/aldertree/questline/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type stubResponseSetRepo struct {
	sets map[uint]*model.ResponseSet
	// lockBump shifts the version LockForUpdate reports, standing in for
	// a writer that committed between the unlocked read and the lock
	lockBump int
	bumps    int
}

func (r *stubResponseSetRepo) Create(rs *model.ResponseSet) error { return nil }

func (r *stubResponseSetRepo) FindByID(id uint) (*model.ResponseSet, error) {
	rs, ok := r.sets[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *rs
	return &cp, nil
}

func (r *stubResponseSetRepo) LockForUpdate(tx *gorm.DB, id uint) (*model.ResponseSet, error) {
	rs, err := r.FindByID(id)
	if err != nil {
		return nil, err
	}
	rs.Version += r.lockBump
	return rs, nil
}

func (r *stubResponseSetRepo) BumpVersion(tx *gorm.DB, id uint) error {
	r.bumps++
	if rs, ok := r.sets[id]; ok {
		rs.Version++
	}
	return nil
}
func (r *stubResponseSetRepo) Delete(tx *gorm.DB, id uint) error { return nil }

// fixture: response set 1 on questionnaire 1; question 1 is a boolean
// root, question 2 a number child shown while 1 is answered true.
func newAnswerFixture() (*stubResponseSetRepo, AnswerService) {
	sets := &stubResponseSetRepo{sets: map[uint]*model.ResponseSet{
		1: {ID: 1, Token: "tok-1", QuestionnaireID: 1, CompanyID: 7, Version: 3},
	}}
	screens := &stubScreenRepo{screens: map[uint]*model.Screen{
		1: {ID: 1, QuestionnaireID: 1, Key: "about-you", Title: "About you", Position: 1, Version: 1},
	}}
	questions := &stubQuestionRepo{questions: map[uint]*model.Question{
		1: {ID: 1, ScreenID: 1, Text: "Are you employed?", AnswerKind: strptr(model.AnswerKindBoolean), Position: 1, Version: 1},
		2: {ID: 2, ScreenID: 1, Text: "Annual income?", AnswerKind: strptr(model.AnswerKindNumber), ParentQuestionID: uintp(1), VisibleIfValue: model.StringList{"true"}, Position: 2, Version: 1},
	}}
	svc := NewAnswerService(sets, screens, questions, &stubAnswerRepo{}, nil)
	return sets, svc
}

func currentSetEtag(sets *stubResponseSetRepo, id uint) string {
	return responseSetEtag(sets.sets[id])
}

func TestSaveAnswerRequiresIfMatch(t *testing.T) {
	_, svc := newAnswerFixture()

	_, err := svc.SaveAnswer(1, 1, "", upsert(`true`))
	require.Error(t, err)
	p, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusPreconditionRequired, p.Status)
	assert.Equal(t, apperr.CodeIfMatchMissing, p.Code)
}

func TestSaveAnswerStaleEtagIsConflict(t *testing.T) {
	sets, svc := newAnswerFixture()

	stale := responseSetEtag(&model.ResponseSet{ID: 1, Version: 2})
	require.NotEqual(t, stale, currentSetEtag(sets, 1))

	_, err := svc.SaveAnswer(1, 1, stale, upsert(`true`))
	require.Error(t, err)
	p, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusConflict, p.Status)
	assert.Equal(t, apperr.CodeIfMatchMismatch, p.Code)
}

func TestSaveAnswerRejectsNonFiniteNumber(t *testing.T) {
	sets, svc := newAnswerFixture()

	_, err := svc.SaveAnswer(1, 2, currentSetEtag(sets, 1), upsert(`"Infinity"`))
	require.Error(t, err)
	p, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusUnprocessableEntity, p.Status)
	assert.Equal(t, apperr.CodeAnswerNumberNotFinite, p.Code)
}

func TestSaveAnswerUnknownQuestion(t *testing.T) {
	sets, svc := newAnswerFixture()

	_, err := svc.SaveAnswer(1, 404, currentSetEtag(sets, 1), upsert(`true`))
	require.Error(t, err)
	p, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusNotFound, p.Status)
	assert.Equal(t, apperr.CodeQuestionNotFound, p.Code)
}

func TestSaveAnswerUnknownResponseSet(t *testing.T) {
	_, svc := newAnswerFixture()

	_, err := svc.SaveAnswer(404, 1, "*", upsert(`true`))
	require.Error(t, err)
	p, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.CodeResponseSetNotFound, p.Code)
}

func TestBatchUpsertIsolatesFailedItems(t *testing.T) {
	sets, svc := newAnswerFixture()

	resp, err := svc.BatchUpsert(1, dto.BatchUpsertDTO{Items: []dto.BatchItemDTO{
		{QuestionID: 2, Etag: answerEtag(1, 2, 0), Value: json.RawMessage(`"NaN"`)},
		{QuestionID: 404, Etag: answerEtag(1, 404, 0), Value: json.RawMessage(`true`)},
	}})
	require.NoError(t, err)
	require.Len(t, resp.Items, 2)

	// outcomes come back in input order, each carrying its own problem
	assert.Equal(t, uint(2), resp.Items[0].QuestionID)
	assert.Equal(t, dto.BatchOutcomeError, resp.Items[0].Outcome)
	require.NotNil(t, resp.Items[0].Problem)
	assert.Equal(t, apperr.CodeAnswerNumberNotFinite, resp.Items[0].Problem.Code)

	assert.Equal(t, uint(404), resp.Items[1].QuestionID)
	assert.Equal(t, dto.BatchOutcomeError, resp.Items[1].Outcome)
	require.NotNil(t, resp.Items[1].Problem)
	assert.Equal(t, apperr.CodeQuestionNotFound, resp.Items[1].Problem.Code)

	assert.Equal(t, currentSetEtag(sets, 1), resp.Etag)
}

func TestBatchItemStaleTokenIsConflict(t *testing.T) {
	sets, svc := newAnswerFixture()
	impl := svc.(*answerService)
	answers := impl.answerRepo.(*stubAnswerRepo)
	answers.answers = map[uint]*model.Answer{
		1: {ID: 5, ResponseSetID: 1, QuestionID: 1, Version: 2},
	}

	stale := answerEtag(1, 1, 1)
	err := impl.batchItemInTx(nil, 1, stale, &model.Answer{ResponseSetID: 1, QuestionID: 1})
	require.Error(t, err)
	p, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusConflict, p.Status)
	assert.Equal(t, apperr.CodeBatchItemEtagMismatch, p.Code)
	assert.Zero(t, answers.upserts, "a rejected item must not reach storage")
	assert.Zero(t, sets.bumps)
}

func TestBatchItemMatchingTokenWrites(t *testing.T) {
	sets, svc := newAnswerFixture()
	impl := svc.(*answerService)
	answers := impl.answerRepo.(*stubAnswerRepo)
	answers.answers = map[uint]*model.Answer{
		1: {ID: 5, ResponseSetID: 1, QuestionID: 1, Version: 2},
	}

	next := &model.Answer{ResponseSetID: 1, QuestionID: 1}
	err := impl.batchItemInTx(nil, 1, answerEtag(1, 1, 2), next)
	require.NoError(t, err)
	assert.Equal(t, 1, answers.upserts)
	assert.Equal(t, 3, next.Version)
	assert.Equal(t, 1, sets.bumps)
}

func TestSaveAnswerLockedRecheckRejectsOvertakenToken(t *testing.T) {
	sets, svc := newAnswerFixture()
	impl := svc.(*answerService)
	answers := impl.answerRepo.(*stubAnswerRepo)
	questions, err := impl.questionRepo.FindByQuestionnaireID(1)
	require.NoError(t, err)

	// the token matches the unlocked read, but another writer lands
	// before the lock is granted
	token := currentSetEtag(sets, 1)
	sets.lockBump = 1

	mutated := false
	_, err = impl.applyInTx(nil, 1, 1, questions, token, func(tx *gorm.DB) (bool, error) {
		mutated = true
		return true, nil
	}, true)
	require.Error(t, err)
	p, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusConflict, p.Status)
	assert.Equal(t, apperr.CodeIfMatchMismatch, p.Code)
	assert.False(t, mutated, "an overtaken token must not merge over the other write")
	assert.Zero(t, answers.upserts)
	assert.Zero(t, sets.bumps)
}

func TestSaveAnswerEtagComesFromLockedRow(t *testing.T) {
	sets, svc := newAnswerFixture()
	impl := svc.(*answerService)
	questions, err := impl.questionRepo.FindByQuestionnaireID(1)
	require.NoError(t, err)

	resp, err := impl.applyInTx(nil, 1, 1, questions, currentSetEtag(sets, 1), func(tx *gorm.DB) (bool, error) {
		return true, nil
	}, true)
	require.NoError(t, err)
	assert.True(t, resp.Saved)
	assert.Equal(t, 1, sets.bumps)
	// the returned token reflects the bumped row, so an immediate
	// follow-up write with it succeeds
	assert.Equal(t, currentSetEtag(sets, 1), resp.Etag)
}

func TestDeleteAnswerAbsentIsNoOp(t *testing.T) {
	sets, svc := newAnswerFixture()

	before := currentSetEtag(sets, 1)
	resp, err := svc.DeleteAnswer(1, 1, before)
	require.NoError(t, err)
	assert.False(t, resp.Saved)
	assert.Equal(t, before, resp.Etag, "a no-op clear must not rotate the token")
	assert.Zero(t, sets.bumps)
	assert.Equal(t, []uint{}, resp.VisibilityDelta.NowVisible)
	assert.Equal(t, []uint{}, resp.VisibilityDelta.NowHidden)
	assert.Equal(t, []uint{}, resp.SuppressedAnswers)
}

func TestDeleteAnswerHidesDependentsAndReportsSuppression(t *testing.T) {
	sets, svc := newAnswerFixture()
	impl := svc.(*answerService)
	answers := impl.answerRepo.(*stubAnswerRepo)
	income := 52000.0
	answers.answers = map[uint]*model.Answer{
		1: {ID: 5, ResponseSetID: 1, QuestionID: 1, ValueBool: boolptr(true), Version: 1},
		2: {ID: 6, ResponseSetID: 1, QuestionID: 2, ValueNumber: &income, Version: 1},
	}
	questions, err := impl.questionRepo.FindByQuestionnaireID(1)
	require.NoError(t, err)

	resp, err := impl.applyInTx(nil, 1, 1, questions, currentSetEtag(sets, 1), func(tx *gorm.DB) (bool, error) {
		return answers.Clear(tx, 1, 1)
	}, false)
	require.NoError(t, err)
	assert.False(t, resp.Saved)
	// clearing the parent hides the child; its stored answer survives but
	// is reported as suppressed
	assert.Equal(t, []uint{2}, resp.VisibilityDelta.NowHidden)
	assert.Equal(t, []uint{2}, resp.SuppressedAnswers)
	assert.Contains(t, answers.answers, uint(2))
}

func TestBuildScreenViewHidesHiddenQuestionsEntirely(t *testing.T) {
	screen := &model.Screen{ID: 1, QuestionnaireID: 1, Key: "about-you", Title: "About you", Position: 1, Version: 1}
	questions := []model.Question{
		{ID: 1, ScreenID: 1, Text: "Are you employed?", AnswerKind: strptr(model.AnswerKindBoolean), Position: 1, Version: 1},
		{ID: 2, ScreenID: 1, Text: "Annual income?", AnswerKind: strptr(model.AnswerKindNumber), ParentQuestionID: uintp(1), VisibleIfValue: model.StringList{"true"}, Position: 2, Version: 1},
	}
	rs := &model.ResponseSet{ID: 1, Version: 1}

	// parent answered false: the child is absent, not flagged
	view := buildScreenView(screen, questions, map[uint]model.Answer{1: boolAnswer(1, false)}, rs)
	require.Len(t, view.Questions, 1)
	assert.Equal(t, uint(1), view.Questions[0].ID)
	require.NotNil(t, view.Questions[0].Answer)
	require.NotNil(t, view.Questions[0].Answer.Bool)
	assert.False(t, *view.Questions[0].Answer.Bool)

	// parent answered true: the child appears, unanswered
	view = buildScreenView(screen, questions, map[uint]model.Answer{1: boolAnswer(1, true)}, rs)
	require.Len(t, view.Questions, 2)
	assert.Equal(t, uint(2), view.Questions[1].ID)
	assert.Nil(t, view.Questions[1].Answer)
}

func TestBuildScreenViewEtagTracksResponseSet(t *testing.T) {
	screen := &model.Screen{ID: 1, Key: "s", Title: "S", Position: 1, Version: 1}
	questions := []model.Question{{ID: 1, ScreenID: 1, Position: 1, Version: 1}}

	a := buildScreenView(screen, questions, map[uint]model.Answer{}, &model.ResponseSet{ID: 1, Version: 1})
	b := buildScreenView(screen, questions, map[uint]model.Answer{}, &model.ResponseSet{ID: 1, Version: 2})
	assert.NotEqual(t, a.Etag, b.Etag)
}
