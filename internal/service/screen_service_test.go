package service

import (
	"net/http"
	"testing"

	"github.com/aldertree/questline/internal/apperr"
	"github.com/aldertree/questline/internal/dto"
	"github.com/aldertree/questline/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixture: questionnaire 1 holds screens 1 and 2; questions 1 and 2 live
// on screen 1.
func newScreenFixture() (*stubScreenRepo, ScreenService) {
	questionnaires := &stubQuestionnaireRepo{questionnaires: map[uint]*model.Questionnaire{
		1: {ID: 1, Name: "Onboarding", Version: 1},
	}}
	screens := &stubScreenRepo{screens: map[uint]*model.Screen{
		1: {ID: 1, QuestionnaireID: 1, Key: "about-you", Title: "About you", Position: 1, Version: 1},
		2: {ID: 2, QuestionnaireID: 1, Key: "finances", Title: "Finances", Position: 2, Version: 1},
	}}
	questions := &stubQuestionRepo{questions: map[uint]*model.Question{
		1: {ID: 1, ScreenID: 1, Text: "Are you employed?", AnswerKind: strptr(model.AnswerKindBoolean), Position: 1, Version: 1},
		2: {ID: 2, ScreenID: 1, Text: "Employer name?", ParentQuestionID: uintp(1), VisibleIfValue: model.StringList{"true"}, Position: 2, Version: 1},
	}}
	svc := NewScreenService(questionnaires, screens, questions, &stubAnswerRepo{}, nil)
	return screens, svc
}

func screenIfMatch(repo *stubScreenRepo, id uint) string {
	return screenEtag(repo.screens[id])
}

func TestPatchScreenRequiresIfMatch(t *testing.T) {
	_, svc := newScreenFixture()

	_, err := svc.PatchScreen(1, "", dto.ScreenPatchDTO{Title: strptr("x")})
	require.Error(t, err)
	p, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusPreconditionRequired, p.Status)
	assert.Equal(t, apperr.CodeIfMatchMissing, p.Code)
}

func TestPatchScreenLockedRecheckRejectsStaleToken(t *testing.T) {
	screens, svc := newScreenFixture()
	impl := svc.(*screenService)
	questionnaires := impl.questionnaireRepo.(*stubQuestionnaireRepo)

	token := screenIfMatch(screens, 1)
	// a concurrent patch commits between the unlocked read and the lock
	screens.screens[1].Version++

	_, err := impl.patchScreenInTx(nil, 1, 1, token, dto.ScreenPatchDTO{Title: strptr("x")})
	require.Error(t, err)
	p, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusPreconditionFailed, p.Status)
	assert.Zero(t, screens.updates)
	assert.Equal(t, 1, questionnaires.locks)
}

func TestPatchScreenLockedRecheckRejectsConcurrentDuplicateKey(t *testing.T) {
	screens, svc := newScreenFixture()
	impl := svc.(*screenService)

	// a sibling claims the key first; the scan under the lock must see it
	req := dto.ScreenPatchDTO{Key: strptr("household")}
	screens.screens[2].Key = "household"

	_, err := impl.patchScreenInTx(nil, 1, 1, screenIfMatch(screens, 1), req)
	require.Error(t, err)
	p, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusConflict, p.Status)
	assert.Equal(t, apperr.CodeScreenKeyDuplicate, p.Code)
	assert.Zero(t, screens.updates)
}

func TestMoveScreenLockedRecheckRejectsStaleToken(t *testing.T) {
	screens, svc := newScreenFixture()
	impl := svc.(*screenService)

	token := screenIfMatch(screens, 1)
	screens.screens[1].Version++

	err := impl.moveScreenInTx(nil, 1, 1, token, dto.ScreenMoveDTO{Position: 2})
	require.Error(t, err)
	p, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusPreconditionFailed, p.Status)
}

func TestDeleteScreenCascadesQuestionsAndAnswers(t *testing.T) {
	screens, svc := newScreenFixture()
	impl := svc.(*screenService)
	questions := impl.questionRepo.(*stubQuestionRepo)
	answers := impl.answerRepo.(*stubAnswerRepo)
	answers.answers = map[uint]*model.Answer{
		1: {ID: 5, ResponseSetID: 1, QuestionID: 1, Version: 1},
		2: {ID: 6, ResponseSetID: 1, QuestionID: 2, Version: 1},
	}

	err := impl.deleteScreenInTx(nil, 1, 1, screenIfMatch(screens, 1))
	require.NoError(t, err)
	assert.ElementsMatch(t, []uint{1, 2}, answers.cleared)
	assert.Empty(t, answers.answers, "stored answers must not survive their screen")
	assert.ElementsMatch(t, []uint{1, 2}, questions.cascaded)
	assert.Equal(t, []uint{1}, screens.deleted)
	assert.NotContains(t, screens.screens, uint(1))
}
