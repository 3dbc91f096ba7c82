package service

import (
	"testing"

	"github.com/aldertree/questline/internal/model"
	"github.com/stretchr/testify/assert"
)

func TestEntityEtagsRotateWithVersion(t *testing.T) {
	q := &model.Questionnaire{ID: 1, Version: 1}
	before := questionnaireEtag(q)
	q.Version++
	assert.NotEqual(t, before, questionnaireEtag(q))

	rs := &model.ResponseSet{ID: 3, Version: 7}
	rsBefore := responseSetEtag(rs)
	rs.Version++
	assert.NotEqual(t, rsBefore, responseSetEtag(rs))
}

func TestEntityEtagsStableWithoutChange(t *testing.T) {
	s := &model.Screen{ID: 2, Version: 4, Position: 1}
	assert.Equal(t, screenEtag(s), screenEtag(s))
}

func TestScreenEtagCoversPosition(t *testing.T) {
	// a reorder that changes position must rotate the token even when the
	// screen row itself was not otherwise touched
	a := &model.Screen{ID: 2, Version: 4, Position: 1}
	b := &model.Screen{ID: 2, Version: 4, Position: 2}
	assert.NotEqual(t, screenEtag(a), screenEtag(b))
}

func TestEtagsDistinctAcrossEntityTypes(t *testing.T) {
	s := &model.Screen{ID: 1, Version: 1, Position: 1}
	q := &model.Question{ID: 1, Version: 1, Position: 1}
	assert.NotEqual(t, screenEtag(s), questionEtag(q))
}

func TestAnswerEtagAbsentIsVersionZero(t *testing.T) {
	absent := answerEtag(1, 2, 0)
	stored := answerEtag(1, 2, 1)
	assert.NotEqual(t, absent, stored)
	assert.Equal(t, absent, answerEtag(1, 2, 0))
}

func TestScreenViewEtagRotatesWithConstituents(t *testing.T) {
	screen := &model.Screen{ID: 1, Version: 1, Position: 1}
	questions := []model.Question{{ID: 10, Version: 1, Position: 1}}
	rs := &model.ResponseSet{ID: 5, Version: 1}

	base := screenViewEtag(screen, questions, rs)
	assert.Equal(t, base, screenViewEtag(screen, questions, rs))

	rs2 := &model.ResponseSet{ID: 5, Version: 2}
	assert.NotEqual(t, base, screenViewEtag(screen, questions, rs2))

	bumped := []model.Question{{ID: 10, Version: 2, Position: 1}}
	assert.NotEqual(t, base, screenViewEtag(screen, bumped, rs))
}
