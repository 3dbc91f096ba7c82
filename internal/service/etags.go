package service

import (
	"strconv"

	"github.com/aldertree/questline/internal/etag"
	"github.com/aldertree/questline/internal/model"
)

// Per-entity token derivation. Tokens come from persisted version counters,
// never wall-clock time, so two rotations within the same instant still
// produce distinct tokens.

func questionnaireEtag(q *model.Questionnaire) string {
	return etag.Compute(etag.DomainQuestionnaire, itoa(q.ID), strconv.Itoa(q.Version))
}

// screenEtag covers the screen's own state plus its membership/order, which
// Position carries.
func screenEtag(s *model.Screen) string {
	return etag.Compute(etag.DomainScreen, itoa(s.ID), strconv.Itoa(s.Version), strconv.Itoa(s.Position))
}

func questionEtag(q *model.Question) string {
	return etag.Compute(etag.DomainQuestion, itoa(q.ID), strconv.Itoa(q.Version), strconv.Itoa(q.Position))
}

// responseSetEtag is the aggregate token over a response set's answers; any
// answer mutation bumps the set's version.
func responseSetEtag(rs *model.ResponseSet) string {
	return etag.Compute(etag.DomainResponseSet, itoa(rs.ID), strconv.Itoa(rs.Version))
}

// answerEtag is the per-question token used by batch item preconditions.
// An absent answer has version 0.
func answerEtag(responseSetID, questionID uint, version int) string {
	return etag.Compute(etag.DomainAnswer, itoa(responseSetID), itoa(questionID), strconv.Itoa(version))
}

// screenViewEtag combines the screen, its questions and the response-set
// aggregate so any constituent change rotates the composite.
func screenViewEtag(s *model.Screen, questions []model.Question, rs *model.ResponseSet) string {
	tokens := make([]string, 0, len(questions)+2)
	tokens = append(tokens, screenEtag(s))
	for i := range questions {
		tokens = append(tokens, questionEtag(&questions[i]))
	}
	tokens = append(tokens, responseSetEtag(rs))
	return etag.Combine(etag.DomainScreenView, tokens...)
}

func itoa(v uint) string {
	return strconv.FormatUint(uint64(v), 10)
}
