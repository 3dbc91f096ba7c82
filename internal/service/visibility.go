package service

import (
	"strconv"

	"github.com/aldertree/questline/internal/model"
)

// Visibility engine: a question's Visible/Hidden state is never persisted,
// it is recomputed from the current answers on demand. A root question is
// always visible; a child is visible iff its parent is visible and the
// parent's canonical answer token is a member of visible_if_value. Hiding
// a parent hides all descendants regardless of their own rules.

// canonicalAnswerValue normalizes a stored answer to the token form used in
// visibility comparisons: "true"/"false" for booleans, the option value
// token for enum_single, the shortest decimal form for numbers, the literal
// text otherwise.
func canonicalAnswerValue(q model.Question, a model.Answer) (string, bool) {
	if q.AnswerKind == nil {
		return "", false
	}
	switch *q.AnswerKind {
	case model.AnswerKindBoolean:
		if a.ValueBool == nil {
			return "", false
		}
		return strconv.FormatBool(*a.ValueBool), true
	case model.AnswerKindEnumSingle:
		if a.OptionID == nil {
			return "", false
		}
		for _, opt := range q.Options {
			if opt.ID == *a.OptionID {
				return opt.Value, true
			}
		}
		return "", false
	case model.AnswerKindNumber:
		if a.ValueNumber == nil {
			return "", false
		}
		return strconv.FormatFloat(*a.ValueNumber, 'f', -1, 64), true
	default:
		if a.ValueText == nil {
			return "", false
		}
		return *a.ValueText, true
	}
}

// visibleSet computes the set of visible question ids for the given
// questions and stored answers. Questions are resolved by dependency order
// (parent before child) via memoized walks, since display position does not
// guarantee parent-before-child. A trail set bounds the walk so a corrupt
// parent cycle cannot recurse forever.
func visibleSet(questions []model.Question, answers map[uint]model.Answer) map[uint]bool {
	byID := make(map[uint]model.Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}

	memo := make(map[uint]bool, len(questions))
	var resolve func(id uint, trail map[uint]bool) bool
	resolve = func(id uint, trail map[uint]bool) bool {
		if v, ok := memo[id]; ok {
			return v
		}
		q, ok := byID[id]
		if !ok {
			return false
		}
		if q.ParentQuestionID == nil {
			memo[id] = true
			return true
		}
		if trail[id] {
			// cycle guard; cycles are rejected at write time
			return false
		}
		trail[id] = true

		visible := false
		if resolve(*q.ParentQuestionID, trail) {
			if parent, ok := byID[*q.ParentQuestionID]; ok {
				if a, answered := answers[parent.ID]; answered {
					if token, ok := canonicalAnswerValue(parent, a); ok {
						for _, want := range q.VisibleIfValue {
							if want == token {
								visible = true
								break
							}
						}
					}
				}
			}
		}
		memo[id] = visible
		return visible
	}

	result := make(map[uint]bool, len(questions))
	for _, q := range questions {
		if resolve(q.ID, map[uint]bool{}) {
			result[q.ID] = true
		}
	}
	return result
}

// visibilityDelta diffs two answer states. now_visible holds questions that
// flipped Hidden→Visible, now_hidden the reverse, both in question display
// order. Slices are always non-nil so responses never omit the delta.
func visibilityDelta(questions []model.Question, before, after map[uint]model.Answer) (nowVisible, nowHidden []uint) {
	visBefore := visibleSet(questions, before)
	visAfter := visibleSet(questions, after)

	nowVisible = []uint{}
	nowHidden = []uint{}
	for _, q := range questions {
		switch {
		case !visBefore[q.ID] && visAfter[q.ID]:
			nowVisible = append(nowVisible, q.ID)
		case visBefore[q.ID] && !visAfter[q.ID]:
			nowHidden = append(nowHidden, q.ID)
		}
	}
	return nowVisible, nowHidden
}

// suppressedAnswers filters now_hidden down to questions that still hold a
// stored answer. Those answers stay in storage, excluded from projections,
// and reappear unchanged if visibility reverts.
func suppressedAnswers(nowHidden []uint, answers map[uint]model.Answer) []uint {
	suppressed := []uint{}
	for _, id := range nowHidden {
		if _, ok := answers[id]; ok {
			suppressed = append(suppressed, id)
		}
	}
	return suppressed
}

// wouldCreateParentCycle reports whether relinking child under newParent
// closes a loop in the parent graph. The walk is bounded by a visited set.
func wouldCreateParentCycle(questions []model.Question, childID, newParentID uint) bool {
	if childID == newParentID {
		return true
	}
	parents := make(map[uint]*uint, len(questions))
	for _, q := range questions {
		parents[q.ID] = q.ParentQuestionID
	}
	visited := map[uint]bool{childID: true}
	cur := newParentID
	for {
		if visited[cur] {
			return true
		}
		visited[cur] = true
		next, ok := parents[cur]
		if !ok || next == nil {
			return false
		}
		cur = *next
	}
}
