package service

import (
	"encoding/json"
	"math"
	"strconv"

	"github.com/aldertree/questline/internal/apperr"
	"github.com/aldertree/questline/internal/dto"
	"github.com/aldertree/questline/internal/model"
)

// buildTypedAnswer type-checks an incoming value against the question's
// answer_kind and produces the typed row to store. Exactly one value slot
// is populated; any failure aborts before persistence.
func buildTypedAnswer(q *model.Question, req dto.AnswerUpsertDTO) (*model.Answer, error) {
	if q.AnswerKind == nil {
		return nil, apperr.Validation(apperr.CodeAnswerKindUnset, "question has no answer_kind yet")
	}
	answer := &model.Answer{QuestionID: q.ID}

	switch *q.AnswerKind {
	case model.AnswerKindNumber:
		v, err := parseNumber(req.Value)
		if err != nil {
			return nil, err
		}
		answer.ValueNumber = &v

	case model.AnswerKindBoolean:
		// must be a JSON boolean literal, not the string "true"
		var b bool
		if len(req.Value) == 0 || json.Unmarshal(req.Value, &b) != nil {
			return nil, apperr.Validation(apperr.CodeAnswerBoolNotBoolean, "value must be a boolean literal")
		}
		answer.ValueBool = &b

	case model.AnswerKindEnumSingle:
		optionID, err := resolveOption(q, req)
		if err != nil {
			return nil, err
		}
		answer.OptionID = &optionID

	default: // long_text, short_string
		var s string
		if len(req.Value) == 0 || json.Unmarshal(req.Value, &s) != nil {
			return nil, apperr.Validation(apperr.CodeAnswerTextNotString, "value must be a string")
		}
		answer.ValueText = &s
	}
	return answer, nil
}

// parseNumber accepts a JSON number or a numeric string; the result must be
// finite. "Infinity", "NaN" and friends parse but are rejected with the
// dedicated not-finite code.
func parseNumber(raw json.RawMessage) (float64, error) {
	if len(raw) == 0 {
		return 0, apperr.Validation(apperr.CodeAnswerNumberInvalid, "value is required for a number question")
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, apperr.Validation(apperr.CodeAnswerNumberInvalid, "value must be a number")
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, apperr.Validation(apperr.CodeAnswerNumberInvalid, "value must be a number")
		}
		f = parsed
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, apperr.Validation(apperr.CodeAnswerNumberNotFinite, "number value must be finite")
	}
	return f, nil
}

// resolveOption resolves either an explicit option_id or a canonical value
// token to one of the question's options.
func resolveOption(q *model.Question, req dto.AnswerUpsertDTO) (uint, error) {
	if req.OptionID != nil {
		id, err := strconv.ParseUint(*req.OptionID, 10, 32)
		if err != nil || id == 0 {
			return 0, apperr.BadRequest(apperr.CodeAnswerOptionIDMalformed, "option_id is not a well-formed identifier")
		}
		for _, opt := range q.Options {
			if opt.ID == uint(id) {
				return opt.ID, nil
			}
		}
		return 0, apperr.Validation(apperr.CodeAnswerEnumUnknownOption, "option_id does not reference an option of this question")
	}

	var token string
	if len(req.Value) == 0 || json.Unmarshal(req.Value, &token) != nil {
		return 0, apperr.Validation(apperr.CodeAnswerEnumUnknownOption, "value must be an option value token or option_id must be set")
	}
	for _, opt := range q.Options {
		if opt.Value == token {
			return opt.ID, nil
		}
	}
	return 0, apperr.Validation(apperr.CodeAnswerEnumUnknownOption, "value does not match any option of this question")
}
