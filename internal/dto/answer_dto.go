package dto

import (
	"encoding/json"
	"time"
)

type ResponseSetCreateDTO struct {
	QuestionnaireID uint `json:"questionnaire_id" binding:"required"`
	CompanyID       uint `json:"company_id" binding:"required"`
}

type ResponseSetResponseDTO struct {
	ID              uint      `json:"id"`
	Token           string    `json:"token"`
	QuestionnaireID uint      `json:"questionnaire_id"`
	CompanyID       uint      `json:"company_id"`
	Etag            string    `json:"etag"`
	CreatedAt       time.Time `json:"created_at"`
}

// AnswerUpsertDTO carries the raw value of an answer PATCH. Value is kept
// raw so the coordinator can type-check it against the question's
// answer_kind; OptionID is a string so malformed identifiers can be
// reported distinctly from unknown ones.
type AnswerUpsertDTO struct {
	Value    json.RawMessage `json:"value"`
	OptionID *string         `json:"option_id"`
}

type AnswerValueDTO struct {
	Number     *float64  `json:"number,omitempty"`
	Bool       *bool     `json:"bool,omitempty"`
	Text       *string   `json:"text,omitempty"`
	OptionID   *uint     `json:"option_id,omitempty"`
	AnsweredAt time.Time `json:"answered_at"`
}

// VisibilityDeltaDTO lists questions whose visibility flipped as a result
// of one mutation. Both slices are always present, empty when unchanged.
type VisibilityDeltaDTO struct {
	NowVisible []uint `json:"now_visible"`
	NowHidden  []uint `json:"now_hidden"`
}

type AnswerSaveResponseDTO struct {
	Saved             bool               `json:"saved"`
	Etag              string             `json:"etag"`
	ScreenView        ScreenViewDTO      `json:"screen_view"`
	VisibilityDelta   VisibilityDeltaDTO `json:"visibility_delta"`
	SuppressedAnswers []uint             `json:"suppressed_answers"`
}

type BatchItemDTO struct {
	QuestionID uint            `json:"question_id" binding:"required"`
	Etag       string          `json:"etag" binding:"required"`
	Value      json.RawMessage `json:"value"`
	OptionID   *string         `json:"option_id"`
}

type BatchUpsertDTO struct {
	Items []BatchItemDTO `json:"items" binding:"required,min=1,dive"`
}

const (
	BatchOutcomeSuccess = "success"
	BatchOutcomeError   = "error"
)

// BatchItemResultDTO reports one item's outcome; items come back in input
// order regardless of individual failures.
type BatchItemResultDTO struct {
	QuestionID uint             `json:"question_id"`
	Outcome    string           `json:"outcome"`
	Etag       string           `json:"etag,omitempty"`
	Problem    *ProblemResponse `json:"problem,omitempty"`
}

type BatchUpsertResponseDTO struct {
	Items []BatchItemResultDTO `json:"items"`
	Etag  string               `json:"etag"`
}
