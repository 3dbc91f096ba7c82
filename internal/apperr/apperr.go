package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Machine-readable problem codes. PRE_* failures are detected before any
// write and are recoverable by the client; RUN_* failures happen during
// apply and roll the whole transaction back.
const (
	CodeIfMatchMissing  = "PRE_IF_MATCH_MISSING"
	CodeIfMatchMismatch = "PRE_IF_MATCH_ETAG_MISMATCH"

	CodeQuestionnaireNotFound = "PRE_QUESTIONNAIRE_NOT_FOUND"
	CodeScreenNotFound        = "PRE_SCREEN_NOT_FOUND"
	CodeQuestionNotFound      = "PRE_QUESTION_NOT_FOUND"
	CodeResponseSetNotFound   = "PRE_RESPONSE_SET_NOT_FOUND"

	CodeQuestionnaireNameDuplicate = "PRE_QUESTIONNAIRE_NAME_DUPLICATE"
	CodeScreenKeyDuplicate         = "PRE_SCREEN_KEY_DUPLICATE"
	CodeScreenTitleDuplicate       = "PRE_SCREEN_TITLE_DUPLICATE"
	CodeOptionValueDuplicate       = "PRE_OPTION_VALUE_DUPLICATE"

	CodeScreenPositionOutOfRange   = "PRE_SCREEN_POSITION_OUT_OF_RANGE"
	CodeQuestionPositionOutOfRange = "PRE_QUESTION_POSITION_OUT_OF_RANGE"
	CodeMoveCrossQuestionnaire     = "PRE_MOVE_CROSS_QUESTIONNAIRE"

	CodeQuestionParentCycle    = "PRE_QUESTION_PARENT_CYCLE"
	CodeQuestionParentUnknown  = "PRE_QUESTION_PARENT_UNKNOWN"
	CodeQuestionModelConflict  = "PRE_QUESTION_MODEL_CONFLICT"
	CodeAnswerKindInvalid      = "PRE_QUESTION_ANSWER_KIND_INVALID"
	CodeOptionsKindNotEnum     = "PRE_OPTIONS_KIND_NOT_ENUM"
	CodeBindingKindConflict    = "PRE_BINDING_ANSWER_KIND_CONFLICT"
	CodeBindingNotFound        = "PRE_BINDING_NOT_FOUND"

	CodeAnswerKindUnset          = "PRE_ANSWER_PATCH_KIND_UNSET"
	CodeAnswerNumberNotFinite    = "PRE_ANSWER_PATCH_VALUE_NUMBER_NOT_FINITE"
	CodeAnswerNumberInvalid      = "PRE_ANSWER_PATCH_VALUE_NUMBER_INVALID"
	CodeAnswerBoolNotBoolean     = "PRE_ANSWER_PATCH_VALUE_BOOL_NOT_BOOLEAN"
	CodeAnswerEnumUnknownOption  = "PRE_ANSWER_PATCH_VALUE_ENUM_UNKNOWN_OPTION"
	CodeAnswerOptionIDMalformed  = "PRE_ANSWER_PATCH_OPTION_ID_MALFORMED"
	CodeAnswerTextNotString      = "PRE_ANSWER_PATCH_VALUE_TEXT_NOT_STRING"
	CodeBatchItemEtagMismatch    = "PRE_BATCH_ITEM_ETAG_MISMATCH"
	CodeIdempotencyFingerprint   = "PRE_IDEMPOTENCY_KEY_FINGERPRINT_MISMATCH"
	CodeIdempotencyInFlight      = "PRE_IDEMPOTENCY_KEY_IN_FLIGHT"

	CodeStorageFailure   = "RUN_STORAGE_FAILURE"
	CodeReorderFailed    = "RUN_REORDER_FAILED"
	CodeSaveAnswerFailed = "RUN_SAVE_ANSWER_FAILED"
)

// Problem is the structured error carried from services to controllers.
type Problem struct {
	Status int    `json:"-"`
	Code   string `json:"code"`
	Title  string `json:"title"`
	Detail string `json:"detail,omitempty"`
	cause  error
}

func (p *Problem) Error() string {
	if p.Detail == "" {
		return fmt.Sprintf("%s: %s", p.Code, p.Title)
	}
	return fmt.Sprintf("%s: %s: %s", p.Code, p.Title, p.Detail)
}

func (p *Problem) Unwrap() error { return p.cause }

func New(status int, code, title, detail string) *Problem {
	return &Problem{Status: status, Code: code, Title: title, Detail: detail}
}

func NotFound(code, detail string) *Problem {
	return New(http.StatusNotFound, code, "Resource not found", detail)
}

func Validation(code, detail string) *Problem {
	return New(http.StatusUnprocessableEntity, code, "Validation failed", detail)
}

func BadRequest(code, detail string) *Problem {
	return New(http.StatusBadRequest, code, "Malformed request", detail)
}

func Conflict(code, detail string) *Problem {
	return New(http.StatusConflict, code, "Conflict", detail)
}

// PreconditionRequired signals a missing If-Match on an operation that
// mandates one.
func PreconditionRequired(detail string) *Problem {
	return New(http.StatusPreconditionRequired, CodeIfMatchMissing, "If-Match header required", detail)
}

// PreconditionFailed signals a present-but-stale If-Match token. Answer
// mutations report these as 409 (the token names a business-level conflict
// with a concurrent writer); structural authoring keeps the classic 412.
func PreconditionFailed(status int, detail string) *Problem {
	return New(status, CodeIfMatchMismatch, "ETag mismatch", detail)
}

// Runtime wraps a storage-layer failure during apply. The enclosing
// transaction has been rolled back by the time this surfaces.
func Runtime(code string, cause error) *Problem {
	return &Problem{
		Status: http.StatusInternalServerError,
		Code:   code,
		Title:  "Request could not be applied",
		Detail: cause.Error(),
		cause:  cause,
	}
}

// As extracts a *Problem from an error chain.
func As(err error) (*Problem, bool) {
	var p *Problem
	if errors.As(err, &p) {
		return p, true
	}
	return nil, false
}
