package dto

type QuestionCreateDTO struct {
	Text       string  `json:"text" binding:"required"`
	AnswerKind *string `json:"answer_kind" binding:"omitempty,oneof=boolean enum_single long_text number short_string"`
	Mandatory  bool    `json:"mandatory"`
	Position   *int    `json:"position"`
}

// QuestionPatchDTO updates a question. ClearParent detaches the question
// from its parent (and clears visible_if_value); it cannot be combined with
// ParentQuestionID.
type QuestionPatchDTO struct {
	Text             *string  `json:"text"`
	Mandatory        *bool    `json:"mandatory"`
	AnswerKind       *string  `json:"answer_kind" binding:"omitempty,oneof=boolean enum_single long_text number short_string"`
	ParentQuestionID *uint    `json:"parent_question_id"`
	ClearParent      bool     `json:"clear_parent"`
	VisibleIfValue   []string `json:"visible_if_value"`
}

// QuestionMoveDTO repositions a question. ScreenID, when set, moves the
// question to another screen of the same questionnaire.
type QuestionMoveDTO struct {
	Position int   `json:"position" binding:"required,min=1"`
	ScreenID *uint `json:"screen_id"`
}

type OptionCreateDTO struct {
	Value string `json:"value" binding:"required"`
	Label string `json:"label" binding:"required"`
}

// OptionsReplaceDTO replaces the full option set of an enum_single
// question; sort order is the slice order.
type OptionsReplaceDTO struct {
	Options []OptionCreateDTO `json:"options" binding:"required,min=1,dive"`
}

type BindingCreateDTO struct {
	PlaceholderKey string `json:"placeholder_key" binding:"required"`
	AnswerKind     string `json:"answer_kind" binding:"required,oneof=boolean enum_single long_text number short_string"`
}

type OptionDTO struct {
	ID        uint   `json:"id"`
	Value     string `json:"value"`
	Label     string `json:"label"`
	SortIndex int    `json:"sort_index"`
}

type QuestionResponseDTO struct {
	ID               uint        `json:"id"`
	ScreenID         uint        `json:"screen_id"`
	Text             string      `json:"text"`
	AnswerKind       *string     `json:"answer_kind,omitempty"`
	Mandatory        bool        `json:"mandatory"`
	Position         int         `json:"position"`
	ParentQuestionID *uint       `json:"parent_question_id,omitempty"`
	VisibleIfValue   []string    `json:"visible_if_value,omitempty"`
	Options          []OptionDTO `json:"options,omitempty"`
	Etag             string      `json:"etag"`
}

type BindingResponseDTO struct {
	ID             uint   `json:"id"`
	QuestionID     uint   `json:"question_id"`
	PlaceholderKey string `json:"placeholder_key"`
	AnswerKind     string `json:"answer_kind"`
}
