package dto

// ScreenCreateDTO creates a screen inside a questionnaire. Position, when
// given, must fall in [1..N+1]; omitted means append.
type ScreenCreateDTO struct {
	Key      string `json:"key" binding:"required"`
	Title    string `json:"title" binding:"required"`
	Position *int   `json:"position"`
}

type ScreenPatchDTO struct {
	Key   *string `json:"key"`
	Title *string `json:"title"`
}

type ScreenMoveDTO struct {
	Position int `json:"position" binding:"required,min=1"`
}

type ScreenResponseDTO struct {
	ID              uint                  `json:"id"`
	QuestionnaireID uint                  `json:"questionnaire_id"`
	Key             string                `json:"key"`
	Title           string                `json:"title"`
	Position        int                   `json:"position"`
	Etag            string                `json:"etag"`
	Questions       []QuestionResponseDTO `json:"questions,omitempty"`
}

// ScreenViewDTO is the response-set-scoped projection of a screen: only
// currently visible questions appear, each with its stored answer if any.
type ScreenViewDTO struct {
	ScreenID  uint                 `json:"screen_id"`
	Key       string               `json:"key"`
	Title     string               `json:"title"`
	Etag      string               `json:"etag"`
	Questions []VisibleQuestionDTO `json:"questions"`
}

type VisibleQuestionDTO struct {
	ID         uint            `json:"id"`
	Text       string          `json:"text"`
	AnswerKind *string         `json:"answer_kind,omitempty"`
	Mandatory  bool            `json:"mandatory"`
	Position   int             `json:"position"`
	Options    []OptionDTO     `json:"options,omitempty"`
	Answer     *AnswerValueDTO `json:"answer,omitempty"`
}
