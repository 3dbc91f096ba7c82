package dto

import "time"

type QuestionnaireCreateDTO struct {
	Name string `json:"name" binding:"required"`
}

type QuestionnaireResponseDTO struct {
	ID        uint                `json:"id"`
	Name      string              `json:"name"`
	Etag      string              `json:"etag"`
	Screens   []ScreenResponseDTO `json:"screens,omitempty"`
	CreatedAt time.Time           `json:"created_at"`
}

// QuestionnaireSummaryDTO is used for listing questionnaires.
type QuestionnaireSummaryDTO struct {
	ID          uint      `json:"id"`
	Name        string    `json:"name"`
	ScreenCount int       `json:"screen_count"`
	CreatedAt   time.Time `json:"created_at"`
}
