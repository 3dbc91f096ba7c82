package model

import (
	"time"

	"gorm.io/gorm"
)

// PlaceholderBinding ties a document placeholder to a question and imposes
// an answer kind on it. A question's answer_kind cannot be changed while a
// binding with a different kind exists; unbinding the last placeholder
// releases the kind.
type PlaceholderBinding struct {
	ID             uint           `gorm:"primarykey" json:"id"`
	QuestionID     uint           `json:"question_id" gorm:"not null;index;uniqueIndex:idx_binding_key"`
	PlaceholderKey string         `json:"placeholder_key" gorm:"not null;uniqueIndex:idx_binding_key"`
	AnswerKind     string         `json:"answer_kind" gorm:"not null"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`
}
