package model

import (
	"time"

	"gorm.io/gorm"
)

// AnswerOption is a selectable choice for an enum_single question.
// Value is the canonical token used in visibility comparisons; SortIndex is
// 1-based and contiguous per question.
type AnswerOption struct {
	ID         uint           `gorm:"primarykey" json:"id"`
	QuestionID uint           `json:"question_id" gorm:"not null;index;uniqueIndex:idx_option_value"`
	Value      string         `json:"value" gorm:"not null;uniqueIndex:idx_option_value"`
	Label      string         `json:"label" gorm:"not null"`
	SortIndex  int            `json:"sort_index" gorm:"not null"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"-"`
}
