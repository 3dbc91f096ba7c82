package model

import (
	"time"

	"gorm.io/gorm"
)

// Answer is the single stored value for a (response set, question) pair.
// Exactly one of the typed slots is populated, chosen by the question's
// answer_kind at write time. A suppressed answer (its question currently
// hidden by visibility rules) stays stored; it is only excluded from
// visible projections.
type Answer struct {
	ID            uint           `gorm:"primarykey" json:"id"`
	ResponseSetID uint           `json:"response_set_id" gorm:"not null;index;uniqueIndex:idx_answer_rs_question"`
	QuestionID    uint           `json:"question_id" gorm:"not null;index;uniqueIndex:idx_answer_rs_question"`
	ValueNumber   *float64       `json:"value_number,omitempty"`
	ValueBool     *bool          `json:"value_bool,omitempty"`
	ValueText     *string        `json:"value_text,omitempty" gorm:"type:text"`
	OptionID      *uint          `json:"option_id,omitempty"`
	Version       int            `json:"-" gorm:"not null;default:1"`
	AnsweredAt    time.Time      `json:"answered_at" gorm:"autoUpdateTime"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`
}
