package model

import (
	"time"

	"gorm.io/gorm"
)

// Screen is an ordered grouping of questions within a questionnaire.
// Position is 1-based and contiguous across the questionnaire's screens.
type Screen struct {
	ID              uint           `gorm:"primarykey" json:"id"`
	QuestionnaireID uint           `json:"questionnaire_id" gorm:"not null;index;uniqueIndex:idx_screen_key"`
	Key             string         `json:"key" gorm:"not null;uniqueIndex:idx_screen_key"`
	Title           string         `json:"title" gorm:"not null"`
	Position        int            `json:"position" gorm:"not null"`
	Version         int            `json:"-" gorm:"not null;default:1"`
	Questions       []Question     `json:"questions,omitempty" gorm:"foreignKey:ScreenID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"-"`
}
