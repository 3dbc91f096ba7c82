package model

import (
	"time"

	"gorm.io/gorm"
)

type Questionnaire struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	Name      string         `json:"name" gorm:"not null;uniqueIndex"`
	Version   int            `json:"-" gorm:"not null;default:1"`
	Screens   []Screen       `json:"screens,omitempty" gorm:"foreignKey:QuestionnaireID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}
