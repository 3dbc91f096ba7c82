package model

import (
	"time"

	"gorm.io/gorm"
)

// ResponseSet collects one company's answers to a questionnaire. Version
// covers the aggregate answer state and feeds the response-set ETag.
type ResponseSet struct {
	ID              uint           `gorm:"primarykey" json:"id"`
	Token           string         `json:"token" gorm:"not null;uniqueIndex"`
	QuestionnaireID uint           `json:"questionnaire_id" gorm:"not null;index"`
	CompanyID       uint           `json:"company_id" gorm:"not null;index"`
	Version         int            `json:"-" gorm:"not null;default:1"`
	Answers         []Answer       `json:"answers,omitempty" gorm:"foreignKey:ResponseSetID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"-"`
}
