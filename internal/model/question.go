package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"
)

// Canonical answer kinds. AnswerKind stays nil until set explicitly or
// inferred by a placeholder binding.
const (
	AnswerKindBoolean     = "boolean"
	AnswerKindEnumSingle  = "enum_single"
	AnswerKindLongText    = "long_text"
	AnswerKindNumber      = "number"
	AnswerKindShortString = "short_string"
)

// StringList is a JSON-encoded text column holding canonical value tokens.
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return nil, nil
	}
	b, err := json.Marshal(l)
	return string(b), err
}

func (l *StringList) Scan(src interface{}) error {
	if src == nil {
		*l = nil
		return nil
	}
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	default:
		return errors.New("StringList: unsupported scan source")
	}
}

// Question belongs to a screen. Position is 1-based and contiguous within
// the screen. A question with ParentQuestionID set is visible only while the
// parent's canonical answer is a member of VisibleIfValue; the parent graph
// within a questionnaire must stay acyclic.
type Question struct {
	ID               uint           `gorm:"primarykey" json:"id"`
	ScreenID         uint           `json:"screen_id" gorm:"not null;index"`
	Text             string         `json:"text" gorm:"type:text;not null"`
	AnswerKind       *string        `json:"answer_kind,omitempty"`
	Mandatory        bool           `json:"mandatory"`
	Position         int            `json:"position" gorm:"not null"`
	ParentQuestionID *uint          `json:"parent_question_id,omitempty" gorm:"index"`
	VisibleIfValue   StringList     `json:"visible_if_value,omitempty" gorm:"type:text"`
	Options          []AnswerOption `json:"options,omitempty" gorm:"foreignKey:QuestionID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	Version          int            `json:"-" gorm:"not null;default:1"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
	DeletedAt        gorm.DeletedAt `gorm:"index" json:"-"`
}

// ValidAnswerKind reports whether s is one of the canonical kinds.
func ValidAnswerKind(s string) bool {
	switch s {
	case AnswerKindBoolean, AnswerKindEnumSingle, AnswerKindLongText, AnswerKindNumber, AnswerKindShortString:
		return true
	}
	return false
}
