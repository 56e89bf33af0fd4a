package model

import (
	"time"

	"gorm.io/datatypes"
)

// Conversation stores one thread's state as an encoded payload. HistoryLength
// is kept outside the payload so saves can be checked without decoding.
type Conversation struct {
	ThreadId      string         `gorm:"type:text;primaryKey"`
	Payload       datatypes.JSON `gorm:"type:jsonb;not null"`
	Sealed        bool           `gorm:"not null;default:false"`
	HistoryLength int            `gorm:"not null;default:0"`
	CreatedAt     time.Time      `gorm:"autoCreateTime"`
	UpdatedAt     time.Time      `gorm:"autoUpdateTime"`
}

func (Conversation) TableName() string {
	return "conversations"
}
