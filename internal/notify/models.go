package notify

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// SentNotification records one delivered workflow notification.
type SentNotification struct {
	ID          uuid.UUID      `json:"id" gorm:"primaryKey;type:uuid"`
	LineID      uuid.UUID      `json:"line_id" gorm:"type:uuid;index"`
	DocumentID  uuid.UUID      `json:"document_id" gorm:"type:uuid;index"`
	StepID      uuid.UUID      `json:"step_id" gorm:"type:uuid"`
	Kind        string         `json:"kind" gorm:"size:50;not null;index"`
	RecipientID uuid.UUID      `json:"recipient_id" gorm:"type:uuid;index"`
	Payload     datatypes.JSON `json:"payload" gorm:"type:jsonb"`
	SentAt      time.Time      `json:"sent_at" gorm:"not null"`
}

func (SentNotification) TableName() string {
	return "sent_notifications"
}
