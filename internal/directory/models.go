package directory

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// User is a directory entry for an approver.
type User struct {
	ID          uuid.UUID `json:"id" gorm:"primaryKey;type:uuid"`
	DisplayName string    `json:"display_name" gorm:"size:200;not null"`
	Email       string    `json:"email" gorm:"size:200;not null;uniqueIndex"`
	Department  string    `json:"department" gorm:"size:100"`
	IsActive    bool      `json:"is_active" gorm:"not null;default:true"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

// Delegation redirects one user's pending approvals to another for a bounded
// window. Revoked delegations are kept for the audit trail.
type Delegation struct {
	ID         uuid.UUID      `json:"id" gorm:"primaryKey;type:uuid"`
	FromUserID uuid.UUID      `json:"from_user_id" gorm:"type:uuid;not null;index"`
	ToUserID   uuid.UUID      `json:"to_user_id" gorm:"type:uuid;not null;index"`
	StartDate  time.Time      `json:"start_date" gorm:"not null"`
	EndDate    time.Time      `json:"end_date" gorm:"not null"`
	Reason     string         `json:"reason" gorm:"type:text"`
	IsActive   bool           `json:"is_active" gorm:"not null;default:true"`
	Metadata   datatypes.JSON `json:"metadata,omitempty" gorm:"type:jsonb"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

func (Delegation) TableName() string {
	return "delegations"
}
