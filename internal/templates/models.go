package templates

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"docflow/approval-engine/internal/approval"
)

// RouteTemplate is a reusable approval route for a document type. Submitting
// a document against a template stamps out a fresh line and steps; editing
// the template afterwards never touches workflows already in flight.
type RouteTemplate struct {
	ID            uuid.UUID     `json:"id" db:"id"`
	Name          string        `json:"name" db:"name"`
	DocumentType  string        `json:"document_type" db:"document_type"`
	IsConditional bool          `json:"is_conditional" db:"is_conditional"`
	Steps         TemplateSteps `json:"steps" db:"steps"`
	IsActive      bool          `json:"is_active" db:"is_active"`
	CreatedAt     time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at" db:"updated_at"`
}

// TemplateStep is one approver slot in a template. DueInHours of zero means
// the materialized step carries no deadline.
type TemplateStep struct {
	ApproverID uuid.UUID         `json:"approver_id"`
	StepOrder  int               `json:"step_order"`
	StepType   approval.StepType `json:"step_type"`
	IsRequired bool              `json:"is_required"`
	IsParallel bool              `json:"is_parallel"`
	OneOfGroup bool              `json:"one_of_group"`
	DueInHours int               `json:"due_in_hours,omitempty"`
}

// TemplateSteps is stored as a jsonb column.
type TemplateSteps []TemplateStep

func (s TemplateSteps) Value() (driver.Value, error) {
	return json.Marshal(s)
}

func (s *TemplateSteps) Scan(src interface{}) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, s)
	case string:
		return json.Unmarshal([]byte(v), s)
	case nil:
		*s = nil
		return nil
	default:
		return fmt.Errorf("unsupported template steps column type %T", src)
	}
}
