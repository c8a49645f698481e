package documents

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type DocumentStatus string

const (
	StatusDraft    DocumentStatus = "draft"
	StatusInReview DocumentStatus = "in_review"
	StatusApproved DocumentStatus = "approved"
	StatusRejected DocumentStatus = "rejected"
	StatusReturned DocumentStatus = "returned"
)

type DocumentType string

const (
	TypeInvoice       DocumentType = "INVOICE"
	TypePurchaseOrder DocumentType = "PURCHASE_ORDER"
	TypeContract      DocumentType = "CONTRACT"
	TypeExpenseReport DocumentType = "EXPENSE_REPORT"
)

// Document is the registry record an approval line attaches to. Status
// mirrors the active workflow and is refreshed from it; the workflow, not
// this row, is the source of truth while a line is in flight.
type Document struct {
	ID             uuid.UUID       `json:"id" db:"id"`
	Name           string          `json:"name" db:"name"`
	Description    string          `json:"description" db:"description"`
	DocumentType   DocumentType    `json:"document_type" db:"document_type"`
	Status         DocumentStatus  `json:"status" db:"status"`
	CurrentLineID  *uuid.UUID      `json:"current_line_id,omitempty" db:"current_line_id"`
	CurrentVersion int             `json:"current_version" db:"current_version"`
	SubmittedBy    uuid.UUID       `json:"submitted_by" db:"submitted_by"`
	Metadata       json.RawMessage `json:"metadata,omitempty" db:"metadata"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at" db:"updated_at"`
}

// DocumentVersion records one submission of a document's content. A return
// and resubmit bumps the version.
type DocumentVersion struct {
	ID            uuid.UUID `json:"id" db:"id"`
	DocumentID    uuid.UUID `json:"document_id" db:"document_id"`
	VersionNumber int       `json:"version_number" db:"version_number"`
	ChangeSummary string    `json:"change_summary" db:"change_summary"`
	SubmittedBy   uuid.UUID `json:"submitted_by" db:"submitted_by"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}
