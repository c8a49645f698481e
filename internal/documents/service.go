package documents

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"docflow/approval-engine/internal/approval"
)

var (
	ErrNotSubmittable = errors.New("document cannot be submitted in its current status")
	ErrNotReturned    = errors.New("only returned documents can be resubmitted")
	ErrNoRoute        = errors.New("a template or an explicit step list is required")
)

// WorkflowEngine is the slice of the approval engine the registry needs.
type WorkflowEngine interface {
	Start(ctx context.Context, line approval.ApprovalLine, steps []approval.ApprovalStep) (*approval.WorkflowState, error)
	Resubmit(ctx context.Context, documentID uuid.UUID, line approval.ApprovalLine, steps []approval.ApprovalStep) (*approval.WorkflowState, error)
	State(ctx context.Context, lineID uuid.UUID) (*approval.WorkflowState, error)
}

// RouteSource materializes a route template into a line and steps.
type RouteSource interface {
	Materialize(ctx context.Context, templateID, documentID uuid.UUID, at time.Time) (approval.ApprovalLine, []approval.ApprovalStep, error)
}

type Service interface {
	CreateDocument(ctx context.Context, req CreateRequest) (*Document, error)
	GetDocument(ctx context.Context, id uuid.UUID) (*Document, error)
	ListDocuments(ctx context.Context, docType *DocumentType, status *DocumentStatus) ([]Document, error)

	Submit(ctx context.Context, id uuid.UUID, req SubmitRequest) (*approval.WorkflowState, error)
	Resubmit(ctx context.Context, id uuid.UUID, req SubmitRequest) (*approval.WorkflowState, error)
	ListVersions(ctx context.Context, id uuid.UUID) ([]DocumentVersion, error)
}

type CreateRequest struct {
	Name         string       `json:"name" binding:"required"`
	Description  string       `json:"description"`
	DocumentType DocumentType `json:"document_type" binding:"required"`
	SubmittedBy  uuid.UUID    `json:"submitted_by" binding:"required"`
	Metadata     []byte       `json:"metadata,omitempty"`
}

// SubmitRequest routes a document for approval, either by template or with
// an explicit line and step list. The template wins when both are present.
type SubmitRequest struct {
	TemplateID    *uuid.UUID              `json:"template_id,omitempty"`
	Line          *approval.ApprovalLine  `json:"line,omitempty"`
	Steps         []approval.ApprovalStep `json:"steps,omitempty"`
	ChangeSummary string                  `json:"change_summary"`
	SubmittedBy   uuid.UUID               `json:"submitted_by" binding:"required"`
}

type documentService struct {
	repo   Repository
	engine WorkflowEngine
	routes RouteSource
	logger *zap.Logger
}

func NewService(repo Repository, engine WorkflowEngine, routes RouteSource, logger *zap.Logger) Service {
	return &documentService{repo: repo, engine: engine, routes: routes, logger: logger}
}

func (s *documentService) CreateDocument(ctx context.Context, req CreateRequest) (*Document, error) {
	now := time.Now()
	doc := &Document{
		ID:             uuid.New(),
		Name:           req.Name,
		Description:    req.Description,
		DocumentType:   req.DocumentType,
		Status:         StatusDraft,
		CurrentVersion: 1,
		SubmittedBy:    req.SubmittedBy,
		Metadata:       req.Metadata,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.repo.CreateDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("create document: %w", err)
	}
	if err := s.repo.CreateVersion(ctx, &DocumentVersion{
		ID:            uuid.New(),
		DocumentID:    doc.ID,
		VersionNumber: 1,
		ChangeSummary: "initial version",
		SubmittedBy:   req.SubmittedBy,
		CreatedAt:     now,
	}); err != nil {
		return nil, fmt.Errorf("create initial version: %w", err)
	}

	s.logger.Info("document created",
		zap.String("document_id", doc.ID.String()),
		zap.String("document_type", string(doc.DocumentType)))
	return doc, nil
}

// GetDocument loads the registry row and, while a line is in flight, folds
// the workflow's current status back into it.
func (s *documentService) GetDocument(ctx context.Context, id uuid.UUID) (*Document, error) {
	doc, err := s.repo.GetDocumentByID(ctx, id)
	if err != nil || doc == nil {
		return doc, err
	}
	if doc.CurrentLineID == nil || doc.Status != StatusInReview {
		return doc, nil
	}

	state, err := s.engine.State(ctx, *doc.CurrentLineID)
	if err != nil {
		// The registry row is still useful when the engine cannot answer.
		s.logger.Warn("workflow state unavailable",
			zap.String("document_id", id.String()), zap.Error(err))
		return doc, nil
	}

	if mapped := statusFor(state.Status); mapped != doc.Status {
		doc.Status = mapped
		doc.UpdatedAt = time.Now()
		if err := s.repo.UpdateDocument(ctx, doc); err != nil {
			return nil, fmt.Errorf("sync document status: %w", err)
		}
	}
	return doc, nil
}

func (s *documentService) ListDocuments(ctx context.Context, docType *DocumentType, status *DocumentStatus) ([]Document, error) {
	return s.repo.ListDocuments(ctx, docType, status)
}

// Submit routes a draft document for approval.
func (s *documentService) Submit(ctx context.Context, id uuid.UUID, req SubmitRequest) (*approval.WorkflowState, error) {
	doc, err := s.repo.GetDocumentByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load document: %w", err)
	}
	if doc == nil {
		return nil, &approval.NotFoundError{Kind: "document", ID: id.String()}
	}
	if doc.Status != StatusDraft {
		return nil, ErrNotSubmittable
	}

	line, steps, err := s.route(ctx, doc.ID, req)
	if err != nil {
		return nil, err
	}

	state, err := s.engine.Start(ctx, line, steps)
	if err != nil {
		return nil, err
	}

	doc.Status = StatusInReview
	doc.CurrentLineID = &state.LineID
	doc.UpdatedAt = time.Now()
	if err := s.repo.UpdateDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("mark document in review: %w", err)
	}

	s.logger.Info("document submitted",
		zap.String("document_id", doc.ID.String()),
		zap.String("line_id", state.LineID.String()))
	return state, nil
}

// Resubmit opens a fresh line for a returned document and records a new
// content version.
func (s *documentService) Resubmit(ctx context.Context, id uuid.UUID, req SubmitRequest) (*approval.WorkflowState, error) {
	doc, err := s.repo.GetDocumentByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load document: %w", err)
	}
	if doc == nil {
		return nil, &approval.NotFoundError{Kind: "document", ID: id.String()}
	}
	if doc, err = s.refresh(ctx, doc); err != nil {
		return nil, err
	}
	if doc.Status != StatusReturned {
		return nil, ErrNotReturned
	}

	line, steps, err := s.route(ctx, doc.ID, req)
	if err != nil {
		return nil, err
	}

	state, err := s.engine.Resubmit(ctx, doc.ID, line, steps)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	doc.Status = StatusInReview
	doc.CurrentLineID = &state.LineID
	doc.CurrentVersion++
	doc.UpdatedAt = now
	if err := s.repo.UpdateDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("mark document in review: %w", err)
	}
	if err := s.repo.CreateVersion(ctx, &DocumentVersion{
		ID:            uuid.New(),
		DocumentID:    doc.ID,
		VersionNumber: doc.CurrentVersion,
		ChangeSummary: req.ChangeSummary,
		SubmittedBy:   req.SubmittedBy,
		CreatedAt:     now,
	}); err != nil {
		return nil, fmt.Errorf("record resubmitted version: %w", err)
	}

	s.logger.Info("document resubmitted",
		zap.String("document_id", doc.ID.String()),
		zap.String("line_id", state.LineID.String()),
		zap.Int("version", doc.CurrentVersion))
	return state, nil
}

func (s *documentService) ListVersions(ctx context.Context, id uuid.UUID) ([]DocumentVersion, error) {
	return s.repo.ListVersions(ctx, id)
}

func (s *documentService) route(ctx context.Context, documentID uuid.UUID, req SubmitRequest) (approval.ApprovalLine, []approval.ApprovalStep, error) {
	if req.TemplateID != nil {
		return s.routes.Materialize(ctx, *req.TemplateID, documentID, time.Now())
	}
	if req.Line == nil || len(req.Steps) == 0 {
		return approval.ApprovalLine{}, nil, ErrNoRoute
	}
	line := *req.Line
	line.DocumentID = documentID
	return line, req.Steps, nil
}

// refresh folds the engine's view of the current line into the registry row
// without persisting, so submit checks see the latest workflow outcome.
func (s *documentService) refresh(ctx context.Context, doc *Document) (*Document, error) {
	if doc.CurrentLineID == nil || doc.Status != StatusInReview {
		return doc, nil
	}
	state, err := s.engine.State(ctx, *doc.CurrentLineID)
	if err != nil {
		return nil, err
	}
	doc.Status = statusFor(state.Status)
	return doc, nil
}

func statusFor(status approval.WorkflowStatus) DocumentStatus {
	switch status {
	case approval.WorkflowApproved:
		return StatusApproved
	case approval.WorkflowRejected:
		return StatusRejected
	case approval.WorkflowReturned:
		return StatusReturned
	default:
		return StatusInReview
	}
}
