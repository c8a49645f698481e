package templates

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
	ErrNoSteps      = errors.New("template must define at least one step")
	ErrOutOfOrder   = errors.New("template step orders must be positive")
	ErrMissingOneOf = errors.New("one-of steps require a conditional template")
	ErrInactive     = errors.New("template is inactive")
)

type Service struct {
	repo   Repository
	logger *zap.Logger
}

func NewService(repo Repository, logger *zap.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// CreateTemplate validates the step list up front so a bad template fails at
// authoring time, not on first submission.
func (s *Service) CreateTemplate(ctx context.Context, template *RouteTemplate) error {
	if len(template.Steps) == 0 {
		return ErrNoSteps
	}
	for _, step := range template.Steps {
		if step.StepOrder <= 0 {
			return ErrOutOfOrder
		}
		if step.OneOfGroup && !template.IsConditional {
			return ErrMissingOneOf
		}
	}

	if template.ID == uuid.Nil {
		template.ID = uuid.New()
	}
	template.IsActive = true
	template.CreatedAt = time.Now()
	template.UpdatedAt = template.CreatedAt

	if err := s.repo.CreateTemplate(ctx, template); err != nil {
		return fmt.Errorf("create template: %w", err)
	}

	s.logger.Info("route template created",
		zap.String("template_id", template.ID.String()),
		zap.String("document_type", template.DocumentType),
		zap.Int("steps", len(template.Steps)))
	return nil
}

func (s *Service) GetTemplate(ctx context.Context, id uuid.UUID) (*RouteTemplate, error) {
	return s.repo.GetTemplate(ctx, id)
}

func (s *Service) ListTemplates(ctx context.Context, documentType *string) ([]RouteTemplate, error) {
	return s.repo.ListTemplates(ctx, documentType)
}

func (s *Service) DeactivateTemplate(ctx context.Context, id uuid.UUID) error {
	existing, err := s.repo.GetTemplate(ctx, id)
	if err != nil {
		return err
	}
	if existing == nil {
		return &approval.NotFoundError{Kind: "template", ID: id.String()}
	}
	return s.repo.DeactivateTemplate(ctx, id)
}

// Materialize stamps a template into a concrete line and steps for one
// document. Each call mints fresh IDs; the template itself is never mutated.
func (s *Service) Materialize(ctx context.Context, templateID, documentID uuid.UUID, at time.Time) (approval.ApprovalLine, []approval.ApprovalStep, error) {
	template, err := s.repo.GetTemplate(ctx, templateID)
	if err != nil {
		return approval.ApprovalLine{}, nil, fmt.Errorf("load template: %w", err)
	}
	if template == nil {
		return approval.ApprovalLine{}, nil, &approval.NotFoundError{Kind: "template", ID: templateID.String()}
	}
	if !template.IsActive {
		return approval.ApprovalLine{}, nil, ErrInactive
	}

	line := approval.ApprovalLine{
		ID:               uuid.New(),
		DocumentID:       documentID,
		Name:             template.Name,
		IsConditional:    template.IsConditional,
		RequiresApproval: true,
	}

	steps := make([]approval.ApprovalStep, 0, len(template.Steps))
	for _, ts := range template.Steps {
		step := approval.ApprovalStep{
			ID:         uuid.New(),
			LineID:     line.ID,
			StepOrder:  ts.StepOrder,
			ApproverID: ts.ApproverID,
			StepType:   ts.StepType,
			IsRequired: ts.IsRequired,
			IsParallel: ts.IsParallel,
			OneOfGroup: ts.OneOfGroup,
		}
		if ts.DueInHours > 0 {
			due := at.Add(time.Duration(ts.DueInHours) * time.Hour)
			step.DueDate = &due
		}
		steps = append(steps, step)
	}
	return line, steps, nil
}
