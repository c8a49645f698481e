package directory

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
	ErrSelfDelegation  = errors.New("cannot delegate to yourself")
	ErrInvalidWindow   = errors.New("delegation end date must be after start date")
	ErrUnknownDelegate = errors.New("delegate user not found")
)

// Service manages users and delegations. Its ActiveDelegations method makes
// it the engine's UserDirectory.
type Service struct {
	repo   Repository
	logger *zap.Logger
}

func NewService(repo Repository, logger *zap.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// CreateDelegation validates and records a new delegation.
func (s *Service) CreateDelegation(ctx context.Context, delegation *Delegation) error {
	if delegation.FromUserID == delegation.ToUserID {
		return ErrSelfDelegation
	}
	if !delegation.EndDate.After(delegation.StartDate) {
		return ErrInvalidWindow
	}

	target, err := s.repo.GetUser(ctx, delegation.ToUserID)
	if err != nil {
		return fmt.Errorf("look up delegate: %w", err)
	}
	if target == nil || !target.IsActive {
		return ErrUnknownDelegate
	}

	if delegation.ID == uuid.Nil {
		delegation.ID = uuid.New()
	}
	delegation.IsActive = true
	delegation.CreatedAt = time.Now()
	delegation.UpdatedAt = delegation.CreatedAt

	if err := s.repo.CreateDelegation(ctx, delegation); err != nil {
		return fmt.Errorf("create delegation: %w", err)
	}

	s.logger.Info("delegation created",
		zap.String("from", delegation.FromUserID.String()),
		zap.String("to", delegation.ToUserID.String()),
		zap.Time("until", delegation.EndDate))
	return nil
}

func (s *Service) ListDelegations(ctx context.Context, fromUserID uuid.UUID) ([]Delegation, error) {
	return s.repo.ListDelegations(ctx, fromUserID)
}

func (s *Service) RevokeDelegation(ctx context.Context, id uuid.UUID) error {
	existing, err := s.repo.GetDelegation(ctx, id)
	if err != nil {
		return err
	}
	if existing == nil {
		return &approval.NotFoundError{Kind: "delegation", ID: id.String()}
	}
	return s.repo.RevokeDelegation(ctx, id)
}

// ActiveDelegations implements approval.UserDirectory.
func (s *Service) ActiveDelegations(ctx context.Context, userID uuid.UUID, at time.Time) ([]approval.Delegation, error) {
	records, err := s.repo.ActiveDelegations(ctx, userID, at)
	if err != nil {
		return nil, fmt.Errorf("load active delegations: %w", err)
	}

	out := make([]approval.Delegation, 0, len(records))
	for _, d := range records {
		out = append(out, approval.Delegation{
			ID:         d.ID,
			FromUserID: d.FromUserID,
			ToUserID:   d.ToUserID,
			StartDate:  d.StartDate,
			EndDate:    d.EndDate,
			Reason:     d.Reason,
			IsActive:   d.IsActive,
		})
	}
	return out, nil
}
