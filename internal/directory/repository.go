package directory

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Repository interface {
	CreateDelegation(ctx context.Context, delegation *Delegation) error
	GetDelegation(ctx context.Context, id uuid.UUID) (*Delegation, error)
	ListDelegations(ctx context.Context, fromUserID uuid.UUID) ([]Delegation, error)
	ActiveDelegations(ctx context.Context, fromUserID uuid.UUID, at time.Time) ([]Delegation, error)
	RevokeDelegation(ctx context.Context, id uuid.UUID) error

	GetUser(ctx context.Context, id uuid.UUID) (*User, error)
}

type gormRepository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

// recordMissing matches gorm's not-found sentinel, wrapped or not.
func recordMissing(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

func (r *gormRepository) CreateDelegation(ctx context.Context, delegation *Delegation) error {
	return r.db.WithContext(ctx).Create(delegation).Error
}

func (r *gormRepository) GetDelegation(ctx context.Context, id uuid.UUID) (*Delegation, error) {
	var delegation Delegation
	err := r.db.WithContext(ctx).First(&delegation, "id = ?", id).Error
	if recordMissing(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &delegation, nil
}

func (r *gormRepository) ListDelegations(ctx context.Context, fromUserID uuid.UUID) ([]Delegation, error) {
	var delegations []Delegation
	err := r.db.WithContext(ctx).
		Where("from_user_id = ?", fromUserID).
		Order("start_date").
		Find(&delegations).Error
	return delegations, err
}

func (r *gormRepository) ActiveDelegations(ctx context.Context, fromUserID uuid.UUID, at time.Time) ([]Delegation, error) {
	var delegations []Delegation
	err := r.db.WithContext(ctx).
		Where("from_user_id = ? AND is_active = true AND start_date <= ? AND end_date >= ?", fromUserID, at, at).
		Order("start_date").
		Find(&delegations).Error
	return delegations, err
}

func (r *gormRepository) RevokeDelegation(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&Delegation{}).
		Where("id = ?", id).
		Update("is_active", false).Error
}

func (r *gormRepository) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	var user User
	err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error
	if recordMissing(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}
