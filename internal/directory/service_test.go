package directory

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"docflow/approval-engine/internal/approval"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) CreateDelegation(ctx context.Context, delegation *Delegation) error {
	args := m.Called(ctx, delegation)
	return args.Error(0)
}

func (m *MockRepository) GetDelegation(ctx context.Context, id uuid.UUID) (*Delegation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Delegation), args.Error(1)
}

func (m *MockRepository) ListDelegations(ctx context.Context, fromUserID uuid.UUID) ([]Delegation, error) {
	args := m.Called(ctx, fromUserID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Delegation), args.Error(1)
}

func (m *MockRepository) ActiveDelegations(ctx context.Context, fromUserID uuid.UUID, at time.Time) ([]Delegation, error) {
	args := m.Called(ctx, fromUserID, at)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Delegation), args.Error(1)
}

func (m *MockRepository) RevokeDelegation(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockRepository) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*User), args.Error(1)
}

func activeUser(id uuid.UUID) *User {
	return &User{ID: id, DisplayName: "Finance Lead", Email: "lead@example.com", IsActive: true}
}

func TestCreateDelegationRejectsSelfDelegation(t *testing.T) {
	repo := new(MockRepository)
	service := NewService(repo, zap.NewNop())
	user := uuid.New()

	err := service.CreateDelegation(context.Background(), &Delegation{
		FromUserID: user,
		ToUserID:   user,
		StartDate:  time.Now(),
		EndDate:    time.Now().Add(24 * time.Hour),
	})

	assert.ErrorIs(t, err, ErrSelfDelegation)
	repo.AssertNotCalled(t, "CreateDelegation")
}

func TestCreateDelegationRejectsInvertedWindow(t *testing.T) {
	repo := new(MockRepository)
	service := NewService(repo, zap.NewNop())
	now := time.Now()

	err := service.CreateDelegation(context.Background(), &Delegation{
		FromUserID: uuid.New(),
		ToUserID:   uuid.New(),
		StartDate:  now,
		EndDate:    now.Add(-time.Hour),
	})

	assert.ErrorIs(t, err, ErrInvalidWindow)
	repo.AssertNotCalled(t, "CreateDelegation")
}

func TestCreateDelegationRejectsInactiveDelegate(t *testing.T) {
	repo := new(MockRepository)
	service := NewService(repo, zap.NewNop())
	target := uuid.New()
	inactive := activeUser(target)
	inactive.IsActive = false
	repo.On("GetUser", mock.Anything, target).Return(inactive, nil)

	err := service.CreateDelegation(context.Background(), &Delegation{
		FromUserID: uuid.New(),
		ToUserID:   target,
		StartDate:  time.Now(),
		EndDate:    time.Now().Add(24 * time.Hour),
	})

	assert.ErrorIs(t, err, ErrUnknownDelegate)
	repo.AssertNotCalled(t, "CreateDelegation")
}

func TestCreateDelegationAssignsIDAndPersists(t *testing.T) {
	repo := new(MockRepository)
	service := NewService(repo, zap.NewNop())
	target := uuid.New()
	repo.On("GetUser", mock.Anything, target).Return(activeUser(target), nil)
	repo.On("CreateDelegation", mock.Anything, mock.AnythingOfType("*directory.Delegation")).Return(nil)

	delegation := &Delegation{
		FromUserID: uuid.New(),
		ToUserID:   target,
		StartDate:  time.Now(),
		EndDate:    time.Now().Add(72 * time.Hour),
		Reason:     "annual leave",
	}
	err := service.CreateDelegation(context.Background(), delegation)

	assert.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, delegation.ID)
	assert.True(t, delegation.IsActive)
	repo.AssertExpectations(t)
}

func TestRevokeUnknownDelegationReturnsNotFound(t *testing.T) {
	repo := new(MockRepository)
	service := NewService(repo, zap.NewNop())
	id := uuid.New()
	repo.On("GetDelegation", mock.Anything, id).Return(nil, nil)

	err := service.RevokeDelegation(context.Background(), id)

	var notFound *approval.NotFoundError
	assert.ErrorAs(t, err, &notFound)
	repo.AssertNotCalled(t, "RevokeDelegation")
}

func TestRecordMissingMatchesWrappedSentinel(t *testing.T) {
	assert.True(t, recordMissing(gorm.ErrRecordNotFound))
	assert.True(t, recordMissing(fmt.Errorf("first: %w", gorm.ErrRecordNotFound)))
	assert.False(t, recordMissing(errors.New("connection refused")))
	assert.False(t, recordMissing(nil))
}

func TestActiveDelegationsMapsToEngineType(t *testing.T) {
	repo := new(MockRepository)
	service := NewService(repo, zap.NewNop())
	from := uuid.New()
	at := time.Now()
	record := Delegation{
		ID:         uuid.New(),
		FromUserID: from,
		ToUserID:   uuid.New(),
		StartDate:  at.Add(-time.Hour),
		EndDate:    at.Add(time.Hour),
		Reason:     "offsite",
		IsActive:   true,
	}
	repo.On("ActiveDelegations", mock.Anything, from, at).Return([]Delegation{record}, nil)

	mapped, err := service.ActiveDelegations(context.Background(), from, at)

	assert.NoError(t, err)
	assert.Len(t, mapped, 1)
	assert.Equal(t, record.ID, mapped[0].ID)
	assert.Equal(t, record.ToUserID, mapped[0].ToUserID)
	assert.True(t, mapped[0].Covers(at))
}
