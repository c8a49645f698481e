package templates

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"docflow/approval-engine/internal/approval"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) CreateTemplate(ctx context.Context, template *RouteTemplate) error {
	return m.Called(ctx, template).Error(0)
}

func (m *MockRepository) GetTemplate(ctx context.Context, id uuid.UUID) (*RouteTemplate, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*RouteTemplate), args.Error(1)
}

func (m *MockRepository) ListTemplates(ctx context.Context, documentType *string) ([]RouteTemplate, error) {
	args := m.Called(ctx, documentType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]RouteTemplate), args.Error(1)
}

func (m *MockRepository) DeactivateTemplate(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func twoStageTemplate() *RouteTemplate {
	return &RouteTemplate{
		ID:           uuid.New(),
		Name:         "Invoice review",
		DocumentType: "INVOICE",
		IsActive:     true,
		Steps: TemplateSteps{
			{ApproverID: uuid.New(), StepOrder: 1, StepType: approval.TypeReview, IsRequired: true, DueInHours: 48},
			{ApproverID: uuid.New(), StepOrder: 2, StepType: approval.TypeApprove, IsRequired: true},
		},
	}
}

func TestCreateTemplateRejectsEmptySteps(t *testing.T) {
	service := NewService(new(MockRepository), zap.NewNop())

	err := service.CreateTemplate(context.Background(), &RouteTemplate{Name: "empty"})

	assert.ErrorIs(t, err, ErrNoSteps)
}

func TestCreateTemplateRejectsOneOfWithoutConditional(t *testing.T) {
	service := NewService(new(MockRepository), zap.NewNop())
	template := twoStageTemplate()
	template.Steps[0].OneOfGroup = true

	err := service.CreateTemplate(context.Background(), template)

	assert.ErrorIs(t, err, ErrMissingOneOf)
}

func TestMaterializeMintsFreshLineAndSteps(t *testing.T) {
	repo := new(MockRepository)
	service := NewService(repo, zap.NewNop())
	template := twoStageTemplate()
	documentID := uuid.New()
	at := time.Now()
	repo.On("GetTemplate", mock.Anything, template.ID).Return(template, nil)

	line, steps, err := service.Materialize(context.Background(), template.ID, documentID, at)

	assert.NoError(t, err)
	assert.Equal(t, documentID, line.DocumentID)
	assert.NotEqual(t, uuid.Nil, line.ID)
	assert.True(t, line.RequiresApproval)
	assert.Len(t, steps, 2)
	for _, step := range steps {
		assert.Equal(t, line.ID, step.LineID)
		assert.NotEqual(t, uuid.Nil, step.ID)
	}
	assert.NotNil(t, steps[0].DueDate)
	assert.Equal(t, at.Add(48*time.Hour), *steps[0].DueDate)
	assert.Nil(t, steps[1].DueDate)

	// The compiled route is a valid graph.
	_, err = approval.Compile(line, steps)
	assert.NoError(t, err)
}

func TestMaterializeRefusesInactiveTemplate(t *testing.T) {
	repo := new(MockRepository)
	service := NewService(repo, zap.NewNop())
	template := twoStageTemplate()
	template.IsActive = false
	repo.On("GetTemplate", mock.Anything, template.ID).Return(template, nil)

	_, _, err := service.Materialize(context.Background(), template.ID, uuid.New(), time.Now())

	assert.ErrorIs(t, err, ErrInactive)
}

func TestMaterializeUnknownTemplateIsNotFound(t *testing.T) {
	repo := new(MockRepository)
	service := NewService(repo, zap.NewNop())
	id := uuid.New()
	repo.On("GetTemplate", mock.Anything, id).Return(nil, nil)

	_, _, err := service.Materialize(context.Background(), id, uuid.New(), time.Now())

	var notFound *approval.NotFoundError
	assert.ErrorAs(t, err, &notFound)
}
