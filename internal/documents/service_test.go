package documents

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

func (m *MockRepository) CreateDocument(ctx context.Context, doc *Document) error {
	return m.Called(ctx, doc).Error(0)
}

func (m *MockRepository) GetDocumentByID(ctx context.Context, id uuid.UUID) (*Document, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Document), args.Error(1)
}

func (m *MockRepository) ListDocuments(ctx context.Context, docType *DocumentType, status *DocumentStatus) ([]Document, error) {
	args := m.Called(ctx, docType, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Document), args.Error(1)
}

func (m *MockRepository) UpdateDocument(ctx context.Context, doc *Document) error {
	return m.Called(ctx, doc).Error(0)
}

func (m *MockRepository) CreateVersion(ctx context.Context, version *DocumentVersion) error {
	return m.Called(ctx, version).Error(0)
}

func (m *MockRepository) ListVersions(ctx context.Context, documentID uuid.UUID) ([]DocumentVersion, error) {
	args := m.Called(ctx, documentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]DocumentVersion), args.Error(1)
}

type MockEngine struct {
	mock.Mock
}

func (m *MockEngine) Start(ctx context.Context, line approval.ApprovalLine, steps []approval.ApprovalStep) (*approval.WorkflowState, error) {
	args := m.Called(ctx, line, steps)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*approval.WorkflowState), args.Error(1)
}

func (m *MockEngine) Resubmit(ctx context.Context, documentID uuid.UUID, line approval.ApprovalLine, steps []approval.ApprovalStep) (*approval.WorkflowState, error) {
	args := m.Called(ctx, documentID, line, steps)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*approval.WorkflowState), args.Error(1)
}

func (m *MockEngine) State(ctx context.Context, lineID uuid.UUID) (*approval.WorkflowState, error) {
	args := m.Called(ctx, lineID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*approval.WorkflowState), args.Error(1)
}

type MockRoutes struct {
	mock.Mock
}

func (m *MockRoutes) Materialize(ctx context.Context, templateID, documentID uuid.UUID, at time.Time) (approval.ApprovalLine, []approval.ApprovalStep, error) {
	args := m.Called(ctx, templateID, documentID, at)
	return args.Get(0).(approval.ApprovalLine), args.Get(1).([]approval.ApprovalStep), args.Error(2)
}

func newTestService() (Service, *MockRepository, *MockEngine, *MockRoutes) {
	repo := new(MockRepository)
	engine := new(MockEngine)
	routes := new(MockRoutes)
	return NewService(repo, engine, routes, zap.NewNop()), repo, engine, routes
}

func draftDocument() *Document {
	return &Document{
		ID:             uuid.New(),
		Name:           "Q3 office lease",
		DocumentType:   TypeContract,
		Status:         StatusDraft,
		CurrentVersion: 1,
		SubmittedBy:    uuid.New(),
	}
}

func explicitRoute(documentID uuid.UUID) SubmitRequest {
	line := approval.ApprovalLine{ID: uuid.New(), Name: "Legal review", RequiresApproval: true}
	step := approval.ApprovalStep{
		ID:         uuid.New(),
		LineID:     line.ID,
		StepOrder:  1,
		ApproverID: uuid.New(),
		StepType:   approval.TypeApprove,
		IsRequired: true,
	}
	return SubmitRequest{Line: &line, Steps: []approval.ApprovalStep{step}, SubmittedBy: uuid.New()}
}

func TestCreateDocumentRecordsInitialVersion(t *testing.T) {
	service, repo, _, _ := newTestService()
	repo.On("CreateDocument", mock.Anything, mock.AnythingOfType("*documents.Document")).Return(nil)
	repo.On("CreateVersion", mock.Anything, mock.MatchedBy(func(v *DocumentVersion) bool {
		return v.VersionNumber == 1
	})).Return(nil)

	doc, err := service.CreateDocument(context.Background(), CreateRequest{
		Name:         "Travel expenses March",
		DocumentType: TypeExpenseReport,
		SubmittedBy:  uuid.New(),
	})

	assert.NoError(t, err)
	assert.Equal(t, StatusDraft, doc.Status)
	assert.Equal(t, 1, doc.CurrentVersion)
	repo.AssertExpectations(t)
}

func TestSubmitStartsWorkflowAndMarksInReview(t *testing.T) {
	service, repo, engine, _ := newTestService()
	doc := draftDocument()
	req := explicitRoute(doc.ID)
	lineID := req.Line.ID

	repo.On("GetDocumentByID", mock.Anything, doc.ID).Return(doc, nil)
	engine.On("Start", mock.Anything, mock.MatchedBy(func(line approval.ApprovalLine) bool {
		return line.DocumentID == doc.ID
	}), req.Steps).Return(&approval.WorkflowState{
		LineID:     lineID,
		DocumentID: doc.ID,
		Status:     approval.WorkflowInProgress,
	}, nil)
	repo.On("UpdateDocument", mock.Anything, mock.MatchedBy(func(d *Document) bool {
		return d.Status == StatusInReview && d.CurrentLineID != nil && *d.CurrentLineID == lineID
	})).Return(nil)

	state, err := service.Submit(context.Background(), doc.ID, req)

	assert.NoError(t, err)
	assert.Equal(t, approval.WorkflowInProgress, state.Status)
	repo.AssertExpectations(t)
	engine.AssertExpectations(t)
}

func TestSubmitRejectsNonDraftDocument(t *testing.T) {
	service, repo, engine, _ := newTestService()
	doc := draftDocument()
	doc.Status = StatusInReview
	repo.On("GetDocumentByID", mock.Anything, doc.ID).Return(doc, nil)

	_, err := service.Submit(context.Background(), doc.ID, explicitRoute(doc.ID))

	assert.ErrorIs(t, err, ErrNotSubmittable)
	engine.AssertNotCalled(t, "Start")
}

func TestSubmitWithoutRouteFails(t *testing.T) {
	service, repo, engine, _ := newTestService()
	doc := draftDocument()
	repo.On("GetDocumentByID", mock.Anything, doc.ID).Return(doc, nil)

	_, err := service.Submit(context.Background(), doc.ID, SubmitRequest{SubmittedBy: uuid.New()})

	assert.ErrorIs(t, err, ErrNoRoute)
	engine.AssertNotCalled(t, "Start")
}

func TestSubmitByTemplateMaterializesRoute(t *testing.T) {
	service, repo, engine, routes := newTestService()
	doc := draftDocument()
	templateID := uuid.New()
	line := approval.ApprovalLine{ID: uuid.New(), DocumentID: doc.ID, RequiresApproval: true}
	steps := []approval.ApprovalStep{{
		ID: uuid.New(), LineID: line.ID, StepOrder: 1,
		ApproverID: uuid.New(), IsRequired: true,
	}}

	repo.On("GetDocumentByID", mock.Anything, doc.ID).Return(doc, nil)
	routes.On("Materialize", mock.Anything, templateID, doc.ID, mock.AnythingOfType("time.Time")).
		Return(line, steps, nil)
	engine.On("Start", mock.Anything, line, steps).Return(&approval.WorkflowState{
		LineID: line.ID, DocumentID: doc.ID, Status: approval.WorkflowInProgress,
	}, nil)
	repo.On("UpdateDocument", mock.Anything, mock.Anything).Return(nil)

	_, err := service.Submit(context.Background(), doc.ID, SubmitRequest{
		TemplateID:  &templateID,
		SubmittedBy: uuid.New(),
	})

	assert.NoError(t, err)
	routes.AssertExpectations(t)
	engine.AssertExpectations(t)
}

func TestResubmitRequiresReturnedWorkflow(t *testing.T) {
	service, repo, engine, _ := newTestService()
	doc := draftDocument()
	lineID := uuid.New()
	doc.Status = StatusInReview
	doc.CurrentLineID = &lineID

	repo.On("GetDocumentByID", mock.Anything, doc.ID).Return(doc, nil)
	engine.On("State", mock.Anything, lineID).Return(&approval.WorkflowState{
		LineID: lineID, Status: approval.WorkflowInProgress,
	}, nil)

	_, err := service.Resubmit(context.Background(), doc.ID, explicitRoute(doc.ID))

	assert.ErrorIs(t, err, ErrNotReturned)
	engine.AssertNotCalled(t, "Resubmit")
}

func TestResubmitBumpsVersion(t *testing.T) {
	service, repo, engine, _ := newTestService()
	doc := draftDocument()
	oldLine := uuid.New()
	doc.Status = StatusInReview
	doc.CurrentLineID = &oldLine
	req := explicitRoute(doc.ID)
	newLine := req.Line.ID

	repo.On("GetDocumentByID", mock.Anything, doc.ID).Return(doc, nil)
	engine.On("State", mock.Anything, oldLine).Return(&approval.WorkflowState{
		LineID: oldLine, Status: approval.WorkflowReturned,
	}, nil)
	engine.On("Resubmit", mock.Anything, doc.ID, mock.Anything, req.Steps).Return(&approval.WorkflowState{
		LineID: newLine, DocumentID: doc.ID, Status: approval.WorkflowInProgress,
	}, nil)
	repo.On("UpdateDocument", mock.Anything, mock.MatchedBy(func(d *Document) bool {
		return d.CurrentVersion == 2 && *d.CurrentLineID == newLine
	})).Return(nil)
	repo.On("CreateVersion", mock.Anything, mock.MatchedBy(func(v *DocumentVersion) bool {
		return v.VersionNumber == 2
	})).Return(nil)

	_, err := service.Resubmit(context.Background(), doc.ID, req)

	assert.NoError(t, err)
	repo.AssertExpectations(t)
	engine.AssertExpectations(t)
}

func TestGetDocumentSyncsCompletedWorkflowStatus(t *testing.T) {
	service, repo, engine, _ := newTestService()
	doc := draftDocument()
	lineID := uuid.New()
	doc.Status = StatusInReview
	doc.CurrentLineID = &lineID

	repo.On("GetDocumentByID", mock.Anything, doc.ID).Return(doc, nil)
	engine.On("State", mock.Anything, lineID).Return(&approval.WorkflowState{
		LineID: lineID, Status: approval.WorkflowApproved,
	}, nil)
	repo.On("UpdateDocument", mock.Anything, mock.MatchedBy(func(d *Document) bool {
		return d.Status == StatusApproved
	})).Return(nil)

	got, err := service.GetDocument(context.Background(), doc.ID)

	assert.NoError(t, err)
	assert.Equal(t, StatusApproved, got.Status)
	repo.AssertExpectations(t)
}
