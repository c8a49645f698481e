package approval

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// DocumentStore is the engine's only persistence dependency. Implementations
// decide transactionality; the engine never half-commits a transition on its
// side regardless.
type DocumentStore interface {
	// LoadLine returns a line and its steps. A missing line comes back with a
	// zero ID, not an error.
	LoadLine(ctx context.Context, lineID uuid.UUID) (ApprovalLine, []ApprovalStep, error)

	// SaveLine upserts a line and inserts its steps in one transaction. Steps
	// may be nil when only the line record changes (archival).
	SaveLine(ctx context.Context, line ApprovalLine, steps []ApprovalStep) error

	// LineIDForStep returns the line owning a step, or uuid.Nil when the
	// step is unknown.
	LineIDForStep(ctx context.Context, stepID uuid.UUID) (uuid.UUID, error)

	// SaveStepTransition persists one step's new status and audit fields.
	SaveStepTransition(ctx context.Context, step ApprovalStep) error

	// SaveWorkflowEvent appends to the audit trail.
	SaveWorkflowEvent(ctx context.Context, event WorkflowEvent) error

	// ActiveLine returns the document's active line, or nil.
	ActiveLine(ctx context.Context, documentID uuid.UUID) (*ApprovalLine, error)

	// FindOverdueSteps returns pending steps on active lines whose due date
	// is before the cutoff.
	FindOverdueSteps(ctx context.Context, cutoff time.Time) ([]ApprovalStep, error)
}

type postgresStore struct {
	db *sqlx.DB
}

func NewPostgresStore(db *sqlx.DB) DocumentStore {
	return &postgresStore{db: db}
}

func (r *postgresStore) LoadLine(ctx context.Context, lineID uuid.UUID) (ApprovalLine, []ApprovalStep, error) {
	var line ApprovalLine
	err := r.db.GetContext(ctx, &line, "SELECT * FROM approval_lines WHERE id = $1", lineID)
	if err == sql.ErrNoRows {
		return ApprovalLine{}, nil, nil
	}
	if err != nil {
		return ApprovalLine{}, nil, err
	}

	var steps []ApprovalStep
	err = r.db.SelectContext(ctx, &steps,
		"SELECT * FROM approval_steps WHERE line_id = $1 ORDER BY step_order, id", lineID)
	if err != nil {
		return ApprovalLine{}, nil, err
	}
	return line, steps, nil
}

func (r *postgresStore) SaveLine(ctx context.Context, line ApprovalLine, steps []ApprovalStep) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	lineQuery := `
		INSERT INTO approval_lines (
			id, document_id, name, is_parallel, is_conditional,
			requires_approval, is_active, created_at, updated_at
		) VALUES (
			:id, :document_id, :name, :is_parallel, :is_conditional,
			:requires_approval, :is_active, :created_at, :updated_at
		)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			is_active = EXCLUDED.is_active,
			updated_at = EXCLUDED.updated_at`
	if _, err := tx.NamedExecContext(ctx, lineQuery, line); err != nil {
		return fmt.Errorf("save line %s: %w", line.ID, err)
	}

	stepQuery := `
		INSERT INTO approval_steps (
			id, line_id, step_order, approver_id, delegated_to_id, step_type,
			is_required, is_parallel, one_of_group, status, comments,
			due_date, approved_at, rejected_at
		) VALUES (
			:id, :line_id, :step_order, :approver_id, :delegated_to_id, :step_type,
			:is_required, :is_parallel, :one_of_group, :status, :comments,
			:due_date, :approved_at, :rejected_at
		)`
	for _, step := range steps {
		if _, err := tx.NamedExecContext(ctx, stepQuery, step); err != nil {
			return fmt.Errorf("save step %s: %w", step.ID, err)
		}
	}

	return tx.Commit()
}

func (r *postgresStore) LineIDForStep(ctx context.Context, stepID uuid.UUID) (uuid.UUID, error) {
	var lineID uuid.UUID
	err := r.db.GetContext(ctx, &lineID, "SELECT line_id FROM approval_steps WHERE id = $1", stepID)
	if err == sql.ErrNoRows {
		return uuid.Nil, nil
	}
	if err != nil {
		return uuid.Nil, err
	}
	return lineID, nil
}

func (r *postgresStore) SaveStepTransition(ctx context.Context, step ApprovalStep) error {
	query := `
		UPDATE approval_steps SET
			delegated_to_id = :delegated_to_id,
			status = :status,
			comments = :comments,
			due_date = :due_date,
			approved_at = :approved_at,
			rejected_at = :rejected_at
		WHERE id = :id`
	_, err := r.db.NamedExecContext(ctx, query, step)
	return err
}

func (r *postgresStore) SaveWorkflowEvent(ctx context.Context, event WorkflowEvent) error {
	query := `
		INSERT INTO workflow_events (
			id, line_id, document_id, step_id, kind, actor_id, comment, occurred_at
		) VALUES (
			:id, :line_id, :document_id, :step_id, :kind, :actor_id, :comment, :occurred_at
		)`
	_, err := r.db.NamedExecContext(ctx, query, event)
	return err
}

func (r *postgresStore) ActiveLine(ctx context.Context, documentID uuid.UUID) (*ApprovalLine, error) {
	var line ApprovalLine
	err := r.db.GetContext(ctx, &line,
		"SELECT * FROM approval_lines WHERE document_id = $1 AND is_active = true", documentID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &line, nil
}

func (r *postgresStore) FindOverdueSteps(ctx context.Context, cutoff time.Time) ([]ApprovalStep, error) {
	var steps []ApprovalStep
	err := r.db.SelectContext(ctx, &steps, `
		SELECT s.* FROM approval_steps s
		JOIN approval_lines l ON l.id = s.line_id
		WHERE l.is_active = true
		  AND s.status IN ('PENDING', 'DELEGATED')
		  AND s.due_date IS NOT NULL
		  AND s.due_date < $1
		ORDER BY s.due_date`, cutoff)
	return steps, err
}
