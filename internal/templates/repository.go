package templates

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type Repository interface {
	CreateTemplate(ctx context.Context, template *RouteTemplate) error
	GetTemplate(ctx context.Context, id uuid.UUID) (*RouteTemplate, error)
	ListTemplates(ctx context.Context, documentType *string) ([]RouteTemplate, error)
	DeactivateTemplate(ctx context.Context, id uuid.UUID) error
}

type postgresRepository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &postgresRepository{db: db}
}

func (r *postgresRepository) CreateTemplate(ctx context.Context, template *RouteTemplate) error {
	query := `
		INSERT INTO route_templates (
			id, name, document_type, is_conditional, steps, is_active, created_at, updated_at
		) VALUES (
			:id, :name, :document_type, :is_conditional, :steps, :is_active, :created_at, :updated_at
		)`
	_, err := r.db.NamedExecContext(ctx, query, template)
	return err
}

func (r *postgresRepository) GetTemplate(ctx context.Context, id uuid.UUID) (*RouteTemplate, error) {
	var template RouteTemplate
	err := r.db.GetContext(ctx, &template, "SELECT * FROM route_templates WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return &template, err
}

func (r *postgresRepository) ListTemplates(ctx context.Context, documentType *string) ([]RouteTemplate, error) {
	var templates []RouteTemplate
	if documentType != nil {
		err := r.db.SelectContext(ctx, &templates,
			"SELECT * FROM route_templates WHERE document_type = $1 AND is_active = true ORDER BY name", *documentType)
		return templates, err
	}
	err := r.db.SelectContext(ctx, &templates,
		"SELECT * FROM route_templates WHERE is_active = true ORDER BY name")
	return templates, err
}

func (r *postgresRepository) DeactivateTemplate(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE route_templates SET is_active = false, updated_at = NOW() WHERE id = $1", id)
	return err
}
