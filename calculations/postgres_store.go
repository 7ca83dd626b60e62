package calculations

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

// PostgresTemplateStore implements TemplateStore backed by PostgreSQL.
// The template body is stored as JSONB; listing columns are kept alongside it.
type PostgresTemplateStore struct {
	db *sql.DB
}

// NewPostgresTemplateStore creates a new PostgreSQL-backed TemplateStore
func NewPostgresTemplateStore(db *sql.DB) *PostgresTemplateStore {
	return &PostgresTemplateStore{db: db}
}

// Add inserts a new template into the database
func (s *PostgresTemplateStore) Add(ctx context.Context, t *Template) error {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM calculation_templates WHERE id = $1)
	`, t.ID).Scan(&exists)
	if err != nil {
		return NewAccessError("template.add", fmt.Errorf("failed to check template existence: %w", err))
	}
	if exists {
		return fmt.Errorf("%w: %s", ErrTemplateConflict, t.ID)
	}

	definition, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to marshal template: %w", err)
	}

	now := time.Now()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO calculation_templates
			(id, version, name, category, active, usage_count, average_rating, definition, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
	`, t.ID, t.Version, t.Name, string(t.Category), t.IsActive, t.UsageCount, t.AverageRating, definition, now)
	if err != nil {
		return NewAccessError("template.add", fmt.Errorf("failed to insert template: %w", err))
	}
	return nil
}

// Get retrieves a template by ID
func (s *PostgresTemplateStore) Get(ctx context.Context, id string) (*Template, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT definition, usage_count, average_rating, active, created_at, updated_at
		FROM calculation_templates
		WHERE id = $1
	`, id)

	t, err := scanTemplate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, id)
	}
	if err != nil {
		return nil, NewAccessError("template.get", err)
	}
	return t, nil
}

// ListActive returns all active templates ordered by name
func (s *PostgresTemplateStore) ListActive(ctx context.Context) ([]*Template, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT definition, usage_count, average_rating, active, created_at, updated_at
		FROM calculation_templates
		WHERE active = true
		ORDER BY name ASC
	`)
	if err != nil {
		return nil, NewAccessError("template.list", fmt.Errorf("failed to list active templates: %w", err))
	}
	defer rows.Close()

	var templates []*Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, NewAccessError("template.list", err)
		}
		templates = append(templates, t)
	}
	if err := rows.Err(); err != nil {
		return nil, NewAccessError("template.list", fmt.Errorf("error iterating templates: %w", err))
	}
	return templates, nil
}

// Update replaces the stored definition; usage stats and CreatedAt are preserved
func (s *PostgresTemplateStore) Update(ctx context.Context, t *Template) error {
	definition, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to marshal template: %w", err)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE calculation_templates
		SET version = $1, name = $2, category = $3, active = $4, average_rating = $5,
		    definition = $6, updated_at = $7
		WHERE id = $8
	`, t.Version, t.Name, string(t.Category), t.IsActive, t.AverageRating, definition, time.Now(), t.ID)
	if err != nil {
		return NewAccessError("template.update", fmt.Errorf("failed to update template: %w", err))
	}
	return expectOneRow(result, "template.update", ErrTemplateNotFound, t.ID)
}

// Delete removes a template from the database
func (s *PostgresTemplateStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM calculation_templates WHERE id = $1`, id)
	if err != nil {
		return NewAccessError("template.delete", fmt.Errorf("failed to delete template: %w", err))
	}
	return expectOneRow(result, "template.delete", ErrTemplateNotFound, id)
}

// IncrementUsage bumps the usage counter in place
func (s *PostgresTemplateStore) IncrementUsage(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE calculation_templates SET usage_count = usage_count + 1 WHERE id = $1
	`, id)
	if err != nil {
		return NewAccessError("template.usage", fmt.Errorf("failed to increment usage: %w", err))
	}
	return expectOneRow(result, "template.usage", ErrTemplateNotFound, id)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTemplate(row rowScanner) (*Template, error) {
	var (
		definition []byte
		t          Template
	)
	if err := row.Scan(&definition, &t.UsageCount, &t.AverageRating, &t.IsActive, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}

	usage, rating, active, created, updated := t.UsageCount, t.AverageRating, t.IsActive, t.CreatedAt, t.UpdatedAt
	if err := json.Unmarshal(definition, &t); err != nil {
		return nil, fmt.Errorf("invalid template definition: %w", err)
	}
	// columns win over the JSON copy
	t.UsageCount, t.AverageRating, t.IsActive, t.CreatedAt, t.UpdatedAt = usage, rating, active, created, updated
	return &t, nil
}

func expectOneRow(result sql.Result, op string, notFound error, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return NewAccessError(op, fmt.Errorf("failed to get rows affected: %w", err))
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", notFound, id)
	}
	return nil
}

// PostgresResultStore implements ResultStore backed by PostgreSQL
type PostgresResultStore struct {
	db *sql.DB
}

// NewPostgresResultStore creates a new PostgreSQL-backed ResultStore
func NewPostgresResultStore(db *sql.DB) *PostgresResultStore {
	return &PostgresResultStore{db: db}
}

func (s *PostgresResultStore) Add(ctx context.Context, r *Result) error {
	if _, err := uuid.Parse(r.ID); err != nil {
		return fmt.Errorf("result ID %q is not a UUID: %w", r.ID, err)
	}
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO calculation_results
			(id, template_id, name, project_id, saved, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, r.ID, r.TemplateID, r.Name, nullString(r.ProjectID), r.Saved, payload, r.CreatedAt)
	if err != nil {
		return NewAccessError("result.add", fmt.Errorf("failed to insert result: %w", err))
	}
	return nil
}

func (s *PostgresResultStore) Get(ctx context.Context, id string) (*Result, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT payload FROM calculation_results WHERE id = $1
	`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrResultNotFound, id)
	}
	if err != nil {
		return nil, NewAccessError("result.get", err)
	}

	var r Result
	if err := json.Unmarshal(payload, &r); err != nil {
		return nil, fmt.Errorf("invalid stored result %s: %w", id, err)
	}
	return &r, nil
}

func (s *PostgresResultStore) Replace(ctx context.Context, r *Result) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE calculation_results
		SET name = $1, project_id = $2, saved = $3, payload = $4
		WHERE id = $5
	`, r.Name, nullString(r.ProjectID), r.Saved, payload, r.ID)
	if err != nil {
		return NewAccessError("result.replace", fmt.Errorf("failed to replace result: %w", err))
	}
	return expectOneRow(result, "result.replace", ErrResultNotFound, r.ID)
}

func (s *PostgresResultStore) ListSaved(ctx context.Context) ([]*Result, error) {
	return s.list(ctx, `
		SELECT payload FROM calculation_results
		WHERE saved = true
		ORDER BY created_at DESC, id ASC
	`)
}

func (s *PostgresResultStore) ListByProject(ctx context.Context, projectID string) ([]*Result, error) {
	return s.list(ctx, `
		SELECT payload FROM calculation_results
		WHERE saved = true AND project_id = $1
		ORDER BY created_at DESC, id ASC
	`, projectID)
}

func (s *PostgresResultStore) list(ctx context.Context, query string, args ...any) ([]*Result, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, NewAccessError("result.list", fmt.Errorf("failed to list results: %w", err))
	}
	defer rows.Close()

	results := []*Result{}
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, NewAccessError("result.list", fmt.Errorf("failed to scan result: %w", err))
		}
		var r Result
		if err := json.Unmarshal(payload, &r); err != nil {
			return nil, fmt.Errorf("invalid stored result: %w", err)
		}
		results = append(results, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, NewAccessError("result.list", fmt.Errorf("error iterating results: %w", err))
	}
	return results, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
