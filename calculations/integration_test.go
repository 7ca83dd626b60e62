//go:build integration

package calculations

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupTestDB creates a PostgreSQL container and returns a connection
func setupTestDB(t *testing.T) (*sql.DB, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "calc_test",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	postgresContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start PostgreSQL container: %v", err)
	}

	host, err := postgresContainer.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := postgresContainer.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	connStr := fmt.Sprintf("host=%s port=%s user=test password=test dbname=calc_test sslmode=disable", host, port.Port())

	var db *sql.DB
	for i := 0; i < 30; i++ {
		db, err = sql.Open("postgres", connStr)
		if err == nil {
			err = db.Ping()
			if err == nil {
				break
			}
		}
		time.Sleep(time.Second)
	}
	if err != nil {
		t.Fatalf("Failed to connect to database: %v", err)
	}

	migrationSQL, err := os.ReadFile(filepath.Join("..", "migrations", "000001_initial_schema.up.sql"))
	if err != nil {
		t.Fatalf("Failed to read migration file: %v", err)
	}
	if _, err := db.Exec(string(migrationSQL)); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	cleanup := func() {
		db.Close()
		postgresContainer.Terminate(ctx)
	}

	return db, cleanup
}

func TestPostgresTemplateStore_BasicCRUD(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewPostgresTemplateStore(db)

	tmpl := beamTemplate()
	tmpl.ComplianceRules = []ComplianceRule{{Name: "luz", Expression: "inputs.length <= 12.0", Message: "Luz excesiva"}}
	if err := store.Add(ctx, tmpl); err != nil {
		t.Fatalf("Failed to add template: %v", err)
	}

	retrieved, err := store.Get(ctx, tmpl.ID)
	if err != nil {
		t.Fatalf("Failed to get template: %v", err)
	}
	if retrieved.Version != "1.0.0" {
		t.Errorf("Expected version '1.0.0', got '%s'", retrieved.Version)
	}
	if len(retrieved.Parameters) != len(tmpl.Parameters) {
		t.Errorf("Expected %d parameters, got %d", len(tmpl.Parameters), len(retrieved.Parameters))
	}
	if p, ok := retrieved.Parameter("length"); !ok || p.Max == nil || *p.Max != 15 {
		t.Errorf("Expected length parameter with max 15, got %+v", p)
	}
	if len(retrieved.ComplianceRules) != 1 {
		t.Errorf("Expected 1 compliance rule, got %d", len(retrieved.ComplianceRules))
	}
	if retrieved.CreatedAt.IsZero() {
		t.Error("Expected CreatedAt to be set")
	}

	if err := store.Add(ctx, tmpl); !errors.Is(err, ErrTemplateConflict) {
		t.Errorf("Expected ErrTemplateConflict on duplicate add, got %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := store.IncrementUsage(ctx, tmpl.ID); err != nil {
			t.Fatalf("Failed to increment usage: %v", err)
		}
	}

	tmpl.Version = "1.1.0"
	tmpl.IsActive = false
	if err := store.Update(ctx, tmpl); err != nil {
		t.Fatalf("Failed to update template: %v", err)
	}

	updated, err := store.Get(ctx, tmpl.ID)
	if err != nil {
		t.Fatalf("Failed to get updated template: %v", err)
	}
	if updated.Version != "1.1.0" {
		t.Errorf("Expected version '1.1.0', got '%s'", updated.Version)
	}
	if updated.UsageCount != 3 {
		t.Errorf("Expected usage count 3 to survive the update, got %d", updated.UsageCount)
	}

	active, err := store.ListActive(ctx)
	if err != nil {
		t.Fatalf("Failed to list active templates: %v", err)
	}
	if len(active) != 0 {
		t.Errorf("Expected 0 active templates, got %d", len(active))
	}

	if err := store.Delete(ctx, tmpl.ID); err != nil {
		t.Fatalf("Failed to delete template: %v", err)
	}
	if _, err := store.Get(ctx, tmpl.ID); !errors.Is(err, ErrTemplateNotFound) {
		t.Errorf("Expected ErrTemplateNotFound after delete, got %v", err)
	}
}

func TestPostgresTemplateStore_MissingTemplate(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewPostgresTemplateStore(db)

	if err := store.Update(ctx, beamTemplate()); !errors.Is(err, ErrTemplateNotFound) {
		t.Errorf("Expected ErrTemplateNotFound on update, got %v", err)
	}
	if err := store.Delete(ctx, "missing"); !errors.Is(err, ErrTemplateNotFound) {
		t.Errorf("Expected ErrTemplateNotFound on delete, got %v", err)
	}
	if err := store.IncrementUsage(ctx, "missing"); !errors.Is(err, ErrTemplateNotFound) {
		t.Errorf("Expected ErrTemplateNotFound on usage, got %v", err)
	}
}

func TestPostgresResultStore_SaveAndList(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	templates := NewPostgresTemplateStore(db)
	results := NewPostgresResultStore(db)

	tmpl := beamTemplate()
	if err := templates.Add(ctx, tmpl); err != nil {
		t.Fatalf("Failed to add template: %v", err)
	}

	in, err := Validate(tmpl, beamDefaults())
	if err != nil {
		t.Fatalf("Failed to validate inputs: %v", err)
	}
	out, err := DefaultRegistry().ExecuteTemplate(tmpl, in)
	if err != nil {
		t.Fatalf("Failed to execute: %v", err)
	}

	base := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	var ids []string
	for i := 0; i < 3; i++ {
		r := &Result{
			ID:         uuid.NewString(),
			TemplateID: tmpl.ID,
			Name:       tmpl.Name,
			ProjectID:  "obra-1",
			CreatedAt:  base.Add(time.Duration(i) * time.Minute),
			Inputs:     in,
			Primary:    out.Primary,
			Secondary:  out.Secondary,
			Compliance: out.Compliance,
		}
		if err := results.Add(ctx, r); err != nil {
			t.Fatalf("Failed to add result: %v", err)
		}
		ids = append(ids, r.ID)
	}

	stored, err := results.Get(ctx, ids[0])
	if err != nil {
		t.Fatalf("Failed to get result: %v", err)
	}
	if !stored.Primary.Value.Equal(out.Primary.Value) {
		t.Errorf("Expected primary %v, got %v", out.Primary.Value, stored.Primary.Value)
	}
	if !stored.Inputs["length"].Equal(in["length"]) {
		t.Errorf("Expected length input %v, got %v", in["length"], stored.Inputs["length"])
	}

	saved, err := results.ListSaved(ctx)
	if err != nil {
		t.Fatalf("Failed to list saved: %v", err)
	}
	if len(saved) != 0 {
		t.Errorf("Expected 0 saved results, got %d", len(saved))
	}

	for _, id := range ids[:2] {
		r, err := results.Get(ctx, id)
		if err != nil {
			t.Fatalf("Failed to get result: %v", err)
		}
		r.Saved = true
		r.Name = "Viga " + id[:4]
		if err := results.Replace(ctx, r); err != nil {
			t.Fatalf("Failed to replace result: %v", err)
		}
	}

	byProject, err := results.ListByProject(ctx, "obra-1")
	if err != nil {
		t.Fatalf("Failed to list by project: %v", err)
	}
	if got := resultIDs(byProject); !equalStrings(got, []string{ids[1], ids[0]}) {
		t.Errorf("Expected saved results newest first %v, got %v", []string{ids[1], ids[0]}, got)
	}

	if err := results.Replace(ctx, &Result{ID: uuid.NewString()}); !errors.Is(err, ErrResultNotFound) {
		t.Errorf("Expected ErrResultNotFound on replace, got %v", err)
	}
	if _, err := results.Get(ctx, uuid.NewString()); !errors.Is(err, ErrResultNotFound) {
		t.Errorf("Expected ErrResultNotFound on get, got %v", err)
	}
	if err := results.Add(ctx, &Result{ID: "not-a-uuid", TemplateID: tmpl.ID}); err == nil {
		t.Error("Expected error for non-UUID result ID, got nil")
	}
}

func TestCascadingDelete(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	templates := NewPostgresTemplateStore(db)
	results := NewPostgresResultStore(db)

	tmpl := beamTemplate()
	if err := templates.Add(ctx, tmpl); err != nil {
		t.Fatalf("Failed to add template: %v", err)
	}
	id := uuid.NewString()
	if err := results.Add(ctx, &Result{ID: id, TemplateID: tmpl.ID, CreatedAt: time.Now()}); err != nil {
		t.Fatalf("Failed to add result: %v", err)
	}

	if err := templates.Delete(ctx, tmpl.ID); err != nil {
		t.Fatalf("Failed to delete template: %v", err)
	}
	if _, err := results.Get(ctx, id); !errors.Is(err, ErrResultNotFound) {
		t.Errorf("Expected results to be deleted with their template, got %v", err)
	}
}
