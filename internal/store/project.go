package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/jmoiron/sqlx"

	"github.com/glpilot/glpilot/internal/core"
)

type projectStore struct {
	db   *sqlx.DB
	node *snowflake.Node
}

// NewProjectStore creates a Postgres-backed ProjectStore.
func NewProjectStore(db *sqlx.DB, node *snowflake.Node) ProjectStore {
	if db == nil || node == nil {
		panic("NewProjectStore: nil dependency")
	}
	return &projectStore{db: db, node: node}
}

func (s *projectStore) GetByGitLabID(ctx context.Context, gitlabProjectID int64) (*core.Project, error) {
	var p core.Project
	err := s.db.GetContext(ctx, &p,
		`SELECT * FROM projects WHERE gitlab_project_id = $1`, gitlabProjectID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load project for gitlab project %d: %w", gitlabProjectID, err)
	}
	return &p, nil
}

func (s *projectStore) List(ctx context.Context) ([]*core.Project, error) {
	var projects []*core.Project
	err := s.db.SelectContext(ctx, &projects, `SELECT * FROM projects ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	return projects, nil
}

// Register inserts a project or, when the GitLab project is already known,
// updates its name and enabled flag in place.
func (s *projectStore) Register(ctx context.Context, project *core.Project) error {
	if project.ID == 0 {
		project.ID = s.node.Generate().Int64()
	}
	if project.CreatedAt.IsZero() {
		project.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO projects (id, gitlab_project_id, name, enabled, created_at)
		VALUES (:id, :gitlab_project_id, :name, :enabled, :created_at)
		ON CONFLICT (gitlab_project_id)
		DO UPDATE SET name = EXCLUDED.name, enabled = EXCLUDED.enabled`, project)
	if err != nil {
		return fmt.Errorf("failed to register project %q: %w", project.Name, err)
	}
	return nil
}
