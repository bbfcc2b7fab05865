package core

import "time"

// Project maps a GitLab project onto an internal registration. Events for
// unknown or disabled projects are dropped at intake.
type Project struct {
	ID              int64     `db:"id"`
	GitLabProjectID int64     `db:"gitlab_project_id"`
	Name            string    `db:"name"`
	Enabled         bool      `db:"enabled"`
	CreatedAt       time.Time `db:"created_at"`
}
