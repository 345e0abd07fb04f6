package app

import (
	"context"
	"errors"
	"fmt"

	"regdesk/internal/config"
	"regdesk/internal/repo"
)

// ResolveProjectAndConfig picks the active project and ensures its config
// exists in the DB, seeding defaults if missing. It prefers the override,
// then the single-project workspace.
func ResolveProjectAndConfig(ctx context.Context, projectOverride string, r repo.Repo) (string, *config.Config, error) {
	projectID := projectOverride
	if projectID == "" {
		p, err := r.SingleProject(ctx)
		if err != nil {
			return "", nil, fmt.Errorf("project not specified; use --project or rd project create")
		}
		projectID = p.ID
	}
	if _, err := r.GetProject(ctx, projectID); err != nil {
		return "", nil, err
	}
	cfg, err := r.GetProjectConfig(ctx, projectID)
	if err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			return "", nil, err
		}
		cfg = config.Default(projectID)
		if err := r.UpsertProjectConfig(ctx, projectID, cfg); err != nil {
			return "", nil, fmt.Errorf("seed project config: %w", err)
		}
	}
	cfg.Project.ID = projectID
	return projectID, cfg, nil
}
