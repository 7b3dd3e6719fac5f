package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"callsheet/internal/config"
	"callsheet/internal/domain"
	"callsheet/internal/repo"
	"callsheet/internal/roster"
)

// ConfigName is the single stored workspace config row.
const ConfigName = "default"

// ResolveConfig loads the effective workspace config: the stored row wins,
// then callsheet.yml on disk (which is persisted for next time), then the
// built-in default. Missing config is never fatal for read paths.
func ResolveConfig(ctx context.Context, workspace string, r repo.Repo) (*config.Config, error) {
	cfg, err := r.GetWorkspaceConfig(ctx, ConfigName)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}
	cfg, err = config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = config.Default()
	}
	if err := r.UpsertWorkspaceConfig(ctx, ConfigName, cfg); err != nil {
		return nil, fmt.Errorf("seed workspace config: %w", err)
	}
	return cfg, nil
}

// RosterPath resolves the roster file: an explicit override wins over the
// configured path. Relative paths are anchored at the workspace.
func RosterPath(workspace, override string, cfg *config.Config) (string, error) {
	path := override
	if path == "" && cfg != nil {
		path = cfg.Roster.Path
	}
	if path == "" {
		return "", fmt.Errorf("roster not specified; use --roster or set roster.path in %s", config.Path(workspace))
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(workspace, path)
	}
	return path, nil
}

// LoadRoster resolves and reads the roster, reporting how many records
// lack a durable id.
func LoadRoster(workspace, override string, cfg *config.Config) ([]domain.Record, int, error) {
	path, err := RosterPath(workspace, override, cfg)
	if err != nil {
		return nil, 0, err
	}
	records, err := roster.Load(path)
	if err != nil {
		return nil, 0, err
	}
	idField := ""
	if cfg != nil {
		idField = cfg.Roster.IDField
	}
	return records, roster.MissingIDCount(records, idField), nil
}
