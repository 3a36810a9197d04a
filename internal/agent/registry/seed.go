package registry

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	v1 "github.com/opensourcewtf/waaah/pkg/api/v1"
)

// seedEntry is one agent declaration in the seed file, keyed by agent id.
type seedEntry struct {
	DisplayName  string               `yaml:"displayName"`
	Aliases      []string             `yaml:"aliases"`
	Capabilities []string             `yaml:"capabilities"`
	Color        string               `yaml:"color"`
	Workspace    *seedWorkspaceConfig `yaml:"workspace"`
}

type seedWorkspaceConfig struct {
	Type   string `yaml:"type"`
	RepoID string `yaml:"repoId"`
	Path   string `yaml:"path"`
	Branch string `yaml:"branch"`
}

// SeedFromFile loads declarative agent definitions from a YAML file when the
// registry is empty. A missing file is not an error; a non-empty registry
// leaves the file untouched.
func (r *Registry) SeedFromFile(ctx context.Context, path string) error {
	count, err := r.store.CountAgents(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			r.logger.Debug("no agent seed file found", zap.String("path", path))
			return nil
		}
		return fmt.Errorf("failed to read seed file: %w", err)
	}

	var entries map[string]seedEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("failed to parse seed file %s: %w", path, err)
	}

	for id, entry := range entries {
		req := &v1.RegisterAgentRequest{
			ID:           id,
			DisplayName:  entry.DisplayName,
			Aliases:      entry.Aliases,
			Capabilities: entry.Capabilities,
			Color:        entry.Color,
		}
		if entry.Workspace != nil {
			req.WorkspaceContext = &v1.WorkspaceContext{
				Type:   entry.Workspace.Type,
				RepoID: entry.Workspace.RepoID,
				Path:   entry.Workspace.Path,
				Branch: entry.Workspace.Branch,
			}
		}
		if _, err := r.Register(ctx, req); err != nil {
			return fmt.Errorf("failed to seed agent %s: %w", id, err)
		}
	}

	r.logger.Info("seeded agents from file",
		zap.String("path", path),
		zap.Int("count", len(entries)),
	)
	return nil
}
