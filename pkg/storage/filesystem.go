package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/platinummonkey/finance/pkg/models"
)

const (
	usersDir = "users"
	plansDir = "plans"
)

// FileSystemStore implements Store using JSON files on the local filesystem.
// Layout: <root>/users/<provider>/<id>.json and <root>/plans/<name>.json.
type FileSystemStore struct {
	rootDir string
}

// NewFileSystemStore creates a new filesystem-based store
func NewFileSystemStore(rootDir string) (*FileSystemStore, error) {
	for _, dir := range []string{usersDir, plansDir} {
		if err := os.MkdirAll(filepath.Join(rootDir, dir), 0755); err != nil {
			return nil, fmt.Errorf("failed to create %s directory: %w", dir, err)
		}
	}
	return &FileSystemStore{rootDir: rootDir}, nil
}

func (s *FileSystemStore) userFile(id models.UserID) string {
	return filepath.Join(s.rootDir, usersDir, url.PathEscape(id.Provider), url.PathEscape(id.ID)+".json")
}

func (s *FileSystemStore) planFile(name string) string {
	return filepath.Join(s.rootDir, plansDir, url.PathEscape(name)+".json")
}

// SaveUser implements UserStore.SaveUser
func (s *FileSystemStore) SaveUser(ctx context.Context, user *models.FinanceUser) error {
	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("failed to marshal user: %w", err)
	}
	return writeFileAtomic(s.userFile(user.Key()), data)
}

// RemoveUser implements UserStore.RemoveUser
func (s *FileSystemStore) RemoveUser(ctx context.Context, id models.UserID) error {
	if err := os.Remove(s.userFile(id)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("user %s: %w", id, ErrNotFound)
		}
		return fmt.Errorf("failed to remove user file: %w", err)
	}
	return nil
}

// LoadUsers implements UserStore.LoadUsers
func (s *FileSystemStore) LoadUsers(ctx context.Context) ([]*models.FinanceUser, error) {
	var users []*models.FinanceUser
	root := filepath.Join(s.rootDir, usersDir)

	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".json") {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read user file: %w", err)
		}
		user := &models.FinanceUser{}
		if err := json.Unmarshal(data, user); err != nil {
			return fmt.Errorf("failed to unmarshal user %s: %w", path, err)
		}
		users = append(users, user)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return users, nil
}

// SavePlan implements PlanStore.SavePlan
func (s *FileSystemStore) SavePlan(ctx context.Context, plan PlanRecord) error {
	data, err := json.Marshal(plan)
	if err != nil {
		return fmt.Errorf("failed to marshal plan: %w", err)
	}
	return writeFileAtomic(s.planFile(plan.Name), data)
}

// RemovePlan implements PlanStore.RemovePlan
func (s *FileSystemStore) RemovePlan(ctx context.Context, name string) error {
	if err := os.Remove(s.planFile(name)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("plan %s: %w", name, ErrNotFound)
		}
		return fmt.Errorf("failed to remove plan file: %w", err)
	}
	return nil
}

// LoadPlans implements PlanStore.LoadPlans
func (s *FileSystemStore) LoadPlans(ctx context.Context) ([]PlanRecord, error) {
	entries, err := os.ReadDir(filepath.Join(s.rootDir, plansDir))
	if err != nil {
		return nil, fmt.Errorf("failed to read plans directory: %w", err)
	}

	var plans []PlanRecord
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(s.rootDir, plansDir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read plan file: %w", err)
		}
		var plan PlanRecord
		if err := json.Unmarshal(data, &plan); err != nil {
			return nil, fmt.Errorf("failed to unmarshal plan %s: %w", entry.Name(), err)
		}
		plans = append(plans, plan)
	}

	return plans, nil
}

// HealthCheck verifies the root directory is still accessible
func (s *FileSystemStore) HealthCheck(ctx context.Context) error {
	if _, err := os.Stat(s.rootDir); err != nil {
		return fmt.Errorf("filesystem store unhealthy: %w", err)
	}
	return nil
}

// Close implements Store.Close
func (s *FileSystemStore) Close() error {
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace file: %w", err)
	}
	return nil
}
