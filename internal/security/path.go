// Package security confines user-supplied paths to a configured directory.
package security

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrOutsideRoot is returned for paths that resolve outside the guarded directory
var ErrOutsideRoot = errors.New("path is outside the configured directory")

// PathGuard resolves paths relative to a root directory and rejects any that
// escape it, including through symlinks.
type PathGuard struct {
	root string
}

// NewPathGuard creates a guard for root. The directory need not exist yet.
func NewPathGuard(root string) (*PathGuard, error) {
	if root == "" {
		return nil, fmt.Errorf("root directory cannot be empty")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root directory: %w", err)
	}
	return &PathGuard{root: filepath.Clean(abs)}, nil
}

// Root returns the absolute root directory
func (g *PathGuard) Root() string {
	return g.root
}

// Resolve returns the absolute form of path. Relative paths are taken
// relative to the root.
func (g *PathGuard) Resolve(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("path cannot be empty")
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(g.root, path)
	}
	clean := filepath.Clean(path)

	if !within(clean, g.root) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, path)
	}

	// A symlink inside the root may still point elsewhere.
	realRoot := g.root
	if resolved, err := filepath.EvalSymlinks(g.root); err == nil {
		realRoot = resolved
	}
	if resolved, err := filepath.EvalSymlinks(clean); err == nil {
		if !within(resolved, realRoot) && !within(resolved, g.root) {
			return "", fmt.Errorf("%w: %s", ErrOutsideRoot, path)
		}
	}
	return clean, nil
}

// ReadFile reads a file inside the root
func (g *PathGuard) ReadFile(path string) ([]byte, error) {
	resolved, err := g.Resolve(path)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(resolved)
}

func within(path, dir string) bool {
	if path == dir {
		return true
	}
	return strings.HasPrefix(path, dir+string(filepath.Separator))
}
