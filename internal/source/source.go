// Package source obtains working copies of repositories and enumerates the
// files in them that are eligible for scanning.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"go.uber.org/zap"

	"github.com/xkilldash9x/codebouncer/api/schemas"
	"github.com/xkilldash9x/codebouncer/internal/config"
)

// ErrNotGitRepository is returned when a local locator is not a git checkout.
var ErrNotGitRepository = errors.New("not a git repository")

// excludedDirs are never descended into. Hidden directories are excluded separately.
var excludedDirs = map[string]struct{}{
	"node_modules": {},
	"__pycache__":  {},
	"venv":         {},
	"vendor":       {},
	"dist":         {},
	"build":        {},
	"target":       {},
}

// GitSource implements schemas.RepositorySource on go-git. Remote locators are
// shallow-cloned into a temporary directory; local checkouts are used in place
// and never deleted.
type GitSource struct {
	cfg         config.SourceConfig
	cloneDepth  int
	extensions  map[string]struct{}
	maxFileSize int
	logger      *zap.Logger

	mu    sync.Mutex
	owned map[string]struct{}
}

var _ schemas.RepositorySource = (*GitSource)(nil)

// NewGitSource creates a GitSource from the source, git and scan settings.
func NewGitSource(cfg config.SourceConfig, gitCfg config.GitConfig, scanCfg config.ScanConfig, logger *zap.Logger) *GitSource {
	exts := make(map[string]struct{}, len(scanCfg.Extensions))
	for _, ext := range scanCfg.Extensions {
		exts[strings.ToLower(ext)] = struct{}{}
	}
	return &GitSource{
		cfg:         cfg,
		cloneDepth:  gitCfg.CloneDepth,
		extensions:  exts,
		maxFileSize: scanCfg.MaxFileSize,
		logger:      logger.Named("source"),
		owned:       make(map[string]struct{}),
	}
}

// Clone returns a working copy for repoURL. An existing local directory must
// already be a git repository.
func (s *GitSource) Clone(ctx context.Context, repoURL string) (string, error) {
	if info, err := os.Stat(repoURL); err == nil && info.IsDir() {
		return s.openLocal(repoURL)
	}

	dir, err := os.MkdirTemp(s.cfg.WorkDir, "codebouncer_")
	if err != nil {
		return "", fmt.Errorf("failed to create working directory: %w", err)
	}

	if s.cfg.CloneTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.CloneTimeout)
		defer cancel()
	}

	opts := &git.CloneOptions{
		URL:          repoURL,
		Depth:        s.cloneDepth,
		SingleBranch: true,
		Tags:         git.NoTags,
		Auth:         s.authFor(repoURL),
	}

	s.logger.Info("Cloning repository", zap.String("url", repoURL), zap.Int("depth", s.cloneDepth))
	if _, err := git.PlainCloneContext(ctx, dir, false, opts); err != nil {
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			s.logger.Warn("Failed to remove partial clone", zap.String("dir", dir), zap.Error(rmErr))
		}
		return "", fmt.Errorf("failed to clone %s: %w", repoURL, err)
	}

	s.mu.Lock()
	s.owned[dir] = struct{}{}
	s.mu.Unlock()
	return dir, nil
}

func (s *GitSource) openLocal(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", dir, err)
	}
	if _, err := git.PlainOpen(abs); err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return "", fmt.Errorf("%s: %w", abs, ErrNotGitRepository)
		}
		return "", fmt.Errorf("failed to open %s: %w", abs, err)
	}
	s.logger.Info("Using local checkout", zap.String("dir", abs))
	return abs, nil
}

// authFor attaches the GitHub token to HTTPS github.com remotes.
func (s *GitSource) authFor(repoURL string) transport.AuthMethod {
	if s.cfg.GitHubToken == "" {
		return nil
	}
	if _, _, ok := parseGitHubURL(repoURL); !ok || !strings.HasPrefix(repoURL, "https://") {
		return nil
	}
	return &githttp.BasicAuth{Username: "x-access-token", Password: s.cfg.GitHubToken}
}

// ListFiles walks repoDir and returns every file whose extension is on the
// allow-list, in lexical order.
func (s *GitSource) ListFiles(repoDir string) ([]schemas.RepoFile, error) {
	var files []schemas.RepoFile
	err := filepath.WalkDir(repoDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != repoDir && skipDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if _, ok := s.extensions[strings.ToLower(filepath.Ext(path))]; !ok {
			return nil
		}

		rel, err := filepath.Rel(repoDir, path)
		if err != nil {
			return err
		}
		files = append(files, schemas.RepoFile{Path: filepath.ToSlash(rel), FullPath: path})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list files in %s: %w", repoDir, err)
	}
	return files, nil
}

func skipDir(name string) bool {
	if strings.HasPrefix(name, ".") {
		return true
	}
	_, ok := excludedDirs[name]
	return ok
}

// ReadFile reads at most MaxFileSize bytes of fullPath. Invalid UTF-8 is
// replaced rather than rejected.
func (s *GitSource) ReadFile(fullPath string) (string, error) {
	f, err := os.Open(fullPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var r io.Reader = f
	if s.maxFileSize > 0 {
		r = io.LimitReader(f, int64(s.maxFileSize))
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", fullPath, err)
	}
	return strings.ToValidUTF8(string(data), "\uFFFD"), nil
}

// Cleanup removes a working copy created by Clone. Local checkouts are left alone.
func (s *GitSource) Cleanup(repoDir string) error {
	s.mu.Lock()
	_, ok := s.owned[repoDir]
	delete(s.owned, repoDir)
	s.mu.Unlock()

	if !ok {
		return nil
	}
	if err := os.RemoveAll(repoDir); err != nil {
		return fmt.Errorf("failed to remove %s: %w", repoDir, err)
	}
	s.logger.Debug("Removed working copy", zap.String("dir", repoDir))
	return nil
}

// ResolveLocator returns the absolute path of a locator that names an
// existing local directory. Remote URLs and unresolvable paths come back
// unchanged.
func ResolveLocator(locator string) string {
	info, err := os.Stat(locator)
	if err != nil || !info.IsDir() {
		return locator
	}
	abs, err := filepath.Abs(locator)
	if err != nil {
		return locator
	}
	return abs
}

// RepoName derives a display name from a repository locator: the last path
// segment with any trailing slash and ".git" suffix removed.
func RepoName(locator string) string {
	trimmed := strings.TrimRight(filepath.ToSlash(locator), "/")
	segments := strings.Split(trimmed, "/")
	name := segments[len(segments)-1]
	if i := strings.LastIndex(name, ":"); i >= 0 {
		name = name[i+1:]
	}
	return strings.TrimSuffix(name, ".git")
}
