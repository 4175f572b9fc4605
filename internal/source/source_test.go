package source

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/codebouncer/internal/config"
)

func newTestSource(t *testing.T, maxFileSize int) *GitSource {
	t.Helper()
	return NewGitSource(
		config.SourceConfig{WorkDir: t.TempDir(), CloneTimeout: time.Minute},
		config.GitConfig{},
		config.ScanConfig{Extensions: []string{".py", ".js", ".go"}, MaxFileSize: maxFileSize},
		zaptest.NewLogger(t),
	)
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

// initRepo creates a one-commit repository containing files.
func initRepo(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	wt, err := repo.Worktree()
	require.NoError(t, err)

	for rel, content := range files {
		writeFile(t, dir, rel, content)
		_, err := wt.Add(rel)
		require.NoError(t, err)
	}
	_, err = wt.Commit("initial", &git.CommitOptions{
		Author: &object.Signature{Name: "Alice", Email: "alice@example.com", When: time.Date(2025, 12, 1, 9, 0, 0, 0, time.UTC)},
	})
	require.NoError(t, err)
	return dir
}

func TestListFiles(t *testing.T) {
	root := t.TempDir()
	for _, rel := range []string{
		"app.py",
		"src/auth/login.py",
		"src/ui/App.JS",
		"cmd/main.go",
		"README.md",
		"package-lock.json",
		".github/workflows/hook.py",
		"node_modules/lib/index.js",
		"vendor/dep/dep.go",
		"build/gen.py",
		"dist/bundle.js",
		"pkg/__pycache__/mod.py",
	} {
		writeFile(t, root, rel, "x")
	}

	files, err := newTestSource(t, 1000).ListFiles(root)
	require.NoError(t, err)

	var paths []string
	for _, f := range files {
		paths = append(paths, f.Path)
		assert.Equal(t, filepath.Join(root, filepath.FromSlash(f.Path)), f.FullPath)
	}
	assert.Equal(t, []string{"app.py", "cmd/main.go", "src/auth/login.py", "src/ui/App.JS"}, paths)
}

func TestListFiles_MissingDirectory(t *testing.T) {
	_, err := newTestSource(t, 1000).ListFiles(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestReadFile(t *testing.T) {
	root := t.TempDir()
	s := newTestSource(t, 10)

	t.Run("caps size", func(t *testing.T) {
		writeFile(t, root, "long.py", strings.Repeat("a", 25))
		content, err := s.ReadFile(filepath.Join(root, "long.py"))
		require.NoError(t, err)
		assert.Equal(t, strings.Repeat("a", 10), content)
	})

	t.Run("replaces invalid utf8", func(t *testing.T) {
		writeFile(t, root, "bin.py", "ok\xffok")
		content, err := s.ReadFile(filepath.Join(root, "bin.py"))
		require.NoError(t, err)
		assert.Equal(t, "ok�ok", content)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := s.ReadFile(filepath.Join(root, "nope.py"))
		assert.Error(t, err)
	})
}

func TestClone_LocalCheckout(t *testing.T) {
	dir := initRepo(t, map[string]string{"app.py": "print(1)\n"})
	s := newTestSource(t, 1000)

	got, err := s.Clone(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, dir, got)

	require.NoError(t, s.Cleanup(got))
	assert.DirExists(t, dir, "local checkouts must never be deleted")
}

func TestClone_LocalNotARepository(t *testing.T) {
	_, err := newTestSource(t, 1000).Clone(context.Background(), t.TempDir())
	assert.ErrorIs(t, err, ErrNotGitRepository)
}

func TestClone_RemoteAndCleanup(t *testing.T) {
	// go-git's file transport shells out to git-upload-pack.
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git binary not available")
	}
	origin := initRepo(t, map[string]string{"app.py": "print(1)\n", "lib/util.js": "x()\n"})
	s := newTestSource(t, 1000)

	dir, err := s.Clone(context.Background(), "file://"+filepath.ToSlash(origin))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(filepath.Base(dir), "codebouncer_"))

	files, err := s.ListFiles(dir)
	require.NoError(t, err)
	assert.Len(t, files, 2)

	require.NoError(t, s.Cleanup(dir))
	assert.NoDirExists(t, dir)
}

func TestClone_Failure(t *testing.T) {
	s := newTestSource(t, 1000)

	_, err := s.Clone(context.Background(), "file://"+filepath.ToSlash(filepath.Join(t.TempDir(), "missing")))
	require.Error(t, err)

	entries, readErr := os.ReadDir(s.cfg.WorkDir)
	require.NoError(t, readErr)
	assert.Empty(t, entries, "a failed clone must not leave its directory behind")
}

func TestRepoName(t *testing.T) {
	tests := map[string]string{
		"https://github.com/acme/webapp.git": "webapp",
		"https://github.com/acme/webapp/":    "webapp",
		"https://gitlab.com/group/sub/api":   "api",
		"git@github.com:acme/tooling.git":    "tooling",
		"/home/dev/src/checkout":             "checkout",
		"webapp":                             "webapp",
	}
	for locator, want := range tests {
		assert.Equal(t, want, RepoName(locator), locator)
	}
}

func TestResolveLocator(t *testing.T) {
	parent := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(parent, "checkout"), 0o755))
	t.Chdir(parent)

	assert.Equal(t, parent, ResolveLocator("."))
	assert.Equal(t, filepath.Join(parent, "checkout"), ResolveLocator("checkout"))
	assert.Equal(t, "checkout", RepoName(ResolveLocator("checkout/")))
	assert.Equal(t, filepath.Base(parent), RepoName(ResolveLocator(".")))

	assert.Equal(t, "https://github.com/acme/webapp.git", ResolveLocator("https://github.com/acme/webapp.git"))
	assert.Equal(t, "missing", ResolveLocator("missing"), "paths that do not exist are left alone")
}

func TestParseGitHubURL(t *testing.T) {
	tests := []struct {
		locator     string
		owner, repo string
		ok          bool
	}{
		{"https://github.com/acme/webapp.git", "acme", "webapp", true},
		{"https://github.com/acme/webapp/tree/main", "acme", "webapp", true},
		{"git@github.com:acme/webapp.git", "acme", "webapp", true},
		{"github.com/acme/webapp", "acme", "webapp", true},
		{"https://gitlab.com/acme/webapp", "", "", false},
		{"https://github.com/acme", "", "", false},
		{"/local/path", "", "", false},
	}
	for _, tt := range tests {
		owner, repo, ok := parseGitHubURL(tt.locator)
		assert.Equal(t, tt.ok, ok, tt.locator)
		assert.Equal(t, tt.owner, owner, tt.locator)
		assert.Equal(t, tt.repo, repo, tt.locator)
	}
}

func TestAuthFor(t *testing.T) {
	s := newTestSource(t, 1000)
	assert.Nil(t, s.authFor("https://github.com/acme/webapp"))

	s.cfg.GitHubToken = "ghp_test"
	assert.NotNil(t, s.authFor("https://github.com/acme/webapp"))
	assert.Nil(t, s.authFor("git@github.com:acme/webapp.git"))
	assert.Nil(t, s.authFor("https://gitlab.com/acme/webapp"))
}

func TestGitHubDescriber(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/repos/acme/webapp":
			assert.Equal(t, "Bearer ghp_test", r.Header.Get("Authorization"))
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{"name": "webapp", "description": "Customer portal", "topics": ["flask", "payments"]}`)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)

	d := NewGitHubDescriber("ghp_test", zaptest.NewLogger(t))
	base, err := url.Parse(server.URL + "/")
	require.NoError(t, err)
	d.client.BaseURL = base

	ctx := context.Background()
	assert.Equal(t, "GitHub description: Customer portal\nTopics: flask, payments",
		d.Describe(ctx, "https://github.com/acme/webapp.git"))
	assert.Empty(t, d.Describe(ctx, "https://github.com/acme/missing"))
	assert.Empty(t, d.Describe(ctx, "https://gitlab.com/acme/webapp"))
}
