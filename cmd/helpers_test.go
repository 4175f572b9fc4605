package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/codebouncer/api/schemas"
	"github.com/xkilldash9x/codebouncer/internal/config"
	"github.com/xkilldash9x/codebouncer/internal/observability"
	"github.com/xkilldash9x/codebouncer/internal/store"
)

// memStore is an in-memory scanStore.
type memStore struct {
	mu       sync.Mutex
	nextRepo int64
	scans    map[string]*schemas.ScanRecord
	findings map[string][]schemas.Finding
	getErr   error
}

func newMemStore() *memStore {
	return &memStore{
		scans:    make(map[string]*schemas.ScanRecord),
		findings: make(map[string][]schemas.Finding),
	}
}

func (m *memStore) EnsureRepository(_ context.Context, _, _ string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextRepo++
	return m.nextRepo, nil
}

func (m *memStore) CreateScan(_ context.Context, scanID string, repoID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scans[scanID] = &schemas.ScanRecord{ID: scanID, RepoID: repoID, Status: schemas.ScanStatusRunning, StartedAt: time.Now().UTC()}
	return nil
}

func (m *memStore) PersistFindings(_ context.Context, findings []schemas.Finding) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, f := range findings {
		m.findings[f.ScanID] = append(m.findings[f.ScanID], f)
	}
	return len(findings), nil
}

func (m *memStore) UpdateScanStatus(_ context.Context, u schemas.ScanStatusUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.scans[u.ScanID]
	if !ok {
		return fmt.Errorf("%w: %s", store.ErrScanNotFound, u.ScanID)
	}
	now := time.Now().UTC()
	rec.Status = u.Status
	rec.FilesScanned = u.FilesScanned
	rec.FindingsCount = u.FindingsCount
	rec.ErrorMessage = u.ErrorMessage
	rec.CompletedAt = &now
	return nil
}

func (m *memStore) GetScan(_ context.Context, scanID string) (*schemas.ScanRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	rec, ok := m.scans[scanID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", store.ErrScanNotFound, scanID)
	}
	cp := *rec
	return &cp, nil
}

func (m *memStore) GetFindingsByScanID(_ context.Context, scanID string) ([]schemas.Finding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]schemas.Finding(nil), m.findings[scanID]...), nil
}

// onlyScan returns the single scan record, failing the test otherwise.
func (m *memStore) onlyScan(t *testing.T) *schemas.ScanRecord {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.Len(t, m.scans, 1)
	for _, rec := range m.scans {
		return rec
	}
	return nil
}

type memStoreProvider struct {
	store   *memStore
	err     error
	cleaned bool
}

func (p *memStoreProvider) Create(context.Context, *config.Config) (scanStore, func(), error) {
	if p.err != nil {
		return nil, nil, p.err
	}
	return p.store, func() { p.cleaned = true }, nil
}

// fakeClient answers by tier with canned responses.
type fakeClient struct {
	mu        sync.Mutex
	responses map[schemas.ModelTier]string
	calls     map[schemas.ModelTier]int
	closed    bool
}

func newFakeClient(triage, deep string) *fakeClient {
	return &fakeClient{
		responses: map[schemas.ModelTier]string{schemas.TierFast: triage, schemas.TierPowerful: deep},
		calls:     make(map[schemas.ModelTier]int),
	}
}

func (c *fakeClient) Generate(_ context.Context, req schemas.GenerationRequest) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[req.Tier]++
	resp, ok := c.responses[req.Tier]
	if !ok {
		return "", errors.New("no response configured")
	}
	return resp, nil
}

func (c *fakeClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeClient) provider() clientProvider {
	return func(context.Context, config.LLMRouterConfig, *zap.Logger) (schemas.LLMClient, error) {
		return c, nil
	}
}

func failingClients(err error) clientProvider {
	return func(context.Context, config.LLMRouterConfig, *zap.Logger) (schemas.LLMClient, error) {
		return nil, err
	}
}

// executeCommand runs a fresh command tree and captures its output streams.
func executeCommand(t *testing.T, stores storeProvider, clients clientProvider, args ...string) (string, string, error) {
	t.Helper()
	t.Cleanup(observability.ResetForTest)

	root := newRootCommand(stores, clients)
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(append(args, "--env-file", ""))

	err := root.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

const loginPy = `import sqlite3

def login(user, password):
    query = "SELECT * FROM users WHERE name = '" + user + "'"
    return db.execute(query)
`

const (
	triageHigh = `{"findings":[{"line_number":4,"severity":"HIGH","vuln_type":"SQL Injection","description":"user input concatenated into query","confidence":0.9}],"file_risk_score":0.8,"summary":"injectable login"}`
	deepResult = `{"findings":[` +
		`{"line_number":4,"severity":"CRITICAL","vuln_type":"SQL Injection","description":"confirmed","confidence":0.97,"fix_suggestion":"use parameters","attack_vector":"login form","cwe_id":"CWE-89"},` +
		`{"line_number":5,"severity":"MEDIUM","vuln_type":"Missing Rate Limit","description":"brute force","confidence":0.6}` +
		`],"summary":"confirmed injection"}`
)

// newLocalRepo creates a committed git checkout holding files.
func newLocalRepo(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	wt, err := repo.Worktree()
	require.NoError(t, err)

	for name, content := range files {
		full := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
		_, err = wt.Add(name)
		require.NoError(t, err)
	}
	_, err = wt.Commit("initial import", &git.CommitOptions{
		Author: &object.Signature{Name: "Alice", Email: "alice@example.com", When: time.Date(2025, 11, 3, 10, 0, 0, 0, time.UTC)},
	})
	require.NoError(t, err)
	return dir
}
