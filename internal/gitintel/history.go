// Package gitintel mines a working copy's version history for the signals
// used to re-weight file risk: churn, security-flavoured commits, line blame
// and a short project description.
//
// None of the lookups return errors. A checkout without history, a shallow
// boundary or an unreadable object degrades to empty results and a debug log.
package gitintel

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
	"go.uber.org/zap"

	"github.com/xkilldash9x/codebouncer/internal/config"
)

// Extractor answers history queries for a single working copy. It is safe
// for concurrent use.
type Extractor struct {
	dir    string
	cfg    config.GitConfig
	logger *zap.Logger

	openOnce sync.Once
	repo     *git.Repository
	openErr  error

	// go-git repositories are not documented as safe for concurrent reads.
	mu         sync.Mutex
	blameCache map[string]*git.BlameResult
}

// NewExtractor creates an Extractor for the checkout at dir. The repository
// is opened lazily on first use.
func NewExtractor(dir string, cfg config.GitConfig, logger *zap.Logger) *Extractor {
	return &Extractor{
		dir:        dir,
		cfg:        cfg,
		logger:     logger.Named("gitintel"),
		blameCache: make(map[string]*git.BlameResult),
	}
}

func (e *Extractor) open() (*git.Repository, error) {
	e.openOnce.Do(func() {
		e.repo, e.openErr = git.PlainOpen(e.dir)
	})
	return e.repo, e.openErr
}

// Signals holds both history lookups gathered in a single log walk.
type Signals struct {
	// HotFiles counts, per repo-relative path, the commits that touched it.
	HotFiles map[string]int
	// SecurityFiles lists, per path, the subjects of security-relevant
	// commits that touched it, in log order. Duplicates are kept.
	SecurityFiles map[string][]string
}

// CollectSignals walks the newest maxCommits commits once and builds both
// the churn and the security-commit lookups. A non-positive maxCommits falls
// back to the configured window.
func (e *Extractor) CollectSignals(ctx context.Context, maxCommits int) Signals {
	sig := Signals{
		HotFiles:      make(map[string]int),
		SecurityFiles: make(map[string][]string),
	}
	err := e.walk(ctx, maxCommits, func(subject string, paths []string) {
		security := IsSecurityCommit(subject)
		for _, p := range paths {
			sig.HotFiles[p]++
			if security {
				sig.SecurityFiles[p] = append(sig.SecurityFiles[p], subject)
			}
		}
	})
	switch {
	case errors.Is(err, plumbing.ErrObjectNotFound):
		// History was cut short by missing objects; what was walked still counts.
		e.logger.Debug("History truncated, keeping partial git signals",
			zap.String("dir", e.dir), zap.Error(err))
	case err != nil:
		e.logger.Debug("History unavailable, continuing without git signals",
			zap.String("dir", e.dir), zap.Error(err))
		return Signals{HotFiles: map[string]int{}, SecurityFiles: map[string][]string{}}
	}
	return sig
}

// HotFiles counts how many of the newest maxCommits commits touched each file.
func (e *Extractor) HotFiles(ctx context.Context, maxCommits int) map[string]int {
	return e.CollectSignals(ctx, maxCommits).HotFiles
}

// SecurityCommits maps each file to the messages of security-relevant
// commits that touched it.
func (e *Extractor) SecurityCommits(ctx context.Context, maxCommits int) map[string][]string {
	return e.CollectSignals(ctx, maxCommits).SecurityFiles
}

// walk visits up to maxCommits commits reachable from HEAD, newest first,
// passing each commit's subject line and the paths it changed. On a shallow
// clone the walk ends at the boundary commits instead of failing on their
// missing parents.
func (e *Extractor) walk(ctx context.Context, maxCommits int, visit func(subject string, paths []string)) error {
	if maxCommits <= 0 {
		maxCommits = e.cfg.MaxCommits
	}

	repo, err := e.open()
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	head, err := repo.Head()
	if err != nil {
		return err
	}
	tip, err := repo.CommitObject(head.Hash())
	if err != nil {
		return err
	}
	iter := object.NewCommitIterCTime(tip, shallowParents(repo), nil)
	defer iter.Close()

	seen := 0
	return iter.ForEach(func(c *object.Commit) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if maxCommits > 0 && seen >= maxCommits {
			return storer.ErrStop
		}
		seen++

		paths, err := changedPaths(c)
		if err != nil {
			e.logger.Debug("Skipping commit with unreadable tree",
				zap.String("commit", c.Hash.String()), zap.Error(err))
			return nil
		}
		visit(subjectOf(c.Message), paths)
		return nil
	})
}

// shallowParents returns the parents of the repository's shallow boundary
// commits. They are absent from the object store, so the walk treats them as
// already seen.
func shallowParents(repo *git.Repository) map[plumbing.Hash]bool {
	shallow, err := repo.Storer.Shallow()
	if err != nil || len(shallow) == 0 {
		return nil
	}
	missing := make(map[plumbing.Hash]bool)
	for _, h := range shallow {
		c, err := repo.CommitObject(h)
		if err != nil {
			continue
		}
		for _, p := range c.ParentHashes {
			missing[p] = true
		}
	}
	return missing
}

// changedPaths lists the files a commit changed relative to its first
// parent. Merge commits report nothing, and neither does a commit whose
// parent lies beyond a shallow boundary since its diff is unknown. A root
// commit is compared against the empty tree.
func changedPaths(c *object.Commit) ([]string, error) {
	if c.NumParents() > 1 {
		return nil, nil
	}

	tree, err := c.Tree()
	if err != nil {
		return nil, err
	}

	var parentTree *object.Tree
	if c.NumParents() == 1 {
		parent, err := c.Parent(0)
		if errors.Is(err, plumbing.ErrObjectNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		if parentTree, err = parent.Tree(); err != nil {
			return nil, err
		}
	}

	changes, err := object.DiffTree(parentTree, tree)
	if err != nil {
		return nil, err
	}

	paths := make([]string, 0, len(changes))
	for _, ch := range changes {
		name := ch.To.Name
		if name == "" {
			name = ch.From.Name
		}
		if name != "" {
			paths = append(paths, name)
		}
	}
	return paths, nil
}

func subjectOf(message string) string {
	subject, _, _ := strings.Cut(strings.TrimSpace(message), "\n")
	return strings.TrimSpace(subject)
}
