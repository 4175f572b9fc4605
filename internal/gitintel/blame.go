package gitintel

import (
	"context"
	"time"

	"github.com/go-git/go-git/v5"
	"go.uber.org/zap"

	"github.com/xkilldash9x/codebouncer/api/schemas"
)

const blameDateLayout = "2006-01-02"

// BlameLine returns the commit that last touched line (1-indexed) of
// filePath at HEAD. The second return value is false when attribution is
// unavailable: blame is disabled, the line is out of range, the file is
// absent at HEAD, history is too shallow, or the lookup timed out.
func (e *Extractor) BlameLine(ctx context.Context, filePath string, line int) (schemas.BlameInfo, bool) {
	if !e.cfg.BlameEnabled || line < 1 {
		return schemas.BlameInfo{}, false
	}

	if e.cfg.BlameTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.BlameTimeout)
		defer cancel()
	}

	// go-git's Blame takes no context, so the lookup runs aside and the
	// caller stops waiting on timeout. The result is cached either way.
	done := make(chan *git.BlameResult, 1)
	go func() {
		done <- e.blameFile(filePath)
	}()

	var result *git.BlameResult
	select {
	case result = <-done:
	case <-ctx.Done():
		e.logger.Debug("Blame lookup abandoned", zap.String("path", filePath), zap.Error(ctx.Err()))
		return schemas.BlameInfo{}, false
	}

	if result == nil || line > len(result.Lines) {
		return schemas.BlameInfo{}, false
	}
	l := result.Lines[line-1]
	return schemas.BlameInfo{
		Hash:   l.Hash.String(),
		Author: l.AuthorName,
		Date:   l.Date.UTC().Format(blameDateLayout),
	}, true
}

// blameFile computes (or reuses) the blame of a whole file at HEAD. Failures
// are cached as nil so that repeated findings in one file cost one attempt.
func (e *Extractor) blameFile(filePath string) *git.BlameResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	if cached, ok := e.blameCache[filePath]; ok {
		return cached
	}

	start := time.Now()
	result, err := e.computeBlame(filePath)
	if err != nil {
		e.logger.Debug("Blame unavailable", zap.String("path", filePath), zap.Error(err))
	} else {
		e.logger.Debug("Blame computed", zap.String("path", filePath), zap.Duration("elapsed", time.Since(start)))
	}
	e.blameCache[filePath] = result
	return result
}

func (e *Extractor) computeBlame(filePath string) (*git.BlameResult, error) {
	repo, err := e.open()
	if err != nil {
		return nil, err
	}
	head, err := repo.Head()
	if err != nil {
		return nil, err
	}
	commit, err := repo.CommitObject(head.Hash())
	if err != nil {
		return nil, err
	}
	return git.Blame(commit, filePath)
}
