// Package risk ranks repository files by how likely they are to contain
// security-relevant code, and decides which of them are worth a model call.
package risk

import (
	"path"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/codebouncer/api/schemas"
	"github.com/xkilldash9x/codebouncer/internal/config"
)

// Score is a file's risk category. After git boosts are applied the value is
// a priority key and may exceed High.
type Score int

const (
	Skip   Score = 0
	Low    Score = 1
	Medium Score = 2
	High   Score = 3
)

func (s Score) String() string {
	switch s {
	case Skip:
		return "SKIP"
	case Low:
		return "LOW"
	case Medium:
		return "MEDIUM"
	case High:
		return "HIGH"
	default:
		if s > High {
			return "HIGH+"
		}
		return "UNKNOWN"
	}
}

// Keyword-count thresholds for content scoring.
const (
	highKeywordHits   = 3
	mediumKeywordHits = 1
)

// AssessFileRisk scores a single file from its repo-relative path and,
// optionally, its content. Skip rules win over every other rule.
func AssessFileRisk(filePath, content string) Score {
	lowerPath := strings.ToLower(filePath)
	name := path.Base(lowerPath)

	if shouldSkip(lowerPath, name) {
		return Skip
	}

	if _, ok := highRiskNames[name]; ok {
		return High
	}

	score := Low
	for _, re := range highRiskPathPatterns {
		if re.MatchString(lowerPath) {
			score = High
			break
		}
	}

	if content != "" {
		hits := CountKeywordHits(content)
		switch {
		case hits >= highKeywordHits:
			score = max(score, High)
		case hits >= mediumKeywordHits:
			score = max(score, Medium)
		}
	}
	return score
}

func shouldSkip(lowerPath, name string) bool {
	if _, ok := skipNames[name]; ok {
		return true
	}
	if _, ok := skipExtensions[path.Ext(name)]; ok {
		return true
	}
	for _, suffix := range skipSuffixes {
		if strings.HasSuffix(lowerPath, suffix) {
			return true
		}
	}
	for _, re := range skipPathPatterns {
		if re.MatchString(lowerPath) {
			return true
		}
	}
	return false
}

// CountKeywordHits returns how many distinct risk keywords occur in content.
func CountKeywordHits(content string) int {
	lower := strings.ToLower(content)
	hits := 0
	for _, kw := range riskKeywords {
		if strings.Contains(lower, kw) {
			hits++
		}
	}
	return hits
}

// Assessor applies git-history boosts and the admission cap using an
// explicit RiskConfig.
type Assessor struct {
	cfg    config.RiskConfig
	logger *zap.Logger
}

// NewAssessor creates an Assessor.
func NewAssessor(cfg config.RiskConfig, logger *zap.Logger) *Assessor {
	return &Assessor{cfg: cfg, logger: logger.Named("risk")}
}

// ApplyGitSignals adds the hot-file and security-commit bonuses to each
// candidate in place and records the git metadata that earned them. Scores
// are not clamped.
func (a *Assessor) ApplyGitSignals(candidates []schemas.FileCandidate, hotFiles map[string]int, securityFiles map[string][]string) {
	for i := range candidates {
		c := &candidates[i]
		if count, ok := hotFiles[c.Path]; ok {
			c.ChangeCount = count
			if count >= a.cfg.HotFileThreshold {
				c.RiskScore += a.cfg.HotFileBonus
			}
		}
		if msgs, ok := securityFiles[c.Path]; ok {
			c.SecurityCommitMessages = msgs
			c.RiskScore += a.cfg.SecurityCommitBonus
		}
	}
}

// PrioritizeFiles drops skipped files, scores and boosts the rest, and returns
// them ordered by descending score. Ties keep discovery order. The result is
// capped at MaxFiles when it is positive.
func (a *Assessor) PrioritizeFiles(files []schemas.RepoFile, contents map[string]string, hotFiles map[string]int, securityFiles map[string][]string) []schemas.FileCandidate {
	candidates := make([]schemas.FileCandidate, 0, len(files))
	for _, f := range files {
		content := contents[f.Path]
		score := AssessFileRisk(f.Path, content)
		if score == Skip {
			continue
		}
		candidates = append(candidates, schemas.FileCandidate{
			RepoFile:  f,
			Content:   content,
			RiskScore: int(score),
		})
	}

	a.ApplyGitSignals(candidates, hotFiles, securityFiles)

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].RiskScore > candidates[j].RiskScore
	})

	if a.cfg.MaxFiles > 0 && len(candidates) > a.cfg.MaxFiles {
		candidates = candidates[:a.cfg.MaxFiles]
	}

	a.logger.Debug("Prioritized candidate files",
		zap.Int("listed", len(files)),
		zap.Int("admitted", len(candidates)),
	)
	return candidates
}
