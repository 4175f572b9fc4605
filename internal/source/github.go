package source

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/go-github/v58/github"
	"go.uber.org/zap"
)

// GitHubDescriber fetches repository metadata from the GitHub API to enrich
// the repo context handed to the model.
type GitHubDescriber struct {
	client *github.Client
	logger *zap.Logger
}

// NewGitHubDescriber creates a describer. An empty token uses anonymous,
// rate-limited access.
func NewGitHubDescriber(token string, logger *zap.Logger) *GitHubDescriber {
	client := github.NewClient(nil)
	if token != "" {
		client = client.WithAuthToken(token)
	}
	return &GitHubDescriber{client: client, logger: logger.Named("github")}
}

// Describe returns "GitHub description: ..." and "Topics: ..." lines for a
// github.com locator. Anything else, and any API failure, yields "".
func (d *GitHubDescriber) Describe(ctx context.Context, repoURL string) string {
	owner, name, ok := parseGitHubURL(repoURL)
	if !ok {
		return ""
	}

	repo, _, err := d.client.Repositories.Get(ctx, owner, name)
	if err != nil {
		d.logger.Debug("GitHub metadata unavailable", zap.String("repo", owner+"/"+name), zap.Error(err))
		return ""
	}

	var parts []string
	if desc := strings.TrimSpace(repo.GetDescription()); desc != "" {
		parts = append(parts, fmt.Sprintf("GitHub description: %s", desc))
	}
	if len(repo.Topics) > 0 {
		parts = append(parts, fmt.Sprintf("Topics: %s", strings.Join(repo.Topics, ", ")))
	}
	return strings.Join(parts, "\n")
}

// parseGitHubURL extracts owner and repository from https, scp-style and bare
// github.com locators.
func parseGitHubURL(locator string) (owner, repo string, ok bool) {
	var path string
	switch {
	case strings.HasPrefix(locator, "git@github.com:"):
		path = strings.TrimPrefix(locator, "git@github.com:")
	case strings.HasPrefix(locator, "github.com/"):
		path = strings.TrimPrefix(locator, "github.com/")
	default:
		u, err := url.Parse(locator)
		if err != nil || !strings.EqualFold(u.Hostname(), "github.com") {
			return "", "", false
		}
		path = strings.TrimPrefix(u.Path, "/")
	}

	segments := strings.Split(strings.Trim(path, "/"), "/")
	if len(segments) < 2 || segments[0] == "" || segments[1] == "" {
		return "", "", false
	}
	return segments[0], strings.TrimSuffix(segments[1], ".git"), true
}
