package gitutil

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	prURLRegex   = regexp.MustCompile(`github\.com/([^/]+)/([^/]+)/pull/(\d+)$`)
	repoRefRegex = regexp.MustCompile(`^(?:(?:https?://)?github\.com/)?([A-Za-z0-9_.-]+)/([A-Za-z0-9_.-]+?)(?:\.git)?$`)
)

// ParsePullRequestURL parses a GitHub Pull Request URL and extracts the owner, repo, and PR number.
// Supported format: https://github.com/{owner}/{repo}/pull/{number}
func ParsePullRequestURL(url string) (owner, repo string, prNumber int, err error) {
	url = strings.TrimSuffix(url, "/")

	matches := prURLRegex.FindStringSubmatch(url)
	if len(matches) != 4 {
		return "", "", 0, fmt.Errorf("invalid pull request URL format: %s", url)
	}

	prNumber, err = strconv.Atoi(matches[3])
	if err != nil {
		return "", "", 0, fmt.Errorf("invalid PR number '%s': %w", matches[3], err)
	}
	return matches[1], matches[2], prNumber, nil
}

// ParseRepository accepts "owner/repo" or a github.com repository URL.
func ParseRepository(ref string) (owner, repo string, err error) {
	ref = strings.TrimSuffix(strings.TrimSpace(ref), "/")
	matches := repoRefRegex.FindStringSubmatch(ref)
	if len(matches) != 3 {
		return "", "", fmt.Errorf("invalid repository reference: %q", ref)
	}
	return matches[1], matches[2], nil
}

// CloneURL returns the HTTPS clone URL of a GitHub repository.
func CloneURL(owner, repo string) string {
	return fmt.Sprintf("https://github.com/%s/%s.git", owner, repo)
}
