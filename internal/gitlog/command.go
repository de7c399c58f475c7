package gitlog

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	lfcaerrors "github.com/rohankatakam/lfca/internal/errors"
)

// Metadata queries run with a per-call timeout and bounded retries. Callers
// that are informational only receive a sentinel (empty value) on exhaustion
// instead of an error.
const (
	metadataTimeout = 30 * time.Second
	metadataRetries = 3
	retryBackoff    = 2 * time.Second
)

// runGit executes one git command in repoPath with the standard timeout and
// retry policy.
func runGit(ctx context.Context, repoPath string, args ...string) (string, error) {
	full := append([]string{"-C", repoPath}, args...)

	var lastErr error
	for attempt := 0; attempt < metadataRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(retryBackoff * time.Duration(attempt)):
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, metadataTimeout)
		cmd := exec.CommandContext(callCtx, "git", full...)
		output, err := cmd.Output()
		timedOut := callCtx.Err() == context.DeadlineExceeded
		cancel()

		if err == nil {
			return strings.TrimSpace(string(output)), nil
		}
		lastErr = err

		// Non-zero exit from git itself will not improve on retry.
		if exitErr, ok := err.(*exec.ExitError); ok && !timedOut {
			return "", lfcaerrors.SubprocessErrorf(err, "git %s failed: %s",
				strings.Join(args, " "), strings.TrimSpace(string(exitErr.Stderr)))
		}
	}

	return "", lfcaerrors.SubprocessErrorf(lastErr, "git %s exhausted retries", strings.Join(args, " "))
}

// HeadOID returns the current HEAD commit id.
func HeadOID(ctx context.Context, repoPath string) (string, error) {
	return runGit(ctx, repoPath, "rev-parse", "HEAD")
}

// CountCommits returns the commit count reachable from HEAD within the
// optional date bounds.
func CountCommits(ctx context.Context, repoPath, since, until string) (int, error) {
	args := []string{"rev-list", "--count", "HEAD"}
	if since != "" {
		args = append(args, "--since="+since)
	}
	if until != "" {
		args = append(args, "--until="+until)
	}
	out, err := runGit(ctx, repoPath, args...)
	if err != nil {
		return 0, err
	}
	if out == "" {
		return 0, nil
	}
	count, err := strconv.Atoi(out)
	if err != nil {
		return 0, fmt.Errorf("parse rev-list count %q: %w", out, err)
	}
	return count, nil
}

// FilesAtHead returns the set of paths present in the HEAD tree.
func FilesAtHead(ctx context.Context, repoPath string) (map[string]bool, error) {
	out, err := runGit(ctx, repoPath, "ls-tree", "-r", "--name-only", "HEAD")
	if err != nil {
		return nil, err
	}
	paths := make(map[string]bool)
	for _, line := range strings.Split(out, "\n") {
		if line != "" {
			paths[line] = true
		}
	}
	return paths, nil
}

// ListRefs returns the short names of all refs.
func ListRefs(ctx context.Context, repoPath string) ([]string, error) {
	out, err := runGit(ctx, repoPath, "for-each-ref", "--format=%(refname:short)")
	if err != nil {
		return nil, err
	}
	var refs []string
	for _, line := range strings.Split(out, "\n") {
		if line != "" {
			refs = append(refs, line)
		}
	}
	return refs, nil
}

// RemoteInfo describes the repository's remote, when one is configured.
type RemoteInfo struct {
	RemoteURL     string `json:"remote_url,omitempty"`
	WebURL        string `json:"web_url,omitempty"`
	Provider      string `json:"provider,omitempty"`
	DefaultBranch string `json:"default_branch"`
}

// RemoteURL returns the URL of the given remote, or empty when none is
// configured. Informational only - never fails the caller.
func RemoteURL(ctx context.Context, repoPath, remote string) string {
	out, err := runGit(ctx, repoPath, "remote", "get-url", remote)
	if err != nil {
		return ""
	}
	return out
}

// DefaultBranch resolves the default branch: the remote HEAD symbolic ref
// when present, then common branch names, then "main".
func DefaultBranch(ctx context.Context, repoPath, remote string) string {
	if out, err := runGit(ctx, repoPath, "symbolic-ref", fmt.Sprintf("refs/remotes/%s/HEAD", remote)); err == nil {
		prefix := fmt.Sprintf("refs/remotes/%s/", remote)
		if strings.HasPrefix(out, prefix) {
			parts := strings.Split(out, "/")
			return parts[len(parts)-1]
		}
	}

	for _, branch := range []string{"main", "master", "develop"} {
		if _, err := runGit(ctx, repoPath, "rev-parse", "--verify", "refs/heads/"+branch); err == nil {
			return branch
		}
	}

	return "main"
}

var (
	sshURLRe   = regexp.MustCompile(`^git@([^:]+):(.+?)(?:\.git)?$`)
	httpsURLRe = regexp.MustCompile(`^https?://([^/]+)/(.+?)(?:\.git)?$`)
	azureSSHRe = regexp.MustCompile(`^v3/([^/]+)/([^/]+)/(.+)$`)
)

// DetectProvider identifies the git hosting provider from a remote URL.
func DetectProvider(remoteURL string) string {
	if remoteURL == "" {
		return ""
	}
	lower := strings.ToLower(remoteURL)
	switch {
	case strings.Contains(lower, "github.com"):
		return "github"
	case strings.Contains(lower, "gitlab.com") || strings.Contains(lower, "gitlab."):
		return "gitlab"
	case strings.Contains(lower, "dev.azure.com") || strings.Contains(lower, "visualstudio.com"):
		return "azure_devops"
	case strings.Contains(lower, "bitbucket.org") || strings.Contains(lower, "bitbucket."):
		return "bitbucket"
	}
	return ""
}

// WebURL transforms a git remote URL to its browsable form.
func WebURL(remoteURL string) string {
	url := strings.TrimSpace(remoteURL)
	if url == "" {
		return ""
	}

	if m := sshURLRe.FindStringSubmatch(url); m != nil {
		host, path := m[1], m[2]
		if host == "ssh.dev.azure.com" {
			if am := azureSSHRe.FindStringSubmatch(strings.TrimPrefix(path, "/")); am != nil {
				return fmt.Sprintf("https://dev.azure.com/%s/%s/_git/%s", am[1], am[2], am[3])
			}
		}
		return fmt.Sprintf("https://%s/%s", host, path)
	}

	if m := httpsURLRe.FindStringSubmatch(url); m != nil {
		host, path := m[1], m[2]
		if at := strings.Index(host, "@"); at >= 0 && host[at+1:] == "dev.azure.com" {
			return fmt.Sprintf("https://dev.azure.com/%s", path)
		}
		return fmt.Sprintf("https://%s/%s", host, path)
	}

	return ""
}

// GetRemoteInfo gathers remote URL, provider, web URL, and default branch.
// All lookups are best-effort.
func GetRemoteInfo(ctx context.Context, repoPath, remote string) RemoteInfo {
	remoteURL := RemoteURL(ctx, repoPath, remote)
	return RemoteInfo{
		RemoteURL:     remoteURL,
		WebURL:        WebURL(remoteURL),
		Provider:      DetectProvider(remoteURL),
		DefaultBranch: DefaultBranch(ctx, repoPath, remote),
	}
}
