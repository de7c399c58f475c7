package gitlog

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"

	lfcaerrors "github.com/rohankatakam/lfca/internal/errors"
	"github.com/rohankatakam/lfca/internal/models"
)

// LogOptions controls the git log invocation the parser depends on
// bit-for-bit.
type LogOptions struct {
	Since                string
	Until                string
	Ref                  string
	AllRefs              bool
	FirstParentOnly      bool
	FindRenamesThreshold int
}

// logArgs assembles the exact invocation the format contract specifies.
func logArgs(repoPath string, opts LogOptions) []string {
	threshold := opts.FindRenamesThreshold
	if threshold <= 0 || threshold > 100 {
		threshold = 60
	}

	args := []string{
		"-C", repoPath,
		"log",
		"--name-status",
		fmt.Sprintf("--find-renames=%d%%", threshold),
		"--date-order",
		"-z",
	}
	if opts.Since != "" {
		args = append(args, "--since="+opts.Since)
	}
	if opts.Until != "" {
		args = append(args, "--until="+opts.Until)
	}
	if opts.FirstParentOnly {
		args = append(args, "--first-parent")
	}
	if opts.AllRefs {
		args = append(args, "--all")
	} else {
		ref := opts.Ref
		if ref == "" {
			ref = "HEAD"
		}
		args = append(args, ref)
	}

	pretty := strings.Join([]string{
		CommitMarker, "%H", "%P", "%an", "%ae", "%at", "%ct", "%s",
	}, "%x00")
	args = append(args, "--pretty=format:"+pretty)
	return args
}

// StreamLog runs git log against the repository and feeds each parsed commit
// to fn. The subprocess exit is awaited on every control path: normal end,
// early break via fn error, or parse failure. fn returning a non-nil error
// stops the stream and is returned as-is. The returned slice holds issues
// recorded after the last yielded commit (a trailing malformed header has no
// commit to carry them).
func StreamLog(ctx context.Context, repoPath string, opts LogOptions, mode string, fn func(*Header, []Change) error) ([]models.ValidationIssue, error) {
	cmd := exec.CommandContext(ctx, "git", logArgs(repoPath, opts)...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, lfcaerrors.SubprocessError(err, "open git log output stream")
	}
	var stderr strings.Builder
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, lfcaerrors.SubprocessError(err, "start git log")
	}

	parser := NewParser(stdout, mode)

	var loopErr error
	for {
		header, changes, err := parser.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			loopErr = err
			break
		}
		if err := fn(header, changes); err != nil {
			loopErr = err
			break
		}
	}

	// Drain and reap the subprocess regardless of how the loop ended.
	io.Copy(io.Discard, stdout)
	stdout.Close()
	waitErr := cmd.Wait()

	if loopErr != nil {
		return parser.PendingIssues(), loopErr
	}
	if waitErr != nil {
		return parser.PendingIssues(), lfcaerrors.SubprocessErrorf(waitErr, "git log failed: %s", strings.TrimSpace(stderr.String()))
	}
	return parser.PendingIssues(), nil
}
