package mirror

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	lfcaerrors "github.com/rohankatakam/lfca/internal/errors"
)

// Sync maintains a bare mirror clone of srcRepo at mirrorPath: clone --mirror
// on first use, fetch --prune --tags afterwards. The mirror is the immutable
// input to extraction.
func Sync(ctx context.Context, srcRepo, mirrorPath string) error {
	if _, err := os.Stat(mirrorPath); err == nil {
		cmd := exec.CommandContext(ctx, "git", "-C", mirrorPath, "fetch", "--prune", "--tags")
		if out, err := cmd.CombinedOutput(); err != nil {
			return lfcaerrors.SubprocessErrorf(err, "mirror fetch failed: %s", strings.TrimSpace(string(out)))
		}
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("stat mirror path: %w", err)
	}

	cmd := exec.CommandContext(ctx, "git", "clone", "--mirror", srcRepo, mirrorPath)
	if out, err := cmd.CombinedOutput(); err != nil {
		return lfcaerrors.SubprocessErrorf(err, "mirror clone failed: %s", strings.TrimSpace(string(out)))
	}
	return nil
}
