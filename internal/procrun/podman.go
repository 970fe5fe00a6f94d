package procrun

import (
	"context"
	"os"
	"path/filepath"
	"strings"
)

const bootIDMismatch = "current system boot ID differs from cached boot ID; an unhandled reboot has occurred"

// RunPodman wraps Run with the known podman boot-ID cache bug workaround:
// when stderr reports the stale boot-ID cache, the two offending runtime
// directories are removed and the command is retried exactly once.
func RunPodman(ctx context.Context, args []string, opts Options) (Result, error) {
	res, err := Run(ctx, "podman", args, opts)
	if err == nil || !strings.Contains(res.Stderr, bootIDMismatch) {
		return res, err
	}
	_ = os.RemoveAll(filepath.Join("/tmp", "storage-run-1000", "containers"))
	_ = os.RemoveAll(filepath.Join("/tmp", "storage-run-1000", "libpod", "tmp"))
	return Run(ctx, "podman", args, opts)
}
