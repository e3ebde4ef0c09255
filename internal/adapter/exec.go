package adapter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// runCommand executes an external tool under a hard wall-clock timeout and
// returns its stdout. Timeouts and non-zero exits come back as ordinary
// errors so the calling adapter can report them as a failed attempt.
func runCommand(ctx context.Context, timeout time.Duration, name string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%s timed out after %s", name, timeout)
		}
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = strings.TrimSpace(stdout.String())
		}
		if detail != "" {
			return "", fmt.Errorf("%s exited: %w (%s)", name, err, detail)
		}
		return "", fmt.Errorf("%s exited: %w", name, err)
	}
	return stdout.String(), nil
}

// lookBinary returns the first name on the candidate list found in PATH.
func lookBinary(candidates ...string) (string, error) {
	for _, c := range candidates {
		if c == "" {
			continue
		}
		if path, err := exec.LookPath(c); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("none of %v found in PATH", candidates)
}
