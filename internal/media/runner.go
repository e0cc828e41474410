package media

import (
	"bytes"
	"context"
	"io"
	"os/exec"
	"strings"

	"github.com/rs/zerolog"

	"vodpack/internal/utils"
)

// keep only the tail of the tool's error stream in diagnostics
const stderrTailLines = 12

func stderrTail(stderr []byte) string {
	lines := strings.Split(strings.TrimSpace(string(stderr)), "\n")
	if len(lines) > stderrTailLines {
		lines = lines[len(lines)-stderrTailLines:]
	}
	return strings.Join(lines, "\n")
}

// runTool executes the external binary and returns its stdout. The error
// stream is mirrored to the logger as it arrives; on failure its tail is
// returned alongside the error.
func runTool(ctx context.Context, logger zerolog.Logger, binary string, args []string) ([]byte, string, error) {
	cmd := exec.CommandContext(ctx, binary, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = io.MultiWriter(&stderr, utils.LogWriter(logger.With().Str("tool", binary).Logger()))

	if err := cmd.Run(); err != nil {
		return nil, stderrTail(stderr.Bytes()), err
	}

	return stdout.Bytes(), "", nil
}
