// Package exec runs external commands (git) for the
// publishing step and captures their output.
package exec

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// Ex executes the named command in dir and returns its
// combined stdout+stderr output. Pass an empty dir to use the
// current working directory. The command is killed when ctx
// is done.
func Ex(
	ctx context.Context,
	dir string,
	name string,
	arg ...string,
) (string, error) {
	const errCtx = "executing command"

	slog.Debug(
		"executing",
		"cmd", name,
		"args", strings.Join(arg, " "),
		"dir", dir,
	)

	cmd := exec.CommandContext(ctx, name, arg...)
	if dir != "" {
		cmd.Dir = dir
	}

	by, err := cmd.CombinedOutput()

	slog.Debug("output", "cmd", name, "result", string(by))

	if err != nil {
		return string(by), fmt.Errorf(
			"%s: %s %s: %w: %s",
			errCtx, name, strings.Join(arg, " "), err,
			strings.TrimSpace(string(by)),
		)
	}

	return string(by), nil
}

// Lines splits command output into non-empty lines.
func Lines(out string) []string {
	var lines []string

	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			lines = append(lines, line)
		}
	}

	return lines
}
