// Package output exports a run result to the files a CI runner
// reads after the step: a key=value outputs file and a
// markdown step summary (GITHUB_OUTPUT and
// GITHUB_STEP_SUMMARY on GitHub Actions).
package output

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/byte4ever/image_updater/document"
)

// CommitMessageKey is the output name of the commit message.
const CommitMessageKey = "commit-message"

// WriteCommitMessage appends "commit-message=<msg>" to the
// outputs file at path. Multi-line messages use the heredoc
// form. An empty path is a no-op.
func WriteCommitMessage(path, msg string) error {
	const errCtx = "writing commit message output"

	if path == "" {
		return nil
	}

	line := CommitMessageKey + "=" + msg + "\n"

	if strings.ContainsAny(msg, "\r\n") {
		delim, err := delimiter()
		if err != nil {
			return fmt.Errorf("%s: %w", errCtx, err)
		}

		line = CommitMessageKey + "<<" + delim + "\n" +
			msg + "\n" + delim + "\n"
	}

	if err := appendFile(path, line); err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	return nil
}

// WriteSummary appends report to the step summary file at
// path, one list item per report line. An empty path is a
// no-op.
func WriteSummary(path, report string) error {
	const errCtx = "writing step summary"

	if path == "" {
		return nil
	}

	var sb strings.Builder

	sb.WriteString("## Image updates\n\n")

	lines := strings.Split(report, "\n")
	if report == "" {
		lines = nil
	}

	for _, line := range lines {
		sb.WriteString("- ")
		sb.WriteString(line)
		sb.WriteString("\n")
	}

	if len(lines) == 0 {
		sb.WriteString("No image keys processed.\n")
	}

	if err := appendFile(path, sb.String()); err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	return nil
}

func appendFile(path, content string) error {
	//nolint:gosec // path comes from the CI runner environment
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return &document.IOError{Op: "write", Path: path, Err: err}
	}

	if _, err := f.WriteString(content); err != nil {
		_ = f.Close()

		return &document.IOError{Op: "write", Path: path, Err: err}
	}

	if err := f.Close(); err != nil {
		return &document.IOError{Op: "write", Path: path, Err: err}
	}

	return nil
}

func delimiter() (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}

	return "EOF_" + hex.EncodeToString(buf), nil
}
