// Package output writes rendered entries to a journal file or stdout.
package output

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pigeonworks-llc/plaid2text/pkg/pathutil"
)

// Stdout is the destination name for standard output.
const Stdout = "-"

// Writer emits one run's output in a single write.
type Writer interface {
	Write(header string, entries []string) error
}

// FileWriter writes to a path, replacing its content, or to stdout.
type FileWriter struct {
	path         string
	stdout       io.Writer
	pathResolver *pathutil.PathResolver
}

// NewFileWriter creates a FileWriter. An empty path or "-" selects stdout.
func NewFileWriter(path string, stdout io.Writer, pathResolver *pathutil.PathResolver) *FileWriter {
	if stdout == nil {
		stdout = os.Stdout
	}
	return &FileWriter{path: path, stdout: stdout, pathResolver: pathResolver}
}

// Destination describes where output goes, for messages.
func (w *FileWriter) Destination() string {
	if w.toStdout() {
		return "stdout"
	}
	return w.path
}

func (w *FileWriter) toStdout() bool {
	return w.path == "" || w.path == Stdout
}

// Prepare creates or truncates the destination file so that an unusable
// path is reported before any transaction is processed. Stdout needs no
// preparation.
func (w *FileWriter) Prepare() error {
	if w.toStdout() {
		return nil
	}
	if err := w.pathResolver.EnsureParentDir(w.path); err != nil {
		return fmt.Errorf("failed to ensure parent directory: %w", err)
	}
	f, err := os.OpenFile(w.path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to open output file: %w", err)
	}
	return f.Close()
}

// Write emits the header block followed by the entries separated by blank
// lines.
func (w *FileWriter) Write(header string, entries []string) error {
	content := Format(header, entries)

	if w.toStdout() {
		if _, err := io.WriteString(w.stdout, content); err != nil {
			return fmt.Errorf("failed to write to stdout: %w", err)
		}
		return nil
	}

	if err := w.pathResolver.EnsureParentDir(w.path); err != nil {
		return fmt.Errorf("failed to ensure parent directory: %w", err)
	}
	if err := os.WriteFile(w.path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

// Format builds the output text.
func Format(header string, entries []string) string {
	var sb strings.Builder
	if header != "" {
		sb.WriteString(header)
		sb.WriteString("\n")
	}
	if len(entries) > 0 {
		sb.WriteString(strings.Join(entries, "\n"))
		sb.WriteString("\n")
	}
	return sb.String()
}

// ReadHeaders returns the content of a headers file, or "" when path is
// empty or the file does not exist.
func ReadHeaders(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read headers file: %w", err)
	}
	return string(data), nil
}
