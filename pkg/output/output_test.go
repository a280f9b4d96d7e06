package output

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/pigeonworks-llc/plaid2text/pkg/pathutil"
)

func TestFormat(t *testing.T) {
	tests := []struct {
		name     string
		header   string
		entries  []string
		expected string
	}{
		{"empty", "", nil, ""},
		{"header only", "; books\n", nil, "; books\n\n"},
		{"entries", "", []string{"a\n", "b\n"}, "a\n\nb\n\n"},
		{"header and entries", "option \"title\" \"x\"\n", []string{"a\n"}, "option \"title\" \"x\"\n\na\n\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Format(tt.header, tt.entries); got != tt.expected {
				t.Errorf("Format() = %q, expected %q", got, tt.expected)
			}
		})
	}
}

func TestFileWriter_Stdout(t *testing.T) {
	var buf bytes.Buffer
	w := NewFileWriter(Stdout, &buf, pathutil.New(pathutil.Config{ConfigDir: t.TempDir()}))
	if err := w.Write("", []string{"entry\n"}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if buf.String() != "entry\n\n" {
		t.Errorf("stdout = %q", buf.String())
	}
	if w.Destination() != "stdout" {
		t.Errorf("Destination() = %q", w.Destination())
	}
}

func TestFileWriter_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out", "jan.beancount")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("stale content\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	w := NewFileWriter(path, nil, pathutil.New(pathutil.Config{ConfigDir: dir}))
	if err := w.Write("; header", []string{"entry\n"}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "; header\nentry\n\n" {
		t.Errorf("file = %q", data)
	}
}

func TestReadHeaders(t *testing.T) {
	dir := t.TempDir()
	if got, err := ReadHeaders(filepath.Join(dir, "absent")); err != nil || got != "" {
		t.Errorf("ReadHeaders(missing) = %q, %v", got, err)
	}

	path := filepath.Join(dir, "headers")
	if err := os.WriteFile(path, []byte("option \"operating_currency\" \"USD\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := ReadHeaders(path)
	if err != nil || got != "option \"operating_currency\" \"USD\"\n" {
		t.Errorf("ReadHeaders() = %q, %v", got, err)
	}
}

func TestFileWriter_Prepare(t *testing.T) {
	dir := t.TempDir()
	resolver := pathutil.New(pathutil.Config{ConfigDir: dir})

	blocker := filepath.Join(dir, "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	existing := filepath.Join(dir, "existing.beancount")
	if err := os.WriteFile(existing, []byte("stale content\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		path    string
		wantErr bool
		check   string
	}{
		{"stdout", Stdout, false, ""},
		{"new file in new directory", filepath.Join(dir, "out", "jan.beancount"), false, filepath.Join(dir, "out", "jan.beancount")},
		{"existing file is truncated", existing, false, existing},
		{"parent is a regular file", filepath.Join(blocker, "jan.beancount"), true, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewFileWriter(tt.path, &bytes.Buffer{}, resolver).Prepare()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Prepare() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.check == "" {
				return
			}
			info, err := os.Stat(tt.check)
			if err != nil {
				t.Fatalf("Stat() error = %v", err)
			}
			if info.Size() != 0 {
				t.Errorf("size = %d, expected an empty file", info.Size())
			}
		})
	}
}
