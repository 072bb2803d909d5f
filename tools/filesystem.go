package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/m4xw311/superagent/config"
	"github.com/m4xw311/superagent/errors"
)

// fileTool holds the path policy shared by every file tool.
type fileTool struct {
	workDir string
	access  config.FilesystemAccess
}

func (fileTool) Kind() Kind { return KindFile }

// resolve returns the absolute path and the path relative to the working
// directory, which is what access patterns are matched against.
func (f fileTool) resolve(path string) (string, string) {
	path = strings.TrimSpace(path)
	abs := path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(f.workDir, abs)
	}
	abs = filepath.Clean(abs)
	rel, err := filepath.Rel(f.workDir, abs)
	if err != nil || f.workDir == "" {
		rel = abs
	}
	return abs, filepath.ToSlash(rel)
}

func (f fileTool) checkRead(rel string) error {
	hidden, err := isPathRestricted(rel, f.access.Hidden)
	if err != nil {
		return err
	}
	if hidden {
		return errors.New("access denied: path '%s' is hidden", rel)
	}
	return nil
}

func (f fileTool) checkWrite(rel string) error {
	if err := f.checkRead(rel); err != nil {
		return err
	}
	readOnly, err := isPathRestricted(rel, f.access.ReadOnly)
	if err != nil {
		return err
	}
	if readOnly {
		return errors.New("access denied: path '%s' is read-only", rel)
	}
	return nil
}

// ReadFileTool implements the tool for reading a file.
type ReadFileTool struct{ fileTool }

func (t *ReadFileTool) Name() string { return "read_file" }
func (t *ReadFileTool) Description() string {
	return "Reads the entire content of a file. Use this to examine a file you do not know the contents of."
}
func (t *ReadFileTool) Schema() Schema {
	return Schema{{Name: "path", Required: true, Description: "Path of the file, relative to the working directory."}}
}

func (t *ReadFileTool) Invoke(ctx context.Context, args Args) Result {
	abs, rel := t.resolve(args.String("path"))
	if err := t.checkRead(rel); err != nil {
		return Failf(UserDenied, "%s", err)
	}
	content, err := os.ReadFile(abs)
	if err != nil {
		return ErrorResult(errors.Wrapf(err, "failed to read file '%s'", rel))
	}
	return OK(string(content))
}

// WriteFileTool implements the tool for writing to a file.
type WriteFileTool struct{ fileTool }

func (t *WriteFileTool) Name() string { return "write_to_file" }
func (t *WriteFileTool) Description() string {
	return "Writes content to a file, replacing it entirely. Missing parent directories are created. Always provide the complete file content."
}
func (t *WriteFileTool) Schema() Schema {
	return Schema{
		{Name: "path", Required: true, Description: "Path of the file, relative to the working directory."},
		{Name: "contents", Description: "The complete content to write."},
	}
}

func (t *WriteFileTool) Invoke(ctx context.Context, args Args) Result {
	abs, rel := t.resolve(args.String("path"))
	if err := t.checkWrite(rel); err != nil {
		return Failf(UserDenied, "%s", err)
	}
	content := args.String("contents")
	if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
		return ErrorResult(errors.Wrapf(err, "failed to create directory for '%s'", rel))
	}
	if err := os.WriteFile(abs, []byte(content), 0644); err != nil {
		return ErrorResult(errors.Wrapf(err, "failed to write to file '%s'", rel))
	}
	return OK(fmt.Sprintf("Successfully wrote %d bytes to %s", len(content), rel))
}

// ReplaceInFileTool applies SEARCH/REPLACE blocks to an existing file.
type ReplaceInFileTool struct{ fileTool }

func (t *ReplaceInFileTool) Name() string { return "replace_in_file" }
func (t *ReplaceInFileTool) Description() string {
	return `Replaces sections of an existing file using one or more SEARCH/REPLACE blocks:
<<<<<<< SEARCH
[exact content to find]
=======
[new content]
>>>>>>> REPLACE
SEARCH content must match the file character for character. Each block replaces only the first match. List blocks in file order. Use an empty REPLACE section to delete code.`
}
func (t *ReplaceInFileTool) Schema() Schema {
	return Schema{
		{Name: "path", Required: true, Description: "Path of the file to modify."},
		{Name: "diff", Required: true, Description: "One or more SEARCH/REPLACE blocks."},
	}
}

func (t *ReplaceInFileTool) Invoke(ctx context.Context, args Args) Result {
	abs, rel := t.resolve(args.String("path"))
	if err := t.checkWrite(rel); err != nil {
		return Failf(UserDenied, "%s", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return ErrorResult(errors.Wrapf(err, "file not found '%s'", rel))
	}
	if info.IsDir() {
		return Failf(ToolExecutionError, "path '%s' is not a file", rel)
	}
	original, err := os.ReadFile(abs)
	if err != nil {
		return ErrorResult(errors.Wrapf(err, "failed to read file '%s'", rel))
	}

	edits, err := parseDiff(args.String("diff"))
	if err != nil {
		return ErrorResult(err)
	}
	updated, err := applyEdits(string(original), edits)
	if err != nil {
		return ErrorResult(err)
	}
	if len(edits) == 0 {
		return OK(fmt.Sprintf("No changes applied to %s", rel))
	}
	if err := os.WriteFile(abs, []byte(updated), info.Mode().Perm()); err != nil {
		return ErrorResult(errors.Wrapf(err, "failed to write to file '%s'", rel))
	}
	return OK(fmt.Sprintf("Applied %d edit(s) to %s. New content:\n%s", len(edits), rel, updated))
}

// ListDirectoryTool lists the direct children of a directory.
type ListDirectoryTool struct{ fileTool }

func (t *ListDirectoryTool) Name() string { return "list_directory" }
func (t *ListDirectoryTool) Description() string {
	return "Lists the files and subdirectories directly within a directory."
}
func (t *ListDirectoryTool) Schema() Schema {
	return Schema{{Name: "path", Required: true, Description: "Directory to list, relative to the working directory."}}
}

func (t *ListDirectoryTool) Invoke(ctx context.Context, args Args) Result {
	abs, rel := t.resolve(args.String("path"))
	if err := t.checkRead(rel); err != nil {
		return Failf(UserDenied, "%s", err)
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return ErrorResult(errors.Wrapf(err, "failed to list directory '%s'", rel))
	}

	var b strings.Builder
	for _, e := range entries {
		childRel := filepath.ToSlash(filepath.Join(rel, e.Name()))
		if hidden, _ := isPathRestricted(childRel, t.access.Hidden); hidden {
			continue
		}
		kind := "File"
		if e.IsDir() {
			kind = "Directory"
		}
		fmt.Fprintf(&b, "%s (%s)\n", e.Name(), kind)
	}
	if b.Len() == 0 {
		return OK(fmt.Sprintf("Directory %s is empty.", rel))
	}
	return OK(b.String())
}

// GlobDirectoryTool finds files under a directory by doublestar pattern.
type GlobDirectoryTool struct{ fileTool }

func (t *GlobDirectoryTool) Name() string { return "glob_directory" }
func (t *GlobDirectoryTool) Description() string {
	return "Finds files matching a glob pattern such as src/**/*.go or **/*.md, returning their paths."
}
func (t *GlobDirectoryTool) Schema() Schema {
	return Schema{
		{Name: "path", Required: true, Description: "Directory to search within."},
		{Name: "pattern", Required: true, Description: "Glob pattern, ** matches any number of directories."},
	}
}

func (t *GlobDirectoryTool) Invoke(ctx context.Context, args Args) Result {
	abs, rel := t.resolve(args.String("path"))
	if err := t.checkRead(rel); err != nil {
		return Failf(UserDenied, "%s", err)
	}
	pattern := strings.TrimSpace(args.String("pattern"))
	if !doublestar.ValidatePattern(pattern) {
		return Failf(InvalidArguments, "invalid glob pattern %q", pattern)
	}
	matches, err := doublestar.Glob(os.DirFS(abs), pattern)
	if err != nil {
		return ErrorResult(errors.Wrapf(err, "failed to search '%s'", rel))
	}

	var out []string
	for _, m := range matches {
		p := filepath.ToSlash(filepath.Join(rel, m))
		if hidden, _ := isPathRestricted(p, t.access.Hidden); hidden {
			continue
		}
		out = append(out, p)
	}
	if len(out) == 0 {
		return OK(fmt.Sprintf("No files found matching pattern %s in %s", pattern, rel))
	}
	sort.Strings(out)
	return OK(strings.Join(out, "\n"))
}
