package sync

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// GitDestination writes JSONL data to a file in a git repo and pushes.
type GitDestination struct {
	repo   string // path to the local clone
	file   string // file path within the repo
	branch string // branch to commit and push to
}

// NewGitDestination creates a git destination. repo is the path to an
// existing local clone with an "origin" remote.
func NewGitDestination(repo, file, branch string) *GitDestination {
	return &GitDestination{
		repo:   repo,
		file:   file,
		branch: branch,
	}
}

// gitError carries the output of a failed git invocation.
type gitError struct {
	args   []string
	output string
	err    error
}

func (e *gitError) Error() string {
	msg := "git " + e.args[0] + ": " + e.err.Error()
	if e.output != "" {
		msg += ": " + e.output
	}
	return msg
}

func (e *gitError) Unwrap() error { return e.err }

// Write replaces the export file, then commits and pushes it when its
// content changed.
func (d *GitDestination) Write(ctx context.Context, data []byte) error {
	if err := d.git(ctx, "checkout", d.branch); err != nil {
		return err
	}
	// The remote may not have the branch yet.
	_ = d.git(ctx, "pull", "--ff-only", "origin", d.branch)

	if err := d.writeFile(data); err != nil {
		return err
	}
	if err := d.git(ctx, "add", "--", d.file); err != nil {
		return err
	}
	// Exit status 0 means the index matches HEAD.
	if err := d.git(ctx, "diff", "--cached", "--quiet", "--", d.file); err == nil {
		return nil
	}
	if err := d.git(ctx, "commit", "-m", commitMessage(data), "--", d.file); err != nil {
		return err
	}
	return d.git(ctx, "push", "origin", d.branch)
}

// writeFile replaces the export through a temporary file so a crash never
// leaves a truncated export in the working tree.
func (d *GitDestination) writeFile(data []byte) error {
	path := filepath.Join(d.repo, d.file)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create export directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".nfindb-export-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace %s: %w", d.file, err)
	}
	return nil
}

// commitMessage summarizes the export for the git log.
func commitMessage(data []byte) string {
	h, err := parseHeader(data)
	if err != nil {
		return "nfindb: update export"
	}
	return fmt.Sprintf("nfindb: export %d documents", h.RecordCount)
}

func (d *GitDestination) git(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = d.repo
	out, err := cmd.CombinedOutput()
	if err != nil {
		return &gitError{args: args, output: strings.TrimSpace(string(out)), err: err}
	}
	return nil
}

// Read returns the export file from the local clone. A missing file is
// ErrNoBackup.
func (d *GitDestination) Read(_ context.Context) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(d.repo, d.file))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", d, ErrNoBackup)
	}
	if err != nil {
		return nil, fmt.Errorf("read export file: %w", err)
	}
	return data, nil
}

// String names the file, for log lines.
func (d *GitDestination) String() string {
	return "git:" + filepath.Join(d.repo, d.file) + "@" + d.branch
}
