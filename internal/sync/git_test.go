package sync

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// newTestRepo creates a bare remote and a clone of it with one commit on
// main, returning the clone's path.
func newTestRepo(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not found in PATH")
	}

	remoteDir := t.TempDir()
	run(t, remoteDir, "git", "init", "--bare")

	workDir := t.TempDir()
	run(t, workDir, "git", "clone", remoteDir, "repo")
	repoDir := filepath.Join(workDir, "repo")

	run(t, repoDir, "git", "config", "user.email", "test@test.com")
	run(t, repoDir, "git", "config", "user.name", "Test")
	run(t, repoDir, "git", "branch", "-m", "main")

	if err := os.WriteFile(filepath.Join(repoDir, ".gitkeep"), nil, 0o644); err != nil {
		t.Fatalf("write .gitkeep: %v", err)
	}
	run(t, repoDir, "git", "add", ".")
	run(t, repoDir, "git", "commit", "-m", "init")
	run(t, repoDir, "git", "push", "origin", "main")
	return repoDir
}

func run(t *testing.T, dir string, name string, args ...string) string {
	t.Helper()
	cmd := exec.Command(name, args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("%s %v failed: %v\n%s", name, args, err, out)
	}
	return strings.TrimSpace(string(out))
}

func TestGitDestination(t *testing.T) {
	repoDir := newTestRepo(t)
	dest := NewGitDestination(repoDir, "nfindb.jsonl", "main")
	ctx := context.Background()

	data1 := []byte(`{"version":"1","type":"header","record_count":0}` + "\n")
	if err := dest.Write(ctx, data1); err != nil {
		t.Fatalf("first write: %v", err)
	}
	got, err := os.ReadFile(filepath.Join(repoDir, "nfindb.jsonl"))
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	if string(got) != string(data1) {
		t.Fatalf("file content mismatch: got %q", got)
	}
	if msg := run(t, repoDir, "git", "log", "-1", "--format=%s"); msg != "nfindb: export 0 documents" {
		t.Errorf("commit message = %q", msg)
	}
	commits := run(t, repoDir, "git", "rev-list", "--count", "HEAD")

	// Same data: no new commit.
	if err := dest.Write(ctx, data1); err != nil {
		t.Fatalf("second write (no-op): %v", err)
	}
	if got := run(t, repoDir, "git", "rev-list", "--count", "HEAD"); got != commits {
		t.Errorf("unchanged write committed: %s commits, want %s", got, commits)
	}

	data2 := []byte(`{"version":"1","type":"header","record_count":1}` + "\n" +
		`{"type":"record","data":{"namespace":"a","type":"b","key":"c","value":null,"created":1}}` + "\n")
	if err := dest.Write(ctx, data2); err != nil {
		t.Fatalf("third write: %v", err)
	}
	if msg := run(t, repoDir, "git", "log", "-1", "--format=%s"); msg != "nfindb: export 1 documents" {
		t.Errorf("commit message = %q", msg)
	}

	// The push reached the remote.
	local := run(t, repoDir, "git", "rev-parse", "HEAD")
	remote := run(t, repoDir, "git", "ls-remote", "origin", "refs/heads/main")
	if !strings.HasPrefix(remote, local) {
		t.Errorf("remote main = %q, want %s", remote, local)
	}

	got, err = dest.Read(ctx)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != string(data2) {
		t.Errorf("Read = %q, want %q", got, data2)
	}
}

func TestGitDestination_SubDirectory(t *testing.T) {
	repoDir := newTestRepo(t)
	dest := NewGitDestination(repoDir, "data/nfindb.jsonl", "main")

	data := []byte(`{"type":"header"}` + "\n")
	if err := dest.Write(context.Background(), data); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(repoDir, "data", "nfindb.jsonl"))
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	if string(got) != string(data) {
		t.Fatalf("content mismatch: got %q", got)
	}
	if msg := run(t, repoDir, "git", "log", "-1", "--format=%s"); msg != "nfindb: update export" {
		t.Errorf("commit message for a headerless payload = %q", msg)
	}
	if status := run(t, repoDir, "git", "status", "--porcelain"); status != "" {
		t.Errorf("working tree not clean after write:\n%s", status)
	}
}

func TestGitDestination_MissingBranch(t *testing.T) {
	repoDir := newTestRepo(t)
	dest := NewGitDestination(repoDir, "nfindb.jsonl", "no-such-branch")

	err := dest.Write(context.Background(), []byte("{}\n"))
	var gerr *gitError
	if !errors.As(err, &gerr) || gerr.args[0] != "checkout" {
		t.Fatalf("Write on a missing branch = %v, want a checkout gitError", err)
	}
	if gerr.output == "" {
		t.Error("gitError lost git's output")
	}
}

func TestGitDestination_Read(t *testing.T) {
	repoDir := t.TempDir()
	dest := NewGitDestination(repoDir, "backup/nfindb.jsonl", "main")

	if _, err := dest.Read(context.Background()); !errors.Is(err, ErrNoBackup) {
		t.Fatalf("Read of a missing file = %v, want ErrNoBackup", err)
	}

	want := []byte(`{"type":"header"}` + "\n")
	if err := os.MkdirAll(filepath.Join(repoDir, "backup"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(repoDir, "backup", "nfindb.jsonl"), want, 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := dest.Read(context.Background())
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != string(want) {
		t.Errorf("Read = %q, want %q", got, want)
	}
	if s := dest.String(); s != "git:"+filepath.Join(repoDir, "backup", "nfindb.jsonl")+"@main" {
		t.Errorf("String() = %q", s)
	}
}
