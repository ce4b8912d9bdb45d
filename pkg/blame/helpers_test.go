package blame_test

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const (
	firstAuthorTime     = 1_000_000
	firstCommitterTime  = 1_000_100
	secondAuthorTime    = 2_000_000
	secondCommitterTime = 2_000_100
)

// gitFixture is a throwaway repository with two commits to notes.txt:
// lines 1-3 from the first, line 4 from the second.
type gitFixture struct {
	dir    string
	first  string
	second string
}

func requireGit(t *testing.T) {
	t.Helper()

	_, err := exec.LookPath("git")
	if err != nil {
		t.Skip("git binary not available")
	}
}

func newGitFixture(t *testing.T) *gitFixture {
	t.Helper()
	requireGit(t)

	fx := &gitFixture{dir: t.TempDir()}

	fx.git(t, nil, "init", "-q")
	fx.write(t, "notes.txt", "one\ntwo\nthree\n")
	fx.git(t, nil, "add", "notes.txt")
	fx.git(t, commitEnv(firstAuthorTime, firstCommitterTime), "commit", "-q", "-m", "first")
	fx.first = fx.git(t, nil, "rev-parse", "HEAD")

	fx.write(t, "notes.txt", "one\ntwo\nthree\nfour\n")
	fx.git(t, nil, "add", "notes.txt")
	fx.git(t, commitEnv(secondAuthorTime, secondCommitterTime), "commit", "-q", "-m", "second")
	fx.second = fx.git(t, nil, "rev-parse", "HEAD")

	return fx
}

func commitEnv(authorTime, committerTime int64) []string {
	return []string{
		fmt.Sprintf("GIT_AUTHOR_DATE=@%d +0000", authorTime),
		fmt.Sprintf("GIT_COMMITTER_DATE=@%d +0000", committerTime),
	}
}

func (fx *gitFixture) write(t *testing.T, name, content string) {
	t.Helper()

	require.NoError(t, os.WriteFile(filepath.Join(fx.dir, name), []byte(content), 0o600))
}

func (fx *gitFixture) git(t *testing.T, env []string, args ...string) string {
	t.Helper()

	cmd := exec.Command("git", args...)
	cmd.Dir = fx.dir
	cmd.Env = append(os.Environ(),
		"GIT_CONFIG_NOSYSTEM=1",
		"GIT_CONFIG_GLOBAL="+os.DevNull,
		"GIT_AUTHOR_NAME=Test Author",
		"GIT_AUTHOR_EMAIL=author@example.com",
		"GIT_COMMITTER_NAME=Test Committer",
		"GIT_COMMITTER_EMAIL=committer@example.com",
	)
	cmd.Env = append(cmd.Env, env...)

	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "git %s: %s", strings.Join(args, " "), out)

	return strings.TrimSpace(string(out))
}
