package gitlib_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	git2go "github.com/libgit2/git2go/v34"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/fastblame/pkg/gitlib"
)

// testRepo wraps a test repository for integration testing.
type testRepo struct {
	t      *testing.T
	path   string
	native *git2go.Repository
}

// newTestRepo creates a new test repository.
func newTestRepo(t *testing.T) *testRepo {
	t.Helper()

	dir := t.TempDir()

	repo, err := git2go.InitRepository(dir, false)
	require.NoError(t, err)

	t.Cleanup(repo.Free)

	return &testRepo{t: t, path: dir, native: repo}
}

// createFile creates a file in the working directory.
func (tr *testRepo) createFile(name, content string) {
	tr.t.Helper()

	err := os.WriteFile(filepath.Join(tr.path, name), []byte(content), 0o644)
	require.NoError(tr.t, err)
}

// commit stages all files and creates a commit with the given Unix author
// and committer times.
func (tr *testRepo) commit(message string, authored, committed int64) gitlib.Hash {
	tr.t.Helper()

	index, err := tr.native.Index()
	require.NoError(tr.t, err)

	defer index.Free()

	require.NoError(tr.t, index.AddAll([]string{"*"}, git2go.IndexAddDefault, nil))
	require.NoError(tr.t, index.Write())

	treeID, err := index.WriteTree()
	require.NoError(tr.t, err)

	tree, err := tr.native.LookupTree(treeID)
	require.NoError(tr.t, err)

	defer tree.Free()

	author := &git2go.Signature{Name: "Test Author", Email: "author@example.com", When: time.Unix(authored, 0)}
	committer := &git2go.Signature{Name: "Test Committer", Email: "committer@example.com", When: time.Unix(committed, 0)}

	var parents []*git2go.Commit

	head, err := tr.native.Head()
	if err == nil {
		headCommit, lookupErr := tr.native.LookupCommit(head.Target())
		require.NoError(tr.t, lookupErr)

		parents = append(parents, headCommit)

		head.Free()
	}

	oid, err := tr.native.CreateCommit("HEAD", author, committer, message, tree, parents...)
	require.NoError(tr.t, err)

	for _, parent := range parents {
		parent.Free()
	}

	return gitlib.HashFromOid(oid)
}

func TestOpenRepository(t *testing.T) {
	t.Parallel()

	tr := newTestRepo(t)

	repo, err := gitlib.OpenRepository(tr.path)
	require.NoError(t, err)

	defer repo.Free()

	assert.Equal(t, tr.path, repo.Path())
}

func TestOpenRepository_NotARepo(t *testing.T) {
	t.Parallel()

	_, err := gitlib.OpenRepository(t.TempDir())
	require.Error(t, err)
}

func TestRepository_ResolveCommit(t *testing.T) {
	t.Parallel()

	tr := newTestRepo(t)
	tr.createFile("main.go", "package main\n")
	first := tr.commit("first", 1_000_000, 1_000_100)
	tr.createFile("main.go", "package main\n\nfunc main() {}\n")
	second := tr.commit("second", 2_000_000, 2_000_100)

	repo, err := gitlib.OpenRepository(tr.path)
	require.NoError(t, err)

	defer repo.Free()

	head, err := repo.Head()
	require.NoError(t, err)
	assert.Equal(t, second, head)

	resolved, err := repo.ResolveCommit("HEAD~1")
	require.NoError(t, err)
	assert.Equal(t, first, resolved)

	resolved, err = repo.ResolveCommit(second.String())
	require.NoError(t, err)
	assert.Equal(t, second, resolved)

	_, err = repo.ResolveCommit("no-such-branch")
	require.Error(t, err)
}

func TestRepository_BlameFile(t *testing.T) {
	t.Parallel()

	tr := newTestRepo(t)
	tr.createFile("main.go", "package main\n\nfunc main() {\n}\n")
	first := tr.commit("first", 1_000_000, 1_000_100)
	tr.createFile("main.go", "package main\n\nfunc main() {\n\tprintln()\n}\n")
	second := tr.commit("second", 2_000_000, 2_000_100)

	repo, err := gitlib.OpenRepository(tr.path)
	require.NoError(t, err)

	defer repo.Free()

	hunks, err := repo.BlameFile("main.go", gitlib.BlameOptions{Newest: second})
	require.NoError(t, err)
	require.Len(t, hunks, 3)

	assert.Equal(t, first, hunks[0].OrigCommit)
	assert.Equal(t, 1, hunks[0].FinalStartLine)
	assert.Equal(t, 3, hunks[0].LinesInHunk)

	assert.Equal(t, second, hunks[1].OrigCommit)
	assert.Equal(t, 4, hunks[1].FinalStartLine)
	assert.Equal(t, 1, hunks[1].LinesInHunk)
	require.NotNil(t, hunks[1].FinalSignature)
	assert.Equal(t, int64(2_000_000), hunks[1].FinalSignature.When.Unix())
	require.NotNil(t, hunks[1].OrigCommitter)
	assert.Equal(t, int64(2_000_100), hunks[1].OrigCommitter.When.Unix())
	assert.Equal(t, "Test Committer", hunks[1].OrigCommitter.Name)

	assert.Equal(t, first, hunks[2].OrigCommit)
	assert.Equal(t, 5, hunks[2].FinalStartLine)
	require.NotNil(t, hunks[2].OrigSignature)
	assert.Equal(t, int64(1_000_000), hunks[2].OrigSignature.When.Unix())
	assert.Equal(t, int64(1_000_100), hunks[2].OrigCommitter.When.Unix())
}

func TestRepository_LookupCommit(t *testing.T) {
	t.Parallel()

	tr := newTestRepo(t)
	tr.createFile("a.txt", "one\n")
	hash := tr.commit("first", 1_000_000, 1_000_100)

	repo, err := gitlib.OpenRepository(tr.path)
	require.NoError(t, err)

	defer repo.Free()

	commit, err := repo.LookupCommit(hash)
	require.NoError(t, err)

	defer commit.Free()

	assert.Equal(t, hash, commit.Hash())
	assert.Equal(t, "Test Author", commit.Author().Name)
	assert.Equal(t, "author@example.com", commit.Author().Email)
	assert.Equal(t, int64(1_000_100), commit.Committer().When.Unix())

	_, err = repo.LookupCommit(gitlib.NewHash("0123456789abcdef0123456789abcdef01234567"))
	require.Error(t, err)
}

func TestRepository_BlameFile_LineRange(t *testing.T) {
	t.Parallel()

	tr := newTestRepo(t)
	tr.createFile("a.txt", "one\ntwo\nthree\n")
	tr.commit("first", 1_000_000, 1_000_100)

	repo, err := gitlib.OpenRepository(tr.path)
	require.NoError(t, err)

	defer repo.Free()

	hunks, err := repo.BlameFile("a.txt", gitlib.BlameOptions{MinLine: 2, MaxLine: 3})
	require.NoError(t, err)
	require.Len(t, hunks, 1)
	assert.Equal(t, 2, hunks[0].FinalStartLine)
	assert.Equal(t, 2, hunks[0].LinesInHunk)

	_, err = repo.BlameFile("a.txt", gitlib.BlameOptions{MinLine: 3, MaxLine: 2})
	require.ErrorIs(t, err, gitlib.ErrLineOutOfRange)
}
