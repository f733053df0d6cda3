package vcs

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	dir  string
	repo *git.Repository
	wt   *git.Worktree
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	wt, err := repo.Worktree()
	require.NoError(t, err)
	return &fixture{dir: dir, repo: repo, wt: wt}
}

func (f *fixture) write(t *testing.T, rel, content string) {
	t.Helper()
	path := filepath.Join(f.dir, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	_, err := f.wt.Add(rel)
	require.NoError(t, err)
}

func (f *fixture) commit(t *testing.T, msg string) {
	t.Helper()
	_, err := f.wt.Commit(msg, &git.CommitOptions{
		Author: &object.Signature{Name: "Dev", Email: "dev@example.com", When: time.Now()},
	})
	require.NoError(t, err)
}

func TestOpen_NotRepository(t *testing.T) {
	_, err := Open(t.TempDir())
	assert.ErrorIs(t, err, ErrNotRepository)
}

func TestOpen_FromSubdirectory(t *testing.T) {
	f := newFixture(t)
	f.write(t, "pkg/mod.py", "x = 1\n")
	f.commit(t, "init")

	r, err := Open(filepath.Join(f.dir, "pkg"))
	require.NoError(t, err)
	assert.Equal(t, f.dir, r.Root())
}

func TestHeadCommit_RootCommit(t *testing.T) {
	f := newFixture(t)
	f.write(t, "a.py", "a = 1\n")
	f.write(t, "README.md", "hi\n")
	f.commit(t, "first commit\n")

	r, err := Open(f.dir)
	require.NoError(t, err)
	info, err := r.HeadCommit()
	require.NoError(t, err)

	assert.Equal(t, "first commit", info.Message)
	assert.Equal(t, "Dev", info.Author)
	assert.Len(t, info.ShortHash, 8)
	assert.Equal(t, []string{"README.md", "a.py"}, info.ChangedFiles)
}

func TestChangedPythonFiles(t *testing.T) {
	f := newFixture(t)
	f.write(t, "a.py", "a = 1\n")
	f.write(t, "b.py", "b = 1\n")
	f.write(t, "gone.py", "g = 1\n")
	f.commit(t, "init")

	f.write(t, "a.py", "a = 2\n")
	f.write(t, "pkg/new.py", "n = 1\n")
	f.write(t, "notes.txt", "x\n")
	_, err := f.wt.Remove("gone.py")
	require.NoError(t, err)
	f.commit(t, "second")

	r, err := Open(f.dir)
	require.NoError(t, err)
	files, err := r.ChangedPythonFiles()
	require.NoError(t, err)

	assert.Equal(t, []string{
		filepath.Join(f.dir, "a.py"),
		filepath.Join(f.dir, "pkg", "new.py"),
	}, files)
}
