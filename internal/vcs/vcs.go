// Package vcs reads the git repository state the commit gate needs: the
// files changed by the latest commit and the files staged for the next one.
package vcs

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// ErrNotRepository is returned when no git repository encloses the path
var ErrNotRepository = errors.New("not a git repository")

// Repo wraps an opened repository
type Repo struct {
	repo *git.Repository
	root string
}

// CommitInfo describes the HEAD commit
type CommitInfo struct {
	Hash         string   `json:"hash"`
	ShortHash    string   `json:"short_hash"`
	Message      string   `json:"message"`
	Author       string   `json:"author"`
	ChangedFiles []string `json:"changed_files"`
}

// Open finds the repository enclosing path
func Open(path string) (*Repo, error) {
	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, fmt.Errorf("%s: %w", path, ErrNotRepository)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open repository %q: %w", path, err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("failed to open worktree: %w", err)
	}
	return &Repo{repo: repo, root: wt.Filesystem.Root()}, nil
}

// Root returns the worktree root directory
func (r *Repo) Root() string {
	return r.root
}

// HeadCommit returns HEAD with the repository-relative paths it added or
// modified relative to its first parent. A root commit lists its whole tree.
func (r *Repo) HeadCommit() (*CommitInfo, error) {
	ref, err := r.repo.Head()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve HEAD: %w", err)
	}
	commit, err := r.repo.CommitObject(ref.Hash())
	if err != nil {
		return nil, fmt.Errorf("failed to load HEAD commit: %w", err)
	}

	files, err := changedFiles(commit)
	if err != nil {
		return nil, err
	}

	hash := commit.Hash.String()
	return &CommitInfo{
		Hash:         hash,
		ShortHash:    hash[:8],
		Message:      strings.TrimSpace(commit.Message),
		Author:       commit.Author.Name,
		ChangedFiles: files,
	}, nil
}

func changedFiles(commit *object.Commit) ([]string, error) {
	headTree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("failed to load head tree: %w", err)
	}

	var files []string
	if commit.NumParents() == 0 {
		err := headTree.Files().ForEach(func(f *object.File) error {
			files = append(files, f.Name)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list tree: %w", err)
		}
		sort.Strings(files)
		return files, nil
	}

	parent, err := commit.Parent(0)
	if err != nil {
		return nil, fmt.Errorf("failed to load parent commit: %w", err)
	}
	parentTree, err := parent.Tree()
	if err != nil {
		return nil, fmt.Errorf("failed to load parent tree: %w", err)
	}

	changes, err := parentTree.Diff(headTree)
	if err != nil {
		return nil, fmt.Errorf("failed to compute diff: %w", err)
	}
	for _, ch := range changes {
		// deletions have no destination
		if ch.To.Name == "" {
			continue
		}
		files = append(files, ch.To.Name)
	}
	sort.Strings(files)
	return files, nil
}

// ChangedPythonFiles returns absolute paths of the Python files HEAD changed
func (r *Repo) ChangedPythonFiles() ([]string, error) {
	info, err := r.HeadCommit()
	if err != nil {
		return nil, err
	}
	return r.pythonOnly(info.ChangedFiles), nil
}

func (r *Repo) pythonOnly(rel []string) []string {
	var out []string
	for _, p := range rel {
		if strings.HasSuffix(p, ".py") {
			out = append(out, filepath.Join(r.root, filepath.FromSlash(p)))
		}
	}
	return out
}
