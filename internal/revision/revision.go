// Package revision reads the source revision of a project from git.
package revision

import (
	"errors"

	ggit "github.com/go-git/go-git/v5"

	ferrors "git.home.luguber.info/inful/mdsite/internal/foundation/errors"
)

// ShortLen is the number of hex digits in a short revision.
const ShortLen = 7

// Head returns the abbreviated HEAD commit of the repository containing
// dir, with a "-dirty" suffix when tracked files have uncommitted changes.
// It returns "" without error when dir is not inside a git repository or
// the repository has no commits yet.
func Head(dir string) (string, error) {
	repo, err := ggit.PlainOpenWithOptions(dir, &ggit.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		if errors.Is(err, ggit.ErrRepositoryNotExists) {
			return "", nil
		}
		return "", ferrors.WrapError(err, ferrors.CategoryIO, "failed to open git repository").
			WithContext("path", dir).Build()
	}
	ref, err := repo.Head()
	if err != nil {
		// Unborn branch.
		return "", nil
	}
	rev := ref.Hash().String()[:ShortLen]

	wt, err := repo.Worktree()
	if err != nil {
		return rev, nil
	}
	status, err := wt.Status()
	if err != nil {
		return rev, nil
	}
	for _, st := range status {
		if st.Worktree != ggit.Untracked && (st.Worktree != ggit.Unmodified || st.Staging != ggit.Unmodified) {
			return rev + "-dirty", nil
		}
	}
	return rev, nil
}
