package fetch

import (
	"context"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

func cloneInProcess(ctx context.Context, repoURL, ref, destDir string) error {
	opts := &git.CloneOptions{
		URL:          repoURL,
		Depth:        1,
		SingleBranch: true,
		Tags:         git.NoTags,
	}
	if ref = strings.TrimSpace(ref); ref != "" {
		switch {
		case strings.HasPrefix(ref, "refs/"):
			opts.ReferenceName = plumbing.ReferenceName(ref)
		default:
			opts.ReferenceName = plumbing.NewBranchReferenceName(ref)
		}
	}
	_, err := git.PlainCloneContext(ctx, destDir, false, opts)
	return err
}
