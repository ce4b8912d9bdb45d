package gitlib

import (
	"errors"
	"fmt"
	"math"

	git2go "github.com/libgit2/git2go/v34"
)

// ErrLineOutOfRange is returned when a blame range does not fit libgit2's line type.
var ErrLineOutOfRange = errors.New("blame line out of range")

// BlameOptions restricts a native blame to one commit and line range.
// Zero MinLine and MaxLine blame the whole file.
type BlameOptions struct {
	Newest  Hash
	MinLine int
	MaxLine int
}

// BlameHunk is one hunk of a libgit2 blame. libgit2 reports author
// signatures only; OrigCommitter is looked up from the origin commit.
type BlameHunk struct {
	OrigCommit     Hash
	OrigPath       string
	OrigStartLine  int
	OrigSignature  *Signature
	OrigCommitter  *Signature
	FinalCommit    Hash
	FinalStartLine int
	FinalSignature *Signature
	LinesInHunk    int
	Boundary       bool
}

// BlameFile runs libgit2's blame for path. It is the slow reference
// implementation; fastblame defaults to the git subprocess instead.
func (r *Repository) BlameFile(path string, opts BlameOptions) ([]BlameHunk, error) {
	nativeOpts, err := git2go.DefaultBlameOptions()
	if err != nil {
		return nil, fmt.Errorf("get blame options: %w", err)
	}

	if !opts.Newest.IsZero() {
		nativeOpts.NewestCommit = opts.Newest.ToOid()
	}

	if opts.MinLine > 0 || opts.MaxLine > 0 {
		if opts.MinLine < 1 || opts.MaxLine < opts.MinLine || int64(opts.MaxLine) > math.MaxUint32 {
			return nil, fmt.Errorf("%w: %d-%d", ErrLineOutOfRange, opts.MinLine, opts.MaxLine)
		}

		nativeOpts.MinLine = uint32(opts.MinLine) //nolint:gosec // range checked above.
		nativeOpts.MaxLine = uint32(opts.MaxLine) //nolint:gosec // range checked above.
	}

	blame, err := r.repo.BlameFile(path, &nativeOpts)
	if err != nil {
		return nil, fmt.Errorf("blame %s: %w", path, err)
	}

	defer blame.Free() //nolint:errcheck // nothing to do on a failed release.

	count := blame.HunkCount()
	hunks := make([]BlameHunk, 0, count)
	committers := make(map[Hash]*Signature)

	for i := range count {
		native, hunkErr := blame.HunkByIndex(i)
		if hunkErr != nil {
			return nil, fmt.Errorf("blame %s hunk %d: %w", path, i, hunkErr)
		}

		orig := HashFromOid(native.OrigCommitId)

		committer, ok := committers[orig]
		if !ok {
			committer, err = r.committerOf(orig)
			if err != nil {
				return nil, fmt.Errorf("blame %s hunk %d: %w", path, i, err)
			}

			committers[orig] = committer
		}

		hunks = append(hunks, BlameHunk{
			OrigCommit:     orig,
			OrigPath:       native.OrigPath,
			OrigStartLine:  int(native.OrigStartLineNumber),
			OrigSignature:  nativeSignature(native.OrigSignature),
			OrigCommitter:  committer,
			FinalCommit:    HashFromOid(native.FinalCommitId),
			FinalStartLine: int(native.FinalStartLineNumber),
			FinalSignature: nativeSignature(native.FinalSignature),
			LinesInHunk:    int(native.LinesInHunk),
			Boundary:       native.Boundary,
		})
	}

	return hunks, nil
}

func (r *Repository) committerOf(hash Hash) (*Signature, error) {
	commit, err := r.LookupCommit(hash)
	if err != nil {
		return nil, err
	}
	defer commit.Free()

	committer := commit.Committer()

	return &committer, nil
}

// nativeSignature keeps a missing signature nil.
func nativeSignature(sig *git2go.Signature) *Signature {
	if sig == nil {
		return nil
	}

	return convertSignature(sig)
}
