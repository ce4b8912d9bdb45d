package blame

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
)

// Backend names.
const (
	BackendSubprocess = "subprocess"
	BackendLibgit2    = "libgit2"
)

// ErrUnknownBackend is returned for a backend name NewBlamer does not know.
var ErrUnknownBackend = errors.New("unknown blame backend")

// HunkIterator is a forward-only sequence of hunks. *Parser implements it.
type HunkIterator interface {
	Next() bool
	Hunk() Hunk
	Err() error
}

// Blamer produces the hunks for one request. Failures of the underlying tool
// are returned before any hunk is produced.
type Blamer interface {
	Blame(ctx context.Context, req Request) (HunkIterator, error)
}

// Collect drains an iterator into a slice.
func Collect(it HunkIterator) ([]Hunk, error) {
	var hunks []Hunk

	for it.Next() {
		hunks = append(hunks, it.Hunk())
	}

	err := it.Err()
	if err != nil {
		return hunks, fmt.Errorf("collect hunks: %w", err)
	}

	return hunks, nil
}

// CloseBlamer closes b if it implements io.Closer. Blamers built by
// NewBlamer should be closed when no longer needed.
func CloseBlamer(b Blamer) error {
	closer, ok := b.(io.Closer)
	if !ok {
		return nil
	}

	return closer.Close()
}

// SubprocessBlamer runs `git blame --porcelain` and parses its output.
type SubprocessBlamer struct {
	invoker Invoker
	opts    []ParserOption
}

// NewSubprocessBlamer returns a Blamer over the given invoker.
func NewSubprocessBlamer(invoker Invoker, opts ...ParserOption) *SubprocessBlamer {
	return &SubprocessBlamer{invoker: invoker, opts: opts}
}

// Blame runs the invoker to completion, then returns a lazy parser over its output.
func (b *SubprocessBlamer) Blame(ctx context.Context, req Request) (HunkIterator, error) {
	output, err := b.invoker.Run(ctx, req)
	if err != nil {
		return nil, err
	}

	return NewParser(bytes.NewReader(output), req.Range(), b.opts...), nil
}

// Options selects and configures a backend.
type Options struct {
	Backend   string
	GitBinary string
	RepoDir   string
	Strict    bool
	Logger    *slog.Logger
}

// NewBlamer builds the backend named by opts.Backend. An empty name selects
// the subprocess backend.
func NewBlamer(opts Options) (Blamer, error) {
	switch opts.Backend {
	case "", BackendSubprocess:
		invoker := &GitInvoker{Binary: opts.GitBinary, Dir: opts.RepoDir}

		return NewSubprocessBlamer(invoker, WithStrict(opts.Strict), WithLogger(opts.Logger)), nil
	case BackendLibgit2:
		return NewNativeBlamer(opts.RepoDir), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, opts.Backend)
	}
}

// sliceIterator walks hunks that were computed eagerly.
type sliceIterator struct {
	hunks []Hunk
	pos   int
}

func newSliceIterator(hunks []Hunk) *sliceIterator {
	return &sliceIterator{hunks: hunks, pos: -1}
}

func (s *sliceIterator) Next() bool {
	if s.pos+1 >= len(s.hunks) {
		s.pos = len(s.hunks)

		return false
	}

	s.pos++

	return true
}

func (s *sliceIterator) Hunk() Hunk {
	if s.pos < 0 || s.pos >= len(s.hunks) {
		return Hunk{}
	}

	return s.hunks[s.pos]
}

func (s *sliceIterator) Err() error { return nil }
