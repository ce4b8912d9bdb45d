package blame

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Sumatoshi-tech/fastblame/pkg/gitlib"
)

// ErrBlamerClosed is returned by a NativeBlamer after Close.
var ErrBlamerClosed = errors.New("blamer closed")

// NativeBlamer computes blame in-process with libgit2. It is much slower than
// SubprocessBlamer on large histories and exists for comparison and for hosts
// without a git binary. libgit2 failures match ErrProcessFailure so callers
// handle both backends alike.
//
// The repository is opened on first use and kept open; a gitlib.Worker
// serializes all requests onto one OS thread.
type NativeBlamer struct {
	repoDir string

	mu       sync.RWMutex
	repo     *gitlib.Repository
	requests chan gitlib.BlameRequest
	worker   *gitlib.Worker
	closed   bool
}

// NewNativeBlamer returns a libgit2 Blamer for the repository at repoDir.
func NewNativeBlamer(repoDir string) *NativeBlamer {
	if repoDir == "" {
		repoDir = "."
	}

	return &NativeBlamer{repoDir: repoDir}
}

// Blame queues the request on the repository worker and waits for its hunks.
func (b *NativeBlamer) Blame(ctx context.Context, req Request) (HunkIterator, error) {
	err := req.Validate()
	if err != nil {
		return nil, err
	}

	err = ctx.Err()
	if err != nil {
		return nil, fmt.Errorf("native blame: %w", err)
	}

	err = b.start()
	if err != nil {
		return nil, err
	}

	resp, err := b.submit(ctx, req)
	if err != nil {
		return nil, err
	}

	if resp.Error != nil {
		return nil, fmt.Errorf("%w: %w", ErrProcessFailure, resp.Error)
	}

	hunks := make([]Hunk, 0, len(resp.Hunks))
	for _, nh := range resp.Hunks {
		hunks = append(hunks, fromNative(nh))
	}

	return newSliceIterator(hunks), nil
}

// Close stops the worker and frees the repository. Requests already queued
// finish first.
func (b *NativeBlamer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}

	b.closed = true

	if b.worker != nil {
		close(b.requests)
		b.worker.Stop()
		b.repo.Free()
	}

	return nil
}

// start opens the repository and starts the worker once. A failed open is
// retried on the next call.
func (b *NativeBlamer) start() error {
	b.mu.RLock()
	started, closed := b.worker != nil, b.closed
	b.mu.RUnlock()

	if closed {
		return ErrBlamerClosed
	}

	if started {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrBlamerClosed
	}

	if b.worker != nil {
		return nil
	}

	repo, err := gitlib.OpenRepository(b.repoDir)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrProcessFailure, err)
	}

	b.repo = repo
	b.requests = make(chan gitlib.BlameRequest)
	b.worker = gitlib.NewWorker(repo, b.requests)
	b.worker.Start()

	return nil
}

func (b *NativeBlamer) submit(ctx context.Context, req Request) (gitlib.BlameResponse, error) {
	response := make(chan gitlib.BlameResponse, 1)

	workerReq := gitlib.BlameRequest{
		Revision: req.Revision(),
		Path:     req.Path,
		Response: response,
	}

	if !req.Range().IsWholeFile() {
		workerReq.MinLine = req.StartLine
		workerReq.MaxLine = req.StartLine + req.NumLines - 1
	}

	// The read lock keeps Close from closing the channel mid-send.
	b.mu.RLock()

	if b.closed {
		b.mu.RUnlock()

		return gitlib.BlameResponse{}, ErrBlamerClosed
	}

	select {
	case b.requests <- workerReq:
		b.mu.RUnlock()
	case <-ctx.Done():
		b.mu.RUnlock()

		return gitlib.BlameResponse{}, fmt.Errorf("native blame: %w", ctx.Err())
	}

	select {
	case resp := <-response:
		return resp, nil
	case <-ctx.Done():
		return gitlib.BlameResponse{}, fmt.Errorf("native blame: %w", ctx.Err())
	}
}

// fromNative attaches the origin commit's author and committer times, the
// same commit the porcelain metadata describes.
func fromNative(nh gitlib.BlameHunk) Hunk {
	builder := newHunkBuilder(nh.OrigCommit, nh.OrigStartLine, nh.FinalStartLine, nh.LinesInHunk)
	hunk := builder.build(nil, nil)

	if nh.OrigCommitter != nil {
		hunk.CommitterTime = At(nh.OrigCommitter.When.Unix())
	}

	if nh.OrigSignature != nil {
		hunk.AuthorTime = At(nh.OrigSignature.When.Unix())
	}

	return hunk
}
