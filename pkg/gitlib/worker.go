package gitlib

import "runtime"

// BlameRequest asks the worker to resolve a revision and blame one file at it.
// Zero MinLine and MaxLine blame the whole file.
type BlameRequest struct {
	Revision string
	Path     string
	MinLine  int
	MaxLine  int
	// Response receives exactly one BlameResponse. It should be buffered so
	// the worker never waits on a caller that gave up.
	Response chan<- BlameResponse
}

// BlameResponse is the response for a BlameRequest.
type BlameResponse struct {
	Hunks []BlameHunk
	Error error
}

// Worker manages exclusive, sequential access to the libgit2 Repository.
// It ensures all CGO calls happen on a single OS thread.
type Worker struct {
	repo     *Repository
	requests <-chan BlameRequest
	done     chan struct{}
}

// NewWorker creates a new Worker that consumes from the given channel.
func NewWorker(repo *Repository, requests <-chan BlameRequest) *Worker {
	return &Worker{
		repo:     repo,
		requests: requests,
		done:     make(chan struct{}),
	}
}

// Start runs the worker loop on a goroutine locked to its OS thread.
func (w *Worker) Start() {
	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		defer close(w.done)

		for req := range w.requests {
			req.Response <- w.handle(req)
		}
	}()
}

// Stop waits for the worker to finish.
// The caller must close the requests channel to trigger shutdown.
func (w *Worker) Stop() {
	<-w.done
}

func (w *Worker) handle(req BlameRequest) BlameResponse {
	newest, err := w.repo.ResolveCommit(req.Revision)
	if err != nil {
		return BlameResponse{Error: err}
	}

	hunks, err := w.repo.BlameFile(req.Path, BlameOptions{
		Newest:  newest,
		MinLine: req.MinLine,
		MaxLine: req.MaxLine,
	})

	return BlameResponse{Hunks: hunks, Error: err}
}
