package blame

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// DefaultCommit is blamed when a request names no commit.
const DefaultCommit = "HEAD"

// ErrInvalidRequest is returned for a request that cannot be sent to git.
var ErrInvalidRequest = errors.New("invalid blame request")

// Request selects one file, one commit and one line range to blame.
type Request struct {
	Path      string `json:"path"       yaml:"path"`
	Commit    string `json:"commit"     yaml:"commit"`
	StartLine int    `json:"start_line" yaml:"start_line"`
	NumLines  int    `json:"num_lines"  yaml:"num_lines"`
}

// Range returns the queried line range.
func (r Request) Range() Range {
	return Range{Start: r.StartLine, Count: r.NumLines}
}

// Revision returns the commit to blame, defaulting to HEAD.
func (r Request) Revision() string {
	if r.Commit == "" {
		return DefaultCommit
	}

	return r.Commit
}

// Validate checks the request. Both range fields zero selects the whole file;
// otherwise the start line is 1-based and at least one line is requested.
func (r Request) Validate() error {
	if strings.TrimSpace(r.Path) == "" {
		return fmt.Errorf("%w: path is required", ErrInvalidRequest)
	}

	if strings.HasPrefix(r.Revision(), "-") {
		return fmt.Errorf("%w: commit %q looks like an option", ErrInvalidRequest, r.Commit)
	}

	if r.Range().IsWholeFile() {
		return nil
	}

	if r.StartLine < 1 {
		return fmt.Errorf("%w: start line %d must be >= 1", ErrInvalidRequest, r.StartLine)
	}

	if r.NumLines < 1 {
		return fmt.Errorf("%w: line count %d must be >= 1", ErrInvalidRequest, r.NumLines)
	}

	return nil
}

// Args returns the git arguments for the request:
// blame --porcelain [-L start,+count] commit -- path.
func (r Request) Args() []string {
	args := []string{"blame", "--porcelain"}

	if !r.Range().IsWholeFile() {
		args = append(args, "-L", strconv.Itoa(r.StartLine)+",+"+strconv.Itoa(r.NumLines))
	}

	return append(args, r.Revision(), "--", r.Path)
}

// ParseLineRange parses git's "start,+count" and "start,end" -L forms.
func ParseLineRange(expr string) (Range, error) {
	startRaw, endRaw, ok := strings.Cut(expr, ",")
	if !ok {
		return Range{}, fmt.Errorf("%w: range %q is not start,+count", ErrInvalidRequest, expr)
	}

	start, err := strconv.Atoi(strings.TrimSpace(startRaw))
	if err != nil || start < 1 {
		return Range{}, fmt.Errorf("%w: bad start line in %q", ErrInvalidRequest, expr)
	}

	endRaw = strings.TrimSpace(endRaw)

	if countRaw, relative := strings.CutPrefix(endRaw, "+"); relative {
		count, countErr := strconv.Atoi(countRaw)
		if countErr != nil || count < 1 {
			return Range{}, fmt.Errorf("%w: bad line count in %q", ErrInvalidRequest, expr)
		}

		return Range{Start: start, Count: count}, nil
	}

	end, err := strconv.Atoi(endRaw)
	if err != nil || end < start {
		return Range{}, fmt.Errorf("%w: bad end line in %q", ErrInvalidRequest, expr)
	}

	return Range{Start: start, Count: end - start + 1}, nil
}
