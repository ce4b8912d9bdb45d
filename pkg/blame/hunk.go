// Package blame turns `git blame --porcelain` output into blame hunks.
//
// A hunk is a maximal run of lines in the queried file version that trace back
// to the same origin commit and origin line offset. The package runs the git
// subprocess (Invoker), parses its output in a single forward pass (Parser),
// and offers libgit2's native blame as an alternative backend.
package blame

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/Sumatoshi-tech/fastblame/pkg/gitlib"
)

// defaultLineCount is the line count of a hunk before its header sets it.
const defaultLineCount = 1

var jsonNull = []byte("null")

// Authorship is an optional Unix timestamp of a commit's author or commit time.
// The zero value is absent.
type Authorship struct {
	Time  int64
	Valid bool
}

// At returns a present Authorship for the Unix timestamp seconds.
func At(seconds int64) Authorship {
	return Authorship{Time: seconds, Valid: true}
}

// When returns the timestamp as UTC time. It is the zero time when absent.
func (a Authorship) When() time.Time {
	if !a.Valid {
		return time.Time{}
	}

	return time.Unix(a.Time, 0).UTC()
}

// String formats the timestamp, or "-" when absent.
func (a Authorship) String() string {
	if !a.Valid {
		return "-"
	}

	return strconv.FormatInt(a.Time, 10)
}

// MarshalJSON encodes an absent value as null and a present one as its seconds.
func (a Authorship) MarshalJSON() ([]byte, error) {
	if !a.Valid {
		return jsonNull, nil
	}

	return strconv.AppendInt(nil, a.Time, 10), nil
}

// UnmarshalJSON accepts null or an integer number of seconds.
func (a *Authorship) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, jsonNull) {
		*a = Authorship{}

		return nil
	}

	var seconds int64

	err := json.Unmarshal(data, &seconds)
	if err != nil {
		return fmt.Errorf("decode authorship: %w", err)
	}

	*a = At(seconds)

	return nil
}

// MarshalYAML encodes an absent value as null.
func (a Authorship) MarshalYAML() (any, error) {
	if !a.Valid {
		return nil, nil //nolint:nilnil // null is the YAML encoding of an absent time.
	}

	return a.Time, nil
}

// Hunk is one blame hunk. Values are complete when handed out and never
// modified afterwards.
type Hunk struct {
	OriginCommit    gitlib.Hash `json:"origin_commit"     yaml:"origin_commit"`
	OriginStartLine int         `json:"origin_start_line" yaml:"origin_start_line"`
	FinalStartLine  int         `json:"final_start_line"  yaml:"final_start_line"`
	LineCount       int         `json:"line_count"        yaml:"line_count"`
	CommitterTime   Authorship  `json:"committer_time"    yaml:"committer_time"`
	AuthorTime      Authorship  `json:"author_time"       yaml:"author_time"`
}

// FinalEndLine returns the last line of the hunk in the queried file version.
func (h Hunk) FinalEndLine() int {
	return h.FinalStartLine + h.LineCount - 1
}

// Range is the line range a blame was queried for. Zero Start and Count mean
// the whole file.
type Range struct {
	Start int `json:"start" yaml:"start"`
	Count int `json:"count" yaml:"count"`
}

// IsWholeFile reports whether the range selects the whole file.
func (r Range) IsWholeFile() bool {
	return r.Start == 0 && r.Count == 0
}

// String formats the range in git's -L syntax.
func (r Range) String() string {
	if r.IsWholeFile() {
		return "all"
	}

	return fmt.Sprintf("%d,+%d", r.Start, r.Count)
}

// hunkBuilder accumulates a hunk until its metadata is known.
type hunkBuilder struct {
	commit     gitlib.Hash
	origStart  int
	finalStart int
	lineCount  int
}

func newHunkBuilder(commit gitlib.Hash, origStart, finalStart, lineCount int) *hunkBuilder {
	b := &hunkBuilder{
		commit:     commit,
		origStart:  origStart,
		finalStart: finalStart,
		lineCount:  defaultLineCount,
	}

	if lineCount > 0 {
		b.lineCount = lineCount
	}

	return b
}

// build finalizes the hunk with whatever times are cached for its commit.
func (b *hunkBuilder) build(committerTimes, authorTimes map[gitlib.Hash]int64) Hunk {
	hunk := Hunk{
		OriginCommit:    b.commit,
		OriginStartLine: b.origStart,
		FinalStartLine:  b.finalStart,
		LineCount:       b.lineCount,
	}

	if t, ok := committerTimes[b.commit]; ok {
		hunk.CommitterTime = At(t)
	}

	if t, ok := authorTimes[b.commit]; ok {
		hunk.AuthorTime = At(t)
	}

	return hunk
}
