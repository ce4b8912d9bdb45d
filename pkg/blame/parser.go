package blame

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/Sumatoshi-tech/fastblame/pkg/gitlib"
)

// ErrMalformedLine is reported in strict mode for a metadata line with no hunk
// to attach to, or a recognised line whose numbers do not fit.
var ErrMalformedLine = errors.New("malformed porcelain line")

// Porcelain line shapes. Only the first header of each hunk carries the fourth
// (length) field; the three-field repeats inside a hunk fall through as other lines.
var (
	headerPattern        = regexp.MustCompile(`^([0-9a-f]{40}) (\d+) (\d+) (\d+)$`)
	committerTimePattern = regexp.MustCompile(`^committer-time (\d+)$`)
	authorTimePattern    = regexp.MustCompile(`^author-time (\d+)$`)
)

// ParserOption configures a Parser.
type ParserOption func(*Parser)

// WithStrict makes orphan metadata lines and unparsable numbers fail the parse
// with ErrMalformedLine instead of being skipped.
func WithStrict(strict bool) ParserOption {
	return func(p *Parser) {
		p.strict = strict
	}
}

// WithLogger sets the logger that reports skipped lines at debug level.
func WithLogger(logger *slog.Logger) ParserOption {
	return func(p *Parser) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// Parser is a single-pass cursor over porcelain blame output. Each call to
// Next finalizes at most one hunk; a drained Parser cannot be restarted.
//
// The commit time caches live and die with the Parser, so parsing the same
// text twice with two Parsers yields equal hunks.
type Parser struct {
	reader *bufio.Reader
	query  Range
	strict bool
	logger *slog.Logger

	committerTimes map[gitlib.Hash]int64
	authorTimes    map[gitlib.Hash]int64

	pending *hunkBuilder
	current Hunk
	lineNo  int
	eof     bool
	err     error
}

// NewParser returns a Parser reading porcelain output from r. The query range
// is kept for provenance only; it never bounds the scan.
func NewParser(r io.Reader, query Range, opts ...ParserOption) *Parser {
	p := &Parser{
		reader:         bufio.NewReader(r),
		query:          query,
		logger:         slog.New(slog.DiscardHandler),
		committerTimes: make(map[gitlib.Hash]int64),
		authorTimes:    make(map[gitlib.Hash]int64),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// ParseString returns a Parser over already captured output.
func ParseString(text string, query Range, opts ...ParserOption) *Parser {
	return NewParser(strings.NewReader(text), query, opts...)
}

// Query returns the range the output was produced for.
func (p *Parser) Query() Range {
	return p.query
}

// Next advances to the next finalized hunk. It returns false when the input is
// exhausted or an error occurred; check Err afterwards.
func (p *Parser) Next() bool {
	for !p.eof {
		line, err := p.reader.ReadString('\n')
		if err != nil {
			p.eof = true

			if !errors.Is(err, io.EOF) {
				p.fail(fmt.Errorf("read blame output: %w", err))

				return false
			}
		}

		if line == "" {
			continue
		}

		p.lineNo++

		hunk, emitted, lineErr := p.consume(strings.TrimSuffix(line, "\n"))
		if lineErr != nil {
			p.fail(lineErr)

			return false
		}

		if emitted {
			p.current = hunk

			return true
		}
	}

	if p.pending == nil {
		return false
	}

	p.current = p.finalize()

	return true
}

// Hunk returns the hunk produced by the last successful call to Next.
func (p *Parser) Hunk() Hunk {
	return p.current
}

// Err returns the error that stopped the parse, if any.
func (p *Parser) Err() error {
	return p.err
}

// All yields the remaining hunks. It shares the Parser's cursor, so a second
// call after the first finished yields nothing.
func (p *Parser) All() iter.Seq[Hunk] {
	return func(yield func(Hunk) bool) {
		for p.Next() {
			if !yield(p.current) {
				return
			}
		}
	}
}

// consume applies one line to the state machine. The three line shapes are
// tested in order without short-circuiting; emitted reports whether the line
// finalized the previous hunk.
func (p *Parser) consume(line string) (hunk Hunk, emitted bool, err error) {
	if m := headerPattern.FindStringSubmatch(line); m != nil {
		builder, headerErr := p.parseHeader(m)
		if headerErr != nil {
			return Hunk{}, false, headerErr
		}

		if builder != nil {
			if p.pending != nil {
				hunk, emitted = p.finalize(), true
			}

			p.pending = builder
		}
	}

	if m := committerTimePattern.FindStringSubmatch(line); m != nil {
		err = p.recordTime(p.committerTimes, line, m[1])
		if err != nil {
			return Hunk{}, false, err
		}
	}

	if m := authorTimePattern.FindStringSubmatch(line); m != nil {
		err = p.recordTime(p.authorTimes, line, m[1])
		if err != nil {
			return Hunk{}, false, err
		}
	}

	return hunk, emitted, nil
}

// parseHeader builds a hunk from a matched header line. A nil builder with a
// nil error means the line was skipped.
func (p *Parser) parseHeader(m []string) (*hunkBuilder, error) {
	commit, err := gitlib.ParseHash(m[1])
	if err != nil {
		return nil, p.malformed(m[0], err)
	}

	var nums [3]int

	for i, raw := range m[2:] {
		nums[i], err = strconv.Atoi(raw)
		if err != nil {
			return nil, p.malformed(m[0], err)
		}
	}

	return newHunkBuilder(commit, nums[0], nums[1], nums[2]), nil
}

// recordTime caches a commit time against the pending hunk's commit.
func (p *Parser) recordTime(cache map[gitlib.Hash]int64, line, raw string) error {
	if p.pending == nil {
		return p.malformed(line, nil)
	}

	seconds, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return p.malformed(line, err)
	}

	cache[p.pending.commit] = seconds

	return nil
}

// malformed returns ErrMalformedLine in strict mode and logs the skip otherwise.
func (p *Parser) malformed(line string, cause error) error {
	if p.strict {
		if cause != nil {
			return fmt.Errorf("%w: line %d %q: %w", ErrMalformedLine, p.lineNo, line, cause)
		}

		return fmt.Errorf("%w: line %d %q: no hunk header before it", ErrMalformedLine, p.lineNo, line)
	}

	p.logger.Debug("skipping porcelain line", "line_no", p.lineNo, "line", line, "cause", cause)

	return nil
}

func (p *Parser) finalize() Hunk {
	hunk := p.pending.build(p.committerTimes, p.authorTimes)
	p.pending = nil

	return hunk
}

func (p *Parser) fail(err error) {
	p.err = err
	p.eof = true
	p.pending = nil
}
