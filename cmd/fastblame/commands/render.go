package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"gopkg.in/yaml.v3"

	"github.com/Sumatoshi-tech/fastblame/pkg/blame"
)

// Output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// ErrUnknownFormat is returned for an output format the renderer does not know.
var ErrUnknownFormat = errors.New("unknown output format")

// Report is the document written by the json and yaml formats.
type Report struct {
	Request blame.Request `json:"request" yaml:"request"`
	Hunks   []blame.Hunk  `json:"hunks"   yaml:"hunks"`
}

func validateFormat(format string) error {
	switch format {
	case FormatText, FormatJSON, FormatYAML:
		return nil
	default:
		return fmt.Errorf("%w: %q (want text, json or yaml)", ErrUnknownFormat, format)
	}
}

// Renderer writes a blame report in one output format.
type Renderer struct {
	Format  string
	NoColor bool
	// Now anchors relative times. Zero uses the wall clock.
	Now time.Time
}

// Render writes the report to w.
func (r Renderer) Render(w io.Writer, report Report) error {
	if report.Hunks == nil {
		report.Hunks = []blame.Hunk{}
	}

	switch r.Format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")

		err := enc.Encode(report)
		if err != nil {
			return fmt.Errorf("encode json: %w", err)
		}

		return nil
	case FormatYAML:
		enc := yaml.NewEncoder(w)

		err := enc.Encode(report)
		if err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}

		return enc.Close()
	case FormatText, "":
		return r.renderText(w, report)
	default:
		return validateFormat(r.Format)
	}
}

func (r Renderer) renderText(w io.Writer, report Report) error {
	now := r.Now
	if now.IsZero() {
		now = time.Now()
	}

	hashColor := color.New(color.FgYellow)
	if r.NoColor {
		hashColor.DisableColor()
	}

	tbl := table.NewWriter()
	tbl.SetOutputMirror(w)
	tbl.SetStyle(table.StyleLight)
	tbl.SetTitle(fmt.Sprintf("%s @ %s (lines: %s)",
		report.Request.Path, report.Request.Revision(), report.Request.Range()))
	tbl.AppendHeader(table.Row{"Commit", "Origin", "Lines", "Count", "Authored", "Committed"})

	totalLines := 0

	for _, h := range report.Hunks {
		totalLines += h.LineCount

		tbl.AppendRow(table.Row{
			hashColor.Sprint(h.OriginCommit.Short()),
			h.OriginStartLine,
			lineSpan(h),
			h.LineCount,
			relativeTime(h.AuthorTime, now),
			relativeTime(h.CommitterTime, now),
		})
	}

	tbl.AppendFooter(table.Row{
		fmt.Sprintf("%s hunks", humanize.Comma(int64(len(report.Hunks)))),
		"", "",
		humanize.Comma(int64(totalLines)),
	})

	tbl.Render()

	return nil
}

func lineSpan(h blame.Hunk) string {
	if h.LineCount == 1 {
		return strconv.Itoa(h.FinalStartLine)
	}

	return strconv.Itoa(h.FinalStartLine) + "-" + strconv.Itoa(h.FinalEndLine())
}

func relativeTime(a blame.Authorship, now time.Time) string {
	if !a.Valid {
		return "-"
	}

	return humanize.RelTime(a.When(), now, "ago", "from now")
}
