package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Sumatoshi-tech/fastblame/pkg/blame"
)

// ToolNameBlame is the name of the blame tool.
const ToolNameBlame = "git_blame"

// Sentinel errors for tool input validation.
var (
	// ErrRepoPathNotAbsolute indicates the repo_path is not an absolute path.
	ErrRepoPathNotAbsolute = errors.New("repo_path must be an absolute path")
	// ErrRepoNotFound indicates the repository path does not exist.
	ErrRepoNotFound = errors.New("repository path does not exist")
)

// BlameInput is the input schema for the git_blame tool.
type BlameInput struct {
	Path      string `json:"path"                jsonschema:"file path relative to the repository root"`
	Commit    string `json:"commit,omitempty"    jsonschema:"commit to blame at (default: HEAD)"`
	StartLine int    `json:"start_line,omitempty" jsonschema:"first line of the range, 1-based (omit with num_lines for the whole file)"`
	NumLines  int    `json:"num_lines,omitempty"  jsonschema:"number of lines in the range"`
	RepoPath  string `json:"repo_path,omitempty"  jsonschema:"absolute path to the repository (default: the server's repository)"`
}

// BlameOutput is the JSON body of a successful git_blame call.
type BlameOutput struct {
	Request blame.Request `json:"request"`
	Hunks   []blame.Hunk  `json:"hunks"`
}

// ToolOutput is a generic wrapper for tool results.
type ToolOutput struct {
	Data any `json:"data"`
}

func (s *Server) handleBlame(
	ctx context.Context, _ *mcpsdk.CallToolRequest, input BlameInput,
) (*mcpsdk.CallToolResult, ToolOutput, error) {
	req := blame.Request{
		Path:      input.Path,
		Commit:    input.Commit,
		StartLine: input.StartLine,
		NumLines:  input.NumLines,
	}

	err := req.Validate()
	if err != nil {
		return errorResult(err)
	}

	blamer, err := s.blamerForInput(input)
	if err != nil {
		return errorResult(err)
	}

	if input.RepoPath != "" {
		defer func() { _ = blame.CloseBlamer(blamer) }()
	}

	it, err := blamer.Blame(ctx, req)
	if err != nil {
		return errorResult(err)
	}

	hunks, err := blame.Collect(it)
	if err != nil {
		return errorResult(err)
	}

	if hunks == nil {
		hunks = []blame.Hunk{}
	}

	return jsonResult(BlameOutput{Request: req, Hunks: hunks})
}

func (s *Server) blamerForInput(input BlameInput) (blame.Blamer, error) {
	if input.RepoPath == "" {
		return s.blamer, nil
	}

	err := validateRepoPath(input.RepoPath)
	if err != nil {
		return nil, err
	}

	return s.blamerFor(input.RepoPath)
}

func validateRepoPath(repoPath string) error {
	if !filepath.IsAbs(repoPath) {
		return ErrRepoPathNotAbsolute
	}

	info, err := os.Stat(repoPath)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrRepoNotFound, repoPath)
	}

	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrRepoNotFound, repoPath)
	}

	return nil
}

// errorResult builds a CallToolResult with isError set.
func errorResult(err error) (*mcpsdk.CallToolResult, ToolOutput, error) {
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{
			&mcpsdk.TextContent{Text: err.Error()},
		},
		IsError: true,
	}, ToolOutput{}, nil
}

// jsonResult builds a CallToolResult with JSON-encoded content.
func jsonResult(value any) (*mcpsdk.CallToolResult, ToolOutput, error) {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return errorResult(fmt.Errorf("encode result: %w", err))
	}

	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{
			&mcpsdk.TextContent{Text: string(data)},
		},
	}, ToolOutput{Data: value}, nil
}
