// Package mcp implements a Model Context Protocol server exposing blame as
// an MCP tool over stdio.
package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/fastblame/pkg/blame"
	"github.com/Sumatoshi-tech/fastblame/pkg/observability"
)

const (
	serverName = "fastblame"

	// defaultServerVersion is reported when ServerDeps.Version is empty.
	defaultServerVersion = "dev"
)

// BlamerFactory builds a Blamer for a repository directory.
type BlamerFactory func(repoDir string) (blame.Blamer, error)

// ServerDeps holds injectable dependencies for the MCP server.
// Zero-value fields use production defaults.
type ServerDeps struct {
	// Blamer serves calls that name no repo_path. Nil uses a subprocess
	// Blamer over the working directory.
	Blamer blame.Blamer

	// BlamerFor serves calls with a repo_path. Nil builds subprocess Blamers.
	BlamerFor BlamerFactory

	// Logger is an optional structured logger.
	Logger *slog.Logger

	// Metrics is an optional RED metrics recorder. Nil disables per-tool metrics.
	Metrics *observability.REDMetrics

	// Tracer is an optional OTel tracer for per-tool-call spans. Nil disables tracing.
	Tracer trace.Tracer

	// Version is the implementation version announced to clients.
	Version string
}

// Server wraps the MCP SDK server with the fastblame tool registrations.
type Server struct {
	inner     *mcpsdk.Server
	mu        sync.RWMutex
	tools     []string
	blamer    blame.Blamer
	blamerFor BlamerFactory
	metrics   *observability.REDMetrics
	tracer    trace.Tracer
}

// NewServer creates a new MCP server with all tools registered.
func NewServer(deps ServerDeps) *Server {
	opts := &mcpsdk.ServerOptions{}
	if deps.Logger != nil {
		opts.Logger = deps.Logger
	}

	version := deps.Version
	if version == "" {
		version = defaultServerVersion
	}

	inner := mcpsdk.NewServer(&mcpsdk.Implementation{Name: serverName, Version: version}, opts)

	srv := &Server{
		inner:     inner,
		blamer:    deps.Blamer,
		blamerFor: deps.BlamerFor,
		metrics:   deps.Metrics,
		tracer:    deps.Tracer,
	}

	if srv.blamerFor == nil {
		srv.blamerFor = func(repoDir string) (blame.Blamer, error) {
			return blame.NewBlamer(blame.Options{RepoDir: repoDir})
		}
	}

	if srv.blamer == nil {
		srv.blamer = blame.NewSubprocessBlamer(&blame.GitInvoker{})
	}

	srv.registerBlameTool()

	return srv
}

// ListToolNames returns the sorted names of all registered tools.
func (s *Server) ListToolNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, len(s.tools))
	copy(names, s.tools)
	sort.Strings(names)

	return names
}

// Run starts the MCP server on stdio transport. It blocks until the context
// is canceled or the connection closes.
func (s *Server) Run(ctx context.Context) error {
	return s.RunWithTransport(ctx, &mcpsdk.StdioTransport{})
}

// RunWithTransport starts the MCP server on the given transport.
func (s *Server) RunWithTransport(ctx context.Context, transport mcpsdk.Transport) error {
	err := s.inner.Run(ctx, transport)
	if err != nil {
		return fmt.Errorf("mcp server: %w", err)
	}

	return nil
}

func (s *Server) registerBlameTool() {
	mcpsdk.AddTool(s.inner, &mcpsdk.Tool{
		Name:        ToolNameBlame,
		Description: blameToolDescription,
	}, withMetrics(s.metrics, ToolNameBlame, withTracing(s.tracer, ToolNameBlame, s.handleBlame)))

	s.trackTool(ToolNameBlame)
}

const mcpSpanPrefix = "mcp."

// traceIDMetaKey is the metadata key for trace_id in MCP tool responses.
const traceIDMetaKey = "trace_id"

// withTracing wraps an MCP tool handler to create an OTel span per invocation
// and include trace_id in the response content when sampled.
func withTracing[Input any](
	tracer trace.Tracer,
	toolName string,
	handler func(context.Context, *mcpsdk.CallToolRequest, Input) (*mcpsdk.CallToolResult, ToolOutput, error),
) func(context.Context, *mcpsdk.CallToolRequest, Input) (*mcpsdk.CallToolResult, ToolOutput, error) {
	if tracer == nil {
		return handler
	}

	return func(ctx context.Context, req *mcpsdk.CallToolRequest, input Input) (*mcpsdk.CallToolResult, ToolOutput, error) {
		ctx, span := tracer.Start(ctx, mcpSpanPrefix+toolName,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(attribute.String("mcp.tool", toolName)),
		)
		defer span.End()

		result, output, err := handler(ctx, req, input)

		sc := span.SpanContext()
		if sc.IsSampled() && result != nil {
			result.Content = append(result.Content,
				&mcpsdk.TextContent{Text: traceIDMetaKey + "=" + sc.TraceID().String()})
		}

		return result, output, err
	}
}

// withMetrics wraps an MCP tool handler to record RED metrics per invocation.
func withMetrics[Input any](
	metrics *observability.REDMetrics,
	toolName string,
	handler func(context.Context, *mcpsdk.CallToolRequest, Input) (*mcpsdk.CallToolResult, ToolOutput, error),
) func(context.Context, *mcpsdk.CallToolRequest, Input) (*mcpsdk.CallToolResult, ToolOutput, error) {
	if metrics == nil {
		return handler
	}

	op := mcpSpanPrefix + toolName

	return func(ctx context.Context, req *mcpsdk.CallToolRequest, input Input) (*mcpsdk.CallToolResult, ToolOutput, error) {
		start := time.Now()

		decInflight := metrics.TrackInflight(ctx, op)
		defer decInflight()

		result, output, err := handler(ctx, req, input)

		status := observability.StatusOK
		if err != nil || (result != nil && result.IsError) {
			status = observability.StatusError
		}

		metrics.RecordRequest(ctx, op, status, time.Since(start))

		return result, output, err
	}
}

func (s *Server) trackTool(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tools = append(s.tools, name)
}

const blameToolDescription = "Run git blame on one file and return its blame hunks: " +
	"the origin commit, origin and final start lines, line count, and the commit's " +
	"author and committer Unix times. Optionally restricted to a commit and a line range."
