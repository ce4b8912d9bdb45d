package blame

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"

	"github.com/Sumatoshi-tech/fastblame/pkg/observability"
)

// Instrumentation is the telemetry attached to a Blamer by Instrument.
// Nil fields are skipped.
type Instrumentation struct {
	Backend string
	Tracer  trace.Tracer
	RED     *observability.REDMetrics
	Hunks   *observability.BlameMetrics
	Logger  *slog.Logger
}

type instrumentedBlamer struct {
	next Blamer
	inst Instrumentation
	op   string
}

// Instrument wraps b so every request gets a span, RED metrics under op
// "blame.<backend>", a completion log line and per-hunk counters.
func Instrument(b Blamer, inst Instrumentation) Blamer {
	if inst.Backend == "" {
		inst.Backend = BackendSubprocess
	}

	if inst.Tracer == nil {
		inst.Tracer = nooptrace.NewTracerProvider().Tracer("")
	}

	if inst.Logger == nil {
		inst.Logger = slog.New(slog.DiscardHandler)
	}

	return &instrumentedBlamer{next: b, inst: inst, op: "blame." + inst.Backend}
}

func (ib *instrumentedBlamer) Blame(ctx context.Context, req Request) (HunkIterator, error) {
	start := time.Now()

	ctx, span := ib.inst.Tracer.Start(ctx, "fastblame.blame",
		trace.WithAttributes(
			attribute.String("blame.backend", ib.inst.Backend),
			attribute.String("blame.path", req.Path),
			attribute.String("git.revision", req.Revision()),
			attribute.String("blame.range", req.Range().String()),
		),
	)
	defer span.End()

	done := ib.inst.RED.TrackInflight(ctx, ib.op)
	defer done()

	it, err := ib.next.Blame(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "blame failed")
		ib.inst.RED.RecordRequest(ctx, ib.op, observability.StatusError, time.Since(start))
		ib.inst.Logger.ErrorContext(ctx, "blame failed",
			"path", req.Path, "commit", req.Revision(), "backend", ib.inst.Backend, "error", err)

		return nil, err
	}

	ib.inst.RED.RecordRequest(ctx, ib.op, observability.StatusOK, time.Since(start))
	ib.inst.Logger.DebugContext(ctx, "blame finished",
		"path", req.Path, "commit", req.Revision(), "backend", ib.inst.Backend,
		"range", req.Range().String(), "duration", time.Since(start))

	return &countingIterator{HunkIterator: it, ctx: ctx, backend: ib.inst.Backend, metrics: ib.inst.Hunks}, nil
}

// Close closes the wrapped Blamer when it holds resources.
func (ib *instrumentedBlamer) Close() error {
	return CloseBlamer(ib.next)
}

// countingIterator records each hunk as it is handed out.
type countingIterator struct {
	HunkIterator

	ctx     context.Context //nolint:containedctx // metrics are recorded lazily during iteration.
	backend string
	metrics *observability.BlameMetrics
}

func (c *countingIterator) Next() bool {
	if !c.HunkIterator.Next() {
		return false
	}

	c.metrics.RecordHunk(c.ctx, c.backend, c.Hunk().LineCount)

	return true
}
