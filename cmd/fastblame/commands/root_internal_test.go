package commands

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Sumatoshi-tech/fastblame/pkg/config"
	"github.com/Sumatoshi-tech/fastblame/pkg/observability"
)

func testConfig() *config.Config {
	return &config.Config{
		Logging: config.LoggingConfig{Level: "warn", Format: "text"},
		Telemetry: config.TelemetryConfig{
			OTLPEndpoint: "collector:4317",
			OTLPHeaders:  "x-token=abc,x-team=blame",
			OTLPInsecure: true,
			SampleRatio:  0.5,
			Environment:  "staging",
		},
	}
}

func TestObservabilityConfig_FromFile(t *testing.T) {
	t.Parallel()

	got := observabilityConfig(testConfig(), &GlobalOptions{}, observability.ModeCLI)

	assert.Equal(t, "fastblame", got.ServiceName)
	assert.Equal(t, "staging", got.Environment)
	assert.Equal(t, observability.ModeCLI, got.Mode)
	assert.Equal(t, "collector:4317", got.OTLPEndpoint)
	assert.Equal(t, map[string]string{"x-token": "abc", "x-team": "blame"}, got.OTLPHeaders)
	assert.True(t, got.OTLPInsecure)
	assert.InDelta(t, 0.5, got.SampleRatio, 1e-9)
	assert.Equal(t, slog.LevelWarn, got.LogLevel)
	assert.False(t, got.LogJSON)
	assert.False(t, got.Prometheus)
}

func TestObservabilityConfig_FlagsAndModes(t *testing.T) {
	t.Parallel()

	verbose := observabilityConfig(testConfig(), &GlobalOptions{Verbose: true}, observability.ModeCLI)
	assert.Equal(t, slog.LevelDebug, verbose.LogLevel)

	quiet := observabilityConfig(testConfig(), &GlobalOptions{Quiet: true}, observability.ModeCLI)
	assert.Equal(t, slog.LevelError, quiet.LogLevel)

	mcpMode := observabilityConfig(testConfig(), &GlobalOptions{}, observability.ModeMCP)
	assert.True(t, mcpMode.LogJSON)
	assert.False(t, mcpMode.Prometheus)

	serve := observabilityConfig(testConfig(), &GlobalOptions{}, observability.ModeServe)
	assert.True(t, serve.Prometheus)
}

func TestBlameFlags_Request(t *testing.T) {
	t.Parallel()

	req, err := (&blameFlags{lineRange: "5,9", commit: "main"}).request("a.go")
	assert.NoError(t, err)
	assert.Equal(t, 5, req.StartLine)
	assert.Equal(t, 5, req.NumLines)
	assert.Equal(t, "main", req.Commit)

	req, err = (&blameFlags{start: 3, lines: 2}).request("a.go")
	assert.NoError(t, err)
	assert.Equal(t, 3, req.StartLine)
	assert.Equal(t, 2, req.NumLines)

	req, err = (&blameFlags{}).request("a.go")
	assert.NoError(t, err)
	assert.True(t, req.Range().IsWholeFile())
}
