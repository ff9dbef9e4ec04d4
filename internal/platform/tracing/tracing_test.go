package tracing

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"

	"simrelease/internal/platform/config"
)

func TestProviderLogsFinishedSpans(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	tp := NewProvider("simrelease-test", logger)
	defer func() { require.NoError(t, tp.Shutdown(context.Background())) }()

	ctx, parent := tp.Tracer("test").Start(context.Background(), "liberation.liberate")
	_, child := tp.Tracer("test").Start(ctx, "liberation.identifier")
	child.SetAttributes(attribute.String("serial", "8921303000000000001F"))
	child.End()
	parent.End()

	out := logs.String()
	assert.Contains(t, out, "span=liberation.identifier")
	assert.Contains(t, out, "serial=8921303000000000001F")
	assert.Contains(t, out, "parent_span_id=")
	assert.Contains(t, out, "span=liberation.liberate")
}

func TestSetupDisabledIsNoop(t *testing.T) {
	shutdown := Setup(config.TracingConfig{Enabled: false}, slog.Default())
	assert.NoError(t, shutdown(context.Background()))
}
