package telemetry

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestSetup_StdoutExportsSpans(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := Setup(context.Background(), Config{Service: "market-service", Exporter: ExporterStdout, Writer: &buf})
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(context.Background(), "order.checkout")
	span.End()
	require.NoError(t, shutdown(context.Background()))

	assert.Contains(t, buf.String(), "order.checkout")
	assert.Contains(t, buf.String(), "market-service")
}

func TestSetup_NoneRecordsWithoutExporting(t *testing.T) {
	shutdown, err := Setup(context.Background(), Config{Service: "market-service", Exporter: ExporterNone})
	require.NoError(t, err)
	defer shutdown(context.Background())

	_, span := otel.Tracer("test").Start(context.Background(), "noop")
	assert.True(t, span.SpanContext().IsValid())
	span.End()
}

func TestSetup_UnknownExporter(t *testing.T) {
	_, err := Setup(context.Background(), Config{Service: "x", Exporter: "zipkin"})
	assert.Error(t, err)
}
