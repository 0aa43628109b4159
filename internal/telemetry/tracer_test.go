package telemetry

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTracerProvider(t *testing.T) {
	var buf bytes.Buffer

	tp, shutdown, err := NewTracerProvider("stagechain-test", &buf, nil)
	require.NoError(t, err)

	_, span := tp.Tracer("test").Start(context.Background(), "inspect")
	span.End()

	require.NoError(t, shutdown(context.Background()))
	assert.Contains(t, buf.String(), `"Name": "inspect"`)
	assert.Contains(t, buf.String(), "stagechain-test")
}
