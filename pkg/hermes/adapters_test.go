package hermes

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZerologAdapter_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewZerologAdapter(&buf, "info", "json")

	ctx := WithRequestID(context.Background(), "req-1")
	logger.Info(ctx, "evaluation finished", map[string]any{"samples": 3})

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "evaluation finished", entry["message"])
	assert.Equal(t, "req-1", entry["request_id"])
	assert.Equal(t, 3.0, entry["samples"])
}

func TestZerologAdapter_Level(t *testing.T) {
	var buf bytes.Buffer
	logger := NewZerologAdapter(&buf, "warn", "json")

	logger.Debug(context.Background(), "hidden", nil)
	logger.Info(context.Background(), "hidden", nil)
	assert.Zero(t, buf.Len())

	logger.Warn(context.Background(), "shown", nil)
	assert.Contains(t, buf.String(), "shown")
}

func TestZerologAdapter_InvalidLevelDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := NewZerologAdapter(&buf, "loud", "json")

	logger.Debug(context.Background(), "hidden", nil)
	assert.Zero(t, buf.Len())
	logger.Info(context.Background(), "shown", nil)
	assert.Contains(t, buf.String(), "shown")
}
