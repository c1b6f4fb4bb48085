package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWriterComponentFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(&buf).Component("selector")
	l.Warn("selection publish failed", String("selection_id", "sel_1"), Error(errors.New("kafka down")))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "selection publish failed", entry["message"])
	assert.Equal(t, "selector", entry["component"])
	assert.Equal(t, "sel_1", entry["selection_id"])
	assert.Equal(t, "kafka down", entry["error"])
}
