package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuild_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := Build(&buf, "json", "warn")

	logger.Info("hidden")
	logger.Warn("Tick retry scheduled", "battle_id", "b1")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "Tick retry scheduled", line["msg"])
	assert.Equal(t, "b1", line["battle_id"])
}

func TestBuild_TextDefaultLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := Build(&buf, "", "")

	logger.Debug("hidden")
	assert.Empty(t, buf.String())
	logger.Info("shown")
	assert.Contains(t, buf.String(), "msg=shown")
}
