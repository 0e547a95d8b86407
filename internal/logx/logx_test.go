package logx

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitDefaultsToInfoOnUnknownLevel(t *testing.T) {
	Init("not-a-level", false)
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}

func TestInitParsesExplicitLevel(t *testing.T) {
	Init("debug", false)
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())
	Init("info", false)
}

func TestWithComponentTagsLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf).With().Str("component", "controller").Logger()
	logger.Info().Msg("hello")

	require.Contains(t, buf.String(), `"component":"controller"`)
	require.Contains(t, buf.String(), `"message":"hello"`)
}
