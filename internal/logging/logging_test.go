package logging

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/douglaslinsmeyer/carol-query-engine/internal/config"
)

func TestNew_ParsesConfiguredLevel(t *testing.T) {
	cfg := &config.Config{LogLevel: "warn", LogFormat: "json"}
	logger := New(cfg)
	assert.Equal(t, zerolog.WarnLevel, logger.GetLevel())
}

func TestNew_FallsBackToInfoOnBadLevel(t *testing.T) {
	cfg := &config.Config{LogLevel: "not-a-level", LogFormat: "console"}
	logger := New(cfg)
	assert.Equal(t, zerolog.InfoLevel, logger.GetLevel())
}
