package logging

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jsherman999/sentryhub/internal/config"
)

func TestNewRespectsLevel(t *testing.T) {
	cfg := config.Default()
	cfg.Log.Level = "warn"

	var buf bytes.Buffer
	log := NewWithWriter(cfg, &buf)
	log.Info().Msg("hidden")
	assert.Zero(t, buf.Len())

	log.Warn().Msg("shown")
	assert.Contains(t, buf.String(), `"message":"shown"`)
}

func TestNewFallsBackToInfo(t *testing.T) {
	cfg := config.Default()
	cfg.Log.Level = "chatty"

	var buf bytes.Buffer
	log := NewWithWriter(cfg, &buf)
	log.Debug().Msg("hidden")
	log.Info().Msg("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestComponentTagsLines(t *testing.T) {
	var buf bytes.Buffer
	log := Component(NewWithWriter(config.Default(), &buf), "hub")
	log.Info().Msg("x")
	assert.Contains(t, buf.String(), `"component":"hub"`)
}
