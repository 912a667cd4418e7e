package browser

import (
	"testing"

	"github.com/entrhq/askweb/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPipeline(t *testing.T) {
	p, err := NewPipeline(config.DefaultConfig(), nil, testLogger())
	require.NoError(t, err)
	defer p.Manager.Shutdown()

	assert.Same(t, p.Manager, p.Searcher.sessions)
	assert.Same(t, p.Recovery, p.Searcher.recovery)
	assert.Same(t, p.Manager, p.Recovery.target)
	assert.IsType(t, nopRecorder{}, p.Searcher.metrics)
}

func TestNewPipelineRejectsInvalidConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Search.MaxAttempts = 0

	_, err := NewPipeline(cfg, nil, testLogger())
	assert.ErrorContains(t, err, "max_attempts")
}
