package utils

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, TRACE, ParseLevel("trace"))
	assert.Equal(t, WARN, ParseLevel("Warning"))
	assert.Equal(t, CRITICAL, ParseLevel(" critical "))
	assert.Equal(t, INFO, ParseLevel("nonsense"))
}

func TestLogger_LevelAndComponent(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(&buf, INFO)

	log.Debug("hidden %d", 1)
	log.With("ctrl").Info("state %s", "RUNNING")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "[INFO] ctrl: state RUNNING")

	assert.True(t, log.Enabled(WARN))
	assert.False(t, log.Enabled(DEBUG))

	verbose := NewLogger(&buf, TRACE)
	assert.True(t, verbose.Enabled(TRACE))
	verbose.Trace("now visible")
	assert.Contains(t, buf.String(), "[TRACE] now visible")
}

func TestDiscard(t *testing.T) {
	log := Discard()
	assert.False(t, log.Enabled(CRITICAL))
	log.Critical("dropped")
}
