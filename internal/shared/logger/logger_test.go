package logger

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ytdlp_proxy/internal/shared/types"
)

func resetLogger(t *testing.T) {
	t.Cleanup(func() {
		_ = Init(types.LogConf{Level: "info"})
	})
}

func TestWithComponent_TagsOutput(t *testing.T) {
	resetLogger(t)
	var buf bytes.Buffer
	require.NoError(t, InitWithWriter(types.LogConf{Level: "info", NoColor: true}, &buf))

	l := WithComponent("ProxyPool/Storage")
	l.Info().Int("count", 3).Msg("Saved proxies to file.")

	out := buf.String()
	assert.Contains(t, out, "Saved proxies to file.")
	assert.Contains(t, out, "component=ProxyPool/Storage")
	assert.Contains(t, out, "count=3")
}

func TestInitWithWriter_Level(t *testing.T) {
	resetLogger(t)
	var buf bytes.Buffer
	require.NoError(t, InitWithWriter(types.LogConf{Level: "warn", NoColor: true}, &buf))

	l := WithComponent("Runner")
	l.Info().Msg("hidden")
	l.Warn().Msg("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestInitWithWriter_UnknownLevelFallsBackToInfo(t *testing.T) {
	resetLogger(t)
	var buf bytes.Buffer
	require.NoError(t, InitWithWriter(types.LogConf{Level: "loud", NoColor: true}, &buf))

	l := WithComponent("Runner")
	l.Debug().Msg("debug line")
	l.Info().Msg("info line")

	assert.NotContains(t, buf.String(), "debug line")
	assert.Contains(t, buf.String(), "info line")
}
