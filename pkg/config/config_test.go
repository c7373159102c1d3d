package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	app := writeFile(t, dir, "config.json", `{
		"llm": [{"type": "openai", "models": ["gpt-4o-mini"]}],
		"channels": {"web": {"port": 8080}},
		"system_prompt": "Be helpful.",
		"agent_name": "helper"
	}`)
	sys := writeFile(t, dir, "system.json", `{"max_tool_turns": 2, "allow_format_str_template": true}`)

	cfg, sysCfg, err := Load(app, sys)
	require.NoError(t, err)

	assert.Equal(t, "Be helpful.", cfg.SystemPrompt)
	assert.Equal(t, "helper", cfg.AgentName)
	assert.Contains(t, cfg.Channels, "web")

	assert.Equal(t, 2, sysCfg.MaxToolTurns)
	assert.True(t, sysCfg.AllowFormatStrTemplate)
	assert.Equal(t, 3, sysCfg.MaxRetries, "unset fields keep defaults")
	assert.Equal(t, "http://localhost:11434", sysCfg.OllamaDefaultURL)
}

func TestLoadAppConfigErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadAppConfig(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)

	_, err = LoadAppConfig(writeFile(t, dir, "broken.json", `{"llm":`))
	assert.Error(t, err)

	_, err = LoadAppConfig(writeFile(t, dir, "nollm.json", `{"system_prompt":"x"}`))
	assert.ErrorContains(t, err, "llm")
}

func TestLoadSystemConfigFallsBack(t *testing.T) {
	dir := t.TempDir()

	assert.Equal(t, DefaultSystemConfig(), LoadSystemConfig(filepath.Join(dir, "missing.json")))
	assert.Equal(t, DefaultSystemConfig(), LoadSystemConfig(writeFile(t, dir, "bad.json", `not json`)))
}

func TestWatchConfig(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.json", `{}`)
	writeFile(t, dir, "other.json", `{}`)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := WatchConfig(ctx, 50*time.Millisecond, path)

	// several quick writes collapse into a single notification
	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(path, []byte(`{"n":1}`), 0644))
	}
	writeFile(t, dir, "other.json", `{"ignored":true}`)

	abs, err := filepath.Abs(path)
	require.NoError(t, err)

	select {
	case got := <-ch:
		assert.Equal(t, abs, got)
	case <-time.After(5 * time.Second):
		t.Fatal("no reload notification")
	}

	select {
	case got, ok := <-ch:
		if ok {
			t.Fatalf("unexpected extra notification for %s", got)
		}
	case <-time.After(300 * time.Millisecond):
	}

	cancel()
	select {
	case _, ok := <-ch:
		assert.False(t, ok, "channel closes after cancel")
	case <-time.After(5 * time.Second):
		t.Fatal("channel not closed after cancel")
	}
}
