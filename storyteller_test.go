package main

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func storytellerLines(env *testEnv, gameID string) []string {
	msgs, err := getChatMessages(db, gameID)
	require.NoError(env.t, err)
	var lines []string
	for _, m := range msgs {
		if m.SenderName == storytellerSenderName {
			lines = append(lines, m.Content)
		}
	}
	return lines
}

func TestStorytellerNarratesNightKill(t *testing.T) {
	env := newTestEnv(t)
	teller := &mockStoryteller{story: "  The fog swallowed P4 whole.  "}
	globalStoryteller = teller

	gameID, p := env.startWithRoles(RoleWolf, RoleSeer, RoleDoctor, RoleVillager, RoleVillager, RoleVillager)
	env.act(gameID, p[0], ActionKill, p[3])
	env.endPhase(gameID)
	storiesInFlight.Wait()

	assert.Equal(t, []string{"The fog swallowed P4 whole."}, storytellerLines(env, gameID))

	calls := teller.calls()
	require.Len(t, calls, 1)
	history := calls[0]
	require.NotEmpty(t, history)
	assert.Equal(t, "Turn 1: P4 was killed by the wolves during the night.", history[len(history)-1])
	for _, line := range history {
		assert.NotContains(t, line, string(RoleVillager), "the record never names roles")
	}
}

func TestStorytellerSilentNight(t *testing.T) {
	env := newTestEnv(t)
	teller := &mockStoryteller{story: "unused"}
	globalStoryteller = teller

	gameID, _ := env.startWithRoles(RoleWolf, RoleSeer, RoleDoctor, RoleVillager, RoleVillager)
	env.endPhase(gameID)
	storiesInFlight.Wait()

	assert.Empty(t, teller.calls(), "nobody died, nothing to tell")
}

func TestStorytellerFailureIsQuiet(t *testing.T) {
	env := newTestEnv(t)
	globalStoryteller = &mockStoryteller{err: errors.New("model overloaded")}

	gameID, p := env.startWithRoles(RoleWolf, RoleSeer, RoleDoctor, RoleVillager, RoleVillager, RoleVillager)
	env.act(gameID, p[0], ActionKill, p[3])
	env.endPhase(gameID)
	storiesInFlight.Wait()

	assert.Empty(t, storytellerLines(env, gameID))
	assert.Equal(t, PhaseDay, env.game(gameID).Phase, "the game never waits on the storyteller")
}

func TestNewStorytellerModel(t *testing.T) {
	llm, err := newStorytellerModel(AppConfig{})
	assert.NoError(t, err)
	assert.Nil(t, llm, "no provider disables the storyteller")

	_, err = newStorytellerModel(AppConfig{StorytellerProvider: "parrot"})
	assert.Error(t, err)

	_, err = newStorytellerModel(AppConfig{StorytellerProvider: "openai-compatible", StorytellerModel: "m"})
	assert.Error(t, err, "openai-compatible needs a base URL")

	llm, err = newStorytellerModel(AppConfig{
		StorytellerProvider:  "ollama",
		StorytellerModel:     "llama3",
		StorytellerOllamaURL: "http://localhost:11434",
	})
	require.NoError(t, err)
	assert.NotNil(t, llm)
}

func TestBuildCallOpts(t *testing.T) {
	assert.Empty(t, buildCallOpts(AppConfig{}))
	assert.Len(t, buildCallOpts(AppConfig{StorytellerTemperature: "0.4"}), 1)
	assert.Len(t, buildCallOpts(AppConfig{StorytellerTemperature: "0.4", StorytellerThinking: "low"}), 2)
	assert.Empty(t, buildCallOpts(AppConfig{StorytellerTemperature: "warm", StorytellerThinking: "deep"}))
}

func TestStorytellerHTTPClientLogsProviderTraffic(t *testing.T) {
	prev := appLogger
	t.Cleanup(func() { appLogger = prev })

	appLogger = &AppLogger{}
	assert.Same(t, http.DefaultClient, storytellerHTTPClient(), "no request log, no wrapping")

	dir := t.TempDir()
	logger, err := NewAppLogger(LogConfig{OutputDir: dir, LogRequests: true})
	require.NoError(t, err)
	defer logger.Close()
	appLogger = logger

	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"story":"ok"}`))
	}))
	defer provider.Close()

	client := storytellerHTTPClient()
	require.IsType(t, &LoggingRoundTripper{}, client.Transport)
	resp, err := client.Post(provider.URL+"/v1/chat/completions", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()

	logged, err := os.ReadFile(filepath.Join(dir, "requests.log"))
	require.NoError(t, err)
	assert.Contains(t, string(logged), "POST "+provider.URL+"/v1/chat/completions")
	assert.Contains(t, string(logged), `{"story":"ok"}`)
}
