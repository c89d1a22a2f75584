package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentrelay"
	"github.com/hupe1980/agentrelay/backend"
	"github.com/hupe1980/agentrelay/internal/testutil"
	"github.com/hupe1980/agentrelay/logging"
	"github.com/hupe1980/agentrelay/tool"
)

func TestVersion(t *testing.T) {
	stdout, _, err := executeCLI(t, nil, "", "version")
	require.NoError(t, err)
	assert.Equal(t, "dev\n", stdout)
}

func TestModels(t *testing.T) {
	dir := writeFixture(t)

	stdout, _, err := executeCLI(t, nil, "", "models", "--models", filepath.Join(dir, "models.yaml"))
	require.NoError(t, err)
	assert.Contains(t, stdout, "Models")
	assert.Contains(t, stdout, "count: 2")
	assert.Contains(t, stdout, "backend: local (mock, max loaded 1)")
	assert.Contains(t, stdout, "key: qwen-7b")
}

func TestModelsJSONOutput(t *testing.T) {
	dir := writeFixture(t)

	stdout, _, err := executeCLI(t, nil, "", "models", "--json", "--models", filepath.Join(dir, "models.yaml"))
	require.NoError(t, err)
	var models []modelView
	require.NoError(t, json.Unmarshal([]byte(stdout), &models))
	require.Len(t, models, 2)
	assert.Equal(t, "m-hermes", models[0].ID)
	assert.Equal(t, "mock", models[0].Kind)
	assert.Equal(t, 4096, models[1].ContextLength)
}

func TestAgents(t *testing.T) {
	dir := writeFixture(t)

	stdout, _, err := executeCLI(t, nil, "", "agents", "--agents", filepath.Join(dir, "agents.yaml"))
	require.NoError(t, err)
	assert.Contains(t, stdout, "count: 2")
	assert.Contains(t, stdout, "Zeus")
	assert.Contains(t, stdout, "tools: "+tool.ReadFileName)
	assert.Contains(t, stdout, "entry agent")

	stdout, _, err = executeCLI(t, nil, "", "agents", "--json", "--agents", filepath.Join(dir, "agents.yaml"))
	require.NoError(t, err)
	var agents []agentView
	require.NoError(t, json.Unmarshal([]byte(stdout), &agents))
	require.Len(t, agents, 2)
	assert.Equal(t, "Hermes", agents[0].Name)
	assert.Equal(t, []string{}, agents[0].Tools)
	assert.Equal(t, "Coordinator", agents[1].Description)
	assert.False(t, agents[1].Refinement)
}

func TestTools(t *testing.T) {
	stdout, _, err := executeCLI(t, nil, "", "tools", "--json")
	require.NoError(t, err)
	var tools []toolView
	require.NoError(t, json.Unmarshal([]byte(stdout), &tools))
	names := make([]string, 0, len(tools))
	for _, tv := range tools {
		names = append(names, tv.Name)
	}
	assert.Contains(t, names, tool.ExecuteCommandName)
	assert.Contains(t, names, tool.AvailableModelsName)
}

func TestChat(t *testing.T) {
	dir := writeFixture(t)
	mock := backend.NewMockClient()
	mock.Enqueue("m-zeus", testutil.DelegateReply("Hermes", "Zeus", "greet the operator"))
	mock.Enqueue("m-hermes", testutil.NormalReply("hello operator"))

	stdout, _, err := executeCLI(t, mock, "hello\nquit\n", fixtureFlags(dir)...)
	require.NoError(t, err)
	assert.Contains(t, stdout, "agentrelay dev")
	assert.Contains(t, stdout, "[Zeus ")
	assert.Contains(t, stdout, "Hermes: hello operator")
	assert.Contains(t, stdout, "[Hermes ")
	assert.Equal(t, []string{"m-zeus", "m-hermes"}, mock.Unloads())
}

func TestChatEndOfInput(t *testing.T) {
	dir := writeFixture(t)
	mock := backend.NewMockClient()

	stdout, _, err := executeCLI(t, mock, "", append([]string{"chat"}, fixtureFlags(dir)...)...)
	require.NoError(t, err)
	assert.Contains(t, stdout, "End of input received. quitting...")
}

func TestChatReportsTurnErrors(t *testing.T) {
	dir := writeFixture(t)
	mock := backend.NewMockClient()
	mock.Enqueue("m-zeus", testutil.DelegateReply("Zeus", "Zeus", "loop"), testutil.DelegateReply("Zeus", "Zeus", "loop"))

	args := append(fixtureFlags(dir), "--max-steps", "2")
	stdout, _, err := executeCLI(t, mock, "go\nq\n", args...)
	require.NoError(t, err)
	assert.Contains(t, stdout, "An error occurred:")
	assert.Contains(t, stdout, "Recovering...")
}

func TestChatShutdownWaitsForRunningTurn(t *testing.T) {
	dir := writeFixture(t)
	mock := backend.NewMockClient()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var unloadsDuringTurn []string
	mock.SetResponder(func(string, backend.Prompt, backend.InferenceConfig) (string, error) {
		cancel()
		time.Sleep(100 * time.Millisecond)
		unloadsDuringTurn = mock.Unloads()
		return testutil.DelegateReply("Hermes", "Zeus", "too late"), nil
	})

	stdout, _, err := executeCLIContext(t, ctx, mock, "work\n", fixtureFlags(dir)...)
	require.NoError(t, err)
	assert.Contains(t, stdout, "agentrelay dev")
	assert.Empty(t, unloadsDuringTurn)
	assert.Equal(t, []string{"m-zeus"}, mock.Loads())
	assert.Equal(t, []string{"m-zeus"}, mock.Unloads())
}

func TestChatStartupError(t *testing.T) {
	dir := writeFixture(t)
	_, _, err := executeCLI(t, nil, "", append(fixtureFlags(dir), "--entry", "Athena")...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "start relay")
}

func executeCLI(t *testing.T, mock *backend.MockClient, stdin string, args ...string) (string, string, error) {
	t.Helper()
	return executeCLIContext(t, context.Background(), mock, stdin, args...)
}

func executeCLIContext(t *testing.T, ctx context.Context, mock *backend.MockClient, stdin string, args ...string) (string, string, error) {
	t.Helper()
	wd, wdErr := os.Getwd()
	require.NoError(t, wdErr)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	root := newRootCmd(deps{factories: func(logger logging.Logger) *backend.Factories {
		return agentrelay.DefaultFactories(logger, mock)
	}})
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	root.SetIn(strings.NewReader(stdin))
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	return stdout.String(), stderr.String(), err
}

func fixtureFlags(dir string) []string {
	return []string{
		"--models", filepath.Join(dir, "models.yaml"),
		"--agents", filepath.Join(dir, "agents.yaml"),
		"--prompts", filepath.Join(dir, "prompts"),
		"--workdir", dir,
		"--log-level", "error",
	}
}

func writeFixture(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"models.yaml": `
backends:
  local:
    kind: mock
    max_loaded_models: 1
models:
  m-zeus:
    backend: local
    key: qwen-7b
    context_length: 4096
  m-hermes:
    backend: local
    context_length: 2048
`,
		"agents.yaml": `
agents:
  Zeus:
    model: m-zeus
    description: Coordinator
    prompts: [zeus.md]
    tools: [file_tools.read_file]
    inference_config: {max_tokens: 256, temperature: 0.2}
    summarization_config: {summarization_threshold: 0.65, char_to_token_ratio: 4, percentage_to_summarize: 0.4}
  Hermes:
    model: m-hermes
    prompts: [hermes.md]
    inference_config: {max_tokens: 256, temperature: 0.2}
    summarization_config: {summarization_threshold: 0.65, char_to_token_ratio: 4, percentage_to_summarize: 0.4}
`,
		"prompts/zeus.md":   "You are {{.name}}.",
		"prompts/hermes.md": "You are {{.name}}.",
	}
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return dir
}
