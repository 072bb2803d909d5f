package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/m4xw311/superagent/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

// scriptedRun writes a config selecting the scripted LLM and replays replies.
func scriptedRun(t *testing.T, opts runOptions, replies string) (int, string, string) {
	t.Helper()
	tmp := t.TempDir()
	work := filepath.Join(tmp, "work")
	require.NoError(t, os.Mkdir(work, 0755))

	cfgPath := filepath.Join(tmp, "config.yaml")
	writeFile(t, cfgPath, "llm: scripted\nagent:\n  max_iterations: 3\n")
	scriptPath := filepath.Join(tmp, "script.yaml")
	writeFile(t, scriptPath, replies)
	t.Setenv(llm.ScriptEnv, scriptPath)

	opts.configPath = cfgPath
	opts.dir = work
	opts.logLevel = "error"
	if opts.verbosity == "" {
		opts.verbosity = "info"
	}

	var out bytes.Buffer
	code, err := runTask(context.Background(), opts, "create notes.txt", &out)
	require.NoError(t, err)
	return code, work, out.String()
}

func TestRunCompletesWithScriptedModel(t *testing.T) {
	replies := `- |
  I will write the file.
  <write_to_file>
  <path>notes.txt</path>
  <contents>hello</contents>
  </write_to_file>
- |
  <attempt_completion>
  <result>notes.txt written</result>
  </attempt_completion>
`
	transcript := filepath.Join(t.TempDir(), "transcript.json")
	code, work, out := scriptedRun(t, runOptions{transcript: transcript}, replies)

	assert.Equal(t, 0, code)
	assert.Contains(t, out, "Task completed")
	assert.Contains(t, out, "notes.txt written")

	data, err := os.ReadFile(filepath.Join(work, "notes.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	raw, err := os.ReadFile(transcript)
	require.NoError(t, err)
	var decoded struct {
		Entries []map[string]any `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.NotEmpty(t, decoded.Entries)
}

func TestRunAbortsAtIterationCeiling(t *testing.T) {
	code, _, out := scriptedRun(t, runOptions{}, "- thinking\n- still thinking\n- more thinking\n- even more\n")
	assert.Equal(t, 2, code)
	assert.Contains(t, out, "Task aborted after 3 turn(s)")
}

func TestRunFailsOnUnparsableReplies(t *testing.T) {
	bad := "- \"<write_to_file><path>x</write_to_file>\"\n"
	code, _, _ := scriptedRun(t, runOptions{maxIterations: 10}, bad+bad+bad)
	assert.Equal(t, 1, code)
}

func TestLoadConfigAppliesFlags(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, cfgPath, "mode: prompt\nagent:\n  max_iterations: 7\n")

	cfg, err := loadConfig(runOptions{configPath: cfgPath})
	require.NoError(t, err)
	assert.Equal(t, "prompt", cfg.Mode)
	assert.Equal(t, 7, cfg.Agent.MaxIterations)

	cfg, err = loadConfig(runOptions{configPath: cfgPath, mode: "auto", maxIterations: 12, logLevel: "debug", llm: "openai", model: "gpt-4o"})
	require.NoError(t, err)
	assert.Equal(t, "auto", cfg.Mode)
	assert.Equal(t, 12, cfg.Agent.MaxIterations)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "openai", cfg.LLMClient)
	assert.Equal(t, "gpt-4o", cfg.Model)

	_, err = loadConfig(runOptions{configPath: cfgPath, mode: "yolo"})
	assert.Error(t, err)
}

func TestResolveDir(t *testing.T) {
	dir := t.TempDir()
	got, err := resolveDir(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, got)

	file := filepath.Join(dir, "f")
	writeFile(t, file, "x")
	_, err = resolveDir(file)
	assert.Error(t, err)
	_, err = resolveDir(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestToolsCommandListsCatalogue(t *testing.T) {
	code := 0
	root := newRootCmd(&code)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"tools"})
	require.NoError(t, root.Execute())

	for _, name := range []string{"read_file", "replace_in_file", "shell", "execute_command", "browser_actions", "ask_user", "attempt_completion"} {
		assert.Contains(t, out.String(), name)
	}
	assert.Contains(t, out.String(), "<shell>\n<command>")
}

func TestRunRequiresTask(t *testing.T) {
	code := 0
	root := newRootCmd(&code)
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"run"})
	assert.Error(t, root.Execute())
}
