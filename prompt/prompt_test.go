package prompt

import (
	"strings"
	"testing"

	"github.com/m4xw311/superagent/history"
	"github.com/m4xw311/superagent/llm"
	"github.com/m4xw311/superagent/parser"
	"github.com/m4xw311/superagent/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSystemListsToolsWithParsableExamples(t *testing.T) {
	builtins := tools.Builtins(tools.Deps{})
	b, err := New("/work", "bash", builtins)
	require.NoError(t, err)

	sys := b.System()
	assert.Contains(t, sys, "/work")
	p := parser.New(tools.BuiltinShapes()...)
	for _, tool := range builtins {
		assert.Contains(t, sys, "## "+tool.Name())

		example := Example(tool)
		assert.Contains(t, sys, example)
		action, ok := p.Parse(example).(parser.Action)
		require.True(t, ok, "example for %s does not parse: %s", tool.Name(), example)
		assert.Equal(t, tool.Name(), action.ToolName)
	}
}

func TestSystemOnlyListsGivenTools(t *testing.T) {
	var shell tools.Tool
	for _, tool := range tools.Builtins(tools.Deps{}) {
		if tool.Name() == "shell" {
			shell = tool
		}
	}
	b, err := New("/work", "bash", []tools.Tool{shell})
	require.NoError(t, err)
	assert.Contains(t, b.System(), "## shell")
	assert.NotContains(t, b.System(), "## read_file")
}

func TestBuildMapsRoles(t *testing.T) {
	b := &Builder{system: "sys"}
	entries := []history.Entry{
		{Role: history.RoleSystem, Content: "sys"},
		{Role: history.RoleTask, Content: "fix the build"},
		{Role: history.RoleThought, Content: "<shell><command>make</command></shell>"},
		{Role: history.RoleAction, Content: `shell(command="make")`, ToolName: "shell"},
		{Role: history.RoleObservation, Content: "Exit status: 0", ToolName: "shell"},
		{Role: history.RoleThought, Content: "done?"},
	}

	msgs := b.Build(entries)
	require.Len(t, msgs, 5)
	assert.Equal(t, llm.Message{Role: llm.RoleSystem, Content: "sys"}, msgs[0])
	assert.Equal(t, llm.RoleUser, msgs[1].Role)
	assert.Equal(t, "Task:\nfix the build", msgs[1].Content)
	assert.Equal(t, llm.RoleAssistant, msgs[2].Role)
	assert.Equal(t, "Result of shell:\nExit status: 0", msgs[3].Content)
	assert.Equal(t, llm.RoleAssistant, msgs[4].Role)
	for _, m := range msgs {
		assert.NotContains(t, m.Content, `shell(command="make")`)
	}
}

func TestBuildMergesConsecutiveRoles(t *testing.T) {
	b := &Builder{}
	msgs := b.Build([]history.Entry{
		{Role: history.RoleTask, Content: "task"},
		{Role: history.RoleObservation, Content: "first"},
		{Role: history.RoleObservation, Content: "second"},
	})
	require.Len(t, msgs, 1)
	assert.Equal(t, llm.RoleUser, msgs[0].Role)
	assert.True(t, strings.HasSuffix(msgs[0].Content, "first\n\nsecond"))
}
