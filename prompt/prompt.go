// Package prompt turns the context log into the message list sent to the
// model. The system preamble describes the environment and every enabled tool
// together with a usage example in the exact syntax the parser accepts.
package prompt

import (
	_ "embed"
	"runtime"
	"strings"
	"text/template"

	"github.com/m4xw311/superagent/errors"
	"github.com/m4xw311/superagent/history"
	"github.com/m4xw311/superagent/llm"
	"github.com/m4xw311/superagent/parser"
	"github.com/m4xw311/superagent/tools"
)

//go:embed system.tmpl
var systemTemplate string

var tmpl = template.Must(template.New("system").Parse(systemTemplate))

type toolDoc struct {
	Name        string
	Description string
	Params      []tools.Param
	Example     string
}

type preamble struct {
	OS      string
	Shell   string
	WorkDir string
	Tools   []toolDoc
}

type Builder struct {
	system string
}

// New renders the preamble once; it does not change during a run.
func New(workDir, shell string, available []tools.Tool) (*Builder, error) {
	data := preamble{
		OS:      runtime.GOOS,
		Shell:   shell,
		WorkDir: workDir,
	}
	for _, t := range available {
		data.Tools = append(data.Tools, toolDoc{
			Name:        t.Name(),
			Description: t.Description(),
			Params:      t.Schema(),
			Example:     Example(t),
		})
	}

	var b strings.Builder
	if err := tmpl.Execute(&b, data); err != nil {
		return nil, errors.Wrapf(err, "failed to render system prompt")
	}
	return &Builder{system: b.String()}, nil
}

// System returns the rendered preamble.
func (b *Builder) System() string {
	return b.system
}

// Example renders a call of t with placeholder values for each argument.
func Example(t tools.Tool) string {
	schema := t.Schema()
	params := make([]string, 0, len(schema))
	args := make(map[string]string, len(schema))
	for _, p := range schema {
		params = append(params, p.Name)
		switch p.Type {
		case tools.TypeBool:
			args[p.Name] = "true or false"
		case tools.TypeInt:
			args[p.Name] = "number"
		default:
			args[p.Name] = p.Name + " here"
		}
	}
	return parser.Format(t.Name(), params, args)
}

// Build maps rendered entries to chat messages. Thoughts become assistant
// turns and everything the agent observed becomes a user turn; Action
// entries are bookkeeping only, since the thought already contains the call.
// Consecutive messages with the same role are merged so providers that
// require alternating roles accept the list.
func (b *Builder) Build(entries []history.Entry) []llm.Message {
	var out []llm.Message
	for _, e := range entries {
		var msg llm.Message
		switch e.Role {
		case history.RoleSystem:
			msg = llm.Message{Role: llm.RoleSystem, Content: e.Content}
		case history.RoleTask:
			msg = llm.Message{Role: llm.RoleUser, Content: "Task:\n" + e.Content}
		case history.RoleThought:
			msg = llm.Message{Role: llm.RoleAssistant, Content: e.Content}
		case history.RoleObservation:
			msg = llm.Message{Role: llm.RoleUser, Content: observation(e)}
		default:
			continue
		}

		if n := len(out); n > 0 && out[n-1].Role == msg.Role {
			out[n-1].Content += "\n\n" + msg.Content
			continue
		}
		out = append(out, msg)
	}
	return out
}

func observation(e history.Entry) string {
	if e.ToolName == "" {
		return e.Content
	}
	return "Result of " + e.ToolName + ":\n" + e.Content
}
