package tools

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/m4xw311/superagent/config"
	"github.com/m4xw311/superagent/errors"
	"github.com/m4xw311/superagent/parser"
)

// Kind is the closed set of capability classes a tool can belong to.
type Kind int

const (
	KindFile Kind = iota
	KindShell
	KindTerminal
	KindBrowser
	KindAskUser
	KindCompletion
)

func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindShell:
		return "shell"
	case KindTerminal:
		return "terminal"
	case KindBrowser:
		return "browser"
	case KindAskUser:
		return "ask_user"
	case KindCompletion:
		return "completion"
	}
	return "unknown"
}

type ParamType int

const (
	TypeString ParamType = iota
	TypeBool
	TypeInt
)

func (t ParamType) String() string {
	switch t {
	case TypeBool:
		return "boolean"
	case TypeInt:
		return "integer"
	}
	return "string"
}

type Param struct {
	Name        string
	Type        ParamType
	Required    bool
	Description string
}

// Schema is the ordered list of arguments a tool accepts.
type Schema []Param

// Shape converts the schema into the grammar the response parser checks.
func (s Schema) Shape(tool string) parser.Shape {
	shape := parser.Shape{Name: tool}
	for _, p := range s {
		shape.Params = append(shape.Params, p.Name)
		if p.Required {
			shape.Required = append(shape.Required, p.Name)
		}
	}
	return shape
}

// Tool defines the interface for any action the agent can take.
type Tool interface {
	Name() string
	Kind() Kind
	Description() string
	Schema() Schema
	// Invoke runs the tool. Arguments have already been validated against
	// Schema. Failures are reported through the Result, never panics.
	Invoke(ctx context.Context, args Args) Result
}

// Args holds validated string arguments with typed accessors.
type Args map[string]string

func (a Args) String(name string) string { return a[name] }

// Bool returns the parsed value of a boolean argument, or def when absent.
func (a Args) Bool(name string, def bool) bool {
	v, ok := a[name]
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return b
}

// Int returns the parsed value of an integer argument, or def when absent.
func (a Args) Int(name string, def int) int {
	v, ok := a[name]
	if !ok {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return n
}

// Registry holds the tools enabled for one run.
type Registry struct {
	tools  map[string]Tool
	order  []string
	logger *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{tools: make(map[string]Tool), logger: logger}
}

// NewToolRegistry registers the built-in tools named by the toolset. "*"
// enables every built-in tool.
func NewToolRegistry(ts *config.Toolset, deps Deps, logger *slog.Logger) (*Registry, error) {
	r := NewRegistry(logger)
	active, err := activeTools(ts, Builtins(deps))
	if err != nil {
		return nil, err
	}
	for _, t := range active {
		r.Register(t)
	}
	return r, nil
}

func (r *Registry) Register(t Tool) {
	if _, exists := r.tools[t.Name()]; !exists {
		r.order = append(r.order, t.Name())
	}
	r.tools[t.Name()] = t
}

func (r *Registry) GetTool(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Tools returns the registered tools in registration order.
func (r *Registry) Tools() []Tool {
	out := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

// Dispatch validates the action against the named tool's schema and invokes
// it. Unknown tools and schema violations never reach the tool body.
func (r *Registry) Dispatch(ctx context.Context, action parser.Action) Result {
	t, ok := r.tools[action.ToolName]
	if !ok {
		return Failf(InvalidArguments, "tool %q is not available; available tools: %s", action.ToolName, strings.Join(r.order, ", "))
	}
	if err := validate(t.Schema(), action.Arguments); err != nil {
		return Failf(InvalidArguments, "invalid arguments for %s: %v", t.Name(), err)
	}

	start := time.Now()
	result := t.Invoke(ctx, Args(action.Arguments))
	result.Output = ScrubCredentials(result.Output)

	r.logger.Debug("tool executed",
		"tool", t.Name(),
		"ok", result.OK,
		"error_kind", result.Error.String(),
		"duration_ms", time.Since(start).Milliseconds(),
		"output_len", len(result.Output),
	)
	return result
}

func validate(schema Schema, args map[string]string) error {
	known := make(map[string]Param, len(schema))
	for _, p := range schema {
		known[p.Name] = p
	}
	for name := range args {
		if _, ok := known[name]; !ok {
			return fmt.Errorf("unknown argument %q", name)
		}
	}
	for _, p := range schema {
		v, present := args[p.Name]
		if !present {
			if p.Required {
				return fmt.Errorf("missing required argument %q", p.Name)
			}
			continue
		}
		switch p.Type {
		case TypeBool:
			if _, err := strconv.ParseBool(strings.TrimSpace(v)); err != nil {
				return fmt.Errorf("argument %q must be true or false, got %q", p.Name, v)
			}
		case TypeInt:
			if _, err := strconv.Atoi(strings.TrimSpace(v)); err != nil {
				return fmt.Errorf("argument %q must be an integer, got %q", p.Name, v)
			}
		case TypeString:
			if p.Required && strings.TrimSpace(v) == "" {
				return fmt.Errorf("argument %q must not be empty", p.Name)
			}
		}
	}
	return nil
}

// activeTools returns the tool instances for a given toolset.
func activeTools(ts *config.Toolset, builtins []Tool) ([]Tool, error) {
	byName := make(map[string]Tool, len(builtins))
	for _, t := range builtins {
		byName[t.Name()] = t
	}

	var active []Tool
	seen := make(map[string]bool)
	for _, toolName := range ts.Tools {
		if toolName == "*" {
			for _, t := range builtins {
				if !seen[t.Name()] {
					seen[t.Name()] = true
					active = append(active, t)
				}
			}
			continue
		}
		t, ok := byName[toolName]
		if !ok {
			return nil, errors.New("tool '%s' from toolset '%s' is not a built-in tool", toolName, ts.Name)
		}
		if !seen[toolName] {
			seen[toolName] = true
			active = append(active, t)
		}
	}
	return active, nil
}

// isPathRestricted checks if a path matches any of the glob patterns.
func isPathRestricted(path string, patterns []string) (bool, error) {
	for _, pattern := range patterns {
		match, err := doublestar.PathMatch(pattern, path)
		if err != nil {
			return false, errors.Wrapf(err, "invalid glob pattern '%s'", pattern)
		}
		if match {
			return true, nil
		}
	}
	return false, nil
}
