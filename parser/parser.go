// Package parser turns free-form model output into at most one tool
// invocation.
//
// The accepted syntax is a tagged block named after a tool, holding one
// tagged block per argument:
//
//	<shell>
//	<command>ls -la</command>
//	</shell>
//
// Parse never fails with a Go error. Input that is not a well-formed block
// yields a Failure value carrying a reason that can be shown to the model.
package parser

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"
)

// Shape describes the arguments a tool block may carry.
type Shape struct {
	Name     string
	Params   []string
	Required []string
}

// Result is one of Action, PlainThought or Failure.
type Result interface {
	isResult()
}

// Action is a syntactically valid tool invocation. Whether the tool is
// enabled and the values have the right types is decided at dispatch.
type Action struct {
	ToolName  string
	Arguments map[string]string
	RawText   string
	// Rationale is the text around the block.
	Rationale string
}

// PlainThought is model output that contains no tool block at all.
type PlainThought struct {
	Text string
}

// Failure is a tool block that could not be parsed.
type Failure struct {
	ToolName string
	Reason   string
}

func (Action) isResult()       {}
func (PlainThought) isResult() {}
func (Failure) isResult()      {}

func (f Failure) Error() string { return f.Reason }

// String renders the action compactly, e.g. shell(command="ls").
func (a Action) String() string {
	keys := make([]string, 0, len(a.Arguments))
	for k := range a.Arguments {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%q", k, a.Arguments[k])
	}
	return fmt.Sprintf("%s(%s)", a.ToolName, strings.Join(parts, ", "))
}

type Parser struct {
	shapes map[string]Shape
}

func New(shapes ...Shape) *Parser {
	p := &Parser{shapes: make(map[string]Shape, len(shapes))}
	for _, s := range shapes {
		p.shapes[s.Name] = s
	}
	return p
}

// Parse extracts the first tool block from raw. Tags that do not name a
// known tool are treated as prose. Blocks after the first are ignored.
func (p *Parser) Parse(raw string) Result {
	start, shape, ok := p.findToolTag(raw)
	if !ok {
		return PlainThought{Text: raw}
	}

	openTag := "<" + shape.Name + ">"
	closeTag := "</" + shape.Name + ">"
	pos := start + len(openTag)
	args := make(map[string]string)
	allowed := make(map[string]bool, len(shape.Params))
	for _, name := range shape.Params {
		allowed[name] = true
	}

	for {
		pos = skipSpace(raw, pos)
		if pos >= len(raw) {
			return Failure{ToolName: shape.Name, Reason: fmt.Sprintf("unbalanced block: %s is never closed with %s", openTag, closeTag)}
		}
		if strings.HasPrefix(raw[pos:], closeTag) {
			pos += len(closeTag)
			break
		}
		if raw[pos] != '<' {
			return Failure{ToolName: shape.Name, Reason: fmt.Sprintf("unexpected text %q inside %s; only argument blocks are allowed", excerpt(raw[pos:]), openTag)}
		}
		name, valueStart, ok := readOpenTag(raw, pos)
		if !ok {
			return Failure{ToolName: shape.Name, Reason: fmt.Sprintf("malformed tag %q inside %s", excerpt(raw[pos:]), openTag)}
		}
		if !allowed[name] {
			return Failure{ToolName: shape.Name, Reason: fmt.Sprintf("%s does not take an argument named <%s>; expected one of %s", shape.Name, name, strings.Join(shape.Params, ", "))}
		}
		if _, dup := args[name]; dup {
			return Failure{ToolName: shape.Name, Reason: fmt.Sprintf("argument <%s> given more than once", name)}
		}
		argClose := "</" + name + ">"
		end := strings.Index(raw[valueStart:], argClose)
		if end < 0 {
			return Failure{ToolName: shape.Name, Reason: fmt.Sprintf("unbalanced block: argument <%s> is never closed with %s", name, argClose)}
		}
		args[name] = trimValue(raw[valueStart : valueStart+end])
		pos = valueStart + end + len(argClose)
	}

	var missing []string
	for _, name := range shape.Required {
		if _, ok := args[name]; !ok {
			missing = append(missing, "<"+name+">")
		}
	}
	if len(missing) > 0 {
		return Failure{ToolName: shape.Name, Reason: fmt.Sprintf("%s is missing required argument(s) %s", shape.Name, strings.Join(missing, ", "))}
	}

	return Action{
		ToolName:  shape.Name,
		Arguments: args,
		RawText:   raw[start:pos],
		Rationale: joinNonEmpty(strings.TrimSpace(raw[:start]), strings.TrimSpace(raw[pos:])),
	}
}

// findToolTag returns the offset of the first "<name>" where name is a known
// tool.
func (p *Parser) findToolTag(raw string) (int, Shape, bool) {
	for i := 0; i < len(raw); i++ {
		if raw[i] != '<' {
			continue
		}
		name, _, ok := readOpenTag(raw, i)
		if !ok {
			continue
		}
		if shape, known := p.shapes[name]; known {
			return i, shape, true
		}
	}
	return 0, Shape{}, false
}

// readOpenTag reads "<name>" at pos and returns the name and the offset just
// past '>'.
func readOpenTag(raw string, pos int) (string, int, bool) {
	if pos >= len(raw) || raw[pos] != '<' {
		return "", 0, false
	}
	i := pos + 1
	for i < len(raw) && isNameByte(raw[i]) {
		i++
	}
	if i == pos+1 || i >= len(raw) || raw[i] != '>' {
		return "", 0, false
	}
	return raw[pos+1 : i], i + 1, true
}

func isNameByte(c byte) bool {
	return c == '_' || c == '-' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

func skipSpace(s string, pos int) int {
	for pos < len(s) {
		switch s[pos] {
		case ' ', '\t', '\n', '\r':
			pos++
		default:
			return pos
		}
	}
	return pos
}

// trimValue drops a single newline directly after the opening tag and before
// the closing tag, so multi-line values can sit on their own lines.
func trimValue(v string) string {
	v = strings.TrimPrefix(v, "\r\n")
	v = strings.TrimPrefix(v, "\n")
	if strings.HasSuffix(v, "\r\n") {
		return v[:len(v)-2]
	}
	return strings.TrimSuffix(v, "\n")
}

// excerpt shortens s to at most 40 bytes without splitting a rune.
func excerpt(s string) string {
	const max = 40
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

func joinNonEmpty(parts ...string) string {
	var kept []string
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "\n")
}
