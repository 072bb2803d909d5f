package parser

import "strings"

// Format renders a tool block in the syntax Parse accepts. Arguments are
// written in the order given by params; params without a value are skipped.
func Format(tool string, params []string, args map[string]string) string {
	var b strings.Builder
	b.WriteString("<" + tool + ">\n")
	for _, p := range params {
		v, ok := args[p]
		if !ok {
			continue
		}
		b.WriteString("<" + p + ">" + v + "</" + p + ">\n")
	}
	b.WriteString("</" + tool + ">")
	return b.String()
}
