package browser

import (
	"html"
	"net/url"
	"strings"

	xhtml "golang.org/x/net/html"
)

// ExtractText converts an HTML document into readable plain text. Input that
// does not look like HTML is returned trimmed.
func ExtractText(doc string) string {
	trimmed := strings.TrimSpace(doc)
	if trimmed == "" || !strings.Contains(trimmed, "<") {
		return trimmed
	}
	node, err := xhtml.Parse(strings.NewReader(trimmed))
	if err != nil {
		return strings.TrimSpace(html.UnescapeString(trimmed))
	}
	b := &textBuilder{}
	b.walk(node)
	return strings.TrimSpace(b.String())
}

type textBuilder struct {
	strings.Builder
	inPre bool
}

func (b *textBuilder) walk(n *xhtml.Node) {
	switch n.Type {
	case xhtml.TextNode:
		b.writeText(n.Data)
		return
	case xhtml.ElementNode:
		if skipNode(n.Data) {
			return
		}
		b.start(n.Data)
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			b.walk(c)
		}
		b.end(n.Data)
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		b.walk(c)
	}
}

func skipNode(name string) bool {
	switch strings.ToLower(name) {
	case "script", "style", "noscript", "head", "svg", "template":
		return true
	}
	return false
}

func (b *textBuilder) start(name string) {
	switch strings.ToLower(name) {
	case "h1", "h2", "h3", "h4", "h5", "h6", "p", "div", "section", "article", "header", "footer", "table", "ul", "ol", "blockquote":
		b.blankLine()
	case "pre":
		b.blankLine()
		b.inPre = true
	case "br", "tr":
		b.WriteString("\n")
	case "li":
		b.newline()
		b.WriteString("- ")
	}
}

func (b *textBuilder) end(name string) {
	switch strings.ToLower(name) {
	case "h1", "h2", "h3", "h4", "h5", "h6", "p", "div", "section", "article", "header", "footer", "table", "ul", "ol", "blockquote":
		b.newline()
	case "pre":
		b.inPre = false
		b.newline()
	}
}

func (b *textBuilder) writeText(text string) {
	if b.inPre {
		b.WriteString(text)
		return
	}
	cleaned := strings.Join(strings.Fields(html.UnescapeString(text)), " ")
	if cleaned == "" {
		return
	}
	s := b.String()
	if len(s) > 0 && !strings.HasSuffix(s, "\n") && !strings.HasSuffix(s, " ") {
		b.WriteString(" ")
	}
	b.WriteString(cleaned)
}

func (b *textBuilder) newline() {
	if b.Len() > 0 && !strings.HasSuffix(b.String(), "\n") {
		b.WriteString("\n")
	}
}

func (b *textBuilder) blankLine() {
	if b.Len() == 0 {
		return
	}
	s := b.String()
	switch {
	case strings.HasSuffix(s, "\n\n"):
	case strings.HasSuffix(s, "\n"):
		b.WriteString("\n")
	default:
		b.WriteString("\n\n")
	}
}

// ResultLinks returns the outbound result links of a search results page,
// resolved against base. DuckDuckGo redirect links are unwrapped.
func ResultLinks(doc, base string) []string {
	node, err := xhtml.Parse(strings.NewReader(doc))
	if err != nil {
		return nil
	}
	baseURL, _ := url.Parse(base)

	var marked, other []string
	var walk func(n *xhtml.Node)
	walk = func(n *xhtml.Node) {
		if n.Type == xhtml.ElementNode && strings.EqualFold(n.Data, "a") {
			if link := resolveLink(attr(n, "href"), baseURL); link != "" {
				if strings.Contains(attr(n, "class"), "result__a") {
					marked = append(marked, link)
				} else {
					other = append(other, link)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(node)

	if len(marked) > 0 {
		return marked
	}
	return other
}

// resolveLink returns an absolute http(s) link that leaves the search host,
// or "".
func resolveLink(href string, base *url.URL) string {
	if href == "" || strings.HasPrefix(href, "#") {
		return ""
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if base != nil {
		u = base.ResolveReference(u)
	}
	if target := u.Query().Get("uddg"); target != "" {
		if t, err := url.Parse(target); err == nil {
			u = t
		}
	} else if base != nil && u.Host == base.Host {
		return ""
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	return u.String()
}

func attr(n *xhtml.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return strings.TrimSpace(a.Val)
		}
	}
	return ""
}
