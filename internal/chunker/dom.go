package chunker

import (
	"strings"

	"golang.org/x/net/html"
)

// DOM helpers over x/net/html nodes. Confluence storage format keeps its
// vendor elements (ac:structured-macro, ri:attachment, ...) as ordinary
// lowercased element names, so tag matching works on Node.Data directly.

func isElement(n *html.Node, tag string) bool {
	return n != nil && n.Type == html.ElementNode && n.Data == tag
}

// findAll returns all descendant elements of n (document order, not
// including n itself) matching pred.
func findAll(n *html.Node, pred func(*html.Node) bool) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(c *html.Node) {
		for ; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && pred(c) {
				out = append(out, c)
			}
			walk(c.FirstChild)
		}
	}
	walk(n.FirstChild)
	return out
}

// findFirst returns the first descendant element matching pred, or nil.
func findFirst(n *html.Node, pred func(*html.Node) bool) *html.Node {
	var found *html.Node
	var walk func(*html.Node) bool
	walk = func(c *html.Node) bool {
		for ; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && pred(c) {
				found = c
				return true
			}
			if walk(c.FirstChild) {
				return true
			}
		}
		return false
	}
	walk(n.FirstChild)
	return found
}

// byTag matches elements with any of the given tag names.
func byTag(tags ...string) func(*html.Node) bool {
	if len(tags) == 1 {
		tag := tags[0]
		return func(n *html.Node) bool { return n.Data == tag }
	}
	set := make(map[string]bool, len(tags))
	for _, t := range tags {
		set[t] = true
	}
	return func(n *html.Node) bool { return set[n.Data] }
}

// attr looks up an attribute by key.
func attr(n *html.Node, key string) (string, bool) {
	if n == nil {
		return "", false
	}
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func attrOr(n *html.Node, key, fallback string) string {
	if v, ok := attr(n, key); ok {
		return v
	}
	return fallback
}

// textContent flattens all text nodes under n and trims the result.
func textContent(n *html.Node) string {
	if n == nil {
		return ""
	}
	var buf strings.Builder
	var extract func(*html.Node)
	extract = func(n *html.Node) {
		if n.Type == html.TextNode {
			buf.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extract(c)
		}
	}
	extract(n)
	return strings.TrimSpace(buf.String())
}

// linkLabel flattens the label of an ac:plain-text-link-body element.
// Storage format wraps these labels in CDATA sections, which the
// tokenizer turns into comment nodes, so comment data is read alongside
// plain text with the CDATA framing stripped.
func linkLabel(n *html.Node) string {
	if n == nil {
		return ""
	}
	var buf strings.Builder
	var extract func(*html.Node)
	extract = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			buf.WriteString(n.Data)
		case html.CommentNode:
			buf.WriteString(stripCDATA(n.Data))
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extract(c)
		}
	}
	extract(n)
	return strings.TrimSpace(buf.String())
}

func stripCDATA(s string) string {
	if strings.HasPrefix(s, "[CDATA[") && strings.HasSuffix(s, "]]") {
		return s[len("[CDATA[") : len(s)-len("]]")]
	}
	return s
}

// collapseSpace flattens any run of whitespace to a single space.
func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// detach removes n from its parent, if any.
func detach(n *html.Node) {
	if n.Parent != nil {
		n.Parent.RemoveChild(n)
	}
}

// removeNodes detaches all given nodes from the tree.
func removeNodes(nodes []*html.Node) {
	for _, n := range nodes {
		detach(n)
	}
}

// hasAncestorIn reports whether any of the given nodes is an ancestor of n.
func hasAncestorIn(n *html.Node, ancestors []*html.Node) bool {
	for p := n.Parent; p != nil; p = p.Parent {
		for _, a := range ancestors {
			if p == a {
				return true
			}
		}
	}
	return false
}

func findBody(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && n.Data == "body" {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if b := findBody(c); b != nil {
			return b
		}
	}
	return nil
}

// shortName reduces an attachment filename to its base name with any
// query string stripped.
func shortName(filename string) string {
	if i := strings.LastIndex(filename, "/"); i >= 0 {
		filename = filename[i+1:]
	}
	if i := strings.Index(filename, "?"); i >= 0 {
		filename = filename[:i]
	}
	return filename
}
