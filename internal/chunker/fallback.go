package chunker

import (
	"strings"

	"golang.org/x/net/html"

	"github.com/conflux-rag/conflux/internal/chunk"
)

// processWholeDocument handles documents without any configured heading:
// the entire body becomes one content span. It applies the same
// attachment extraction as the per-heading collector, plus generic
// <img>/<a> handling, and inlines tables as markdown blocks.
func (c *Chunker) processWholeDocument(body *html.Node) (string, []chunk.Attachment) {
	var parts []string
	var atts []chunk.Attachment

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for ; n != nil; n = n.NextSibling {
			switch {
			case n.Type == html.TextNode:
				if t := strings.TrimSpace(n.Data); t != "" {
					parts = append(parts, t)
				}

			case n.Type != html.ElementNode:

			case c.levels.IndexOfTag(n.Data) >= 0:
				// Configured heading tags never contribute here.

			case n.Data == "script" || n.Data == "style":

			case n.Data == "table":
				md, _, tableAtts := tableToMarkdown(n)
				if md != "" {
					parts = append(parts, md)
					atts = append(atts, tableAtts...)
				}

			case n.Data == "ac:image":
				att := findFirst(n, byTag("ri:attachment"))
				if filename, ok := attr(att, "ri:filename"); ok {
					short := shortName(filename)
					atts = append(atts, chunk.Attachment{FileName: short})
					parts = append(parts, "![🖼️ "+short+"]")
				}

			case n.Data == "ac:link":
				att := findFirst(n, byTag("ri:attachment"))
				if filename, ok := attr(att, "ri:filename"); ok {
					short := shortName(filename)
					atts = append(atts, chunk.Attachment{FileName: short})
					if label := textContent(findFirst(n, byTag("ac:plain-text-link-body"))); label != "" {
						parts = append(parts, "["+label+"]")
					} else {
						parts = append(parts, "[📎 "+short+"]")
					}
				}

			case n.Data == "img":
				alt := attrOr(n, "alt", "")
				src := attrOr(n, "src", "")
				if alt != "" || src != "" {
					parts = append(parts, "!["+alt+"]("+src+")")
				}

			case n.Data == "a":
				href := attrOr(n, "href", "")
				text := collapseSpace(textContent(n))
				if text == "" {
					text = href
				}
				if href != "" || text != "" {
					parts = append(parts, "["+text+"]("+href+")")
				}

			default:
				walk(n.FirstChild)
			}
		}
	}
	walk(body.FirstChild)

	return strings.TrimSpace(strings.Join(parts, "\n\n")), atts
}
