package chunker

import (
	"strings"

	"golang.org/x/net/html"

	"github.com/conflux-rag/conflux/internal/chunk"
)

// collectContent walks the forward siblings of a heading, gathering text,
// inlined tables and attachment references until it reaches a heading of
// the same or a shallower level. The stopping heading is not consumed.
// Deeper configured headings do not stop the walk; their text joins the
// parent chunk's span (they still get chunks of their own later).
func (c *Chunker) collectContent(heading *html.Node, level int) (string, []chunk.Attachment) {
	var parts []string
	var atts []chunk.Attachment

	for sib := heading.NextSibling; sib != nil; sib = sib.NextSibling {
		if sib.Type != html.ElementNode {
			continue
		}
		if idx := c.levels.IndexOfTag(sib.Data); idx >= 0 && idx <= level {
			break
		}

		// Tables that survived macro extraction are inlined as markdown.
		if sib.Data == "table" {
			md, _, tableAtts := tableToMarkdown(sib)
			if md != "" {
				parts = append(parts, md)
				atts = append(atts, tableAtts...)
			}
			continue
		}

		if text := textContent(sib); text != "" {
			parts = append(parts, text)
		}

		for _, img := range findAll(sib, byTag("ac:image")) {
			att := findFirst(img, byTag("ri:attachment"))
			filename, ok := attr(att, "ri:filename")
			if !ok {
				continue
			}
			short := shortName(filename)
			atts = append(atts, chunk.Attachment{FileName: short})
			parts = append(parts, "![🖼️ "+short+"]")
		}

		for _, link := range findAll(sib, byTag("ac:link")) {
			att := findFirst(link, byTag("ri:attachment"))
			filename, ok := attr(att, "ri:filename")
			if !ok {
				continue
			}
			short := shortName(filename)
			atts = append(atts, chunk.Attachment{FileName: short})
			if label := linkLabel(findFirst(link, byTag("ac:plain-text-link-body"))); label != "" {
				parts = append(parts, "["+label+"]")
			} else {
				parts = append(parts, "[📎 "+short+"]")
			}
		}
	}

	return strings.TrimSpace(strings.Join(parts, "\n\n")), atts
}
