package chunker

import "golang.org/x/net/html"

// cleanHeadings normalizes every element matching a configured level in
// place: embedded <br> markers are dropped so surrounding text joins up,
// and the heading's children are replaced with a single text node holding
// its flattened, whitespace-collapsed text. Headings with no text are
// left empty and skipped later by the assembler.
func (c *Chunker) cleanHeadings(doc *html.Node) {
	for _, lv := range c.levels {
		for _, h := range findAll(doc, byTag(lv.Tag)) {
			removeNodes(findAll(h, byTag("br")))
			text := collapseSpace(textContent(h))
			for h.FirstChild != nil {
				h.RemoveChild(h.FirstChild)
			}
			if text != "" {
				h.AppendChild(&html.Node{Type: html.TextNode, Data: text})
			}
		}
	}
}
