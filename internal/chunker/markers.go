package chunker

import (
	"strings"

	"golang.org/x/net/html"

	"github.com/conflux-rag/conflux/internal/chunk"
)

// richMarker extracts one kind of embedded rich content from a table
// cell: it renders an inline marker string and reports any attachment
// references it found. The set is closed; processCell runs the markers
// in a fixed order.
type richMarker interface {
	extract(cell *html.Node) (string, []chunk.Attachment)
}

var cellMarkers = []richMarker{
	hyperlinkMarker{},
	linkAttachmentMarker{},
	imageAttachmentMarker{},
	pageReferenceMarker{},
	listMarker{},
}

// processCell renders a table cell's content. Cells with no rich content
// fall back to their plain flattened text.
func processCell(cell *html.Node) (string, []chunk.Attachment) {
	var sb strings.Builder
	var atts []chunk.Attachment
	for _, m := range cellMarkers {
		text, found := m.extract(cell)
		sb.WriteString(text)
		atts = append(atts, found...)
	}
	if sb.Len() == 0 {
		return collapseSpace(textContent(cell)), nil
	}
	return sb.String(), atts
}

// hyperlinkMarker renders plain <a> hyperlinks as [text](href).
type hyperlinkMarker struct{}

func (hyperlinkMarker) extract(cell *html.Node) (string, []chunk.Attachment) {
	var sb strings.Builder
	for _, link := range findAll(cell, byTag("a")) {
		href := attrOr(link, "href", "")
		text := collapseSpace(textContent(link))
		if text == "" {
			text = href
		}
		sb.WriteString("[" + text + "](" + href + ")")
	}
	return sb.String(), nil
}

// linkAttachmentMarker renders ac:link-wrapped attachment references.
// When the link carries a plain-text label the marker keeps it, else it
// falls back to a paperclip marker with the short filename.
type linkAttachmentMarker struct{}

func (linkAttachmentMarker) extract(cell *html.Node) (string, []chunk.Attachment) {
	var sb strings.Builder
	var atts []chunk.Attachment
	for _, link := range findAll(cell, byTag("ac:link")) {
		att := findFirst(link, byTag("ri:attachment"))
		if att == nil {
			continue
		}
		filename, ok := attr(att, "ri:filename")
		if !ok {
			continue
		}
		short := shortName(filename)
		atts = append(atts, chunk.Attachment{FileName: short})
		if label := linkLabel(findFirst(link, byTag("ac:plain-text-link-body"))); label != "" {
			sb.WriteString("[" + label + "](" + filename + ")")
		} else {
			sb.WriteString("[📎 " + short + "]")
		}
	}
	return sb.String(), atts
}

// imageAttachmentMarker renders ac:image-wrapped attachment references.
type imageAttachmentMarker struct{}

func (imageAttachmentMarker) extract(cell *html.Node) (string, []chunk.Attachment) {
	var sb strings.Builder
	var atts []chunk.Attachment
	for _, img := range findAll(cell, byTag("ac:image")) {
		att := findFirst(img, byTag("ri:attachment"))
		if att == nil {
			continue
		}
		filename, ok := attr(att, "ri:filename")
		if !ok {
			continue
		}
		short := shortName(filename)
		atts = append(atts, chunk.Attachment{FileName: short})
		sb.WriteString("![🖼️ " + short + "]")
	}
	return sb.String(), atts
}

// pageReferenceMarker renders cross-page references by their title.
type pageReferenceMarker struct{}

func (pageReferenceMarker) extract(cell *html.Node) (string, []chunk.Attachment) {
	var sb strings.Builder
	for _, page := range findAll(cell, byTag("ri:page")) {
		if title, ok := attr(page, "ri:content-title"); ok {
			sb.WriteString("[📄 " + title + "]")
		}
	}
	return sb.String(), nil
}

// listMarker renders embedded lists as markdown bullet items. Attachment
// and hyperlink items become nested bullets; plain items keep their text.
type listMarker struct{}

func (listMarker) extract(cell *html.Node) (string, []chunk.Attachment) {
	var sb strings.Builder
	var atts []chunk.Attachment
	for _, list := range findAll(cell, byTag("ul", "ol")) {
		for _, item := range findAll(list, byTag("li")) {
			itemAtts := findAll(item, byTag("ri:attachment"))
			for _, att := range itemAtts {
				filename, ok := attr(att, "ri:filename")
				if !ok {
					continue
				}
				short := shortName(filename)
				atts = append(atts, chunk.Attachment{FileName: short})
				sb.WriteString("- [📎 " + short + "]\n")
			}
			itemLinks := findAll(item, byTag("a"))
			for _, link := range itemLinks {
				href := attrOr(link, "href", "")
				text := collapseSpace(textContent(link))
				if text == "" {
					text = href
				}
				sb.WriteString("- [" + text + "](" + href + ")\n")
			}
			if len(itemAtts) == 0 && len(itemLinks) == 0 {
				if text := collapseSpace(textContent(item)); text != "" {
					sb.WriteString("- " + text + "\n")
				}
			}
		}
	}
	return sb.String(), atts
}
