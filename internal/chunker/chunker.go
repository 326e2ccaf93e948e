package chunker

import (
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/net/html"

	"github.com/conflux-rag/conflux/internal/chunk"
)

// Chunker segments Confluence storage-format HTML into an ordered list
// of chunks. It is a pure transformation: each call parses its own tree,
// so a single Chunker is safe to use from multiple goroutines.
type Chunker struct {
	levels chunk.Levels
	log    *slog.Logger
}

// New validates the level configuration and returns a Chunker. An empty
// or malformed configuration is an error; there is no recovery from it
// mid-document.
func New(levels chunk.Levels, log *slog.Logger) (*Chunker, error) {
	if err := levels.Validate(); err != nil {
		return nil, fmt.Errorf("level configuration: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Chunker{levels: levels, log: log}, nil
}

// Levels returns the configured chunking grammar.
func (c *Chunker) Levels() chunk.Levels {
	return c.levels
}

// Chunk processes one page and returns its chunks in order: roadmap
// chunks first, then table chunks, then heading-derived chunks (or a
// single fallback chunk when the page has no configured headings).
// Local failures inside a macro or table degrade to skipping that unit;
// they never abort the document.
func (c *Chunker) Chunk(pageHTML string) ([]chunk.Chunk, error) {
	doc, err := html.Parse(strings.NewReader(pageHTML))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	c.cleanHeadings(doc)

	chunks := c.extractRoadmaps(doc)
	chunks = append(chunks, c.extractTables(doc)...)

	headings := findAll(doc, byTag(c.levels.Tags()...))
	if len(headings) == 0 {
		body := findBody(doc)
		if body == nil {
			body = doc
		}
		content, atts := c.processWholeDocument(body)
		if content != "" {
			chunks = append(chunks, chunk.Chunk{
				Hierarchy:   map[string]string{},
				PageContent: content,
				Attachments: atts,
			})
		}
		return normalize(chunks), nil
	}

	meta := map[string]string{}
	for _, h := range headings {
		text := textContent(h)
		if text == "" {
			continue
		}
		level := c.levels.IndexOfTag(h.Data)
		label := c.levels[level].Label

		meta = c.updateHierarchy(meta, label, text)
		content, atts := c.collectContent(h, level)
		if content == "" {
			content = text
		}

		c.log.Debug("creating chunk", "heading", text)
		chunks = append(chunks, chunk.Chunk{
			Hierarchy:   copyHierarchy(meta),
			PageContent: content,
			Attachments: atts,
		})
	}
	return normalize(chunks), nil
}

// normalize guarantees a non-nil attachments slice on every chunk so the
// serialized form always carries an array.
func normalize(chunks []chunk.Chunk) []chunk.Chunk {
	for i := range chunks {
		if chunks[i].Attachments == nil {
			chunks[i].Attachments = []chunk.Attachment{}
		}
	}
	return chunks
}
