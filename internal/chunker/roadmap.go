package chunker

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"github.com/conflux-rag/conflux/internal/chunk"
)

// roadmapSource mirrors the URL-encoded JSON held by the roadmap macro's
// source parameter.
type roadmapSource struct {
	Title    string `json:"title"`
	Timeline struct {
		StartDate string `json:"startDate"`
		EndDate   string `json:"endDate"`
	} `json:"timeline"`
	Lanes []struct {
		Title string `json:"title"`
		Bars  []struct {
			Title       string  `json:"title"`
			Description string  `json:"description"`
			StartDate   string  `json:"startDate"`
			Duration    float64 `json:"duration"`
			RowIndex    int     `json:"rowIndex"`
			ID          string  `json:"id"`
		} `json:"bars"`
	} `json:"lanes"`
}

// roadmapItem is one bar flattened out of its lane.
type roadmapItem struct {
	Lane        string
	Title       string
	Description string
	StartDate   string
	Duration    float64
	RowIndex    int
	ID          string
}

var roadmapItemKeys = []string{"lane", "title", "description", "start_date", "duration", "row_index", "id"}

// extractRoadmaps lifts roadmap timeline macros out of the tree. A macro
// whose source JSON fails to decode is logged and skipped; the rest of
// the document is unaffected. All matched macro nodes are removed from
// the tree afterwards, successful or not.
func (c *Chunker) extractRoadmaps(doc *html.Node) []chunk.Chunk {
	macros := findAll(doc, macroNamed("roadmap"))
	var chunks []chunk.Chunk
	for _, m := range macros {
		ck, err := c.roadmapChunk(m)
		if err != nil {
			c.log.Warn("skipping roadmap macro", "error", err)
			continue
		}
		chunks = append(chunks, ck)
	}
	removeNodes(macros)
	return chunks
}

func (c *Chunker) roadmapChunk(m *html.Node) (chunk.Chunk, error) {
	var raw string
	for _, p := range findAll(m, byTag("ac:parameter")) {
		if nearestMacro(p) == m && attrOr(p, "ac:name", "") == "source" {
			raw = textContent(p)
			break
		}
	}
	if raw == "" {
		return chunk.Chunk{}, fmt.Errorf("roadmap macro has no source parameter")
	}

	decoded, err := url.QueryUnescape(raw)
	if err != nil {
		return chunk.Chunk{}, fmt.Errorf("decode roadmap source: %w", err)
	}
	var src roadmapSource
	if err := json.Unmarshal([]byte(decoded), &src); err != nil {
		return chunk.Chunk{}, fmt.Errorf("parse roadmap json: %w", err)
	}

	title := strings.TrimSpace(src.Title)
	if title == "" {
		title = "Roadmap"
	}

	var items []roadmapItem
	for _, lane := range src.Lanes {
		for _, bar := range lane.Bars {
			items = append(items, roadmapItem{
				Lane:        lane.Title,
				Title:       bar.Title,
				Description: bar.Description,
				StartDate:   bar.StartDate,
				Duration:    bar.Duration,
				RowIndex:    bar.RowIndex,
				ID:          bar.ID,
			})
		}
	}

	return chunk.Chunk{
		Hierarchy:   map[string]string{"roadmap": title},
		PageContent: roadmapMarkdown(title, src.Timeline.StartDate, src.Timeline.EndDate, items),
		Attachments: nil,
		Type:        chunk.TypeRoadmap,
	}, nil
}

// roadmapMarkdown renders the roadmap as a title, a timeline line, and a
// table with one column per item key.
func roadmapMarkdown(title, start, end string, items []roadmapItem) string {
	var lines []string
	lines = append(lines, "# "+title, "")
	if start != "" || end != "" {
		lines = append(lines, "**Timeline:** "+start+" to "+end, "")
	}

	lines = append(lines, "| "+strings.Join(roadmapItemKeys, " | ")+" |")
	sep := make([]string, len(roadmapItemKeys))
	for i := range sep {
		sep[i] = "---"
	}
	lines = append(lines, "| "+strings.Join(sep, " | ")+" |")
	for _, it := range items {
		row := []string{
			it.Lane,
			it.Title,
			it.Description,
			it.StartDate,
			strconv.FormatFloat(it.Duration, 'f', -1, 64),
			strconv.Itoa(it.RowIndex),
			it.ID,
		}
		lines = append(lines, "| "+strings.Join(row, " | ")+" |")
	}
	return strings.Join(lines, "\n")
}
