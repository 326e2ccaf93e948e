package chunker

import (
	"encoding/json"
	"net/url"
	"strings"
	"testing"

	"github.com/conflux-rag/conflux/internal/chunk"
)

func newTestChunker(t *testing.T, levels chunk.Levels) *Chunker {
	t.Helper()
	c, err := New(levels, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return c
}

func TestChunk_HeadingScenario(t *testing.T) {
	levels := chunk.Levels{
		{Tag: "h1", Label: "Section"},
		{Tag: "h2", Label: "Subsection"},
	}
	c := newTestChunker(t, levels)

	chunks, err := c.Chunk(`<h1>A</h1><p>x</p><h2>B</h2><p>y</p><h1>C</h1><p>z</p>`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}

	want := []struct {
		hierarchy map[string]string
		content   string
	}{
		{map[string]string{"Section": "A"}, "x"},
		{map[string]string{"Section": "A", "Subsection": "B"}, "y"},
		{map[string]string{"Section": "C"}, "z"},
	}
	for i, w := range want {
		if chunks[i].PageContent != w.content {
			t.Errorf("chunk %d: expected content %q, got %q", i, w.content, chunks[i].PageContent)
		}
		if len(chunks[i].Hierarchy) != len(w.hierarchy) {
			t.Errorf("chunk %d: expected hierarchy %v, got %v", i, w.hierarchy, chunks[i].Hierarchy)
			continue
		}
		for k, v := range w.hierarchy {
			if chunks[i].Hierarchy[k] != v {
				t.Errorf("chunk %d: hierarchy[%s]: expected %q, got %q", i, k, v, chunks[i].Hierarchy[k])
			}
		}
	}
}

func TestChunk_NoHeadingsFallsBackToWholeDocument(t *testing.T) {
	c := newTestChunker(t, chunk.DefaultLevels())

	chunks, err := c.Chunk(`<p>hello</p>`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if len(chunks[0].Hierarchy) != 0 {
		t.Errorf("expected empty hierarchy, got %v", chunks[0].Hierarchy)
	}
	if chunks[0].PageContent != "hello" {
		t.Errorf("expected content %q, got %q", "hello", chunks[0].PageContent)
	}
}

func TestChunk_EmptyHeadingIsSkipped(t *testing.T) {
	c := newTestChunker(t, chunk.DefaultLevels())

	chunks, err := c.Chunk(`<h1></h1><p>x</p>`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 0 {
		t.Errorf("expected 0 chunks for an empty heading, got %d", len(chunks))
	}
}

func TestChunk_HeadingWithoutContentUsesHeadingText(t *testing.T) {
	c := newTestChunker(t, chunk.DefaultLevels())

	chunks, err := c.Chunk(`<h1>Lonely</h1>`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].PageContent != "Lonely" {
		t.Errorf("expected fallback to heading text, got %q", chunks[0].PageContent)
	}
}

func TestChunk_HeadingLineBreaksRemoved(t *testing.T) {
	c := newTestChunker(t, chunk.DefaultLevels())

	chunks, err := c.Chunk(`<h1>Hello<br/>World</h1><p>body</p>`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if got := chunks[0].Hierarchy["Section"]; got != "HelloWorld" {
		t.Errorf("expected heading %q, got %q", "HelloWorld", got)
	}
}

func TestChunk_HierarchyMonotonicity(t *testing.T) {
	c := newTestChunker(t, chunk.DefaultLevels())

	html := `<h1>S1</h1><h2>Sub1</h2><h3>T1</h3><p>deep</p><h2>Sub2</h2><p>x</p><h1>S2</h1><p>y</p>`
	chunks, err := c.Chunk(html)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 5 {
		t.Fatalf("expected 5 chunks, got %d", len(chunks))
	}

	// After the h3, all three labels are present.
	h := chunks[2].Hierarchy
	if h["Section"] != "S1" || h["Subsection"] != "Sub1" || h["Topic"] != "T1" {
		t.Errorf("chunk 2: unexpected hierarchy %v", h)
	}
	// The next h2 prunes the Topic entry but keeps the Section.
	h = chunks[3].Hierarchy
	if h["Section"] != "S1" || h["Subsection"] != "Sub2" {
		t.Errorf("chunk 3: unexpected hierarchy %v", h)
	}
	if _, ok := h["Topic"]; ok {
		t.Errorf("chunk 3: Topic should have been pruned, got %v", h)
	}
	// A new h1 clears everything below it.
	h = chunks[4].Hierarchy
	if len(h) != 1 || h["Section"] != "S2" {
		t.Errorf("chunk 4: expected only Section=S2, got %v", h)
	}
}

func TestChunk_AttachmentsInSpan(t *testing.T) {
	c := newTestChunker(t, chunk.DefaultLevels())

	html := `<h1>Title</h1>` +
		`<p>intro<ac:image><ri:attachment ri:filename="shots/pic.png?version=2"/></ac:image></p>` +
		`<p><ac:link><ri:attachment ri:filename="file.pdf"/></ac:link></p>`
	chunks, err := c.Chunk(html)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}

	ck := chunks[0]
	if len(ck.Attachments) != 2 {
		t.Fatalf("expected 2 attachments, got %d: %v", len(ck.Attachments), ck.Attachments)
	}
	if ck.Attachments[0].FileName != "pic.png" {
		t.Errorf("expected short name %q, got %q", "pic.png", ck.Attachments[0].FileName)
	}
	if ck.Attachments[1].FileName != "file.pdf" {
		t.Errorf("expected %q, got %q", "file.pdf", ck.Attachments[1].FileName)
	}
	if !strings.Contains(ck.PageContent, "![🖼️ pic.png]") {
		t.Errorf("expected image marker in content, got %q", ck.PageContent)
	}
	if !strings.Contains(ck.PageContent, "[📎 file.pdf]") {
		t.Errorf("expected link marker in content, got %q", ck.PageContent)
	}
}

func TestChunk_NestedContainerTextCollected(t *testing.T) {
	c := newTestChunker(t, chunk.DefaultLevels())

	// Text inside containers joins the chunk span through flattening.
	html := `<h1>Data</h1><p>before</p>` +
		`<div><p>wrapped</p></div>`
	chunks, err := c.Chunk(html)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if !strings.Contains(chunks[0].PageContent, "before") || !strings.Contains(chunks[0].PageContent, "wrapped") {
		t.Errorf("expected both paragraphs in content, got %q", chunks[0].PageContent)
	}
}

func TestCollectContent_TableSiblingInlined(t *testing.T) {
	c := newTestChunker(t, chunk.DefaultLevels())

	src := `<h1>Data</h1><p>before</p>` +
		`<table><tr><th>File</th></tr>` +
		`<tr><td><ac:link><ri:attachment ri:filename="f.pdf"/></ac:link></td></tr></table>` +
		`<h1>Next</h1><p>after</p>`
	heading := parseFirst(t, src, "h1")
	content, atts := c.collectContent(heading, 0)

	if !strings.HasPrefix(content, "before\n\n") {
		t.Errorf("expected paragraph before the table, got %q", content)
	}
	if !strings.Contains(content, "| File |") || !strings.Contains(content, "[📎 f.pdf]") {
		t.Errorf("expected inlined table markdown, got %q", content)
	}
	if strings.Contains(content, "after") {
		t.Errorf("walk must stop at the next heading, got %q", content)
	}
	if len(atts) != 1 || atts[0].FileName != "f.pdf" {
		t.Errorf("expected cell attachment accumulated, got %v", atts)
	}
}

func TestChunk_LabeledAttachmentLink(t *testing.T) {
	c := newTestChunker(t, chunk.DefaultLevels())

	html := `<h1>Docs</h1>` +
		`<p>guide: <ac:link><ri:attachment ri:filename="doc.pdf"/>` +
		`<ac:plain-text-link-body><![CDATA[My Label]]></ac:plain-text-link-body>` +
		`</ac:link></p>`
	chunks, err := c.Chunk(html)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}

	ck := chunks[0]
	if !strings.Contains(ck.PageContent, "[My Label]") {
		t.Errorf("expected link label in content, got %q", ck.PageContent)
	}
	if strings.Contains(ck.PageContent, "📎") {
		t.Errorf("labeled link must not fall back to the paperclip marker, got %q", ck.PageContent)
	}
	if len(ck.Attachments) != 1 || ck.Attachments[0].FileName != "doc.pdf" {
		t.Errorf("expected doc.pdf attachment, got %v", ck.Attachments)
	}
}

func TestChunk_PlainTableBecomesTableChunk(t *testing.T) {
	c := newTestChunker(t, chunk.DefaultLevels())

	html := `<h1>Data</h1><table><tr><th>Name</th><th>Val</th></tr><tr><td>foo</td><td>1</td></tr></table>`
	chunks, err := c.Chunk(html)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks (table + heading), got %d", len(chunks))
	}

	table := chunks[0]
	if table.Type != chunk.TypeStandardTable {
		t.Errorf("expected type %q, got %q", chunk.TypeStandardTable, table.Type)
	}
	wantMD := "| Name | Val |\n| --- | --- |\n| foo | 1 |"
	if table.PageContent != wantMD {
		t.Errorf("expected markdown %q, got %q", wantMD, table.PageContent)
	}
	if table.Hierarchy["table"] != "Name and 1 other columns" {
		t.Errorf("unexpected table title %q", table.Hierarchy["table"])
	}
	if table.Data == nil {
		t.Fatal("expected structured table data")
	}
	if len(table.Data.Headers) != 2 || table.Data.Headers[0] != "Name" {
		t.Errorf("unexpected headers %v", table.Data.Headers)
	}
	if len(table.Data.Rows) != 1 || table.Data.Rows[0][0] != "foo" || table.Data.Rows[0][1] != "1" {
		t.Errorf("unexpected rows %v", table.Data.Rows)
	}

	// The table was lifted out of the tree, so the heading chunk falls
	// back to its own text.
	if chunks[1].PageContent != "Data" {
		t.Errorf("expected heading fallback content, got %q", chunks[1].PageContent)
	}
}

func roadmapHTML(t *testing.T, src any) string {
	t.Helper()
	raw, err := json.Marshal(src)
	if err != nil {
		t.Fatalf("marshal roadmap source: %v", err)
	}
	return `<ac:structured-macro ac:name="roadmap">` +
		`<ac:parameter ac:name="source">` + url.QueryEscape(string(raw)) + `</ac:parameter>` +
		`</ac:structured-macro>`
}

func TestChunk_RoadmapMacro(t *testing.T) {
	c := newTestChunker(t, chunk.DefaultLevels())

	src := map[string]any{
		"title":    "Delivery Plan",
		"timeline": map[string]string{"startDate": "2024-01-01", "endDate": "2024-06-30"},
		"lanes": []map[string]any{
			{
				"title": "Backend",
				"bars": []map[string]any{
					{"title": "API v2", "description": "new endpoints", "startDate": "2024-01-15", "duration": 2.5, "rowIndex": 0, "id": "bar-1"},
				},
			},
		},
	}
	chunks, err := c.Chunk(roadmapHTML(t, src) + `<h1>After</h1><p>text</p>`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}

	rm := chunks[0]
	if rm.Type != chunk.TypeRoadmap {
		t.Fatalf("expected roadmap chunk first, got type %q", rm.Type)
	}
	if rm.Hierarchy["roadmap"] != "Delivery Plan" {
		t.Errorf("unexpected roadmap hierarchy %v", rm.Hierarchy)
	}
	for _, want := range []string{"# Delivery Plan", "**Timeline:** 2024-01-01 to 2024-06-30", "Backend", "API v2", "2.5", "bar-1"} {
		if !strings.Contains(rm.PageContent, want) {
			t.Errorf("expected roadmap markdown to contain %q, got %q", want, rm.PageContent)
		}
	}
}

func TestChunk_MalformedRoadmapSkipped(t *testing.T) {
	c := newTestChunker(t, chunk.DefaultLevels())

	html := `<ac:structured-macro ac:name="roadmap">` +
		`<ac:parameter ac:name="source">not-json</ac:parameter>` +
		`</ac:structured-macro>` +
		`<h1>Still Here</h1><p>content</p>`
	chunks, err := c.Chunk(html)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].Type != "" {
		t.Errorf("expected no roadmap chunk, got type %q", chunks[0].Type)
	}
	if chunks[0].Hierarchy["Section"] != "Still Here" {
		t.Errorf("heading processing should continue, got %v", chunks[0].Hierarchy)
	}
}

func TestChunk_Ordering(t *testing.T) {
	c := newTestChunker(t, chunk.DefaultLevels())

	src := map[string]any{"title": "Plan", "timeline": map[string]string{"startDate": "a", "endDate": "b"}}
	html := `<h1>Head</h1><p>text</p>` +
		`<table><tr><th>H</th></tr><tr><td>v</td></tr></table>` +
		roadmapHTML(t, src)
	chunks, err := c.Chunk(html)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	if chunks[0].Type != chunk.TypeRoadmap {
		t.Errorf("chunk 0: expected roadmap, got %q", chunks[0].Type)
	}
	if chunks[1].Type != chunk.TypeStandardTable {
		t.Errorf("chunk 1: expected standard_table, got %q", chunks[1].Type)
	}
	if chunks[2].Type != "" {
		t.Errorf("chunk 2: expected heading chunk, got %q", chunks[2].Type)
	}
}

func TestChunk_AttachmentsNeverNil(t *testing.T) {
	c := newTestChunker(t, chunk.DefaultLevels())

	chunks, err := c.Chunk(`<h1>A</h1><p>x</p>`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, ck := range chunks {
		if ck.Attachments == nil {
			t.Errorf("chunk %d: attachments slice is nil", i)
		}
	}
}

func TestChunk_FallbackGenericImgAndLink(t *testing.T) {
	c := newTestChunker(t, chunk.DefaultLevels())

	html := `<p>hello</p><img src="logo.png" alt="Logo"/><a href="https://example.com">Example</a>`
	chunks, err := c.Chunk(html)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	content := chunks[0].PageContent
	if !strings.Contains(content, "![Logo](logo.png)") {
		t.Errorf("expected img marker, got %q", content)
	}
	if !strings.Contains(content, "[Example](https://example.com)") {
		t.Errorf("expected link marker, got %q", content)
	}
}

func TestNew_InvalidLevels(t *testing.T) {
	if _, err := New(nil, nil); err == nil {
		t.Error("expected error for empty level configuration")
	}
	if _, err := New(chunk.Levels{{Tag: "h1", Label: ""}}, nil); err == nil {
		t.Error("expected error for level with empty label")
	}
}
