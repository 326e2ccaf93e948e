package chunker

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"

	"github.com/conflux-rag/conflux/internal/chunk"
)

// macroNamed matches ac:structured-macro elements by their ac:name.
func macroNamed(name string) func(*html.Node) bool {
	return func(n *html.Node) bool {
		return n.Data == "ac:structured-macro" && attrOr(n, "ac:name", "") == name
	}
}

// nearestMacro returns the closest ac:structured-macro ancestor, or nil.
func nearestMacro(n *html.Node) *html.Node {
	for p := n.Parent; p != nil; p = p.Parent {
		if isElement(p, "ac:structured-macro") {
			return p
		}
	}
	return nil
}

// macroParameters reads the ac:parameter children that belong directly
// to macro m (parameters of nested macros are not merged in).
func macroParameters(m *html.Node) map[string]string {
	params := make(map[string]string)
	for _, p := range findAll(m, byTag("ac:parameter")) {
		if nearestMacro(p) != m {
			continue
		}
		if name, ok := attr(p, "ac:name"); ok {
			params[name] = textContent(p)
		}
	}
	return params
}

// extractTables lifts tabular content out of the tree into standalone
// chunks: table-chart macros, table-filter macros not nested inside a
// chart, and plain <table> elements outside any of those macros. All
// matched roots are removed from the tree after processing so the
// heading walk does not revisit them.
func (c *Chunker) extractTables(doc *html.Node) []chunk.Chunk {
	charts := findAll(doc, macroNamed("table-chart"))
	filters := findAll(doc, macroNamed("table-filter"))

	// Filters nested inside a chart are resolved through the chart pass;
	// processing them again would duplicate the table.
	var standalone []*html.Node
	for _, f := range filters {
		if !hasAncestorIn(f, charts) {
			standalone = append(standalone, f)
		}
	}

	var plain []*html.Node
	for _, t := range findAll(doc, byTag("table")) {
		if !hasAncestorIn(t, charts) && !hasAncestorIn(t, filters) {
			plain = append(plain, t)
		}
	}

	var chunks []chunk.Chunk
	ordinal := 0
	for _, m := range charts {
		if ck := c.macroTableChunk(m, chunk.TypeTableChart, &ordinal); ck != nil {
			chunks = append(chunks, *ck)
		}
	}
	for _, m := range standalone {
		if ck := c.macroTableChunk(m, chunk.TypeTableFilter, &ordinal); ck != nil {
			chunks = append(chunks, *ck)
		}
	}
	for _, t := range plain {
		if ck := c.plainTableChunk(t, &ordinal); ck != nil {
			chunks = append(chunks, *ck)
		}
	}

	removeNodes(charts)
	removeNodes(standalone)
	removeNodes(plain)
	return chunks
}

// macroTableChunk resolves the table wrapped by a table-chart or
// table-filter macro. Macros without a resolvable table contribute
// nothing; the document walk continues.
func (c *Chunker) macroTableChunk(m *html.Node, typ string, ordinal *int) *chunk.Chunk {
	params := macroParameters(m)
	sortParam := params["sort"]
	if typ == chunk.TypeTableChart {
		if inner := findFirst(m, macroNamed("table-filter")); inner != nil {
			if v, ok := macroParameters(inner)["sort"]; ok && v != "" {
				sortParam = v
			}
		}
	}

	table := findFirst(m, byTag("table"))
	if table == nil {
		c.log.Warn("skipping table macro without a table", "macro", typ)
		return nil
	}
	md, data, atts := tableToMarkdown(table)
	if md == "" {
		c.log.Warn("skipping table with no detectable headers", "macro", typ)
		return nil
	}

	*ordinal++
	title := deriveTableTitle(params["column"], sortParam, data.Headers, *ordinal)
	data.Parameters = params
	return &chunk.Chunk{
		Hierarchy:   map[string]string{"table": title},
		PageContent: md,
		Attachments: atts,
		Type:        typ,
		Data:        data,
	}
}

func (c *Chunker) plainTableChunk(t *html.Node, ordinal *int) *chunk.Chunk {
	md, data, atts := tableToMarkdown(t)
	if md == "" {
		c.log.Warn("skipping table with no detectable headers")
		return nil
	}
	*ordinal++
	title := deriveTableTitle("", "", data.Headers, *ordinal)
	return &chunk.Chunk{
		Hierarchy:   map[string]string{"table": title},
		PageContent: md,
		Attachments: atts,
		Type:        chunk.TypeStandardTable,
		Data:        data,
	}
}

// deriveTableTitle picks a human title for an extracted table: the chart
// "column" parameter, then the filter "sort" parameter, then the first
// header, then a positional fallback.
func deriveTableTitle(column, sort string, headers []string, ordinal int) string {
	switch {
	case column != "":
		return column
	case sort != "":
		return sort
	case len(headers) > 0 && headers[0] != "":
		return fmt.Sprintf("%s and %d other columns", headers[0], len(headers)-1)
	default:
		return fmt.Sprintf("Table %d", ordinal)
	}
}

// tableToMarkdown converts a table element to a markdown pipe table plus
// its structured form. Header cells come from the first row; every data
// row is truncated or right-padded to the header width. A table with no
// detectable header row yields empty results and is skipped by callers.
func tableToMarkdown(table *html.Node) (string, *chunk.TableData, []chunk.Attachment) {
	rows := findAll(table, byTag("tr"))
	if len(rows) == 0 {
		return "", nil, nil
	}

	var headers []string
	for _, cell := range findAll(rows[0], byTag("th", "td")) {
		headers = append(headers, collapseSpace(textContent(cell)))
	}
	if len(headers) == 0 {
		return "", nil, nil
	}

	lines := []string{"| " + strings.Join(headers, " | ") + " |"}
	sep := make([]string, len(headers))
	for i := range sep {
		sep[i] = "---"
	}
	lines = append(lines, "| "+strings.Join(sep, " | ")+" |")

	var dataRows [][]string
	var atts []chunk.Attachment
	for _, tr := range rows[1:] {
		cells := findAll(tr, byTag("td", "th"))
		if len(cells) == 0 {
			continue
		}
		row := make([]string, 0, len(headers))
		for _, cell := range cells {
			content, cellAtts := processCell(cell)
			row = append(row, content)
			atts = append(atts, cellAtts...)
		}
		for len(row) < len(headers) {
			row = append(row, "")
		}
		row = row[:len(headers)]
		dataRows = append(dataRows, row)
		lines = append(lines, "| "+strings.Join(row, " | ")+" |")
	}

	if len(atts) > 0 {
		lines = append(lines, "", "**Attachments available**")
	}
	return strings.Join(lines, "\n"), &chunk.TableData{Headers: headers, Rows: dataRows}, atts
}
