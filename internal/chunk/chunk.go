package chunk

// Special chunk types emitted by the macro extraction passes.
// Ordinary heading-derived chunks have an empty Type.
const (
	TypeRoadmap       = "roadmap"
	TypeStandardTable = "standard_table"
	TypeTableChart    = "table_chart"
	TypeTableFilter   = "table_filter"
)

// Attachment is a named file referenced inline in chunk content.
type Attachment struct {
	FileName string `json:"file_name"`
}

// TableData carries the structured form of an extracted table alongside
// its markdown rendering, so consumers can use either.
type TableData struct {
	Headers    []string          `json:"headers"`
	Rows       [][]string        `json:"rows"`
	Parameters map[string]string `json:"parameters,omitempty"`
}

// Chunk is one retrievable unit of page content. Chunks are immutable
// once emitted; the pipeline attaches embeddings and page metadata on
// its own copies.
type Chunk struct {
	Hierarchy   map[string]string `json:"hierarchy"`
	PageContent string            `json:"page_content"`
	Attachments []Attachment      `json:"attachments"`
	Type        string            `json:"type,omitempty"`
	Data        *TableData        `json:"data,omitempty"`
}
