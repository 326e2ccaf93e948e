package chunk

import (
	"fmt"
	"strings"
)

// Level maps a heading element tag to its human label.
type Level struct {
	Tag   string
	Label string
}

// Levels is the ordered chunking grammar. Position in the slice is the
// sole source of level comparisons; tags could in principle repeat.
type Levels []Level

// DefaultLevels is the standard three-level Confluence hierarchy.
func DefaultLevels() Levels {
	return Levels{
		{Tag: "h1", Label: "Section"},
		{Tag: "h2", Label: "Subsection"},
		{Tag: "h3", Label: "Topic"},
	}
}

// ParseLevels parses a "tag:Label,tag:Label" string, e.g.
// "h1:Section,h2:Subsection,h3:Topic,h4:Sub-topic".
func ParseLevels(s string) (Levels, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty level configuration")
	}
	var levels Levels
	for _, pair := range strings.Split(s, ",") {
		tag, label, ok := strings.Cut(strings.TrimSpace(pair), ":")
		tag = strings.ToLower(strings.TrimSpace(tag))
		label = strings.TrimSpace(label)
		if !ok || tag == "" || label == "" {
			return nil, fmt.Errorf("malformed level pair %q", pair)
		}
		levels = append(levels, Level{Tag: tag, Label: label})
	}
	return levels, levels.Validate()
}

// Validate checks the configuration is usable. Called once at startup;
// an invalid configuration is fatal, not recoverable mid-document.
func (ls Levels) Validate() error {
	if len(ls) == 0 {
		return fmt.Errorf("level configuration is empty")
	}
	seen := make(map[string]bool, len(ls))
	for _, l := range ls {
		if l.Tag == "" || l.Label == "" {
			return fmt.Errorf("level with empty tag or label")
		}
		if seen[l.Label] {
			return fmt.Errorf("duplicate level label %q", l.Label)
		}
		seen[l.Label] = true
	}
	return nil
}

// IndexOfTag returns the level index for a heading tag, or -1.
func (ls Levels) IndexOfTag(tag string) int {
	for i, l := range ls {
		if l.Tag == tag {
			return i
		}
	}
	return -1
}

// IndexOfLabel returns the level index for a label, or -1.
func (ls Levels) IndexOfLabel(label string) int {
	for i, l := range ls {
		if l.Label == label {
			return i
		}
	}
	return -1
}

// Tags returns the configured heading tags in order.
func (ls Levels) Tags() []string {
	tags := make([]string, len(ls))
	for i, l := range ls {
		tags[i] = l.Tag
	}
	return tags
}
