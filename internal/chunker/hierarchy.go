package chunker

// updateHierarchy returns a new mapping that keeps only the entries of
// cur whose level index is strictly above the level of label, then adds
// {label: headingText}. Encountering an h2 therefore clears tracked h3+
// entries while keeping the active h1; a new h1 clears everything below.
func (c *Chunker) updateHierarchy(cur map[string]string, label, headingText string) map[string]string {
	level := c.levels.IndexOfLabel(label)
	next := make(map[string]string, len(cur)+1)
	for k, v := range cur {
		if idx := c.levels.IndexOfLabel(k); idx >= 0 && idx < level {
			next[k] = v
		}
	}
	next[label] = headingText
	return next
}

func copyHierarchy(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
