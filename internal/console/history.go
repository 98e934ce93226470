package console

// History is a bounded ring of submitted lines. Consecutive duplicates are
// stored once.
type History struct {
	lines  []string
	depth  int
	cursor int // len(lines) means "not navigating"
}

// NewHistory creates a history keeping at most depth lines.
func NewHistory(depth int) *History {
	if depth < 1 {
		depth = 1
	}
	return &History{depth: depth}
}

// Add stores line and resets navigation.
func (h *History) Add(line string) {
	if line != "" && (len(h.lines) == 0 || h.lines[len(h.lines)-1] != line) {
		h.lines = append(h.lines, line)
		if len(h.lines) > h.depth {
			h.lines = h.lines[len(h.lines)-h.depth:]
		}
	}
	h.Reset()
}

// Reset moves the cursor past the newest entry.
func (h *History) Reset() {
	h.cursor = len(h.lines)
}

// Older returns the previous entry, stopping at the oldest.
func (h *History) Older() (string, bool) {
	if len(h.lines) == 0 {
		return "", false
	}
	if h.cursor > 0 {
		h.cursor--
	}
	return h.lines[h.cursor], true
}

// Newer returns the next entry; past the newest it returns "" and false.
func (h *History) Newer() (string, bool) {
	if h.cursor >= len(h.lines)-1 {
		h.cursor = len(h.lines)
		return "", false
	}
	h.cursor++
	return h.lines[h.cursor], true
}

// Lines returns the stored lines, oldest first.
func (h *History) Lines() []string {
	return append([]string(nil), h.lines...)
}

// Clear drops all entries.
func (h *History) Clear() {
	h.lines = nil
	h.cursor = 0
}
