package command

// Handler executes one verb.
type Handler func(req *Request) Exit

// Entry is a verb with its handler and a one-line usage.
type Entry struct {
	Verb    string
	Usage   string
	Handler Handler
}

// Source resolves verbs for the dispatcher.
type Source interface {
	Name() string
	// Verbs lists the verbs the source claims, in display order.
	Verbs() []string
	// Execute runs the request or returns NotHandled to let the search
	// continue.
	Execute(req *Request) Exit
}

// Group is a named set of verbs, for sources that aggregate several owners.
type Group struct {
	Name  string
	Verbs []string
}

// Grouped is implemented by sources whose verbs belong to sub-owners, such as
// the capability registry.
type Grouped interface {
	Groups() []Group
}

// Describer is implemented by sources that can print usage lines.
type Describer interface {
	Usage(verb string) (string, bool)
}

// Table is a fixed Source built from entries.
type Table struct {
	name    string
	entries []Entry
	index   map[string]int
}

// NewTable creates a table. Later entries with a duplicate verb are ignored.
func NewTable(name string, entries ...Entry) *Table {
	t := &Table{name: name, index: make(map[string]int)}
	for _, e := range entries {
		t.Add(e)
	}
	return t
}

// Add appends an entry unless its verb is already present.
func (t *Table) Add(e Entry) bool {
	if _, ok := t.index[e.Verb]; ok {
		return false
	}
	t.index[e.Verb] = len(t.entries)
	t.entries = append(t.entries, e)
	return true
}

// Name implements Source.
func (t *Table) Name() string { return t.name }

// Verbs implements Source.
func (t *Table) Verbs() []string {
	out := make([]string, len(t.entries))
	for i, e := range t.entries {
		out[i] = e.Verb
	}
	return out
}

// Execute implements Source.
func (t *Table) Execute(req *Request) Exit {
	i, ok := t.index[req.Line.Verb()]
	if !ok {
		return NotHandled
	}
	return t.entries[i].Handler(req)
}

// Usage implements Describer.
func (t *Table) Usage(verb string) (string, bool) {
	i, ok := t.index[verb]
	if !ok {
		return "", false
	}
	return t.entries[i].Usage, true
}
