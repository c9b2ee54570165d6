package formula

// ReferenceTable interns canonical references into dense ids so graph
// nodes can live in slices instead of string keyed maps
type ReferenceTable struct {
	ids  map[string]uint32
	refs []string
}

// NewReferenceTable creates a new reference table
func NewReferenceTable() *ReferenceTable {
	return &ReferenceTable{
		ids: make(map[string]uint32),
	}
}

// Intern adds a reference to the table if it is not there yet and returns
// its id. ids start at 0 and are never reused.
func (rt *ReferenceTable) Intern(ref string) uint32 {
	// check if reference already exists
	if id, exists := rt.ids[ref]; exists {
		return id
	}

	id := uint32(len(rt.refs))
	rt.ids[ref] = id
	rt.refs = append(rt.refs, ref)
	return id
}

// GetReference retrieves a reference by its id
func (rt *ReferenceTable) GetReference(id uint32) (string, bool) {
	if int(id) >= len(rt.refs) {
		return "", false
	}
	return rt.refs[id], true
}

// Contains checks if a reference exists in the table and returns its id
func (rt *ReferenceTable) Contains(ref string) (uint32, bool) {
	id, exists := rt.ids[ref]
	return id, exists
}

// Count returns the number of interned references
func (rt *ReferenceTable) Count() int {
	return len(rt.refs)
}
