package grid

// Interner keeps one canonical *Cell per (i, j) for the lifetime of the
// process. No eviction: the cell set is bounded by the area visited in a
// session, and stable pointers let callers compare cells by identity.
type Interner struct {
	// Accessed only from the session's logical thread of control.
	cells map[Key]*Cell
}

func NewInterner() *Interner {
	return &Interner{cells: map[Key]*Cell{}}
}

func (n *Interner) GetOrCreate(i, j int) *Cell {
	k := Cell{I: i, J: j}.Key()
	if c, ok := n.cells[k]; ok {
		return c
	}
	c := &Cell{I: i, J: j}
	n.cells[k] = c
	return c
}

func (n *Interner) Len() int { return len(n.cells) }
