package ui

// Cursor produces structural widget paths during one page run.
//
// Path() is the parent path plus the current index. Siblings get strictly
// increasing last components and nested widgets get strictly longer paths,
// so a structurally deterministic handler addresses the same widget with the
// same path on every rerun.
type Cursor struct {
	parent []int
	index  int
}

// NewCursor returns a cursor at index 0 under parent. parent is copied.
func NewCursor(parent []int) *Cursor {
	p := make([]int, len(parent))
	copy(p, parent)
	return &Cursor{parent: p}
}

// Path returns [...parent, index] as a new slice.
func (c *Cursor) Path() []int {
	path := make([]int, len(c.parent)+1)
	copy(path, c.parent)
	path[len(c.parent)] = c.index
	return path
}

// Next advances to the next sibling position.
func (c *Cursor) Next() {
	c.index++
}

// Child returns a cursor whose parent path is this cursor's current path
// followed by extra.
func (c *Cursor) Child(extra ...int) *Cursor {
	return NewCursor(append(c.Path(), extra...))
}
