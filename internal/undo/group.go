package undo

// Group is one unit of undo/redo: either a run of merged operations or the
// contents of a committed transaction.
type Group struct {
	Ops               []Operation
	MarksSnapshot     map[string]int64
	LineCount         int
	IsFromTransaction bool
	Name              string
}

func (g *Group) lastOp() Operation { return g.Ops[len(g.Ops)-1] }
