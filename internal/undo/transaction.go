package undo

// Transaction is a user-demarcated batch of operations that commits as one
// undo group, or rolls back as a unit.
type Transaction struct {
	name          string
	ops           []Operation
	marksSnapshot map[string]int64
	lineCount     int
}

// Begin opens a transaction, capturing the marks/lines snapshot at this
// instant for later commit or rollback. Fails if one is already open.
func (m *Manager) Begin(name string) error {
	if m.txn != nil {
		return ErrTransactionOpen
	}
	m.txn = &Transaction{
		name:          name,
		marksSnapshot: m.marks.Snapshot(),
		lineCount:     m.marks.GetLineCount(),
	}
	return nil
}

// Commit packages the transaction's collected operations into a single
// isFromTransaction group. An empty transaction still succeeds but pushes
// nothing onto the undo stack. finalName overrides the name given to Begin
// when non-empty.
func (m *Manager) Commit(finalName string) error {
	if m.txn == nil {
		return ErrNoTransaction
	}
	txn := m.txn
	m.txn = nil

	if len(txn.ops) == 0 {
		return nil
	}

	name := txn.name
	if finalName != "" {
		name = finalName
	}

	group := &Group{
		Ops:               txn.ops,
		MarksSnapshot:     txn.marksSnapshot,
		LineCount:         txn.lineCount,
		IsFromTransaction: true,
		Name:              name,
	}
	m.undoStack = append(m.undoStack, group)
	if len(m.undoStack) > m.maxUndoLevels {
		m.undoStack = m.undoStack[1:]
	}
	m.redoStack = nil
	return nil
}

// Rollback replays the transaction's operations in reverse against the VPM
// and restores the marks snapshot taken at Begin. The undo/redo stacks are
// left exactly as they were before Begin.
func (m *Manager) Rollback() error {
	if m.txn == nil {
		return ErrNoTransaction
	}
	txn := m.txn
	m.txn = nil

	group := &Group{Ops: txn.ops, MarksSnapshot: txn.marksSnapshot}
	return m.invert(group)
}
