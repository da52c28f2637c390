package undo

import (
	"errors"
)

var (
	ErrNothingToUndo         = errors.New("undo: nothing to undo")
	ErrNothingToRedo         = errors.New("undo: nothing to redo")
	ErrTransactionOpen       = errors.New("undo: a transaction is already open")
	ErrNoTransaction         = errors.New("undo: no transaction is open")
	ErrRedoDuringTransaction = errors.New("undo: redo is disabled while a transaction is open")
)

// Mutator is the VPM-side collaborator undo/redo execution drives. Declared
// here rather than imported from vpm so the two packages stay decoupled.
type Mutator interface {
	InsertAt(pos int64, data []byte) (int, error)
	DeleteRange(start, end int64) ([]byte, error)
	TotalSize() int64
}

// MarksCoordinator is the marks-side collaborator: undo/redo must notify it
// symmetrically with every inverse/forward step, and restore its snapshot.
type MarksCoordinator interface {
	NotifyEdit(pos, deletedBytes, insertedBytes int64)
	Snapshot() map[string]int64
	Restore(snapshot map[string]int64, total int64)
	GetLineCount() int
}

// Config holds the tunable knobs the undo system consumes directly.
type Config struct {
	MaxUndoLevels       int
	MergeTimeWindowMS   int64
	MergePositionWindow int64
}

// Manager owns the undo/redo stacks and the optional open transaction.
type Manager struct {
	vpm   Mutator
	marks MarksCoordinator

	undoStack []*Group
	redoStack []*Group

	maxUndoLevels       int
	mergeTimeWindowMS   int64
	mergePositionWindow int64

	txn *Transaction
}

func NewManager(vpm Mutator, marks MarksCoordinator, cfg Config) *Manager {
	if cfg.MaxUndoLevels <= 0 {
		cfg.MaxUndoLevels = 50
	}
	if cfg.MergeTimeWindowMS <= 0 {
		cfg.MergeTimeWindowMS = 5000
	}
	if cfg.MergePositionWindow < 0 {
		cfg.MergePositionWindow = 0
	}
	return &Manager{
		vpm:                 vpm,
		marks:               marks,
		maxUndoLevels:       cfg.MaxUndoLevels,
		mergeTimeWindowMS:   cfg.MergeTimeWindowMS,
		mergePositionWindow: cfg.MergePositionWindow,
	}
}

func (m *Manager) InTransaction() bool { return m.txn != nil }

func (m *Manager) UndoStackLen() int { return len(m.undoStack) }
func (m *Manager) RedoStackLen() int { return len(m.redoStack) }

// Record is invoked by the Buffer facade after a mutation has already
// succeeded against the VPM. preOpMarks is the deep copy of the mark set
// captured before that mutation ran, the caller's responsibility, since by
// the time Record executes the marks have already shifted.
func (m *Manager) Record(op Operation, preOpMarks map[string]int64) {
	if m.txn != nil {
		m.txn.ops = append(m.txn.ops, op)
		return
	}

	if n := len(m.undoStack); n > 0 {
		top := m.undoStack[n-1]
		if canMergeInto(top, op, m.mergeTimeWindowMS, m.mergePositionWindow) {
			last := top.lastOp()
			if isPhysicalMerge(last, op) {
				idx := len(top.Ops) - 1
				top.Ops[idx].Data = append(top.Ops[idx].Data, op.Data...)
				top.Ops[idx].PostExecutionPosition = op.PostExecutionPosition
				top.Ops[idx].Timestamp = op.Timestamp
			} else {
				top.Ops = append(top.Ops, op)
			}
			m.redoStack = nil
			return
		}
	}

	group := &Group{
		Ops:           []Operation{op},
		MarksSnapshot: preOpMarks,
		LineCount:     m.marks.GetLineCount(),
	}
	m.undoStack = append(m.undoStack, group)
	if len(m.undoStack) > m.maxUndoLevels {
		m.undoStack = m.undoStack[1:]
	}
	m.redoStack = nil
}

// canMergeInto is the merge-decision gate: rejects transaction groups, then
// checks the time window, then the position window.
func canMergeInto(group *Group, newOp Operation, windowMS, posWindow int64) bool {
	if group.IsFromTransaction {
		return false
	}
	last := group.lastOp()
	if abs64(newOp.Timestamp-last.Timestamp) > windowMS {
		return false
	}
	return mergeDistance(last, newOp) <= posWindow
}

// isPhysicalMerge implements step 4's physical-merge condition: both ops
// are inserts, truly contiguous, with zero logical distance.
func isPhysicalMerge(last, newOp Operation) bool {
	if last.Type != OpInsert || newOp.Type != OpInsert {
		return false
	}
	if newOp.PreExecutionPosition != last.PreExecutionPosition+int64(len(last.Data)) {
		return false
	}
	return mergeDistance(last, newOp) == 0
}

func mergeDistance(last, newOp Operation) int64 {
	end := last.end()
	d := maxI64(0, newOp.PreExecutionPosition-end)
	d = maxI64(d, last.PreExecutionPosition-newOp.PreExecutionPosition)
	return d
}

// Undo pops the top undo group, inverts it against the VPM, restores the
// group's pre-op marks snapshot, and pushes it to the redo stack. A group
// that fails to invert stays on the undo stack.
func (m *Manager) Undo() error {
	if m.txn != nil {
		return m.Rollback()
	}
	n := len(m.undoStack)
	if n == 0 {
		return ErrNothingToUndo
	}
	group := m.undoStack[n-1]
	if err := m.invert(group); err != nil {
		return err
	}
	m.undoStack = m.undoStack[:n-1]
	m.redoStack = append(m.redoStack, group)
	return nil
}

// Redo pops the top redo group, snapshots current marks onto it (so a
// subsequent undo knows what to restore), replays it forward, and pushes it
// back onto the undo stack.
func (m *Manager) Redo() error {
	if m.txn != nil {
		return ErrRedoDuringTransaction
	}
	n := len(m.redoStack)
	if n == 0 {
		return ErrNothingToRedo
	}
	group := m.redoStack[n-1]
	group.MarksSnapshot = m.marks.Snapshot()
	if err := m.replay(group); err != nil {
		return err
	}
	m.redoStack = m.redoStack[:n-1]
	m.undoStack = append(m.undoStack, group)
	return nil
}

// invert iterates a group's operations in reverse, applying each one's
// inverse against the VPM.
func (m *Manager) invert(group *Group) error {
	for i := len(group.Ops) - 1; i >= 0; i-- {
		op := group.Ops[i]
		switch op.Type {
		case OpInsert:
			if _, err := m.vpm.DeleteRange(op.PreExecutionPosition, op.PreExecutionPosition+int64(len(op.Data))); err != nil {
				return err
			}
			m.marks.NotifyEdit(op.PreExecutionPosition, int64(len(op.Data)), 0)
		case OpDelete:
			if _, err := m.vpm.InsertAt(op.PreExecutionPosition, op.OriginalData); err != nil {
				return err
			}
			m.marks.NotifyEdit(op.PreExecutionPosition, 0, int64(len(op.OriginalData)))
		case OpOverwrite:
			if _, err := m.vpm.DeleteRange(op.PreExecutionPosition, op.PreExecutionPosition+int64(len(op.Data))); err != nil {
				return err
			}
			if _, err := m.vpm.InsertAt(op.PreExecutionPosition, op.OriginalData); err != nil {
				return err
			}
			m.marks.NotifyEdit(op.PreExecutionPosition, int64(len(op.Data)), int64(len(op.OriginalData)))
		}
	}
	m.marks.Restore(group.MarksSnapshot, m.vpm.TotalSize())
	return nil
}

// replay iterates a group's operations forward, re-applying each one
// exactly as it was first recorded.
func (m *Manager) replay(group *Group) error {
	for _, op := range group.Ops {
		switch op.Type {
		case OpInsert:
			if _, err := m.vpm.InsertAt(op.PreExecutionPosition, op.Data); err != nil {
				return err
			}
			m.marks.NotifyEdit(op.PreExecutionPosition, 0, int64(len(op.Data)))
		case OpDelete:
			if _, err := m.vpm.DeleteRange(op.PreExecutionPosition, op.PreExecutionPosition+int64(len(op.OriginalData))); err != nil {
				return err
			}
			m.marks.NotifyEdit(op.PreExecutionPosition, int64(len(op.OriginalData)), 0)
		case OpOverwrite:
			if _, err := m.vpm.DeleteRange(op.PreExecutionPosition, op.PreExecutionPosition+int64(len(op.OriginalData))); err != nil {
				return err
			}
			if _, err := m.vpm.InsertAt(op.PreExecutionPosition, op.Data); err != nil {
				return err
			}
			m.marks.NotifyEdit(op.PreExecutionPosition, int64(len(op.OriginalData)), int64(len(op.Data)))
		}
	}
	return nil
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

func maxI64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
