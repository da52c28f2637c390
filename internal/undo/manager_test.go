package undo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBuffer is a minimal Mutator + MarksCoordinator stand-in: a plain byte
// slice plus a trivial mark map, enough to drive undo/redo without pulling
// in vpm or marks.
type fakeBuffer struct {
	data  []byte
	marks map[string]int64
}

func newFakeBuffer(initial string) *fakeBuffer {
	return &fakeBuffer{data: []byte(initial), marks: map[string]int64{}}
}

func (f *fakeBuffer) InsertAt(pos int64, data []byte) (int, error) {
	f.data = append(f.data[:pos:pos], append(append([]byte(nil), data...), f.data[pos:]...)...)
	return len(data), nil
}

func (f *fakeBuffer) DeleteRange(start, end int64) ([]byte, error) {
	removed := append([]byte(nil), f.data[start:end]...)
	f.data = append(f.data[:start:start], f.data[end:]...)
	return removed, nil
}

func (f *fakeBuffer) TotalSize() int64 { return int64(len(f.data)) }

func (f *fakeBuffer) NotifyEdit(pos, deleted, inserted int64) {}

func (f *fakeBuffer) Snapshot() map[string]int64 {
	cp := make(map[string]int64, len(f.marks))
	for k, v := range f.marks {
		cp[k] = v
	}
	return cp
}

func (f *fakeBuffer) Restore(snapshot map[string]int64, total int64) {
	f.marks = snapshot
}

func (f *fakeBuffer) GetLineCount() int { return 1 }

func TestUndoRedoRoundTripInsert(t *testing.T) {
	buf := newFakeBuffer("hello")
	m := NewManager(buf, buf, Config{MergeTimeWindowMS: 1})

	n, err := buf.InsertAt(5, []byte(" world"))
	require.NoError(t, err)
	m.Record(NewInsertOp(5, []byte(" world"), int64(5+n)), buf.Snapshot())
	assert.Equal(t, "hello world", string(buf.data))

	require.NoError(t, m.Undo())
	assert.Equal(t, "hello", string(buf.data))

	require.NoError(t, m.Redo())
	assert.Equal(t, "hello world", string(buf.data))
}

func TestUndoWithNothingToUndo(t *testing.T) {
	buf := newFakeBuffer("x")
	m := NewManager(buf, buf, Config{})
	assert.ErrorIs(t, m.Undo(), ErrNothingToUndo)
}

func TestRedoWithNothingToRedo(t *testing.T) {
	buf := newFakeBuffer("x")
	m := NewManager(buf, buf, Config{})
	assert.ErrorIs(t, m.Redo(), ErrNothingToRedo)
}

func TestRecordMergesRapidTypingIntoOneGroup(t *testing.T) {
	buf := newFakeBuffer("")
	m := NewManager(buf, buf, Config{MergeTimeWindowMS: 60000, MergePositionWindow: 0})

	// Three contiguous single-character inserts, forced to share one
	// timestamp so the time-window gate never rejects the merge.
	ts := nowMillis()
	op1 := Operation{Type: OpInsert, PreExecutionPosition: 0, Data: []byte("a"), Timestamp: ts, PostExecutionPosition: 1}
	_, _ = buf.InsertAt(0, []byte("a"))
	m.Record(op1, buf.Snapshot())

	op2 := Operation{Type: OpInsert, PreExecutionPosition: 1, Data: []byte("b"), Timestamp: ts, PostExecutionPosition: 2}
	_, _ = buf.InsertAt(1, []byte("b"))
	m.Record(op2, buf.Snapshot())

	op3 := Operation{Type: OpInsert, PreExecutionPosition: 2, Data: []byte("c"), Timestamp: ts, PostExecutionPosition: 3}
	_, _ = buf.InsertAt(2, []byte("c"))
	m.Record(op3, buf.Snapshot())

	assert.Equal(t, 1, m.UndoStackLen(), "three contiguous inserts should merge into a single undo group")
	require.NoError(t, m.Undo())
	assert.Equal(t, "", string(buf.data), "undoing the merged group removes all three characters at once")
}

func TestTransactionRollbackUndoesAllOps(t *testing.T) {
	buf := newFakeBuffer("hello")
	m := NewManager(buf, buf, Config{})

	require.NoError(t, m.Begin("batch"))
	_, _ = buf.InsertAt(5, []byte(" world"))
	m.Record(NewInsertOp(5, []byte(" world"), 11), buf.Snapshot())
	_, _ = buf.DeleteRange(0, 5)
	removed := []byte("hello")
	m.Record(NewDeleteOp(0, removed, 0), buf.Snapshot())

	assert.True(t, m.InTransaction())
	assert.Equal(t, " world", string(buf.data))

	require.NoError(t, m.Rollback())
	assert.Equal(t, "hello", string(buf.data))
	assert.False(t, m.InTransaction())
	assert.Equal(t, 0, m.UndoStackLen(), "rollback leaves the undo stack untouched by the transaction")
}

func TestTransactionCommitPushesOneGroup(t *testing.T) {
	buf := newFakeBuffer("hello")
	m := NewManager(buf, buf, Config{})

	require.NoError(t, m.Begin("batch"))
	_, _ = buf.InsertAt(5, []byte("!"))
	m.Record(NewInsertOp(5, []byte("!"), 6), buf.Snapshot())
	require.NoError(t, m.Commit(""))

	assert.Equal(t, 1, m.UndoStackLen())
	require.NoError(t, m.Undo())
	assert.Equal(t, "hello", string(buf.data))
}

func TestBeginTwiceFails(t *testing.T) {
	buf := newFakeBuffer("x")
	m := NewManager(buf, buf, Config{})
	require.NoError(t, m.Begin("a"))
	assert.ErrorIs(t, m.Begin("b"), ErrTransactionOpen)
}

func TestRedoDisabledDuringTransaction(t *testing.T) {
	buf := newFakeBuffer("x")
	m := NewManager(buf, buf, Config{})
	require.NoError(t, m.Begin("a"))
	assert.ErrorIs(t, m.Redo(), ErrRedoDuringTransaction)
}
