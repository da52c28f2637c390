// Package marks implements the line and marks manager: named marks that
// track edits, and a lazily rebuilt line-start index used for byte↔(line,char)
// conversion.
package marks

import (
	"fmt"
	"sort"
)

// LineSource is the VPM-side collaborator this manager pulls newline data
// from. Declared here (rather than imported from vpm) so the two packages
// stay decoupled; any type with these two methods satisfies it
// structurally, including *vpm.Manager.
type LineSource interface {
	TotalSize() int64
	// NewlineIndex returns every newline's virtual address, in ascending
	// order, across the whole buffer.
	NewlineIndex() []int64
}

// MarkRef is a (name, relative offset) pair as used by mark
// extraction/insertion.
type MarkRef struct {
	Name           string
	RelativeOffset int64
}

// Manager owns the name→address map and the cached line-start list.
type Manager struct {
	src   LineSource
	marks map[string]int64

	// lineStarts is nil when stale; rebuilt lazily by ensureLines.
	lineStarts []int64
}

func NewManager(src LineSource) *Manager {
	return &Manager{
		src:   src,
		marks: make(map[string]int64),
	}
}

// NotifyEdit implements vpm.LineMarksNotifier: apply the mark-shift rule to
// every mark, and invalidate the cached line-start list.
func (m *Manager) NotifyEdit(pos, deleted, inserted int64) {
	delta := inserted - deleted
	for name, addr := range m.marks {
		switch {
		case addr < pos:
			// unchanged
		case addr >= pos+deleted:
			m.marks[name] = addr + delta
		default:
			m.marks[name] = pos
		}
	}
	m.invalidateLines()
}

func (m *Manager) invalidateLines() { m.lineStarts = nil }

func (m *Manager) ensureLines() {
	if m.lineStarts != nil {
		return
	}
	raw := m.src.NewlineIndex()
	starts := make([]int64, 0, len(raw)+1)
	starts = append(starts, 0)
	for _, nl := range raw {
		starts = append(starts, nl+1)
	}
	m.lineStarts = starts
}

// SetMark registers or overwrites a named mark. addr must lie within
// [0, totalSize]; an out-of-range address is rejected with an error and the
// mark set is left unchanged. The Buffer facade passes addresses through
// without clamping them.
func (m *Manager) SetMark(name string, addr int64) error {
	total := m.src.TotalSize()
	if addr < 0 || addr > total {
		return fmt.Errorf("marks: address %d outside [0,%d]", addr, total)
	}
	m.marks[name] = addr
	return nil
}

func (m *Manager) GetMark(name string) (int64, bool) {
	addr, ok := m.marks[name]
	return addr, ok
}

func (m *Manager) DeleteMark(name string) {
	delete(m.marks, name)
}

func (m *Manager) MarkNames() []string {
	names := make([]string, 0, len(m.marks))
	for n := range m.marks {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ExtractMarksInRange returns (name, relativeOffset) for every mark whose
// address is in [start, end), ascending by address. It does not mutate any
// mark; the caller performs the delete separately.
func (m *Manager) ExtractMarksInRange(start, end int64) []MarkRef {
	type pair struct {
		name string
		addr int64
	}
	var pairs []pair
	for name, addr := range m.marks {
		if addr >= start && addr < end {
			pairs = append(pairs, pair{name, addr})
		}
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].addr < pairs[j].addr })

	out := make([]MarkRef, len(pairs))
	for i, p := range pairs {
		out[i] = MarkRef{Name: p.name, RelativeOffset: p.addr - start}
	}
	return out
}

// InsertMarksAt registers each mark at insertPos + RelativeOffset,
// overwriting any existing mark of the same name. The caller must invoke
// this *after* the underlying plain insert has already shifted existing
// marks: first perform the plain insert, then register each supplied mark.
func (m *Manager) InsertMarksAt(insertPos int64, refs []MarkRef) {
	for _, r := range refs {
		m.marks[r.Name] = insertPos + r.RelativeOffset
	}
}

// Snapshot returns an immutable deep copy of the full mark set, for the
// undo system's pre-execution capture.
func (m *Manager) Snapshot() map[string]int64 {
	cp := make(map[string]int64, len(m.marks))
	for k, v := range m.marks {
		cp[k] = v
	}
	return cp
}

// Restore replaces the current mark set with snapshot, dropping any mark
// whose address falls outside [0, total]; invoked as part of undo/redo
// execution.
func (m *Manager) Restore(snapshot map[string]int64, total int64) {
	fresh := make(map[string]int64, len(snapshot))
	for name, addr := range snapshot {
		if addr >= 0 && addr <= total {
			fresh[name] = addr
		}
	}
	m.marks = fresh
	m.invalidateLines()
}
