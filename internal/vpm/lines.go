package vpm

// NewlineIndex returns the virtual address of every newline byte in the
// buffer, ascending, loading any evicted page along the way, rebuilt fresh
// from every loaded/cached page's newline positions on each call. Loading
// here is no different from a read: a load failure still yields a
// zero-filled stand-in rather than aborting the scan.
func (m *Manager) NewlineIndex() []int64 {
	var out []int64
	for i := 0; i < m.idx.Len(); i++ {
		d := m.idx.At(i)
		page, _ := m.ensurePageLoaded(d)
		for _, rel := range page.NewlinePositions {
			out = append(out, d.VirtualStart+int64(rel))
		}
		d.NewlineCount = len(page.NewlinePositions)
	}
	return out
}
