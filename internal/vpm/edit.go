package vpm

import (
	"fmt"

	"github.com/tuannm99/pagedbuf/internal/notify"
	"github.com/tuannm99/pagedbuf/internal/pageindex"
)

// InsertAt splices bytes into the virtual stream at pos. It returns the
// number of bytes inserted (always len(data)).
func (m *Manager) InsertAt(pos int64, data []byte) (int, error) {
	if len(data) == 0 {
		return 0, nil
	}

	d, rel, page, err := m.translate(pos)
	if err != nil {
		return 0, err
	}

	page.Data = append(page.Data[:rel:rel], append(append([]byte(nil), data...), page.Data[rel:]...)...)
	page.rebuild()
	page.IsDirty = true
	d.IsDirty = true

	if err := m.idx.UpdatePageSize(d.PageKey, int64(len(data))); err != nil {
		return 0, err
	}

	if m.notifier != nil {
		m.notifier.NotifyEdit(pos, 0, int64(len(data)))
	}

	if int64(len(page.Data)) > m.maxPageSize {
		if err := m.splitPage(d, page); err != nil {
			return len(data), err
		}
	} else {
		m.probeMerge(d)
	}

	return len(data), nil
}

// DeleteRange removes [start, end) from the virtual stream and returns the
// deleted bytes, clamped to [0, totalSize].
func (m *Manager) DeleteRange(start, end int64) ([]byte, error) {
	total := m.idx.TotalSize()
	if start < 0 {
		start = 0
	}
	if end > total {
		end = total
	}
	if end <= start {
		return nil, nil
	}

	pages := m.idx.GetPagesInRange(start, end)
	if len(pages) == 0 {
		return nil, nil
	}

	// Collect sub-buffers forward, but mutate pages in reverse so earlier
	// positions aren't invalidated mid-loop.
	subs := make([][]byte, len(pages))
	keysToCheck := make([]string, 0, len(pages))

	for i := len(pages) - 1; i >= 0; i-- {
		d := pages[i]
		page, ok := m.cache[d.PageKey]
		if !ok {
			var err error
			_, _, page, err = m.translate(d.VirtualStart)
			if err != nil {
				return nil, err
			}
		}

		lo := maxI64(start, d.VirtualStart) - d.VirtualStart
		hi := minI64(end, d.VirtualEnd()) - d.VirtualStart

		removed := append([]byte(nil), page.Data[lo:hi]...)
		subs[i] = removed

		page.Data = append(page.Data[:lo:lo], page.Data[hi:]...)
		page.rebuild()
		page.IsDirty = true
		d.IsDirty = true

		if err := m.idx.UpdatePageSize(d.PageKey, -(hi - lo)); err != nil {
			return nil, err
		}
		keysToCheck = append(keysToCheck, d.PageKey)
	}

	deleted := make([]byte, 0, end-start)
	for _, s := range subs {
		deleted = append(deleted, s...)
	}

	m.removeEmptyDescriptors()

	for _, k := range keysToCheck {
		if d, ok := m.idx.ByKey(k); ok {
			m.probeMerge(d)
		}
	}

	if m.notifier != nil {
		m.notifier.NotifyEdit(start, int64(len(deleted)), 0)
	}

	return deleted, nil
}

// ReadRange returns the (possibly zero-padded) bytes in [start, end),
// clamped, never failing.
func (m *Manager) ReadRange(start, end int64) []byte {
	data, _ := m.ReadRangeStatus(start, end)
	return data
}

// ReadRangeStatus behaves like ReadRange but additionally reports whether
// any intersecting page failed to load, so the save path can tell freshly
// discovered missing data apart from already-known ranges.
func (m *Manager) ReadRangeStatus(start, end int64) ([]byte, bool) {
	total := m.idx.TotalSize()
	if start < 0 {
		start = 0
	}
	if end > total {
		end = total
	}
	if end <= start {
		return []byte{}, false
	}

	failed := false
	out := make([]byte, 0, end-start)
	for _, d := range m.idx.GetPagesInRange(start, end) {
		page, err := m.ensurePageLoaded(d)
		if err != nil {
			failed = true
		}
		lo := maxI64(start, d.VirtualStart) - d.VirtualStart
		hi := minI64(end, d.VirtualEnd()) - d.VirtualStart
		want := hi - lo

		if err != nil || int64(len(page.Data)) < hi {
			// Detachment padded this page short; top up with zero bytes so
			// the caller never sees a truncated read.
			avail := int64(0)
			if int64(len(page.Data)) > lo {
				avail = int64(len(page.Data)) - lo
				out = append(out, page.Data[lo:lo+avail]...)
			}
			out = append(out, make([]byte, want-avail)...)
			continue
		}
		out = append(out, page.Data[lo:hi]...)
	}
	return out, failed
}

func (m *Manager) removeEmptyDescriptors() {
	for i := 0; i < m.idx.Len(); {
		d := m.idx.At(i)
		if d.VirtualSize == 0 && m.idx.Len() > 1 {
			m.lru.remove(d.PageKey)
			delete(m.cache, d.PageKey)
			m.idx.RemovePage(d.PageKey)
			continue
		}
		i++
	}
}

// splitPage performs a midpoint split: new successor descriptor holding the
// upper half, cached line info invalidated by the caller (the Buffer facade
// re-derives lines lazily).
func (m *Manager) splitPage(d *pageindex.Descriptor, page *PageInfo) error {
	mid := int64(len(page.Data)) / 2
	newKey := m.newPageKey()

	successor, err := m.idx.SplitPage(d.PageKey, mid, newKey)
	if err != nil {
		return err
	}

	upperData := append([]byte(nil), page.Data[mid:]...)
	page.Data = page.Data[:mid:mid]
	page.rebuild()

	m.cache[newKey] = newPageInfo(upperData)
	m.lru.touch(newKey)

	m.emit(notify.PageSplit, notify.SeverityInfo,
		fmt.Sprintf("split page %s at %d", d.PageKey, successor.VirtualStart),
		map[string]any{"parent": d.PageKey, "child": newKey, "at": successor.VirtualStart})

	m.enforceMemoryLimit()
	return nil
}

// probeMerge looks at d's neighbors, and if either is below minPageSize and
// the combined size fits maxPageSize, merges. The larger page absorbs the
// smaller; ties favor the earlier page.
func (m *Manager) probeMerge(d *pageindex.Descriptor) {
	idx := m.indexOf(d.PageKey)
	if idx < 0 {
		return
	}

	if idx+1 < m.idx.Len() {
		next := m.idx.At(idx + 1)
		if m.shouldMerge(d, next) {
			m.mergePages(d, next)
			return
		}
	}
	if idx-1 >= 0 {
		prev := m.idx.At(idx - 1)
		if m.shouldMerge(prev, d) {
			m.mergePages(prev, d)
		}
	}
}

func (m *Manager) shouldMerge(a, b *pageindex.Descriptor) bool {
	if a.VirtualSize == 0 || b.VirtualSize == 0 {
		return false
	}
	combined := a.VirtualSize + b.VirtualSize
	if combined > m.maxPageSize {
		return false
	}
	return a.VirtualSize < m.minPageSize || b.VirtualSize < m.minPageSize
}

// mergePages merges later into earlier (or earlier into later) so the larger
// absorbs the smaller, ties favoring the earlier page.
func (m *Manager) mergePages(earlier, later *pageindex.Descriptor) {
	target, absorbed := earlier, later
	if later.VirtualSize > earlier.VirtualSize {
		target, absorbed = later, earlier
	}

	targetPage, err := m.ensurePageLoaded(target)
	if err != nil {
		return
	}
	absorbedPage, err := m.ensurePageLoaded(absorbed)
	if err != nil {
		return
	}

	var merged []byte
	if absorbed.VirtualStart < target.VirtualStart {
		merged = append(append([]byte(nil), absorbedPage.Data...), targetPage.Data...)
		target.VirtualStart = absorbed.VirtualStart
	} else {
		merged = append(append([]byte(nil), targetPage.Data...), absorbedPage.Data...)
	}

	targetPage.Data = merged
	targetPage.rebuild()
	targetPage.IsDirty = true
	target.IsDirty = true
	target.VirtualSize = int64(len(merged))

	m.lru.remove(absorbed.PageKey)
	delete(m.cache, absorbed.PageKey)
	m.idx.RemovePage(absorbed.PageKey)

	// Best-effort delete of the absorbed page's storage entry, if any.
	if absorbed.SourceType == pageindex.SourceStorage {
		key := absorbed.Source.StorageKey
		if key == "" {
			key = absorbed.PageKey
		}
		_ = m.store.DeletePage(key)
	}

	m.emit(notify.PageMerged, notify.SeverityInfo,
		fmt.Sprintf("merged page %s into %s", absorbed.PageKey, target.PageKey),
		map[string]any{"absorbed": absorbed.PageKey, "target": target.PageKey})
}

func (m *Manager) indexOf(key string) int {
	for i := 0; i < m.idx.Len(); i++ {
		if m.idx.At(i).PageKey == key {
			return i
		}
	}
	return -1
}

func maxI64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func minI64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
