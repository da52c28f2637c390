package pageindex

import (
	"fmt"
	"sort"

	"github.com/tuannm99/pagedbuf/internal/bufferr"
)

// Index is the dense sorted array of descriptors plus the key map. All
// mutations are synchronous; UpdatePageSize and SplitPage fail only on an
// unknown key or (SplitPage) an offset outside the page. Lookups by position
// fail with AddressOutOfRange.
type Index struct {
	descs      []*Descriptor
	byKey      map[string]*Descriptor
	totalSize  int64
	nextGenSeq int64
}

// NewEmpty returns an index holding the single empty placeholder page a
// zero-byte buffer needs.
func NewEmpty(pageKey string) *Index {
	idx := &Index{byKey: make(map[string]*Descriptor)}
	placeholder := &Descriptor{
		PageKey:    pageKey,
		SourceType: SourceMemory,
		IsLoaded:   true,
		IsDirty:    false,
	}
	idx.descs = []*Descriptor{placeholder}
	idx.byKey[pageKey] = placeholder
	return idx
}

// New builds an index from descriptors already in virtualStart order
// (caller-constructed, e.g. by chunking a file or a content buffer).
func New(descs []*Descriptor) *Index {
	idx := &Index{byKey: make(map[string]*Descriptor)}
	idx.descs = descs
	for _, d := range descs {
		idx.byKey[d.PageKey] = d
		if d.VirtualEnd() > idx.totalSize {
			idx.totalSize = d.VirtualEnd()
		}
	}
	return idx
}

func (idx *Index) TotalSize() int64 { return idx.totalSize }

func (idx *Index) Len() int { return len(idx.descs) }

func (idx *Index) At(i int) *Descriptor { return idx.descs[i] }

func (idx *Index) ByKey(key string) (*Descriptor, bool) {
	d, ok := idx.byKey[key]
	return d, ok
}

// NextGeneration returns a monotonically increasing generation number, used
// when splitting a page: the new descriptor's generation is always strictly
// greater than its parent's.
func (idx *Index) NextGeneration(base int64) int64 {
	if base+1 > idx.nextGenSeq {
		idx.nextGenSeq = base + 1
	}
	idx.nextGenSeq++
	return idx.nextGenSeq - 1
}

// FindPageAt binary-searches for the descriptor whose range contains pos,
// the tail descriptor for pos == totalSize (the insertion point), or a
// failure outside that closed interval.
func (idx *Index) FindPageAt(pos int64) (*Descriptor, int64, error) {
	if pos < 0 || pos > idx.totalSize {
		return nil, 0, bufferr.New(bufferr.KindAddressOutOfRange,
			fmt.Sprintf("position %d outside [0,%d]", pos, idx.totalSize))
	}
	if len(idx.descs) == 0 {
		return nil, 0, bufferr.New(bufferr.KindAddressOutOfRange, "empty index")
	}
	if pos == idx.totalSize {
		last := idx.descs[len(idx.descs)-1]
		return last, last.VirtualSize, nil
	}

	i := sort.Search(len(idx.descs), func(i int) bool {
		return idx.descs[i].VirtualEnd() > pos
	})
	if i >= len(idx.descs) {
		return nil, 0, bufferr.New(bufferr.KindAddressOutOfRange,
			fmt.Sprintf("position %d not covered", pos))
	}
	d := idx.descs[i]
	return d, pos - d.VirtualStart, nil
}

// GetPagesInRange returns the descriptors intersecting [start, end),
// excluding empty pages, in forward order.
func (idx *Index) GetPagesInRange(start, end int64) []*Descriptor {
	if end <= start || len(idx.descs) == 0 {
		return nil
	}

	first := sort.Search(len(idx.descs), func(i int) bool {
		return idx.descs[i].VirtualEnd() > start
	})
	last := sort.Search(len(idx.descs), func(i int) bool {
		return idx.descs[i].VirtualStart >= end
	})

	out := make([]*Descriptor, 0, last-first)
	for i := first; i < last && i < len(idx.descs); i++ {
		if idx.descs[i].VirtualSize == 0 {
			continue
		}
		out = append(out, idx.descs[i])
	}
	return out
}

// InsertPageAfter inserts desc immediately after the descriptor identified
// by afterKey (or at the front if afterKey is empty). Callers are
// responsible for keeping VirtualStart values consistent; this is normally
// only called from SplitPage, which recomputes neighbors itself.
func (idx *Index) InsertPageAfter(afterKey string, desc *Descriptor) {
	pos := len(idx.descs)
	if afterKey != "" {
		for i, d := range idx.descs {
			if d.PageKey == afterKey {
				pos = i + 1
				break
			}
		}
	} else {
		pos = 0
	}

	idx.descs = append(idx.descs, nil)
	copy(idx.descs[pos+1:], idx.descs[pos:])
	idx.descs[pos] = desc
	idx.byKey[desc.PageKey] = desc
	if desc.VirtualEnd() > idx.totalSize {
		idx.totalSize = desc.VirtualEnd()
	}
}

// RemovePage deletes the descriptor for key from both structures.
func (idx *Index) RemovePage(key string) {
	d, ok := idx.byKey[key]
	if !ok {
		return
	}
	delete(idx.byKey, key)
	for i, cur := range idx.descs {
		if cur == d {
			idx.descs = append(idx.descs[:i], idx.descs[i+1:]...)
			break
		}
	}
}

// UpdatePageSize adjusts the target page's size by delta and shifts the
// VirtualStart of every subsequent descriptor by the same delta. The total
// virtual size is updated to match.
func (idx *Index) UpdatePageSize(key string, delta int64) error {
	d, ok := idx.byKey[key]
	if !ok {
		return fmt.Errorf("pageindex: updatePageSize: unknown key %q", key)
	}

	pos := -1
	for i, cur := range idx.descs {
		if cur == d {
			pos = i
			break
		}
	}
	if pos < 0 {
		return fmt.Errorf("pageindex: updatePageSize: key %q not indexed", key)
	}

	d.VirtualSize += delta
	for i := pos + 1; i < len(idx.descs); i++ {
		idx.descs[i].VirtualStart += delta
	}
	idx.totalSize += delta
	return nil
}

// SplitPage shrinks the descriptor at key to VirtualSize == offset and
// inserts a new descriptor immediately after it holding the remainder.
// Physical data movement is the VPM's responsibility; this only updates
// index bookkeeping and returns the new descriptor.
func (idx *Index) SplitPage(key string, offset int64, newKey string) (*Descriptor, error) {
	d, ok := idx.byKey[key]
	if !ok {
		return nil, fmt.Errorf("pageindex: splitPage: unknown key %q", key)
	}
	if offset <= 0 || offset >= d.VirtualSize {
		return nil, fmt.Errorf("pageindex: splitPage: offset %d out of (0,%d)", offset, d.VirtualSize)
	}

	remainder := d.VirtualSize - offset
	newStart := d.VirtualStart + offset

	d.VirtualSize = offset

	successor := &Descriptor{
		PageKey:      newKey,
		VirtualStart: newStart,
		VirtualSize:  remainder,
		SourceType:   SourceMemory,
		IsDirty:      true,
		IsLoaded:     true,
		ParentKey:    key,
		Generation:   idx.NextGeneration(d.Generation),
		Source:       SourceInfo{StorageKey: newKey},
	}

	idx.InsertPageAfter(key, successor)
	return successor, nil
}

// Validate is a test hook verifying the partition invariants: strictly
// increasing, contiguous, gap/overlap-free, and key-map in sync.
func (idx *Index) Validate() error {
	if len(idx.byKey) != len(idx.descs) {
		return fmt.Errorf("pageindex: key map has %d entries, array has %d", len(idx.byKey), len(idx.descs))
	}

	var sum int64
	var prevEnd int64
	for i, d := range idx.descs {
		if d.VirtualStart != prevEnd {
			return fmt.Errorf("pageindex: gap/overlap at index %d: start=%d want=%d", i, d.VirtualStart, prevEnd)
		}
		if found, ok := idx.byKey[d.PageKey]; !ok || found != d {
			return fmt.Errorf("pageindex: key map out of sync for %q", d.PageKey)
		}
		if d.VirtualSize < 0 {
			return fmt.Errorf("pageindex: negative size at index %d", i)
		}
		if d.VirtualSize == 0 && len(idx.descs) != 1 {
			return fmt.Errorf("pageindex: empty page %q not the sole placeholder", d.PageKey)
		}
		sum += d.VirtualSize
		prevEnd = d.VirtualEnd()
	}
	if sum != idx.totalSize {
		return fmt.Errorf("pageindex: sum of sizes %d != totalSize %d", sum, idx.totalSize)
	}
	return nil
}
