// Package vpm implements the virtual page manager: address translation,
// page loading/eviction, insert/delete with split/merge, and detachment
// when the underlying source becomes unreadable.
package vpm

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"go.uber.org/atomic"

	"github.com/tuannm99/pagedbuf/internal/bufferr"
	"github.com/tuannm99/pagedbuf/internal/notify"
	"github.com/tuannm99/pagedbuf/internal/pageindex"
	"github.com/tuannm99/pagedbuf/internal/pagestore"
)

// LineMarksNotifier is the weak back-reference to the line & marks manager:
// VPM calls it after every edit, but never imports the marks package
// directly, avoiding the cyclic reference between the two subsystems. Both
// are actually owned by the Buffer facade.
type LineMarksNotifier interface {
	NotifyEdit(pos, deletedBytes, insertedBytes int64)
}

// DetachHandler receives a missing-data-range callback whenever a page load
// fails.
type DetachHandler interface {
	OnMissingData(virtualStart, virtualEnd int64, originalFileStart, originalFileEnd *int64, reason string)
}

// Config is the subset of the tunable knobs the VPM needs directly.
type Config struct {
	PageSize       int64
	MaxMemoryPages int
}

const (
	minPageSizeDivisor = 4
	maxPageSizeFactor  = 2
)

// Manager owns the address index, the page cache, the LRU list, and the
// source-file/storage plumbing behind it.
type Manager struct {
	idx   *pageindex.Index
	store pagestore.Store

	cache map[string]*PageInfo
	lru   *lruTracker

	pageSize       int64
	minPageSize    int64
	maxPageSize    int64
	maxLoadedPages int

	sourceFilename string

	notifier LineMarksNotifier
	detach   DetachHandler
	notify   *notify.Dispatcher

	keySeq atomic.Uint64
}

func NewManager(cfg Config, store pagestore.Store, dispatcher *notify.Dispatcher) *Manager {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 64 * 1024
	}
	if cfg.MaxMemoryPages <= 0 {
		cfg.MaxMemoryPages = 100
	}
	m := &Manager{
		store:          store,
		cache:          make(map[string]*PageInfo),
		lru:            newLRUTracker(),
		pageSize:       cfg.PageSize,
		minPageSize:    cfg.PageSize / minPageSizeDivisor,
		maxPageSize:    cfg.PageSize * maxPageSizeFactor,
		maxLoadedPages: cfg.MaxMemoryPages,
		notify:         dispatcher,
	}
	m.idx = pageindex.NewEmpty(m.newPageKey())
	return m
}

func (m *Manager) SetNotifier(n LineMarksNotifier)  { m.notifier = n }
func (m *Manager) SetDetachHandler(h DetachHandler) { m.detach = h }

func (m *Manager) Index() *pageindex.Index { return m.idx }

func (m *Manager) TotalSize() int64 { return m.idx.TotalSize() }

func (m *Manager) newPageKey() string {
	return fmt.Sprintf("mem-%d", m.keySeq.Add(1))
}

func (m *Manager) emit(typ notify.Type, sev notify.Severity, msg string, meta map[string]any) {
	if m.notify == nil {
		return
	}
	m.notify.Emit(typ, sev, msg, meta)
}

// InitializeFromFile partitions [0, fileSize) into one "original" descriptor
// per pageSize chunk; no pages are loaded yet.
func (m *Manager) InitializeFromFile(filename string, fileSize int64) error {
	m.sourceFilename = filename

	if fileSize == 0 {
		m.idx = pageindex.NewEmpty(m.newPageKey())
		return nil
	}

	var descs []*pageindex.Descriptor
	for start := int64(0); start < fileSize; start += m.pageSize {
		size := m.pageSize
		if start+size > fileSize {
			size = fileSize - start
		}
		descs = append(descs, &pageindex.Descriptor{
			PageKey:      m.newPageKey(),
			VirtualStart: start,
			VirtualSize:  size,
			SourceType:   pageindex.SourceOriginal,
			Source: pageindex.SourceInfo{
				Filename:     filename,
				FileOffset:   start,
				OriginalSize: size,
			},
		})
	}
	m.idx = pageindex.New(descs)
	m.resetCache()
	return nil
}

// InitializeFromContent partitions bytes into pageSize chunks, all loaded
// and dirty in memory, then immediately applies the memory limit (which may
// write some pages straight to the store).
func (m *Manager) InitializeFromContent(data []byte) error {
	m.sourceFilename = ""

	if len(data) == 0 {
		m.idx = pageindex.NewEmpty(m.newPageKey())
		m.resetCache()
		return nil
	}

	var descs []*pageindex.Descriptor
	for start := int64(0); start < int64(len(data)); start += m.pageSize {
		end := start + m.pageSize
		if end > int64(len(data)) {
			end = int64(len(data))
		}
		key := m.newPageKey()
		chunk := make([]byte, end-start)
		copy(chunk, data[start:end])

		descs = append(descs, &pageindex.Descriptor{
			PageKey:      key,
			VirtualStart: start,
			VirtualSize:  end - start,
			SourceType:   pageindex.SourceMemory,
			IsLoaded:     true,
			IsDirty:      true,
			Source:       pageindex.SourceInfo{StorageKey: key},
		})
	}
	m.idx = pageindex.New(descs)
	m.resetCache()

	for _, d := range descs {
		start := d.VirtualStart
		end := d.VirtualEnd()
		m.cache[d.PageKey] = newPageInfo(append([]byte(nil), data[start:end]...))
		m.lru.touch(d.PageKey)
	}
	return m.applyMemoryLimit()
}

func (m *Manager) resetCache() {
	m.cache = make(map[string]*PageInfo)
	m.lru = newLRUTracker()
}

// OriginalFilename reports the source file descriptors currently point at.
func (m *Manager) OriginalFilename() string { return m.sourceFilename }

// RewireOriginalFilename repoints every "original"-typed descriptor's
// sourceInfo.filename at newFilename, used by the atomic save path (point
// at the temp copy, then back at the final file).
func (m *Manager) RewireOriginalFilename(newFilename string) {
	m.sourceFilename = newFilename
	for i := 0; i < m.idx.Len(); i++ {
		d := m.idx.At(i)
		if d.SourceType == pageindex.SourceOriginal {
			d.Source.Filename = newFilename
		}
	}
}

// translate resolves pos to (descriptor, relative offset, loaded page).
// Only an invalid pos propagates as an error: a load failure is already
// handled (detachment + zero-filled stand-in) by ensurePageLoaded, so
// writers transparently edit the stand-in the same way readers
// transparently read zeros from it.
func (m *Manager) translate(pos int64) (*pageindex.Descriptor, int64, *PageInfo, error) {
	d, rel, err := m.idx.FindPageAt(pos)
	if err != nil {
		return nil, 0, nil, err
	}
	page, _ := m.ensurePageLoaded(d)
	return d, rel, page, nil
}

// ensurePageLoaded guarantees d has a resident PageInfo, loading it from
// its source if needed. On any failure it classifies the cause,
// synthesizes a missing data range, triggers detachment, and returns a
// zero-filled PageInfo so reads never throw.
func (m *Manager) ensurePageLoaded(d *pageindex.Descriptor) (*PageInfo, error) {
	if d.IsLoaded {
		if page, ok := m.cache[d.PageKey]; ok {
			m.lru.touch(d.PageKey)
			page.touch()
			return page, nil
		}
		if d.VirtualSize == 0 {
			// The empty-buffer placeholder is loaded by construction and has
			// no bytes to fetch; give it an empty resident page.
			page := newPageInfo(nil)
			m.cache[d.PageKey] = page
			m.lru.touch(d.PageKey)
			m.enforceMemoryLimit()
			return page, nil
		}
	}

	var data []byte
	var loadErr error

	switch d.SourceType {
	case pageindex.SourceOriginal:
		data, loadErr = m.loadFromOriginal(d)
	case pageindex.SourceStorage:
		data, loadErr = m.loadFromStorage(d)
	case pageindex.SourceMemory:
		// The page was evicted and its type silently flipped to storage
		// underneath it; try the store.
		data, loadErr = m.loadFromStorage(d)
	default:
		loadErr = fmt.Errorf("vpm: unknown source type %v", d.SourceType)
	}

	if loadErr != nil {
		cause := bufferr.ClassifyLoadFailure(loadErr)
		m.reportMissingData(d, cause)
		empty := newPageInfo(make([]byte, d.VirtualSize))
		d.IsLoaded = true
		m.cache[d.PageKey] = empty
		m.lru.touch(d.PageKey)
		m.enforceMemoryLimit()
		return empty, bufferr.Wrap(bufferr.KindLoadFailure, "ensurePageLoaded", loadErr)
	}

	page := newPageInfo(data)
	d.IsLoaded = true
	m.cache[d.PageKey] = page
	m.lru.touch(d.PageKey)
	m.enforceMemoryLimit()
	return page, nil
}

func (m *Manager) reportMissingData(d *pageindex.Descriptor, cause bufferr.LoadFailureCause) {
	var origStart, origEnd *int64
	if d.SourceType == pageindex.SourceOriginal {
		s, e := d.Source.FileOffset, d.Source.FileOffset+d.VirtualSize
		origStart, origEnd = &s, &e
	}
	if m.detach != nil {
		m.detach.OnMissingData(d.VirtualStart, d.VirtualEnd(), origStart, origEnd, string(cause))
	}
	m.emit(notify.PageDataUnavailable, notify.SeverityError,
		fmt.Sprintf("page %s unavailable: %s", d.PageKey, cause),
		map[string]any{"pageKey": d.PageKey, "reason": string(cause)})
}

func (m *Manager) loadFromOriginal(d *pageindex.Descriptor) ([]byte, error) {
	f, err := os.Open(d.Source.Filename)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, bufferr.WrapFileDeleted(err.Error())
		}
		if os.IsPermission(err) {
			return nil, bufferr.WrapPermissionDenied(err.Error())
		}
		return nil, err
	}
	defer closeFile(f)

	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}
	currentSize := stat.Size()

	if d.Source.FileOffset >= currentSize {
		return nil, bufferr.WrapFileTruncated(
			fmt.Sprintf("offset %d >= current size %d", d.Source.FileOffset, currentSize))
	}

	want := d.Source.OriginalSize
	avail := currentSize - d.Source.FileOffset
	if avail < want {
		want = avail
	}

	buf := make([]byte, want)
	if _, err := f.ReadAt(buf, d.Source.FileOffset); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return buf, nil
}

func (m *Manager) loadFromStorage(d *pageindex.Descriptor) ([]byte, error) {
	key := d.Source.StorageKey
	if key == "" {
		key = d.PageKey
	}
	data, err := m.store.LoadPage(key)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, bufferr.WrapDataCorruption("empty payload from storage")
	}
	return data, nil
}

// enforceMemoryLimit runs the eviction loop after every load.
func (m *Manager) enforceMemoryLimit() {
	for m.lru.len() > m.maxLoadedPages {
		key, ok := m.lru.evictCandidate()
		if !ok {
			return
		}
		if !m.evictOne(key) {
			// Eviction failed and the page must stay resident (storage
			// error); stop evicting.
			return
		}
	}
}

func (m *Manager) applyMemoryLimit() error {
	m.enforceMemoryLimit()
	return nil
}

// evictOne evicts one page from the LRU tail. Returns false if it had to
// abort (storage save failure on a dirty page).
func (m *Manager) evictOne(key string) bool {
	d, ok := m.idx.ByKey(key)
	if !ok {
		m.lru.remove(key)
		delete(m.cache, key)
		return true
	}
	page, ok := m.cache[key]
	if !ok {
		m.lru.remove(key)
		return true
	}

	if d.IsDirty {
		storageKey := key
		if err := m.store.SavePage(storageKey, page.Data); err != nil {
			m.emit(notify.StorageError, notify.SeverityError,
				fmt.Sprintf("failed to write back dirty page %s: %v", key, err),
				map[string]any{"pageKey": key, "err": err.Error()})
			return false
		}
		d.Source.StorageKey = storageKey
		d.SourceType = pageindex.SourceStorage
		d.IsDirty = false
	}

	d.NewlineCount = len(page.NewlinePositions)
	d.IsLoaded = false
	delete(m.cache, key)
	m.lru.remove(key)

	m.emit(notify.PageEvicted, notify.SeverityDebug,
		fmt.Sprintf("evicted page %s", key),
		map[string]any{"pageKey": key})
	return true
}

func (m *Manager) LoadedPages() int { return len(m.cache) }

func closeFile(f *os.File) {
	if err := f.Close(); err != nil {
		slog.Debug("vpm: close source file", "err", err)
	}
}
