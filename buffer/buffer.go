// Package buffer implements the buffer facade: the public API that
// orchestrates the Virtual Page Manager, the Line & Marks Manager, and the
// Undo/Redo System, plus file load/save and detachment.
package buffer

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/tuannm99/pagedbuf/internal/bufferr"
	"github.com/tuannm99/pagedbuf/internal/config"
	"github.com/tuannm99/pagedbuf/internal/marks"
	"github.com/tuannm99/pagedbuf/internal/notify"
	"github.com/tuannm99/pagedbuf/internal/pagestore"
	"github.com/tuannm99/pagedbuf/internal/undo"
	"github.com/tuannm99/pagedbuf/internal/vpm"
)

// IntegrityState tracks whether the buffer's content still matches a
// trustworthy backing source, independent of whether it has unsaved edits.
type IntegrityState int

const (
	IntegrityClean IntegrityState = iota
	IntegrityDetached
	IntegrityCorrupted
)

func (s IntegrityState) String() string {
	switch s {
	case IntegrityClean:
		return "clean"
	case IntegrityDetached:
		return "detached"
	case IntegrityCorrupted:
		return "corrupted"
	default:
		return "unknown"
	}
}

// MissingDataRange records a span of virtual bytes that could not be
// recovered from the source.
type MissingDataRange struct {
	VirtualStart      int64
	VirtualEnd        int64
	OriginalFileStart *int64
	OriginalFileEnd   *int64
	Reason            string
}

// FileChangeInfo is CheckFileChanges's result: the caller decides what, if
// anything, to do about it.
type FileChangeInfo struct {
	Deleted      bool
	SizeChanged  bool
	MTimeChanged bool
	CurrentSize  int64
	CurrentMTime time.Time
}

// Buffer is the public facade wiring the VPM, marks, and undo subsystems
// together.
type Buffer struct {
	cfg    *config.Config
	store  pagestore.Store
	notify *notify.Dispatcher

	vpm   *vpm.Manager
	marks *marks.Manager
	undo  *undo.Manager

	filename  string
	fileSize  int64
	fileMtime time.Time

	integrity      IntegrityState
	unsavedChanges bool
	detachReason   string
	missingRanges  []MissingDataRange
}

func New(cfg *config.Config, store pagestore.Store, dispatcher *notify.Dispatcher) *Buffer {
	if cfg == nil {
		cfg = config.Default()
	}
	b := &Buffer{cfg: cfg, store: store, notify: dispatcher}

	b.vpm = vpm.NewManager(vpm.Config{PageSize: int64(cfg.PageSize), MaxMemoryPages: cfg.MaxMemoryPages}, store, dispatcher)
	b.marks = marks.NewManager(b.vpm)
	b.undo = undo.NewManager(b.vpm, b.marks, undo.Config{
		MaxUndoLevels:       cfg.MaxUndoLevels,
		MergeTimeWindowMS:   int64(cfg.MergeTimeWindowMS),
		MergePositionWindow: int64(cfg.MergePositionWindow),
	})
	b.vpm.SetNotifier(b.marks)
	b.vpm.SetDetachHandler(b)

	return b
}

func (b *Buffer) emit(typ notify.Type, sev notify.Severity, msg string, meta map[string]any) {
	if b.notify == nil {
		return
	}
	b.notify.Emit(typ, sev, msg, meta)
}

// LoadFile opens filename for reading and initializes the VPM against it,
// chunked by pageSize with no pages loaded yet.
func (b *Buffer) LoadFile(filename string) error {
	stat, err := os.Stat(filename)
	if err != nil {
		return fmt.Errorf("pagedbuf: load file: %w", err)
	}
	if err := b.vpm.InitializeFromFile(filename, stat.Size()); err != nil {
		return fmt.Errorf("pagedbuf: load file: %w", err)
	}
	b.filename = filename
	b.fileSize = stat.Size()
	b.fileMtime = stat.ModTime()
	b.resetState()
	b.emit(notify.BufferContentLoaded, notify.SeverityInfo,
		fmt.Sprintf("loaded %s (%d bytes)", filename, stat.Size()),
		map[string]any{"filename": filename, "size": stat.Size()})
	return nil
}

// LoadContent initializes the buffer directly from in-memory bytes, with no
// associated source file.
func (b *Buffer) LoadContent(data []byte) error {
	if err := b.vpm.InitializeFromContent(data); err != nil {
		return fmt.Errorf("pagedbuf: load content: %w", err)
	}
	b.filename = ""
	b.fileSize = int64(len(data))
	b.fileMtime = time.Time{}
	b.resetState()
	b.emit(notify.BufferContentLoaded, notify.SeverityInfo,
		fmt.Sprintf("loaded %d bytes of in-memory content", len(data)),
		map[string]any{"size": len(data)})
	return nil
}

func (b *Buffer) resetState() {
	b.integrity = IntegrityClean
	b.unsavedChanges = false
	b.detachReason = ""
	b.missingRanges = nil
}

func (b *Buffer) Filename() string          { return b.filename }
func (b *Buffer) TotalSize() int64          { return b.vpm.TotalSize() }
func (b *Buffer) Integrity() IntegrityState { return b.integrity }
func (b *Buffer) UnsavedChanges() bool      { return b.unsavedChanges }
func (b *Buffer) MissingRanges() []MissingDataRange {
	return append([]MissingDataRange(nil), b.missingRanges...)
}

func (b *Buffer) CanSaveToOriginal() bool { return b.integrity != IntegrityDetached }
func (b *Buffer) IsClean() bool           { return b.integrity == IntegrityClean && !b.unsavedChanges }

// InsertBytes splices data into the buffer at pos, optionally registering
// named marks at positions relative to pos.
func (b *Buffer) InsertBytes(pos int64, data []byte, newMarks []marks.MarkRef) (int, error) {
	total := b.vpm.TotalSize()
	if pos < 0 || pos > total {
		return 0, bufferr.New(bufferr.KindInvalidArgument,
			fmt.Sprintf("insert position %d out of [0,%d]", pos, total))
	}

	preMarks := b.marks.Snapshot()
	n, err := b.vpm.InsertAt(pos, data)
	if err != nil {
		return 0, err
	}
	b.marks.InsertMarksAt(pos, newMarks)
	b.unsavedChanges = true
	b.undo.Record(undo.NewInsertOp(pos, data, pos+int64(n)), preMarks)
	return n, nil
}

// DeleteBytes removes [start, end) and returns the deleted bytes (spec
// §4.6).
func (b *Buffer) DeleteBytes(start, end int64) ([]byte, error) {
	if start < 0 || end < start {
		return nil, bufferr.New(bufferr.KindInvalidArgument,
			fmt.Sprintf("invalid delete range [%d,%d)", start, end))
	}

	preMarks := b.marks.Snapshot()
	removed, err := b.vpm.DeleteRange(start, end)
	if err != nil {
		return nil, err
	}
	b.unsavedChanges = true
	b.undo.Record(undo.NewDeleteOp(start, removed, start), preMarks)
	return removed, nil
}

// OverwriteBytes replaces up to len(data) bytes starting at pos with data,
// returning whatever was displaced.
func (b *Buffer) OverwriteBytes(pos int64, data []byte, newMarks []marks.MarkRef) ([]byte, error) {
	total := b.vpm.TotalSize()
	if pos < 0 || pos > total {
		return nil, bufferr.New(bufferr.KindInvalidArgument,
			fmt.Sprintf("overwrite position %d out of [0,%d]", pos, total))
	}

	preMarks := b.marks.Snapshot()
	displaced, err := b.vpm.DeleteRange(pos, pos+int64(len(data)))
	if err != nil {
		return nil, err
	}
	if _, err := b.vpm.InsertAt(pos, data); err != nil {
		return nil, err
	}
	b.marks.InsertMarksAt(pos, newMarks)
	b.unsavedChanges = true
	b.undo.Record(undo.NewOverwriteOp(pos, data, displaced, pos+int64(len(data))), preMarks)
	return displaced, nil
}

// GetBytes returns [start, end), clamped, zero-padded over any unreadable
// span; it never fails.
func (b *Buffer) GetBytes(start, end int64) []byte {
	return b.vpm.ReadRange(start, end)
}

func (b *Buffer) Undo() error                   { return b.undo.Undo() }
func (b *Buffer) Redo() error                   { return b.undo.Redo() }
func (b *Buffer) Begin(name string) error       { return b.undo.Begin(name) }
func (b *Buffer) Commit(finalName string) error { return b.undo.Commit(finalName) }
func (b *Buffer) Rollback() error               { return b.undo.Rollback() }
func (b *Buffer) InTransaction() bool           { return b.undo.InTransaction() }

func (b *Buffer) SetMark(name string, addr int64) error { return b.marks.SetMark(name, addr) }
func (b *Buffer) GetMark(name string) (int64, bool)     { return b.marks.GetMark(name) }
func (b *Buffer) DeleteMark(name string)                { b.marks.DeleteMark(name) }
func (b *Buffer) MarkNames() []string                   { return b.marks.MarkNames() }

func (b *Buffer) GetLineCount() int { return b.marks.GetLineCount() }
func (b *Buffer) GetLineInfo(line int) (marks.LineInfo, error) { return b.marks.GetLineInfo(line) }
func (b *Buffer) LineCharToBytePosition(line, char int) (int64, error) {
	return b.marks.LineCharToBytePosition(line, char)
}
func (b *Buffer) ByteToLineCharPosition(pos int64) (int, int) {
	return b.marks.ByteToLineCharPosition(pos)
}

// CheckFileChanges stats the source file and reports any size/mtime
// change or deletion; it applies no remediation.
func (b *Buffer) CheckFileChanges() (*FileChangeInfo, error) {
	if b.filename == "" {
		return nil, bufferr.New(bufferr.KindNoFilename, "buffer has no source file")
	}
	stat, err := os.Stat(b.filename)
	if err != nil {
		if os.IsNotExist(err) {
			return &FileChangeInfo{Deleted: true}, nil
		}
		return nil, fmt.Errorf("pagedbuf: check file changes: %w", err)
	}

	info := &FileChangeInfo{
		SizeChanged:  stat.Size() != b.fileSize,
		MTimeChanged: !stat.ModTime().Equal(b.fileMtime),
		CurrentSize:  stat.Size(),
		CurrentMTime: stat.ModTime(),
	}
	if info.SizeChanged || info.MTimeChanged {
		b.emit(notify.FileModifiedOnDisk, notify.SeverityWarning,
			fmt.Sprintf("%s changed on disk", b.filename),
			map[string]any{"filename": b.filename, "sizeChanged": info.SizeChanged, "mtimeChanged": info.MTimeChanged})
		slog.Debug("buffer: source changed on disk", "filename", b.filename)
	}
	return info, nil
}
