package buffer

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/multierr"

	"github.com/tuannm99/pagedbuf/internal/bufferr"
	"github.com/tuannm99/pagedbuf/internal/notify"
)

// SaveFile saves the buffer's content to targetFilename. When targetFilename
// resolves to the buffer's current source, it either no-ops (clean, no
// unsaved changes), refuses (detached without forcePartialSave), or
// performs an atomic save via a temp snapshot of the original. Any other
// target is a direct write.
func (b *Buffer) SaveFile(targetFilename string, forcePartialSave bool) error {
	if targetFilename == "" {
		return bufferr.New(bufferr.KindNoFilename, "save requires a target filename")
	}

	isOriginal := b.filename != "" && targetFilename == b.filename

	if isOriginal && b.integrity == IntegrityDetached && !forcePartialSave {
		return bufferr.New(bufferr.KindDetachedSave,
			"refusing to save a detached buffer to its original path without forcePartialSave")
	}

	if isOriginal && b.integrity == IntegrityClean && !b.unsavedChanges {
		b.emit(notify.SaveSkipped, notify.SeverityInfo,
			fmt.Sprintf("save to %s skipped: buffer is clean", targetFilename),
			map[string]any{"filename": targetFilename})
		return nil
	}

	if isOriginal {
		return b.atomicSave(targetFilename)
	}
	return b.directSave(targetFilename)
}

// SaveAs is the non-atomic variant: always permitted, even while detached.
func (b *Buffer) SaveAs(filename string) error {
	if filename == "" {
		return bufferr.New(bufferr.KindNoFilename, "save requires a target filename")
	}
	return b.directSave(filename)
}

// atomicSave copies the original file aside, rewires original-sourced
// descriptors to read from that copy, writes the new content over the real
// target, then rewires back and best-effort removes the copy.
func (b *Buffer) atomicSave(targetFilename string) error {
	b.emit(notify.AtomicSaveStarted, notify.SeverityInfo,
		fmt.Sprintf("starting atomic save of %s", targetFilename), nil)

	tempCopy, err := copyAside(targetFilename)
	if err != nil {
		return fmt.Errorf("pagedbuf: atomic save: %w", err)
	}

	b.vpm.RewireOriginalFilename(tempCopy)

	if err := b.writeToFile(targetFilename); err != nil {
		return fmt.Errorf("pagedbuf: atomic save: %w", err)
	}

	if err := os.Remove(tempCopy); err != nil {
		b.emit(notify.TempCleanupFailed, notify.SeverityWarning,
			fmt.Sprintf("failed to remove temp copy %s: %v", tempCopy, err),
			map[string]any{"tempCopy": tempCopy, "err": err.Error()})
		slog.Debug("pagedbuf: temp cleanup failed", "path", tempCopy, "err", err)
	} else {
		b.emit(notify.TempCleanup, notify.SeverityDebug,
			fmt.Sprintf("removed temp copy %s", tempCopy), map[string]any{"tempCopy": tempCopy})
	}

	b.finishSave(targetFilename)
	return nil
}

// copyAside snapshots original into a uniquely named temp file in the same
// directory, so a later rename/remove stays on one filesystem.
func copyAside(original string) (tempPath string, err error) {
	src, err := os.Open(original)
	if err != nil {
		return "", err
	}
	defer func() { err = multierr.Append(err, closeQuiet(src)) }()

	tmp, err := os.CreateTemp(filepath.Dir(original), filepath.Base(original)+".pagedbuf-tmp-*")
	if err != nil {
		return "", err
	}
	defer func() { err = multierr.Append(err, closeQuiet(tmp)) }()

	if _, copyErr := io.Copy(tmp, src); copyErr != nil {
		return "", multierr.Append(copyErr, os.Remove(tmp.Name()))
	}
	return tmp.Name(), nil
}

func closeQuiet(f *os.File) error {
	if err := f.Close(); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (b *Buffer) directSave(filename string) error {
	if err := b.writeToFile(filename); err != nil {
		return fmt.Errorf("pagedbuf: save as %s: %w", filename, err)
	}
	b.finishSave(filename)
	return nil
}

func (b *Buffer) writeToFile(filename string) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			slog.Debug("pagedbuf: close save target", "err", cerr)
		}
	}()
	return b.writeVirtualBuffer(f)
}

// finishSave applies the post-save state transition uniformly to both the
// atomic and direct paths.
func (b *Buffer) finishSave(filename string) {
	if stat, err := os.Stat(filename); err == nil {
		b.fileSize = stat.Size()
		b.fileMtime = stat.ModTime()
	}
	b.filename = filename
	b.unsavedChanges = false
	if b.integrity != IntegrityDetached {
		b.integrity = IntegrityClean
	}
	b.vpm.RewireOriginalFilename(filename)

	b.emit(notify.SaveCompleted, notify.SeverityInfo,
		fmt.Sprintf("saved %s", filename), map[string]any{"filename": filename})

	if b.integrity == IntegrityDetached {
		b.emit(notify.DetachedSaveSummary, notify.SeverityWarning,
			fmt.Sprintf("%s saved with %d missing range(s)", filename, len(b.missingRanges)),
			map[string]any{"filename": filename, "missingRanges": len(b.missingRanges)})
	}
}

// writeVirtualBuffer streams the buffer's content to w in pageSize *
// maxLoadedPages chunks, prefixing a missing-data summary when detached and
// substituting inline markers for any missing range instead of the raw
// (meaningless) zero bytes VPM would otherwise hand back. One goroutine
// reads the next chunk while the current one is written, so disk I/O and
// page loads overlap; writes themselves stay strictly serialized so output
// order is never in question.
func (b *Buffer) writeVirtualBuffer(w io.Writer) error {
	total := b.vpm.TotalSize()

	if b.integrity == IntegrityDetached {
		if _, err := w.Write([]byte(b.missingDataSummary())); err != nil {
			return fmt.Errorf("pagedbuf: write missing data summary: %w", err)
		}
	}

	if total == 0 {
		return nil
	}

	chunkSize := int64(b.cfg.PageSize) * int64(b.cfg.MaxMemoryPages)
	if chunkSize <= 0 {
		chunkSize = 65536 * 100
	}

	bounds := func(pos int64) (int64, int64) {
		end := pos + chunkSize
		if end > total {
			end = total
		}
		return pos, end
	}

	type chunk struct {
		start, end int64
		data       []byte
	}
	readChunk := func(start, end int64) chunk {
		data, failed := b.vpm.ReadRangeStatus(start, end)
		if failed {
			b.emit(notify.EmergencyMissing, notify.SeverityError,
				fmt.Sprintf("data unavailable while saving chunk at %d", start),
				map[string]any{"chunkStart": start})
		}
		return chunk{start: start, end: end, data: data}
	}

	curStart, curEnd := bounds(0)
	cur := readChunk(curStart, curEnd)

	p := pool.New().WithMaxGoroutines(1)
	for {
		nextStart, nextEnd := bounds(cur.end)
		haveNext := nextStart < total

		var next chunk
		if haveNext {
			p.Go(func() { next = readChunk(nextStart, nextEnd) })
		}

		if err := b.writeChunkWithMarkers(w, cur.start, cur.end, cur.data, total); err != nil {
			p.Wait()
			return err
		}
		p.Wait()

		if !haveNext {
			return nil
		}
		cur = next
		runtime.Gosched()
	}
}

// writeChunkWithMarkers writes one chunk's bytes, substituting an inline
// marker for any missing range that falls within [start, end) instead of
// the range's raw zero-filled bytes.
func (b *Buffer) writeChunkWithMarkers(w io.Writer, start, end int64, data []byte, total int64) error {
	pos := start
	buf := data
	for _, r := range rangesWithin(b.missingRanges, start, end) {
		if r.VirtualStart > pos {
			prefixLen := r.VirtualStart - pos
			if _, err := w.Write(buf[:prefixLen]); err != nil {
				return fmt.Errorf("pagedbuf: write chunk: %w", err)
			}
			buf = buf[prefixLen:]
		}
		if _, err := w.Write([]byte(missingMarkerText(r, total))); err != nil {
			return fmt.Errorf("pagedbuf: write missing marker: %w", err)
		}
		skip := r.VirtualEnd - max(r.VirtualStart, pos)
		if int64(len(buf)) < skip {
			skip = int64(len(buf))
		}
		buf = buf[skip:]
		pos = r.VirtualEnd
	}
	if len(buf) > 0 {
		if _, err := w.Write(buf); err != nil {
			return fmt.Errorf("pagedbuf: write chunk: %w", err)
		}
	}
	return nil
}

func rangesWithin(ranges []MissingDataRange, start, end int64) []MissingDataRange {
	var out []MissingDataRange
	for _, r := range ranges {
		if r.VirtualStart < end && r.VirtualEnd > start {
			out = append(out, r)
		}
	}
	return out
}

// missingDataSummary renders the preamble listing every missing range in a
// detached save's output.
func (b *Buffer) missingDataSummary() string {
	var sb strings.Builder
	sb.WriteString("--- MISSING DATA SUMMARY ---\n")
	for _, r := range b.missingRanges {
		sb.WriteString(summaryLine(r))
	}
	sb.WriteString("--- END MISSING DATA ---\n\n")
	return sb.String()
}

func summaryLine(r MissingDataRange) string {
	line := fmt.Sprintf("[Missing %d bytes from buffer addresses %d to %d",
		r.VirtualEnd-r.VirtualStart, r.VirtualStart, r.VirtualEnd)
	if r.OriginalFileStart != nil && r.OriginalFileEnd != nil {
		line += fmt.Sprintf(", original file positions %d to %d", *r.OriginalFileStart, *r.OriginalFileEnd)
	}
	if r.Reason != "" {
		line += fmt.Sprintf(", reason: %s", r.Reason)
	}
	line += ".]\n"
	return line
}

// missingMarkerText renders the inline marker dropped in place of a missing
// range's bytes, with the end-of-file variant when the range runs off the
// buffer's virtual end.
func missingMarkerText(r MissingDataRange, total int64) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("\n--- MISSING %d BYTES FROM BUFFER ADDRESS %d ",
		r.VirtualEnd-r.VirtualStart, r.VirtualStart))
	if r.OriginalFileStart != nil {
		sb.WriteString(fmt.Sprintf("(ORIGINAL FILE POSITION %d) ", *r.OriginalFileStart))
	}
	if r.Reason != "" {
		sb.WriteString(fmt.Sprintf("- REASON: %s ", r.Reason))
	}
	sb.WriteString("---\n")
	if r.VirtualEnd >= total {
		sb.WriteString("--- END OF FILE ---\n")
	} else {
		sb.WriteString(fmt.Sprintf("--- BEGIN DATA BELONGING AT BUFFER ADDRESS %d ---\n", r.VirtualEnd))
	}
	return sb.String()
}
