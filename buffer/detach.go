package buffer

import (
	"fmt"
	"sort"

	"github.com/tuannm99/pagedbuf/internal/notify"
)

// OnMissingData implements vpm.DetachHandler: whenever a page load fails,
// the VPM hands back the affected span so the buffer can flip to detached
// and keep a merged record of what's missing.
func (b *Buffer) OnMissingData(virtualStart, virtualEnd int64, originalFileStart, originalFileEnd *int64, reason string) {
	rng := MissingDataRange{
		VirtualStart:      virtualStart,
		VirtualEnd:        virtualEnd,
		OriginalFileStart: originalFileStart,
		OriginalFileEnd:   originalFileEnd,
		Reason:            reason,
	}
	b.missingRanges = mergeMissingRange(b.missingRanges, rng)

	wasDetached := b.integrity == IntegrityDetached
	b.integrity = IntegrityDetached
	b.detachReason = reason

	if !wasDetached {
		b.emit(notify.BufferDetached, notify.SeverityError,
			fmt.Sprintf("buffer detached: %s", reason),
			map[string]any{"reason": reason, "recommendation": "save as a new file"})
	}
}

// mergeMissingRange inserts next into ranges, coalescing anything
// overlapping or touching it into a single merged span.
func mergeMissingRange(ranges []MissingDataRange, next MissingDataRange) []MissingDataRange {
	all := append(append([]MissingDataRange(nil), ranges...), next)
	sort.Slice(all, func(i, j int) bool { return all[i].VirtualStart < all[j].VirtualStart })

	out := all[:0]
	for _, r := range all {
		if len(out) > 0 {
			last := &out[len(out)-1]
			if r.VirtualStart <= last.VirtualEnd {
				if r.VirtualEnd > last.VirtualEnd {
					last.VirtualEnd = r.VirtualEnd
				}
				if last.OriginalFileStart == nil {
					last.OriginalFileStart = r.OriginalFileStart
				}
				if r.OriginalFileEnd != nil && (last.OriginalFileEnd == nil || *r.OriginalFileEnd > *last.OriginalFileEnd) {
					last.OriginalFileEnd = r.OriginalFileEnd
				}
				if last.Reason == "" {
					last.Reason = r.Reason
				}
				continue
			}
		}
		out = append(out, r)
	}
	return out
}
