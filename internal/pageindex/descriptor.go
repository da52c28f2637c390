// Package pageindex implements the page descriptor / address index: a
// dense, sorted array of descriptors partitioning the virtual address
// space, plus an auxiliary key map for O(1) lookup.
package pageindex

// SourceType is one of the three page origins.
type SourceType int

const (
	SourceOriginal SourceType = iota
	SourceStorage
	SourceMemory
)

func (s SourceType) String() string {
	switch s {
	case SourceOriginal:
		return "original"
	case SourceStorage:
		return "storage"
	case SourceMemory:
		return "memory"
	default:
		return "unknown"
	}
}

// SourceInfo carries the per-sourceType payload: for "original", the
// source file location; for "storage"/"memory", the key under which the
// bytes live (defaults to the descriptor's own PageKey, but is tracked
// separately because eviction can flip a memory page to storage without
// renaming it).
type SourceInfo struct {
	Filename     string
	FileOffset   int64
	OriginalSize int64
	StorageKey   string
}

// Descriptor is one entry of the address index.
type Descriptor struct {
	PageKey      string
	VirtualStart int64
	VirtualSize  int64
	SourceType   SourceType
	Source       SourceInfo
	IsDirty      bool
	IsLoaded     bool
	Generation   int64
	ParentKey    string

	// NewlineCount records the page's newline count as of its last eviction
	// or newline scan. Line queries do not read it: they load each page to
	// get newline positions.
	NewlineCount int
}

// VirtualEnd is VirtualStart + VirtualSize.
func (d *Descriptor) VirtualEnd() int64 { return d.VirtualStart + d.VirtualSize }

func (d *Descriptor) clone() *Descriptor {
	cp := *d
	return &cp
}
