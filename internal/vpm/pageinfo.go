package vpm

import (
	"hash/crc32"
	"time"
)

// PageInfo is the resident form of a descriptor: it exists only while the
// descriptor IsLoaded.
type PageInfo struct {
	Data             []byte
	NewlinePositions []int
	IsDirty          bool
	LastAccess       time.Time
	Checksum         uint32
}

func newPageInfo(data []byte) *PageInfo {
	p := &PageInfo{Data: data, LastAccess: time.Now()}
	p.rebuild()
	return p
}

// rebuild recomputes the newline-position cache and checksum after any data
// mutation.
func (p *PageInfo) rebuild() {
	p.NewlinePositions = p.NewlinePositions[:0]
	for i, b := range p.Data {
		if b == '\n' {
			p.NewlinePositions = append(p.NewlinePositions, i)
		}
	}
	p.Checksum = crc32.ChecksumIEEE(p.Data)
}

func (p *PageInfo) touch() { p.LastAccess = time.Now() }
