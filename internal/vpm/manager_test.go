package vpm

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuannm99/pagedbuf/internal/pagestore"
)

func newTestManager(t *testing.T, pageSize int64, maxPages int) *Manager {
	t.Helper()
	return NewManager(Config{PageSize: pageSize, MaxMemoryPages: maxPages}, pagestore.NewMemoryStore(), nil)
}

func TestInsertAndReadRange(t *testing.T) {
	m := newTestManager(t, 64, 100)
	require.NoError(t, m.InitializeFromContent(nil))

	n, err := m.InsertAt(0, []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, []byte("hello"), m.ReadRange(0, 5))

	_, err = m.InsertAt(5, []byte(" world"))
	require.NoError(t, err)
	assert.Equal(t, []byte("hello world"), m.ReadRange(0, 11))
}

func TestDeleteRangeClampsAndReturnsRemoved(t *testing.T) {
	m := newTestManager(t, 64, 100)
	require.NoError(t, m.InitializeFromContent([]byte("hello world")))

	removed, err := m.DeleteRange(5, 100)
	require.NoError(t, err)
	assert.Equal(t, []byte(" world"), removed)
	assert.Equal(t, []byte("hello"), m.ReadRange(0, m.TotalSize()))

	removed, err = m.DeleteRange(-5, -1)
	require.NoError(t, err)
	assert.Nil(t, removed)
}

func TestReadRangeNeverFails(t *testing.T) {
	m := newTestManager(t, 64, 100)
	require.NoError(t, m.InitializeFromContent([]byte("abc")))

	assert.Equal(t, []byte{}, m.ReadRange(10, 20))
	assert.Equal(t, []byte("abc"), m.ReadRange(-5, 100))
}

func TestSplitTriggeredByMaxPageSize(t *testing.T) {
	m := newTestManager(t, 8, 100) // maxPageSize = 16
	require.NoError(t, m.InitializeFromContent(nil))

	_, err := m.InsertAt(0, []byte("0123456789ABCDEFGH")) // 18 bytes, over max
	require.NoError(t, err)

	require.NoError(t, m.idx.Validate())
	assert.Greater(t, m.idx.Len(), 1, "expected split to produce more than one descriptor")
	assert.Equal(t, []byte("0123456789ABCDEFGH"), m.ReadRange(0, 18))
}

func TestMergeReassemblesSmallNeighbors(t *testing.T) {
	m := newTestManager(t, 8, 100) // minPageSize = 2, maxPageSize = 16
	require.NoError(t, m.InitializeFromContent([]byte("0123456789AB")))
	require.Equal(t, 2, m.idx.Len()) // "01234567" + "89AB"

	// Shrinks the first page to size 1, below minPageSize, forcing a merge
	// with its neighbor.
	removed, err := m.DeleteRange(1, 8)
	require.NoError(t, err)
	assert.Equal(t, []byte("1234567"), removed)

	require.NoError(t, m.idx.Validate())
	assert.Equal(t, 1, m.idx.Len(), "expected the undersized fragment to merge with its neighbor")
	assert.Equal(t, []byte("089AB"), m.ReadRange(0, m.TotalSize()))
}

func TestEvictionUnderLowMemoryLimit(t *testing.T) {
	m := newTestManager(t, 4, 1) // at most one resident page
	require.NoError(t, m.InitializeFromFile(writeTempFile(t, "abcdefgh"), 8))

	// Loading the second page must evict the first (maxLoadedPages == 1).
	first := m.ReadRange(0, 4)
	assert.Equal(t, []byte("abcd"), first)
	assert.LessOrEqual(t, m.LoadedPages(), 1)

	second := m.ReadRange(4, 8)
	assert.Equal(t, []byte("efgh"), second)
	assert.LessOrEqual(t, m.LoadedPages(), 1)

	// The evicted page is still readable transparently on reload.
	assert.Equal(t, []byte("abcd"), m.ReadRange(0, 4))
}

func TestDetachmentOnTruncatedSource(t *testing.T) {
	path := writeTempFile(t, "0123456789")
	m := newTestManager(t, 4, 100)
	require.NoError(t, m.InitializeFromFile(path, 10))

	require.NoError(t, os.Truncate(path, 2))

	data, failed := m.ReadRangeStatus(0, 10)
	assert.True(t, failed)
	assert.Equal(t, 10, len(data))
	assert.Equal(t, byte('0'), data[0])
	assert.Equal(t, byte('1'), data[1])
	for _, b := range data[2:] {
		assert.Equal(t, byte(0), b)
	}
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "src.bin")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}
