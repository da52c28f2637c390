package vpm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewlineIndexAcrossPages(t *testing.T) {
	m := newTestManager(t, 4, 100) // small pages so content spans several descriptors
	require.NoError(t, m.InitializeFromContent([]byte("ab\ncd\nef\ngh")))

	nls := m.NewlineIndex()
	assert.Equal(t, []int64{2, 5, 8}, nls)
}

func TestNewlineIndexEmptyBuffer(t *testing.T) {
	m := newTestManager(t, 4, 100)
	require.NoError(t, m.InitializeFromContent(nil))
	assert.Empty(t, m.NewlineIndex())
}
