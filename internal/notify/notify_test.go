package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscribersReceivePublishedNotifications(t *testing.T) {
	d := NewDispatcher()
	var got []Notification
	d.Subscribe(func(n Notification) { got = append(got, n) })

	d.Emit(PageSplit, SeverityInfo, "split happened", map[string]any{"at": 10})

	require.Len(t, got, 1)
	assert.Equal(t, PageSplit, got[0].Type)
	assert.Equal(t, SeverityInfo, got[0].Severity)
	assert.False(t, got[0].Timestamp.IsZero())
}

func TestMultipleSubscribersAllReceive(t *testing.T) {
	d := NewDispatcher()
	var a, b int
	d.Subscribe(func(n Notification) { a++ })
	d.Subscribe(func(n Notification) { b++ })

	d.Emit(PageEvicted, SeverityDebug, "evicted", nil)

	assert.Equal(t, 1, a)
	assert.Equal(t, 1, b)
}

func TestLogDebugHandlesNilMetadata(t *testing.T) {
	assert.NotPanics(t, func() {
		LogDebug(Notification{Type: StorageError, Severity: SeverityError, Message: "boom"})
	})
}
