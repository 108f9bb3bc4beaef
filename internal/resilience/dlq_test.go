package resilience

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemorySinkWriteAndList(t *testing.T) {
	sink := NewMemorySink()
	require.NoError(t, sink.Write(DLQEntry{ID: "1", Source: "event_store", StreamOrTopic: "order-1"}))
	require.NoError(t, sink.Write(DLQEntry{ID: "2", Source: "event_bus", StreamOrTopic: "order-events"}))

	storeEntries, err := sink.List("event_store")
	require.NoError(t, err)
	require.Len(t, storeEntries, 1)
	assert.Equal(t, "order-1", storeEntries[0].StreamOrTopic)

	all, err := sink.List("")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
