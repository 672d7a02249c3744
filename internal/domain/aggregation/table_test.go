package aggregation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTable_Lookup(t *testing.T) {
	table := NewTable(DefaultCore(), nil)

	c, ok := table.Lookup(EmitterCore, EventObjectAdded)
	require.True(t, ok)
	assert.True(t, c.NotificationsEnabled)
	assert.Equal(t, 5, c.DebounceSeconds)
	require.NotNil(t, c.MaxIntervalSeconds)
	assert.Equal(t, 60, *c.MaxIntervalSeconds)

	_, ok = table.Lookup(EmitterCore, "unknown")
	assert.False(t, ok)

	_, ok = table.Lookup("plugin", EventObjectAdded)
	assert.False(t, ok, "non-core emitters are disabled by default")
}

func TestTable_ExternalHook(t *testing.T) {
	table := NewTable(nil, func(emitter, ev string) (Config, bool) {
		return Config{NotificationsEnabled: emitter == "plugin"}, true
	})

	c, ok := table.Lookup("plugin", "anything")
	require.True(t, ok)
	assert.True(t, c.NotificationsEnabled)
}

func TestTable_LookupReturnsCopy(t *testing.T) {
	table := NewTable(DefaultCore(), nil)

	c, _ := table.Lookup(EmitterCore, EventObjectAdded)
	*c.MaxIntervalSeconds = 1

	again, _ := table.Lookup(EmitterCore, EventObjectAdded)
	assert.Equal(t, 60, *again.MaxIntervalSeconds)
}
