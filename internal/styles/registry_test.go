package styles

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRegistry(t *testing.T) {
	r := NewMemoryRegistry()
	assert.Equal(t, 0, r.Len())
	assert.Equal(t, "", r.CSS())

	require.NoError(t, r.Publish("data-v-1", ".a{}"))
	require.NoError(t, r.Publish("data-v-2", ".b{}"))
	assert.Equal(t, 2, r.Len())
	assert.Equal(t, ".a{}\n.b{}", r.CSS())

	require.NoError(t, r.Publish("data-v-1", ".c{}"))
	assert.Equal(t, []Record{{ID: "data-v-1", CSS: ".c{}"}, {ID: "data-v-2", CSS: ".b{}"}}, r.Sheets())

	rec, ok := r.Get("data-v-2")
	require.True(t, ok)
	assert.Equal(t, ".b{}", rec.CSS)

	r.Remove("data-v-1")
	r.Remove("unknown")
	assert.Equal(t, 1, r.Len())

	_, ok = r.Get("data-v-1")
	assert.False(t, ok)

	assert.Error(t, r.Publish("", ".x{}"))
}

func TestMemoryRegistrySatisfiesRegistry(t *testing.T) {
	var reg Registry = NewMemoryRegistry()
	require.NoError(t, reg.Publish("id", "p{}"))
	reg.Remove("id")
}
