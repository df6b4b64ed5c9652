package filestore

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type item struct {
	ID    string `json:"id"`
	Value int    `json:"value"`
}

func TestCollection_PutGetList(t *testing.T) {
	c, err := Open[item](filepath.Join(t.TempDir(), "items"))
	require.NoError(t, err)

	require.NoError(t, c.Put("a", &item{ID: "a", Value: 1}))
	require.NoError(t, c.Put("b", &item{ID: "b", Value: 2}))
	require.NoError(t, c.Put("a", &item{ID: "a", Value: 3}))

	got, err := c.Get("a")
	require.NoError(t, err)
	assert.Equal(t, 3, got.Value)
	assert.True(t, c.Exists("b"))
	assert.False(t, c.Exists("c"))

	all, err := c.List()
	require.NoError(t, err)
	require.Len(t, all, 2)
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	assert.Equal(t, "b", all[1].ID)

	info, err := os.Stat(filepath.Join(c.Dir(), "a.json"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestCollection_NotFoundAndDelete(t *testing.T) {
	c, err := Open[item](t.TempDir())
	require.NoError(t, err)

	_, err = c.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, c.Delete("missing"), ErrNotFound)

	require.NoError(t, c.Put("x", &item{ID: "x"}))
	require.NoError(t, c.Delete("x"))
	_, err = c.Get("x")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCollection_RejectsPathIDs(t *testing.T) {
	c, err := Open[item](t.TempDir())
	require.NoError(t, err)

	for _, id := range []string{"", "../escape", "a/b", ".hidden"} {
		assert.ErrorIs(t, c.Put(id, &item{}), ErrInvalidID, id)
	}
}

func TestCollection_ListSkipsCorrupt(t *testing.T) {
	dir := t.TempDir()
	c, err := Open[item](dir)
	require.NoError(t, err)
	require.NoError(t, c.Put("good", &item{ID: "good"}))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), []byte("{"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o600))

	all, err := c.List()
	assert.Error(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "good", all[0].ID)
}
