package sqlite

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheRepo_SetGetDelete(t *testing.T) {
	repo := NewCacheRepo(setupTestDB(t), nil)

	_, ok := repo.Get("chat:1")
	assert.False(t, ok)

	repo.Set("chat:1", []byte(`{"title":"archive"}`))

	data, ok := repo.Get("chat:1")
	require.True(t, ok)
	assert.Equal(t, []byte(`{"title":"archive"}`), data)

	repo.Delete("chat:1")
	_, ok = repo.Get("chat:1")
	assert.False(t, ok)
}

func TestCacheRepo_SetOverwrites(t *testing.T) {
	repo := NewCacheRepo(setupTestDB(t), nil)

	repo.Set("k", []byte("old"))
	repo.Set("k", []byte("new"))

	data, ok := repo.Get("k")
	require.True(t, ok)
	assert.Equal(t, []byte("new"), data)
}

func TestCacheRepo_DeleteMissingIsNoop(t *testing.T) {
	repo := NewCacheRepo(setupTestDB(t), nil)
	repo.Delete("never-stored")
}
