package specstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *BoltStore {
	t.Helper()
	store, err := NewBoltStore(t.TempDir(), "jbapi")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestBoltStoreGetNotFound(t *testing.T) {
	store := openTestStore(t)

	_, err := store.Get("nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBoltStoreUpsertAndGet(t *testing.T) {
	store := openTestStore(t)

	created, err := store.Upsert(Fields{
		APIName:     "thumbnail",
		Cmd:         "/usr/bin/thumbnailer",
		EndpointIn:  17001,
		EndpointOut: 18001,
		Methods:     []string{"POST"},
		Publisher:   "media-team",
	})
	require.NoError(t, err)
	assert.Equal(t, "jbapi_thumbnail", created.ImageName)
	assert.Equal(t, 30, created.TimeoutSecs)
	assert.False(t, created.CreateTime.IsZero())

	fetched, err := store.Get("thumbnail")
	require.NoError(t, err)
	assert.Equal(t, created.APIName, fetched.APIName)
	assert.Equal(t, created.ImageName, fetched.ImageName)
	assert.True(t, fetched.AcceptsMethod("POST"))
	assert.False(t, fetched.AcceptsMethod("DELETE"))
}

func TestBoltStoreUpsertRejectsMissingFields(t *testing.T) {
	store := openTestStore(t)

	_, err := store.Upsert(Fields{APIName: "thumbnail"})
	assert.Error(t, err)
}

func TestBoltStoreUpsertPreservesUnsetFieldsOnUpdate(t *testing.T) {
	store := openTestStore(t)

	_, err := store.Upsert(Fields{
		APIName:     "thumbnail",
		Cmd:         "/usr/bin/thumbnailer",
		ImageName:   "custom/thumbnailer",
		EndpointIn:  17001,
		EndpointOut: 18001,
		TimeoutSecs: 45,
		Methods:     []string{"POST"},
		Publisher:   "media-team",
	})
	require.NoError(t, err)

	updated, err := store.Upsert(Fields{
		APIName:     "thumbnail",
		Cmd:         "/usr/bin/thumbnailer-v2",
		EndpointIn:  17001,
		EndpointOut: 18001,
		Methods:     []string{"POST"},
		Publisher:   "media-team",
	})
	require.NoError(t, err)

	assert.Equal(t, "custom/thumbnailer", updated.ImageName)
	assert.Equal(t, 45, updated.TimeoutSecs)
	assert.Equal(t, "/usr/bin/thumbnailer-v2", updated.Cmd)
}

func TestBoltStoreGetIsCachedAfterFirstRead(t *testing.T) {
	store := openTestStore(t)

	_, err := store.Upsert(Fields{
		APIName:     "thumbnail",
		Cmd:         "/usr/bin/thumbnailer",
		EndpointIn:  17001,
		EndpointOut: 18001,
		Methods:     []string{"POST"},
		Publisher:   "media-team",
	})
	require.NoError(t, err)

	_, err = store.Get("thumbnail")
	require.NoError(t, err)

	store.mu.RLock()
	_, cached := store.cache["thumbnail"]
	store.mu.RUnlock()
	assert.True(t, cached)
}

func TestBoltStoreList(t *testing.T) {
	store := openTestStore(t)

	_, err := store.Upsert(Fields{
		APIName: "alpha", Cmd: "/bin/alpha", EndpointIn: 1, EndpointOut: 2,
		Methods: []string{"GET"}, Publisher: "team-a",
	})
	require.NoError(t, err)
	_, err = store.Upsert(Fields{
		APIName: "beta", Cmd: "/bin/beta", EndpointIn: 3, EndpointOut: 4,
		Methods: []string{"GET"}, Publisher: "team-b",
	})
	require.NoError(t, err)

	all, err := store.List("")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	filtered, err := store.List("team-a")
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, "alpha", filtered[0].APIName)
}

func TestBoltStoreDelete(t *testing.T) {
	store := openTestStore(t)

	_, err := store.Upsert(Fields{
		APIName: "alpha", Cmd: "/bin/alpha", EndpointIn: 1, EndpointOut: 2,
		Methods: []string{"GET"}, Publisher: "team-a",
	})
	require.NoError(t, err)

	require.NoError(t, store.Delete("alpha"))

	_, err = store.Get("alpha")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.NoError(t, store.Delete("alpha"))
}
