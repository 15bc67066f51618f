package credstore_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/technosupport/frl-toolbox/internal/platform/credstore"
)

func TestKey(t *testing.T) {
	assert.Equal(t, "UGhvdG9zaG9wMXt9MjAxODA3MjAwNA", credstore.Key("Photoshop1", "2018072004"))
	assert.Equal(t, credstore.Key("Photoshop1", "2018072004"), credstore.Key("Photoshop1", "2018072004\n"))
}

func TestMapStore(t *testing.T) {
	ctx := context.Background()
	s := credstore.NewMapStore(map[string]string{"a": "1"})

	v, ok, err := s.SavedCredential(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "1", v)

	_, ok, err = s.SavedCredential(ctx, "b")
	require.NoError(t, err)
	assert.False(t, ok)

	s.Put("b", "2")
	v, ok, _ = s.SavedCredential(ctx, "b")
	assert.True(t, ok)
	assert.Equal(t, "2", v)
}

func TestRedisStore(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := credstore.NewRedisStoreWithClient(rdb, "")
	defer s.Close()
	ctx := context.Background()

	key := credstore.Key("Illustrator1", "2018072004")
	_, ok, err := s.SavedCredential(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Save(ctx, key, `{"licenseExpiryTimestamp":"1735732800000"}`))
	assert.Equal(t, `{"licenseExpiryTimestamp":"1735732800000"}`, mr.HGet(credstore.DefaultHash, key))

	v, ok, err := s.SavedCredential(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"licenseExpiryTimestamp":"1735732800000"}`, v)

	mr.SetError("READONLY")
	_, _, err = s.SavedCredential(ctx, key)
	assert.Error(t, err)
}
