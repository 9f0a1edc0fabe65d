package redisclient

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRedisClientFromURL_KeepsDatabase(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	ctx := context.Background()

	client, err := NewRedisClientFromURL(ctx, "redis://"+mr.Addr()+"/3")
	require.NoError(t, err)
	defer client.Close()

	assert.Equal(t, 3, client.Options().DB)
	require.NoError(t, client.Set(ctx, "k", "v", 0).Err())

	got, err := mr.DB(3).Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)
}

func TestNewRedisClientFromURL_Errors(t *testing.T) {
	_, err := NewRedisClientFromURL(context.Background(), "http://example.com")
	assert.ErrorContains(t, err, "parse redis url")

	mr, err := miniredis.Run()
	require.NoError(t, err)
	addr := mr.Addr()
	mr.Close()

	_, err = NewRedisClientFromURL(context.Background(), "redis://"+addr)
	assert.ErrorContains(t, err, "ping redis")
}
