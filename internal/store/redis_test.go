package store

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	rs, err := NewRedis(ctx, "redis://"+mr.Addr(), "")
	require.NoError(t, err)
	defer rs.Close()

	assert.NoError(t, rs.Ping(ctx))
	require.NoError(t, rs.Client().Set(ctx, "k", "v", 0).Err())
	got, err := mr.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)

	mr.Close()
	assert.Error(t, rs.Ping(ctx))
}

func TestNewRedis_InvalidURL(t *testing.T) {
	_, err := NewRedis(context.Background(), "not-a-url://", "")
	assert.ErrorContains(t, err, "parsing redis URL")
}

func TestNewRedis_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedis(context.Background(), "redis://"+addr, "")
	assert.ErrorContains(t, err, "pinging redis")
}
